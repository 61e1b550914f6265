package ports

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"cryptoPositionWatch/internal/domain"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"timeout", fmt.Errorf("GetOrderStatus failed: %w: %w", ErrGatewayTimeout, context.DeadlineExceeded), KindGateway},
		{"rate limited", ErrGatewayRateLimited, KindGateway},
		{"order not found", fmt.Errorf("wrapped: %w", ErrOrderNotFound), KindGateway},
		{"persistence", fmt.Errorf("%w: rename", ErrPersistence), KindPersistence},
		{"notify", fmt.Errorf("%w: telegram", ErrNotify), KindNotify},
		{"validation", fmt.Errorf("%w: bad side", ErrValidation), KindValidation},
		{"transition", fmt.Errorf("x: %w", domain.ErrInvalidTransition), KindValidation},
		{"canceled", context.Canceled, KindCanceled},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestGatewayErrorsWrapUmbrella(t *testing.T) {
	for _, err := range []error{ErrGatewayTimeout, ErrGatewayRateLimited, ErrGatewayUnavailable, ErrOrderNotFound, ErrAuthenticationFailed, ErrInvalidRequest} {
		assert.ErrorIs(t, err, ErrGateway)
	}
	assert.NotErrorIs(t, ErrGatewayTimeout, ErrOrderNotFound)
}
