package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoPositionWatch/internal/domain"
	"cryptoPositionWatch/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestTranslateOrderStatus(t *testing.T) {
	tests := []struct {
		status futures.OrderStatusType
		want   domain.OrderState
	}{
		{futures.OrderStatusTypeNew, domain.OrderStateOpen},
		{futures.OrderStatusTypePartiallyFilled, domain.OrderStateOpen},
		{futures.OrderStatusTypeFilled, domain.OrderStateFilled},
		{"NEW_INSURANCE", domain.OrderStateFilled},
		{"NEW_ADL", domain.OrderStateFilled},
		{futures.OrderStatusTypeCanceled, domain.OrderStateCancelled},
		{futures.OrderStatusTypeExpired, domain.OrderStateCancelled},
		{futures.OrderStatusTypeRejected, domain.OrderStateCancelled},
		{"filled", domain.OrderStateFilled},
		{"SOMETHING_NEW", domain.OrderStateOpen},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, translateOrderStatus(tt.status))
		})
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limit", &common.APIError{Code: -1003}, ports.ErrGatewayRateLimited},
		{"recv window", &common.APIError{Code: -1021}, ports.ErrGatewayTimeout},
		{"bad signature", &common.APIError{Code: -1022}, ports.ErrAuthenticationFailed},
		{"invalid key", &common.APIError{Code: -2015}, ports.ErrAuthenticationFailed},
		{"order missing", &common.APIError{Code: -2013}, ports.ErrOrderNotFound},
		{"bad param", &common.APIError{Code: -1102}, ports.ErrInvalidRequest},
		{"other api", &common.APIError{Code: -4000}, ports.ErrGatewayUnavailable},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), ports.ErrGatewayTimeout},
		{"canceled", context.Canceled, ports.ErrContextCanceled},
		{"network", errors.New("dial tcp: connection refused"), ports.ErrGatewayUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "key", SecretKey: "secret", Logger: &mockLogger{}, BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestGetOrderStatus_Filled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "123", r.URL.Query().Get("orderId"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":123,"status":"FILLED","avgPrice":"66000.5","executedQty":"0.010","updateTime":1714557600000}`)
	})

	status, err := c.GetOrderStatus(context.Background(), "BTCUSDT", "123")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateFilled, status.State)
	assert.Equal(t, "FILLED", status.RawStatus)
	assert.Equal(t, "123", status.OrderID)
	assert.InDelta(t, 66000.5, status.AvgPrice, 1e-9)
	assert.InDelta(t, 0.01, status.ExecutedQty, 1e-9)
	assert.Equal(t, time.UnixMilli(1714557600000).UTC(), status.UpdatedAt)
}

func TestGetOrderStatus_ClientOrderID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tp-btc-1", r.URL.Query().Get("origClientOrderId"))
		assert.Empty(t, r.URL.Query().Get("orderId"))
		fmt.Fprint(w, `{"symbol":"BTCUSDT","orderId":9,"status":"NEW"}`)
	})

	status, err := c.GetOrderStatus(context.Background(), "BTCUSDT", "tp-btc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateOpen, status.State)
	assert.Equal(t, "tp-btc-1", status.OrderID)
}

func TestGetOrderStatus_APIErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want error
	}{
		{"not found", http.StatusBadRequest, `{"code":-2013,"msg":"Order does not exist."}`, ports.ErrOrderNotFound},
		{"rate limited", http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests."}`, ports.ErrGatewayRateLimited},
		{"auth", http.StatusUnauthorized, `{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`, ports.ErrAuthenticationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.GetOrderStatus(context.Background(), "BTCUSDT", "1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ports.ErrGateway)
		})
	}
}

func TestGetOrderStatus_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetOrderStatus(ctx, "BTCUSDT", "1")
	assert.ErrorIs(t, err, ports.ErrGatewayTimeout)
}

func TestGetOrderStatus_RequiresIDs(t *testing.T) {
	c, err := New(Config{Logger: &mockLogger{}, UseTestnet: true})
	require.NoError(t, err)
	_, err = c.GetOrderStatus(context.Background(), "BTCUSDT", "")
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
