package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoPositionWatch/internal/app"
	"cryptoPositionWatch/internal/cache"
	"cryptoPositionWatch/internal/domain"
	"cryptoPositionWatch/internal/ports"
)

type mockLoader struct {
	positions domain.Positions
	err       error
}

func (m *mockLoader) Load(ctx context.Context) (domain.Positions, error) {
	return m.positions.Clone(), m.err
}

type mockHistory struct {
	events      []*domain.ClosureEvent
	err         error
	lastSymbol  string
	lastLimit   int
	recentCalls int
}

func (m *mockHistory) Recent(ctx context.Context, limit int) ([]*domain.ClosureEvent, error) {
	m.recentCalls++
	m.lastLimit = limit
	return m.events, m.err
}

func (m *mockHistory) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.ClosureEvent, error) {
	m.lastSymbol = symbol
	m.lastLimit = limit
	return m.events, m.err
}

type mockPasses struct {
	report   *app.PassReport
	err      error
	lastErr  error
	inFlight bool
}

func (m *mockPasses) RunNow(ctx context.Context) (*app.PassReport, error) {
	return m.report, m.err
}

func (m *mockPasses) LastPass() (*app.PassReport, error) { return m.report, m.lastErr }
func (m *mockPasses) InFlight() bool                     { return m.inFlight }

func testPositions() domain.Positions {
	openedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	closedAt := openedAt.Add(time.Hour)
	return domain.Positions{
		"ETHUSDT": {
			Symbol: "ETHUSDT", Side: domain.SideShort, EntryPrice: 3000, Quantity: 0.5,
			TakeProfitOrderID: "T2", StopLossOrderID: "S2", Status: domain.StatusClosed,
			OpenedAt: openedAt, ClosedAt: &closedAt, CloseReason: domain.CloseReasonStopLoss, ClosingOrderID: "S2",
		},
		"BTCUSDT": {
			Symbol: "BTCUSDT", Side: domain.SideLong, EntryPrice: 65000, Quantity: 0.01,
			TakeProfitOrderID: "T1", StopLossOrderID: "S1", Status: domain.StatusOpen, OpenedAt: openedAt,
		},
	}
}

func TestPositionsHandler_GetPositions(t *testing.T) {
	t.Run("lists positions sorted with phase", func(t *testing.T) {
		h := NewPositionsHandler(&mockLoader{positions: testPositions()})
		w := httptest.NewRecorder()
		h.GetPositions(w, httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp struct {
			Count     int `json:"count"`
			Positions []struct {
				Symbol string `json:"symbol"`
				Status string `json:"status"`
				Phase  string `json:"phase"`
			} `json:"positions"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 2, resp.Count)
		require.Len(t, resp.Positions, 2)
		assert.Equal(t, "BTCUSDT", resp.Positions[0].Symbol)
		assert.Equal(t, "OPEN", resp.Positions[0].Phase)
		assert.Equal(t, "ETHUSDT", resp.Positions[1].Symbol)
		assert.Equal(t, "CLOSED_PENDING_NOTIFY", resp.Positions[1].Phase)
	})

	t.Run("returns 500 on load error", func(t *testing.T) {
		h := NewPositionsHandler(&mockLoader{err: errors.New("read failed")})
		w := httptest.NewRecorder()
		h.GetPositions(w, httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "failed to load positions", resp.Error)
		assert.Equal(t, "read failed", resp.Details)
	})

	t.Run("returns 500 when store is nil", func(t *testing.T) {
		h := &PositionsHandler{}
		w := httptest.NewRecorder()
		h.GetPositions(w, httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestClosuresHandler_GetClosures(t *testing.T) {
	events := []*domain.ClosureEvent{{ID: 1, Symbol: "BTCUSDT", CloseReason: domain.CloseReasonTakeProfit}}

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedSymbol string
		expectedLimit  int
	}{
		{name: "default limit", query: "", expectedStatus: http.StatusOK, expectedLimit: 50},
		{name: "by symbol", query: "?symbol=btcusdt&limit=5", expectedStatus: http.StatusOK, expectedSymbol: "BTCUSDT", expectedLimit: 5},
		{name: "limit capped", query: "?limit=10000", expectedStatus: http.StatusOK, expectedLimit: 500},
		{name: "invalid limit", query: "?limit=abc", expectedStatus: http.StatusBadRequest},
		{name: "zero limit", query: "?limit=0", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hist := &mockHistory{events: events}
			h := NewClosuresHandler(hist)
			w := httptest.NewRecorder()
			h.GetClosures(w, httptest.NewRequest(http.MethodGet, "/api/v1/closures"+tt.query, nil))

			require.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}
			assert.Equal(t, tt.expectedSymbol, hist.lastSymbol)
			assert.Equal(t, tt.expectedLimit, hist.lastLimit)

			var got []domain.ClosureEvent
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			require.Len(t, got, 1)
			assert.Equal(t, "BTCUSDT", got[0].Symbol)
		})
	}

	t.Run("empty journal returns empty array", func(t *testing.T) {
		h := NewClosuresHandler(&mockHistory{})
		w := httptest.NewRecorder()
		h.GetClosures(w, httptest.NewRequest(http.MethodGet, "/api/v1/closures", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("returns 500 on journal error", func(t *testing.T) {
		h := NewClosuresHandler(&mockHistory{err: errors.New("database is locked")})
		w := httptest.NewRecorder()
		h.GetClosures(w, httptest.NewRequest(http.MethodGet, "/api/v1/closures", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestCacheHandler_GetStats(t *testing.T) {
	orders := cache.New[int](cache.WithName("orders"))
	require.NoError(t, orders.Set("a", 1, time.Minute))
	orders.Get("a")
	orders.Get("b")

	h := NewCacheHandler(orders)
	w := httptest.NewRecorder()
	h.GetStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"orders":{"hits":1,"misses":1,"size":1}}`, w.Body.String())
}

func TestReconcileHandler_RunPass(t *testing.T) {
	report := &app.PassReport{ID: "pass-1", Checked: 2, Closed: 1, Failures: []app.SymbolFailure{}}

	tests := []struct {
		name           string
		passes         *mockPasses
		expectedStatus int
	}{
		{name: "success", passes: &mockPasses{report: report}, expectedStatus: http.StatusOK},
		{name: "already running", passes: &mockPasses{err: ports.ErrPassInProgress}, expectedStatus: http.StatusConflict},
		{name: "persistence failure", passes: &mockPasses{report: report, err: ports.ErrPersistence}, expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewReconcileHandler(tt.passes)
			w := httptest.NewRecorder()
			h.RunPass(w, httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}

	t.Run("report body", func(t *testing.T) {
		h := NewReconcileHandler(&mockPasses{report: report})
		w := httptest.NewRecorder()
		h.RunPass(w, httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", nil))

		var got app.PassReport
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.Equal(t, "pass-1", got.ID)
		assert.Equal(t, 1, got.Closed)
	})
}

func TestReconcileHandler_Health(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		h := NewReconcileHandler(&mockPasses{report: &app.PassReport{ID: "p"}, inFlight: true})
		w := httptest.NewRecorder()
		h.Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "ok", resp.Status)
		assert.True(t, resp.InFlight)
		require.NotNil(t, resp.LastPass)
		assert.Equal(t, "p", resp.LastPass.ID)
	})

	t.Run("degraded after failed pass", func(t *testing.T) {
		h := NewReconcileHandler(&mockPasses{lastErr: errors.New("persist pass results: disk full")})
		w := httptest.NewRecorder()
		h.Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Contains(t, resp.LastError, "disk full")
	})
}
