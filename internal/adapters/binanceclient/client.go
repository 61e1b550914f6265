package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptoPositionWatch/internal/domain"
	"cryptoPositionWatch/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Compile-time check
var _ ports.OrderGateway = (*Client)(nil)

// Client implements the ports.OrderGateway interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
	BaseURL    string // Overrides the testnet/production URL when set
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Order queries are signed; every call will fail with an auth error.
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Order status queries will be rejected.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
		cfg.Logger.Info(context.Background(), "Binance client configured with custom endpoint", map[string]interface{}{"baseURL": client.BaseURL})
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	default:
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
	}, nil
}

// mapAPIError maps a Binance error code to a gateway error.
func mapAPIError(code int64) error {
	switch {
	case code == -1003: // Too many requests
		return ports.ErrGatewayRateLimited
	case code == -1021: // Timestamp for this request is outside of the recvWindow
		return ports.ErrGatewayTimeout
	case code == -1022, code == -2014, code == -2015: // Bad signature, API-key format, key/IP permissions
		return ports.ErrAuthenticationFailed
	case code == -2013: // Order does not exist
		return ports.ErrOrderNotFound
	case code <= -1100 && code >= -1199: // Parameter/Request format errors
		return ports.ErrInvalidRequest
	default:
		return ports.ErrGatewayUnavailable
	}
}

// mapError classifies any error returned by the futures client.
func mapError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return mapAPIError(apiErr.Code)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ports.ErrGatewayTimeout
	case errors.Is(err, context.Canceled):
		return ports.ErrContextCanceled
	default:
		// Network failures, 5xx bodies that are not API errors, decode failures.
		return ports.ErrGatewayUnavailable
	}
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string, fields map[string]interface{}) error {
	if err == nil {
		return nil
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["operation"] = operation
	fields["originalError"] = err.Error()

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
	}

	mappedErr := mapError(err)
	if errors.Is(mappedErr, ports.ErrContextCanceled) {
		return fmt.Errorf("%s operation canceled: %w: %w", operation, mappedErr, err)
	}
	finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)

	// A missing order is an expected answer for the reconciler, not an incident.
	if errors.Is(mappedErr, ports.ErrOrderNotFound) {
		c.logger.Debug(ctx, operation+": order not found", fields)
		return finalErr
	}
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	offset, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op, nil)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"offsetMs": offset})
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op, nil)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetOrderStatus retrieves the current state of an order. Numeric ids are
// looked up by exchange order id, anything else by client order id.
func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (*ports.OrderStatus, error) {
	op := "GetOrderStatus"
	fields := map[string]interface{}{"symbol": symbol, "orderID": orderID}
	if symbol == "" || orderID == "" {
		return nil, fmt.Errorf("%s failed: %w: symbol and order id are required", op, ports.ErrInvalidRequest)
	}

	svc := c.futuresClient.NewGetOrderService().Symbol(symbol)
	if id, err := strconv.ParseInt(orderID, 10, 64); err == nil {
		svc = svc.OrderID(id)
	} else {
		svc = svc.OrigClientOrderID(orderID)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op, fields)
	}
	if order == nil {
		return nil, c.handleError(ctx, errors.New("empty order response"), op, fields)
	}

	status := translateOrder(order)
	status.OrderID = orderID
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{
		"symbol":  symbol,
		"orderID": orderID,
		"status":  status.RawStatus,
		"state":   status.State,
	})
	return status, nil
}

// --- Translation Helpers ---

// translateOrderStatus normalizes a Binance order status. Unknown statuses
// are reported as open so the position is simply re-checked next pass.
func translateOrderStatus(s futures.OrderStatusType) domain.OrderState {
	switch strings.ToUpper(string(s)) {
	case string(futures.OrderStatusTypeFilled), "NEW_INSURANCE", "NEW_ADL":
		return domain.OrderStateFilled
	case string(futures.OrderStatusTypeCanceled),
		string(futures.OrderStatusTypeExpired),
		string(futures.OrderStatusTypeRejected):
		return domain.OrderStateCancelled
	default:
		// NEW, PARTIALLY_FILLED and anything the exchange adds later.
		return domain.OrderStateOpen
	}
}

func translateOrder(order *futures.Order) *ports.OrderStatus {
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	var updatedAt time.Time
	if order.UpdateTime > 0 {
		updatedAt = time.UnixMilli(order.UpdateTime).UTC()
	}
	return &ports.OrderStatus{
		OrderID:     strconv.FormatInt(order.OrderID, 10),
		Symbol:      order.Symbol,
		State:       translateOrderStatus(order.Status),
		RawStatus:   string(order.Status),
		AvgPrice:    avgPrice,
		ExecutedQty: execQty,
		UpdatedAt:   updatedAt,
	}
}
