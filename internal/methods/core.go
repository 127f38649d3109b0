package methods

import (
	"context"
	"log/slog"

	"github.com/KalharPandya/upstocks-mcp/internal/auth"
	"github.com/KalharPandya/upstocks-mcp/internal/dispatch"
	"github.com/KalharPandya/upstocks-mcp/internal/instrumentation"
	"github.com/KalharPandya/upstocks-mcp/internal/session"
	"github.com/KalharPandya/upstocks-mcp/internal/upstox"
)

// ProtocolVersion is echoed by the initialization handshake.
const ProtocolVersion = "2024-11-05"

// ServerName identifies the gateway in the capabilities descriptor.
const ServerName = "upstocks-mcp"

// Broker is the slice of the Upstox client the handlers consume. Tests
// substitute a fake.
type Broker interface {
	GetMarketData(ctx context.Context, instruments []string) (map[string]upstox.Quote, error)
	GetHistoricalData(ctx context.Context, p upstox.HistoricalParams) ([]upstox.Candle, error)
	GetFunds(ctx context.Context) (*upstox.Funds, error)
	GetPositions(ctx context.Context) ([]upstox.Position, error)
	GetHoldings(ctx context.Context) ([]upstox.Holding, error)
	GetOrders(ctx context.Context) ([]upstox.Order, error)
	GetOrder(ctx context.Context, orderID string) (*upstox.Order, error)
	PlaceOrder(ctx context.Context, p upstox.PlaceOrderParams) (*upstox.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (*upstox.OrderResult, error)
	GetProfile(ctx context.Context) (*upstox.Profile, error)
	GetInstruments(ctx context.Context, exchange string) ([]upstox.Instrument, error)
}

// Services bundles the collaborators every handler may need.
type Services struct {
	Sessions *session.Registry
	Auth     *auth.Manager
	Broker   Broker
	Logger   *slog.Logger
	Metrics  *instrumentation.Metrics
	Version  string
}

// Capabilities is the static descriptor advertised by the discovery method.
// Built once at registration; never mutated afterwards.
type Capabilities struct {
	ServerInfo      ServerInfo `json:"server_info"`
	ProtocolVersion string     `json:"protocol_version"`
	Transports      []string   `json:"transports"`
	Resources       bool       `json:"resources"`
	Tools           bool       `json:"tools"`
}

// ServerInfo names the gateway implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RegisterAll registers every method on the dispatcher.
func RegisterAll(d *dispatch.Dispatcher, s *Services) {
	registerCore(d, s)
	registerResources(d, s)
	registerTools(d, s)
}

func registerCore(d *dispatch.Dispatcher, s *Services) {
	caps := Capabilities{
		ServerInfo:      ServerInfo{Name: ServerName, Version: s.Version},
		ProtocolVersion: ProtocolVersion,
		Transports:      []string{"http", "websocket", "stdio"},
		Resources:       true,
		Tools:           true,
	}

	d.RegisterExempt("discovery", func(ctx context.Context, params map[string]any) (any, error) {
		return caps, nil
	})

	d.RegisterExempt("session/start", func(ctx context.Context, params map[string]any) (any, error) {
		metadata, _ := params["metadata"].(map[string]any)
		id := s.Sessions.Start(metadata)
		return map[string]any{"session_id": id}, nil
	})

	// Teardown registration: ending a session that is already gone must
	// succeed, so the dispatch gate only checks that an id was given.
	d.RegisterTeardown("session/end", func(ctx context.Context, params map[string]any) (any, error) {
		id, _ := params["session_id"].(string)
		s.Sessions.End(id)
		return map[string]any{}, nil
	})

	// The handshake lets a client bootstrap a session in one round trip.
	// It always creates a fresh session, even when the client already has
	// one, and records the client's identification as session metadata.
	d.RegisterExempt("initialize", func(ctx context.Context, params map[string]any) (any, error) {
		metadata := map[string]any{}
		if clientInfo, ok := params["clientInfo"].(map[string]any); ok {
			metadata["client_name"], _ = clientInfo["name"].(string)
			metadata["client_version"], _ = clientInfo["version"].(string)
		}
		if pv, ok := params["protocolVersion"].(string); ok {
			metadata["protocol_version"] = pv
		}

		id := s.Sessions.Start(metadata)
		s.Logger.Info("client initialized", "session", id,
			"client", metadata["client_name"], "client_version", metadata["client_version"])

		return map[string]any{
			"session_id":       id,
			"server_info":      caps.ServerInfo,
			"protocol_version": ProtocolVersion,
			"capabilities":     caps,
		}, nil
	})
}
