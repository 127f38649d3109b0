package methods

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KalharPandya/upstocks-mcp/internal/dispatch"
)

const jsonContentType = "application/json"

// Resource describes one entry of the fixed resource catalog.
type Resource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mime_type"`
}

// resourceCatalog is static; resources/list returns it as-is.
var resourceCatalog = []Resource{
	{ID: "positions", Name: "Positions", Description: "Current open positions", MimeType: jsonContentType},
	{ID: "holdings", Name: "Holdings", Description: "Long-term holdings in the demat account", MimeType: jsonContentType},
	{ID: "orders", Name: "Orders", Description: "Order book for the trading day", MimeType: jsonContentType},
	{ID: "funds", Name: "Funds", Description: "Available funds and margin per segment", MimeType: jsonContentType},
	{ID: "profile", Name: "Profile", Description: "Account holder profile", MimeType: jsonContentType},
	{ID: "instruments", Name: "Instruments", Description: "Instrument master for an exchange", MimeType: jsonContentType},
}

func registerResources(d *dispatch.Dispatcher, s *Services) {
	d.Register("resources/list", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"resources": resourceCatalog}, nil
	})

	d.Register("resources/get", func(ctx context.Context, params map[string]any) (any, error) {
		id, _ := params["resource_id"].(string)
		if id == "" {
			return nil, fmt.Errorf("resource_id is required")
		}

		data, err := s.fetchResource(ctx, id, params)
		if err != nil {
			return nil, err
		}

		content, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode resource %s: %w", id, err)
		}
		return map[string]any{
			"content":      string(content),
			"content_type": jsonContentType,
		}, nil
	})
}

func (s *Services) fetchResource(ctx context.Context, id string, params map[string]any) (any, error) {
	switch id {
	case "positions":
		return s.Broker.GetPositions(ctx)
	case "holdings":
		return s.Broker.GetHoldings(ctx)
	case "orders":
		return s.Broker.GetOrders(ctx)
	case "funds":
		return s.Broker.GetFunds(ctx)
	case "profile":
		return s.Broker.GetProfile(ctx)
	case "instruments":
		exchange, _ := params["exchange"].(string)
		if exchange == "" {
			exchange = "NSE"
		}
		return s.Broker.GetInstruments(ctx, exchange)
	}
	return nil, fmt.Errorf("unknown resource: %s", id)
}
