package methods

import (
	"context"
	"fmt"
	"time"

	"github.com/KalharPandya/upstocks-mcp/internal/dispatch"
	"github.com/KalharPandya/upstocks-mcp/internal/logging"
	"github.com/KalharPandya/upstocks-mcp/internal/upstox"
)

// Tool describes one executable tool for tools/list.
type Tool struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []ToolParam `json:"parameters,omitempty"`
}

// ToolParam documents one tool parameter.
type ToolParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// toolFunc executes one tool. Returned errors are reported inside the
// tools/execute result, not as protocol errors.
type toolFunc func(ctx context.Context, s *Services, params map[string]any) (any, error)

type toolEntry struct {
	tool Tool
	run  toolFunc
}

var toolTable = []toolEntry{
	{
		tool: Tool{
			ID: "get-market-data", Name: "Get market data",
			Description: "Fetch full quotes for one or more instruments",
			Parameters: []ToolParam{
				{Name: "instruments", Type: "array", Required: true, Description: "Instrument keys, e.g. NSE_EQ|INE002A01018"},
			},
		},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			instruments, err := stringSliceParam(params, "instruments")
			if err != nil {
				return nil, err
			}
			return s.Broker.GetMarketData(ctx, instruments)
		},
	},
	{
		tool: Tool{
			ID: "get-historical-data", Name: "Get historical data",
			Description: "Fetch historical candles for an instrument",
			Parameters: []ToolParam{
				{Name: "instrument_key", Type: "string", Required: true, Description: "Instrument key"},
				{Name: "interval", Type: "string", Required: true, Description: "Candle interval, e.g. day, 1minute"},
				{Name: "to_date", Type: "string", Required: true, Description: "End date, YYYY-MM-DD"},
				{Name: "from_date", Type: "string", Required: false, Description: "Start date, YYYY-MM-DD"},
			},
		},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			p := upstox.HistoricalParams{}
			var err error
			if p.InstrumentKey, err = stringParam(params, "instrument_key"); err != nil {
				return nil, err
			}
			if p.Interval, err = stringParam(params, "interval"); err != nil {
				return nil, err
			}
			if p.ToDate, err = stringParam(params, "to_date"); err != nil {
				return nil, err
			}
			p.FromDate, _ = params["from_date"].(string)
			return s.Broker.GetHistoricalData(ctx, p)
		},
	},
	{
		tool: Tool{ID: "get-funds", Name: "Get funds", Description: "Fetch available funds and margin"},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			return s.Broker.GetFunds(ctx)
		},
	},
	{
		tool: Tool{ID: "get-positions", Name: "Get positions", Description: "Fetch current open positions"},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			return s.Broker.GetPositions(ctx)
		},
	},
	{
		tool: Tool{ID: "get-holdings", Name: "Get holdings", Description: "Fetch long-term holdings"},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			return s.Broker.GetHoldings(ctx)
		},
	},
	{
		tool: Tool{ID: "get-orders", Name: "Get orders", Description: "Fetch the order book"},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			return s.Broker.GetOrders(ctx)
		},
	},
	{
		tool: Tool{
			ID: "get-order", Name: "Get order",
			Description: "Fetch one order by id",
			Parameters: []ToolParam{
				{Name: "order_id", Type: "string", Required: true, Description: "Order identifier"},
			},
		},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			orderID, err := stringParam(params, "order_id")
			if err != nil {
				return nil, err
			}
			return s.Broker.GetOrder(ctx, orderID)
		},
	},
	{
		tool: Tool{
			ID: "place-order", Name: "Place order",
			Description: "Place a new order",
			Parameters: []ToolParam{
				{Name: "instrument_token", Type: "string", Required: true, Description: "Instrument key"},
				{Name: "transaction_type", Type: "string", Required: true, Description: "BUY or SELL"},
				{Name: "order_type", Type: "string", Required: true, Description: "MARKET, LIMIT, SL or SL-M"},
				{Name: "product", Type: "string", Required: true, Description: "Product code, e.g. D or I"},
				{Name: "quantity", Type: "number", Required: true, Description: "Order quantity"},
				{Name: "price", Type: "number", Required: false, Description: "Limit price"},
				{Name: "trigger_price", Type: "number", Required: false, Description: "Trigger price for SL orders"},
				{Name: "validity", Type: "string", Required: false, Description: "DAY or IOC"},
			},
		},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			p := upstox.PlaceOrderParams{}
			var err error
			if p.InstrumentToken, err = stringParam(params, "instrument_token"); err != nil {
				return nil, err
			}
			if p.TransactionType, err = stringParam(params, "transaction_type"); err != nil {
				return nil, err
			}
			if p.OrderType, err = stringParam(params, "order_type"); err != nil {
				return nil, err
			}
			if p.Product, err = stringParam(params, "product"); err != nil {
				return nil, err
			}
			if p.Quantity, err = intParam(params, "quantity"); err != nil {
				return nil, err
			}
			p.Price, _ = floatParam(params, "price")
			p.TriggerPrice, _ = floatParam(params, "trigger_price")
			p.Validity, _ = params["validity"].(string)
			return s.Broker.PlaceOrder(ctx, p)
		},
	},
	{
		tool: Tool{
			ID: "cancel-order", Name: "Cancel order",
			Description: "Cancel an open order",
			Parameters: []ToolParam{
				{Name: "order_id", Type: "string", Required: true, Description: "Order identifier"},
			},
		},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			orderID, err := stringParam(params, "order_id")
			if err != nil {
				return nil, err
			}
			return s.Broker.CancelOrder(ctx, orderID)
		},
	},
	{
		tool: Tool{ID: "get-profile", Name: "Get profile", Description: "Fetch the account profile"},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			return s.Broker.GetProfile(ctx)
		},
	},
	{
		tool: Tool{
			ID: "get-instruments", Name: "Get instruments",
			Description: "Fetch the instrument master for an exchange",
			Parameters: []ToolParam{
				{Name: "exchange", Type: "string", Required: true, Description: "Exchange code, e.g. NSE or BSE"},
			},
		},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			exchange, err := stringParam(params, "exchange")
			if err != nil {
				return nil, err
			}
			return s.Broker.GetInstruments(ctx, exchange)
		},
	},
	{
		tool: Tool{
			ID: "get-authorization-url", Name: "Get authorization URL",
			Description: "Build the Upstox OAuth authorization URL for the configured app",
		},
		run: func(ctx context.Context, s *Services, params map[string]any) (any, error) {
			return map[string]any{"authorization_url": s.Auth.AuthorizationURL()}, nil
		},
	},
}

func registerTools(d *dispatch.Dispatcher, s *Services) {
	catalog := make([]Tool, 0, len(toolTable))
	runners := make(map[string]toolFunc, len(toolTable))
	for _, entry := range toolTable {
		catalog = append(catalog, entry.tool)
		runners[entry.tool.ID] = entry.run
	}

	d.Register("tools/list", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"tools": catalog}, nil
	})

	d.Register("tools/execute", func(ctx context.Context, params map[string]any) (any, error) {
		toolID, _ := params["tool_id"].(string)
		if toolID == "" {
			return toolError("tool_id is required"), nil
		}
		run, ok := runners[toolID]
		if !ok {
			return toolError(fmt.Sprintf("unknown tool: %s", toolID)), nil
		}

		start := time.Now()
		result, err := run(ctx, s, params)
		status := logging.StatusSuccess
		if err != nil {
			status = logging.StatusError
		}
		s.Metrics.RecordToolInvocation(ctx, toolID, status, time.Since(start))
		s.Logger.Debug("tool executed", logging.Tool(toolID), logging.Status(status), logging.Err(err))

		if err != nil {
			return toolError(err.Error()), nil
		}
		return map[string]any{"result": result}, nil
	})
}

// toolError builds the in-result error shape for tools/execute.
func toolError(message string) map[string]any {
	return map[string]any{"error": map[string]any{"message": message}}
}

func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

func stringSliceParam(params map[string]any, name string) ([]string, error) {
	raw, ok := params[name].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%s is required", name)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an array of strings", name)
		}
		out = append(out, s)
	}
	return out, nil
}

func intParam(params map[string]any, name string) (int64, error) {
	f, ok := params[name].(float64)
	if !ok {
		return 0, fmt.Errorf("%s is required", name)
	}
	return int64(f), nil
}

func floatParam(params map[string]any, name string) (float64, bool) {
	f, ok := params[name].(float64)
	return f, ok
}
