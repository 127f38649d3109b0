package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/KalharPandya/upstocks-mcp/internal/dispatch"
	"github.com/KalharPandya/upstocks-mcp/internal/logging"
)

// NewWebSocketHandler returns a websocket handler that dispatches every
// inbound message independently. Responses are pushed back on the same
// connection as they complete, so out-of-order completion across concurrent
// messages is expected; clients correlate by id.
func NewWebSocketHandler(d *dispatch.Dispatcher, logger *slog.Logger) websocket.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithTransport(logger, "websocket")

	return func(conn *websocket.Conn) {
		serveWebSocket(conn, d, logger)
	}
}

func serveWebSocket(conn *websocket.Conn, d *dispatch.Dispatcher, logger *slog.Logger) {
	ctx := context.Background()
	if req := conn.Request(); req != nil {
		ctx = req.Context()
	}

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	send := func(resp any) {
		data, err := json.Marshal(resp)
		if err != nil {
			logger.Warn("failed to encode response", logging.Err(err))
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := websocket.Message.Send(conn, string(data)); err != nil {
			logger.Debug("failed to send response, connection likely gone", logging.Err(err))
		}
	}

	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if err != io.EOF {
				logger.Debug("websocket receive ended", logging.Err(err))
			}
			break
		}

		wg.Add(1)
		go func(raw []byte) {
			defer wg.Done()
			send(d.DispatchRaw(ctx, raw))
		}(data)
	}

	// Drain in-flight dispatches before the handler returns; their
	// responses are discarded by the closed connection if it is gone.
	wg.Wait()
}
