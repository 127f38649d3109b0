package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/KalharPandya/upstocks-mcp/internal/dispatch"
	"github.com/KalharPandya/upstocks-mcp/internal/protocol"
	"github.com/KalharPandya/upstocks-mcp/internal/session"
)

func newTestDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	sessions := session.NewRegistryWithTimeout(time.Hour, 0, nil)
	t.Cleanup(sessions.Stop)

	d := dispatch.New(sessions, nil, nil)
	d.RegisterExempt("echo", func(ctx context.Context, params map[string]any) (any, error) {
		return params, nil
	})
	return d
}

func TestHTTPRoundTrip(t *testing.T) {
	handler := NewHTTPHandler(newTestDispatcher(t), nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"echo","params":{"hello":"world"}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, json.RawMessage("1"), resp.ID)
	assert.Nil(t, resp.Error)
}

func TestHTTPParseErrorInBand(t *testing.T) {
	handler := NewHTTPHandler(newTestDispatcher(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("this is not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Protocol failures travel in-band, not as HTTP status codes.
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeParseError, resp.Error.Code)
}

func TestHTTPRejectsGet(t *testing.T) {
	handler := NewHTTPHandler(newTestDispatcher(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStdioRoundTrip(t *testing.T) {
	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"n":1}}` + "\n" +
			"\n" + // blank lines are skipped
			`{"jsonrpc":"2.0","id":2,"method":"echo","params":{"n":2}}` + "\n")
	var out bytes.Buffer

	s := NewStdio(newTestDispatcher(t), in, &out, nil)
	require.NoError(t, s.Run(context.Background()))

	lines := nonEmptyLines(out.String())
	require.Len(t, lines, 2)

	ids := map[string]bool{}
	for _, line := range lines {
		var resp protocol.Response
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		assert.Nil(t, resp.Error)
		ids[string(resp.ID)] = true
	}
	// Out-of-order completion is allowed; both ids must be answered.
	assert.True(t, ids["1"] && ids["2"])
}

func TestStdioParseErrorNullID(t *testing.T) {
	in := strings.NewReader("garbage line\n")
	var out bytes.Buffer

	s := NewStdio(newTestDispatcher(t), in, &out, nil)
	require.NoError(t, s.Run(context.Background()))

	lines := nonEmptyLines(out.String())
	require.Len(t, lines, 1)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &raw))
	assert.Equal(t, "null", string(raw["id"]))

	var resp protocol.Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeParseError, resp.Error.Code)
}

func TestStdioRunReturnsOnCancel(t *testing.T) {
	// An open pipe stands in for a terminal: the reader blocks until the
	// next line, which must not hold up shutdown.
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	var out bytes.Buffer

	s := NewStdio(newTestDispatcher(t), pr, &out, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	_, err := pw.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"echo"}` + "\n"))
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation with the input still open")
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	handler := NewWebSocketHandler(newTestDispatcher(t), nil)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Two in-flight requests on the same channel.
	require.NoError(t, websocket.Message.Send(conn, `{"jsonrpc":"2.0","id":"a","method":"echo"}`))
	require.NoError(t, websocket.Message.Send(conn, `{"jsonrpc":"2.0","id":"b","method":"echo"}`))

	ids := map[string]bool{}
	for i := 0; i < 2; i++ {
		var msg string
		require.NoError(t, websocket.Message.Receive(conn, &msg))
		var resp protocol.Response
		require.NoError(t, json.Unmarshal([]byte(msg), &resp))
		assert.Nil(t, resp.Error)
		ids[string(resp.ID)] = true
	}
	assert.True(t, ids[`"a"`] && ids[`"b"`], "each response must carry its own request id")
}

func TestWebSocketParseError(t *testing.T) {
	handler := NewWebSocketHandler(newTestDispatcher(t), nil)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, websocket.Message.Send(conn, "{{{"))

	var msg string
	require.NoError(t, websocket.Message.Receive(conn, &msg))
	var resp protocol.Response
	require.NoError(t, json.Unmarshal([]byte(msg), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeParseError, resp.Error.Code)

	// The connection survives the bad frame.
	require.NoError(t, websocket.Message.Send(conn, `{"jsonrpc":"2.0","id":1,"method":"echo"}`))
	require.NoError(t, websocket.Message.Receive(conn, &msg))
	resp = protocol.Response{}
	require.NoError(t, json.Unmarshal([]byte(msg), &resp))
	assert.Nil(t, resp.Error)
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
