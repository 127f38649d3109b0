package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KalharPandya/upstocks-mcp/internal/protocol"
	"github.com/KalharPandya/upstocks-mcp/internal/session"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *session.Registry) {
	t.Helper()
	sessions := session.NewRegistryWithTimeout(time.Hour, 0, nil)
	t.Cleanup(sessions.Stop)
	return New(sessions, nil, nil), sessions
}

func request(id, method, params string) *protocol.Request {
	req := &protocol.Request{JSONRPC: protocol.Version, Method: method, ID: json.RawMessage(id)}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	return req
}

func TestDispatchEchoesID(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.RegisterExempt("ping", func(ctx context.Context, params map[string]any) (any, error) {
		return "pong", nil
	})

	for _, id := range []string{"1", `"abc"`, "987654321"} {
		resp := d.Dispatch(context.Background(), request(id, "ping", ""))
		assert.Equal(t, json.RawMessage(id), resp.ID)
	}
}

func TestDispatchWrongProtocolTag(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.RegisterExempt("ping", func(ctx context.Context, params map[string]any) (any, error) {
		t.Fatal("handler must not run for an invalid envelope")
		return nil, nil
	})

	req := request("1", "ping", "")
	req.JSONRPC = "1.0"
	resp := d.Dispatch(context.Background(), req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInvalidRequest, resp.Error.Code)
}

func TestDispatchMethodNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := d.Dispatch(context.Background(), request("7", "no/such/method", ""))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeMethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "no/such/method")
}

func TestSessionRequired(t *testing.T) {
	d, _ := newTestDispatcher(t)
	invoked := false
	d.Register("guarded", func(ctx context.Context, params map[string]any) (any, error) {
		invoked = true
		return nil, nil
	})

	resp := d.Dispatch(context.Background(), request("1", "guarded", `{}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeSessionError, resp.Error.Code)
	assert.Equal(t, "Session ID is required", resp.Error.Message)
	assert.False(t, invoked)
}

func TestSessionInvalid(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register("guarded", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, nil
	})

	resp := d.Dispatch(context.Background(), request("1", "guarded", `{"session_id":"ghost"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeSessionError, resp.Error.Code)
	assert.Equal(t, "Invalid or expired session", resp.Error.Message)
}

func TestTeardownGateRequiresID(t *testing.T) {
	d, _ := newTestDispatcher(t)
	invoked := false
	d.RegisterTeardown("teardown", func(ctx context.Context, params map[string]any) (any, error) {
		invoked = true
		return nil, nil
	})

	resp := d.Dispatch(context.Background(), request("1", "teardown", `{}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeSessionError, resp.Error.Code)
	assert.Equal(t, "Session ID is required", resp.Error.Message)
	assert.False(t, invoked)
}

func TestTeardownGateAcceptsGoneSession(t *testing.T) {
	d, sessions := newTestDispatcher(t)
	d.RegisterTeardown("teardown", func(ctx context.Context, params map[string]any) (any, error) {
		return "done", nil
	})

	id := sessions.Start(nil)
	sessions.End(id)

	// A session that no longer validates still passes the teardown gate.
	resp := d.Dispatch(context.Background(), request("1", "teardown", fmt.Sprintf(`{"session_id":%q}`, id)))
	require.Nil(t, resp.Error)
	assert.Equal(t, "done", resp.Result)
}

func TestSessionTouchedOnDispatch(t *testing.T) {
	d, sessions := newTestDispatcher(t)
	d.Register("guarded", func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	})

	id := sessions.Start(nil)
	before, _ := sessions.Get(id)

	time.Sleep(5 * time.Millisecond)
	resp := d.Dispatch(context.Background(), request("1", "guarded", fmt.Sprintf(`{"session_id":%q}`, id)))
	require.Nil(t, resp.Error)

	after, _ := sessions.Get(id)
	assert.True(t, after.LastAccessedAt.After(before.LastAccessedAt))
}

func TestHandlerErrorWrapped(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.RegisterExempt("failing", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("upstream exploded")
	})

	resp := d.Dispatch(context.Background(), request("1", "failing", ""))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInternalError, resp.Error.Code)
	assert.Equal(t, "upstream exploded", resp.Error.Message)
}

func TestHandlerPanicCaught(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.RegisterExempt("panicky", func(ctx context.Context, params map[string]any) (any, error) {
		panic("boom")
	})

	var resp *protocol.Response
	assert.NotPanics(t, func() {
		resp = d.Dispatch(context.Background(), request("1", "panicky", ""))
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "boom")
}

func TestParamsDefaultToEmptyObject(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.RegisterExempt("inspect", func(ctx context.Context, params map[string]any) (any, error) {
		require.NotNil(t, params)
		return len(params), nil
	})

	resp := d.Dispatch(context.Background(), request("1", "inspect", ""))
	require.Nil(t, resp.Error)
	assert.Equal(t, 0, resp.Result)
}

func TestLastRegistrationWins(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.RegisterExempt("m", func(ctx context.Context, params map[string]any) (any, error) {
		return "first", nil
	})
	d.RegisterExempt("m", func(ctx context.Context, params map[string]any) (any, error) {
		return "second", nil
	})

	resp := d.Dispatch(context.Background(), request("1", "m", ""))
	assert.Equal(t, "second", resp.Result)
}

func TestDispatchRawParseError(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := d.DispatchRaw(context.Background(), []byte(`{"jsonrpc": nope`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeParseError, resp.Error.Code)
	assert.Nil(t, resp.ID)
}

func TestDispatchRawSalvagesID(t *testing.T) {
	d, _ := newTestDispatcher(t)

	// method has the wrong type so envelope decoding fails, but the id is
	// still recoverable from the object.
	resp := d.DispatchRaw(context.Background(), []byte(`{"jsonrpc":"2.0","id":9,"method":{"x":1}}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeParseError, resp.Error.Code)
	assert.Equal(t, json.RawMessage("9"), resp.ID)
}

func TestConcurrentDispatches(t *testing.T) {
	d, sessions := newTestDispatcher(t)
	id := sessions.Start(nil)

	release := make(chan struct{})
	d.Register("slow", func(ctx context.Context, params map[string]any) (any, error) {
		<-release
		return "done", nil
	})
	d.RegisterExempt("fast", func(ctx context.Context, params map[string]any) (any, error) {
		return "quick", nil
	})

	slowDone := make(chan *protocol.Response, 1)
	go func() {
		slowDone <- d.Dispatch(context.Background(), request("1", "slow", fmt.Sprintf(`{"session_id":%q}`, id)))
	}()

	// A fast dispatch must complete while the slow one is blocked.
	resp := d.Dispatch(context.Background(), request("2", "fast", ""))
	assert.Equal(t, "quick", resp.Result)

	close(release)
	select {
	case resp := <-slowDone:
		assert.Equal(t, "done", resp.Result)
	case <-time.After(time.Second):
		t.Fatal("slow dispatch never completed")
	}
}
