package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liveCreds(token string) Credentials {
	return Credentials{
		Environment: EnvLive,
		APIKey:      "key",
		APISecret:   "secret",
		AccessToken: token,
		RedirectURI: "http://localhost:8080/callback",
	}
}

func newTestManager(t *testing.T, creds Credentials) (*Manager, *time.Time) {
	t.Helper()
	m := NewManager(creds, nil)
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestAuthMethod(t *testing.T) {
	assert.Equal(t, MethodToken, liveCreds("tok").AuthMethod())
	assert.Equal(t, MethodOAuth, liveCreds("").AuthMethod())
}

func TestBaseURLPerEnvironment(t *testing.T) {
	assert.Equal(t, LiveBaseURL, Credentials{Environment: EnvLive}.BaseURL())
	assert.Equal(t, SandboxBaseURL, Credentials{Environment: EnvSandbox}.BaseURL())
}

func TestParseEnvironment(t *testing.T) {
	env, err := ParseEnvironment("sandbox")
	require.NoError(t, err)
	assert.Equal(t, EnvSandbox, env)

	_, err = ParseEnvironment("staging")
	require.Error(t, err)
}

func TestDirectTokenAdoptedLazily(t *testing.T) {
	m, now := newTestManager(t, liveCreds("configured-token"))

	tok, err := m.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "configured-token", tok)

	state := m.Snapshot()
	assert.True(t, state.Authorized)
	assert.True(t, state.TokenExpiry.After(*now))
}

func TestLiveExpiryIsNextCutover(t *testing.T) {
	m, now := newTestManager(t, liveCreds("tok"))

	_, err := m.AccessToken()
	require.NoError(t, err)

	expiry := m.Snapshot().TokenExpiry
	ist := expiry.In(istLocation())
	assert.Equal(t, 3, ist.Hour())
	assert.Equal(t, 30, ist.Minute())
	assert.True(t, expiry.After(*now))
	// Strictly less than two days out.
	assert.True(t, expiry.Before(now.Add(48*time.Hour)))
}

func TestExpiryPushedWhenCutoverAlreadyPast(t *testing.T) {
	// 23:50 IST on June 2nd: 03:30 on June 3rd is still ahead of now, so
	// the next-day cutover stands.
	m, now := newTestManager(t, liveCreds("tok"))
	*now = time.Date(2025, 6, 2, 23, 50, 0, 0, istLocation())

	_, err := m.AccessToken()
	require.NoError(t, err)
	expiry := m.Snapshot().TokenExpiry.In(istLocation())
	assert.Equal(t, 3, expiry.Day())

	// 02:00 IST: "tomorrow 03:30" computed from the same calendar day is
	// in the future as well, June 3rd again from June 2nd early morning.
	m2, now2 := newTestManager(t, liveCreds("tok"))
	*now2 = time.Date(2025, 6, 2, 2, 0, 0, 0, istLocation())
	_, err = m2.AccessToken()
	require.NoError(t, err)
	expiry2 := m2.Snapshot().TokenExpiry.In(istLocation())
	assert.Equal(t, 3, expiry2.Day())
}

func TestSandboxExpiryAtLeastThirtyDays(t *testing.T) {
	creds := liveCreds("sandbox-token")
	creds.Environment = EnvSandbox
	m, now := newTestManager(t, creds)

	tok, err := m.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "sandbox-token", tok)

	expiry := m.Snapshot().TokenExpiry
	assert.True(t, expiry.Sub(*now) >= 30*24*time.Hour,
		"sandbox expiry %v should be at least 30 days past %v", expiry, *now)
}

func TestExpiredTokenRevalidatedOnAccess(t *testing.T) {
	m, now := newTestManager(t, liveCreds(""))
	m.SetToken("short-lived", 1)
	assert.True(t, m.Snapshot().Authorized)

	*now = now.AddDate(0, 0, 2)

	_, err := m.AccessToken()
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.False(t, m.Snapshot().Authorized)
}

func TestOAuthNeverAuthorized(t *testing.T) {
	m, _ := newTestManager(t, liveCreds(""))
	_, err := m.AccessToken()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAuthorizationURL(t *testing.T) {
	m, _ := newTestManager(t, liveCreds(""))
	url := m.AuthorizationURL()
	assert.Contains(t, url, "client_id=key")
	assert.Contains(t, url, "response_type=code")
	assert.Contains(t, url, "redirect_uri=")
}

func TestExchangeCodeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh-token","token_type":"Bearer"}`))
	}))
	defer srv.Close()

	m, now := newTestManager(t, liveCreds(""))
	m.oauth.Endpoint.TokenURL = srv.URL

	state, err := m.ExchangeCode(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.True(t, state.Authorized)
	assert.Equal(t, "fresh-token", state.AccessToken)
	assert.True(t, state.TokenExpiry.After(*now))

	tok, err := m.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", tok)
}

func TestExchangeCodeFailureLeavesStateUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	m, _ := newTestManager(t, liveCreds(""))
	m.oauth.Endpoint.TokenURL = srv.URL
	prior := m.SetToken("existing", 5)

	_, err := m.ExchangeCode(context.Background(), "bad-code")
	require.Error(t, err)

	after := m.Snapshot()
	assert.Equal(t, prior.AccessToken, after.AccessToken)
	assert.Equal(t, prior.TokenExpiry, after.TokenExpiry)
	assert.Equal(t, prior.Authorized, after.Authorized)
}

func TestLogoutClearsState(t *testing.T) {
	m, _ := newTestManager(t, liveCreds("tok"))
	_, err := m.AccessToken()
	require.NoError(t, err)

	m.Logout()
	state := m.Snapshot()
	assert.False(t, state.Authorized)
	assert.Empty(t, state.AccessToken)
}

func TestSubscribeReceivesChanges(t *testing.T) {
	m, _ := newTestManager(t, liveCreds(""))
	ch := m.Subscribe()

	m.SetToken("tok", 1)

	select {
	case state := <-ch:
		assert.True(t, state.Authorized)
	case <-time.After(time.Second):
		t.Fatal("expected a state-change notification")
	}
}

func TestNotifyDoesNotBlockOnSlowSubscriber(t *testing.T) {
	m, _ := newTestManager(t, liveCreds(""))
	m.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			m.SetToken("tok", 1)
			m.Logout()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutations blocked on an undrained subscriber")
	}
}
