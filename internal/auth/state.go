package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/KalharPandya/upstocks-mcp/internal/logging"
)

var (
	// ErrNotAuthenticated means no token has ever been obtained.
	ErrNotAuthenticated = errors.New("not authenticated with Upstox")

	// ErrTokenExpired means a previously held token lapsed. Upstox has no
	// refresh tokens, so this requires a fresh authorization.
	ErrTokenExpired = errors.New("access token expired; re-authorization required")
)

// tokenCutoverHour is the wall-clock time in IST at which Upstox invalidates
// tokens on the day after issuance.
const (
	tokenCutoverHour   = 3
	tokenCutoverMinute = 30
	sandboxExtraDays   = 30
)

var istLocation = sync.OnceValue(func() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*3600+30*60)
})

// State is a read-only snapshot of the authentication state.
type State struct {
	AccessToken string    `json:"-"`
	TokenExpiry time.Time `json:"token_expiry"`
	Authorized  bool      `json:"authorized"`
}

// Manager is the single process-wide authentication state machine. All
// mutations go through its mutex; subscribers are notified of every change
// without blocking the mutating caller.
type Manager struct {
	mu             sync.Mutex
	creds          Credentials
	state          State
	everAuthorized bool
	oauth          *oauth2.Config
	subs           []chan State
	logger         *slog.Logger
	now            func() time.Time
}

// NewManager creates a manager for the given credentials. No network calls
// happen here; a configured direct token is picked up lazily on the first
// AccessToken call.
func NewManager(creds Credentials, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		creds:  creds,
		logger: logger,
		now:    time.Now,
		oauth: &oauth2.Config{
			ClientID:     creds.APIKey,
			ClientSecret: creds.APISecret,
			RedirectURL:  creds.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authorizeURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// Snapshot returns the current state without re-validating expiry.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AccessToken returns a currently valid token. Expiry is re-validated on
// every call: a token that lapsed since the last check fails here even
// though the stored authorized flag was true.
func (m *Manager) AccessToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.AccessToken != "" && m.now().Before(m.state.TokenExpiry) {
		return m.state.AccessToken, nil
	}

	if m.state.Authorized {
		// Lapsed since the last check.
		m.state.Authorized = false
		m.notifyLocked()
	}

	if m.creds.AuthMethod() == MethodToken {
		// Fall back to the configured token and adopt it as state.
		m.setTokenLocked(m.creds.AccessToken, m.computeExpiry(m.now()))
		return m.state.AccessToken, nil
	}

	if m.everAuthorized {
		return "", ErrTokenExpired
	}
	return "", ErrNotAuthenticated
}

// AuthorizationURL builds the Upstox OAuth dialog URL. Pure; no network.
func (m *Manager) AuthorizationURL() string {
	return m.oauth.AuthCodeURL("")
}

// ExchangeCode trades an authorization code for an access token. On failure
// the previous state is left completely unchanged.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (State, error) {
	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		m.logger.Error("authorization code exchange failed", logging.Err(err))
		return m.Snapshot(), fmt.Errorf("authorization code exchange failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setTokenLocked(tok.AccessToken, m.computeExpiry(m.now()))
	m.logger.Info("authorized with Upstox",
		logging.KeyEnvironment, string(m.creds.Environment),
		"token", logging.SanitizeToken(tok.AccessToken),
		"expiry", m.state.TokenExpiry)
	return m.state, nil
}

// SetToken injects a token directly, as delivered by the token webhook. A
// positive expiryDays overrides the standard cutover computation.
func (m *Manager) SetToken(token string, expiryDays int) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry := m.computeExpiry(m.now())
	if expiryDays > 0 {
		expiry = m.now().AddDate(0, 0, expiryDays)
	}
	m.setTokenLocked(token, expiry)
	m.logger.Info("token injected", "token", logging.SanitizeToken(token), "expiry", expiry)
	return m.state
}

// Logout clears the state to unauthenticated. The Upstox client calls this
// when the broker answers 401.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.AccessToken == "" && !m.state.Authorized {
		return
	}
	m.state = State{}
	m.notifyLocked()
	m.logger.Info("logged out")
}

// Subscribe returns a channel that receives a snapshot after every state
// change. Sends never block; a slow subscriber misses intermediate states.
func (m *Manager) Subscribe() <-chan State {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 4)
	m.subs = append(m.subs, ch)
	return ch
}

func (m *Manager) setTokenLocked(token string, expiry time.Time) {
	m.state = State{
		AccessToken: token,
		TokenExpiry: expiry,
		Authorized:  token != "" && m.now().Before(expiry),
	}
	if m.state.Authorized {
		m.everAuthorized = true
	}
	m.notifyLocked()
}

func (m *Manager) notifyLocked() {
	for _, ch := range m.subs {
		select {
		case ch <- m.state:
		default:
		}
	}
}

// computeExpiry implements the Upstox cutover rule: 03:30 IST on the day
// after issuance, pushed one more day if that instant is already past, plus
// 30 days for sandbox tokens.
func (m *Manager) computeExpiry(now time.Time) time.Time {
	loc := istLocation()
	next := now.In(loc).AddDate(0, 0, 1)
	expiry := time.Date(next.Year(), next.Month(), next.Day(),
		tokenCutoverHour, tokenCutoverMinute, 0, 0, loc)
	if expiry.Before(now) {
		expiry = expiry.AddDate(0, 0, 1)
	}
	if m.creds.Environment == EnvSandbox {
		expiry = expiry.AddDate(0, 0, sandboxExtraDays)
	}
	return expiry
}
