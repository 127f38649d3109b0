package auth

import "fmt"

// Environment selects which Upstox deployment the gateway talks to.
type Environment string

const (
	EnvLive    Environment = "live"
	EnvSandbox Environment = "sandbox"
)

// Upstox API hosts. The login endpoints live on the production host for both
// environments; only data-plane calls move to the sandbox host.
const (
	LiveBaseURL    = "https://api.upstox.com/v2"
	SandboxBaseURL = "https://api-sandbox.upstox.com/v2"

	authorizeURL = "https://api.upstox.com/v2/login/authorization/dialog"
	tokenURL     = "https://api.upstox.com/v2/login/authorization/token"
)

// Method is how the gateway authenticates against Upstox.
type Method string

const (
	// MethodToken uses a pre-issued access token from configuration.
	MethodToken Method = "token"
	// MethodOAuth exchanges an authorization code for a token.
	MethodOAuth Method = "oauth"
)

// ParseEnvironment validates an environment name.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case EnvLive, EnvSandbox:
		return Environment(s), nil
	}
	return "", fmt.Errorf("unknown environment %q", s)
}

// Credentials is the resolved key/secret/token triple for the active
// environment, plus the OAuth redirect target.
type Credentials struct {
	Environment Environment
	APIKey      string
	APISecret   string
	AccessToken string
	RedirectURI string
}

// AuthMethod reports how these credentials authenticate: a configured token
// wins; otherwise the key/secret pair drives the OAuth code exchange.
func (c Credentials) AuthMethod() Method {
	if c.AccessToken != "" {
		return MethodToken
	}
	return MethodOAuth
}

// BaseURL returns the data-plane host for the environment.
func (c Credentials) BaseURL() string {
	if c.Environment == EnvSandbox {
		return SandboxBaseURL
	}
	return LiveBaseURL
}
