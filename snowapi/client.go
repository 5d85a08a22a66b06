package snowapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Version is reported in the User-Agent header.
const Version = "0.5.0"

const (
	defaultHost        = "snowflakecomputing.com"
	defaultHTTPTimeout = 10 * time.Second
	statementsPath     = "/api/v2/statements"
)

// Config holds config needed to initialize the client.
type Config struct {
	Account    string
	User       string
	PrivateKey []byte // PEM (PKCS8, PKCS1 or OpenSSH)
	Passphrase []byte // optional, for an encrypted PrivateKey
	PublicKey  string // PEM, or its "SHA256:..." fingerprint

	// Host is the hostname suffix after the account; defaults to
	// snowflakecomputing.com.
	Host string
	// BaseURL replaces https://{Account}.{Host} entirely when set.
	BaseURL string

	HTTPTimeout time.Duration
	// RetryPolicy is used by the default transport; nil selects
	// DefaultRetryPolicy.
	RetryPolicy RetryPolicy
	// Transport overrides the HTTP transport. HTTPTimeout and RetryPolicy are
	// ignored when it is set.
	Transport Transport
}

// Client is the main SQL API client. It pairs an Identity with a Transport;
// statements are run through the Services it hands out.
type Client struct {
	identity  *Identity
	transport Transport
	host      string
	baseURL   string
}

// NewClient initializes the client with config. Identity fields are checked
// when a token is issued, not here.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, &ConfigurationError{Field: "base URL", Err: fmt.Errorf("invalid URL %q", cfg.BaseURL)}
		}
	}

	host := cfg.Host
	if host == "" {
		host = defaultHost
	}

	transport := cfg.Transport
	if transport == nil {
		timeout := cfg.HTTPTimeout
		if timeout == 0 {
			timeout = defaultHTTPTimeout
		}
		policy := cfg.RetryPolicy
		if policy == nil {
			policy = DefaultRetryPolicy()
		}
		transport = NewHTTPTransport(&http.Client{Timeout: timeout}, policy)
	}

	return &Client{
		identity: &Identity{
			Account:    cfg.Account,
			User:       cfg.User,
			PublicKey:  cfg.PublicKey,
			PrivateKey: cfg.PrivateKey,
			Passphrase: cfg.Passphrase,
		},
		transport: transport,
		host:      host,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Identity returns the identity the client authenticates as.
func (c *Client) Identity() *Identity {
	return c.identity
}

// IssueToken signs a new token for the client's identity. See
// Identity.IssueToken.
func (c *Client) IssueToken(validity int) (string, error) {
	return c.identity.IssueToken(validity)
}

// Service returns a statement service running under ec.
func (c *Client) Service(ec ExecutionContext) *Service {
	return &Service{client: c, exec: ec}
}

// statementsURL returns the statements endpoint; it needs the account only
// when no BaseURL was configured.
func (c *Client) statementsURL() (string, error) {
	if c.baseURL != "" {
		return c.baseURL + statementsPath, nil
	}
	if c.identity.Account == "" {
		return "", &ConfigurationError{Field: "account"}
	}
	return fmt.Sprintf("https://%s.%s%s", c.identity.Account, c.host, statementsPath), nil
}
