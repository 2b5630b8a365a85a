package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
)

// DefaultBaseURL is the provider API root.
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// Credential kinds.
const (
	KindAPIToken  = "api_token"
	KindGlobalKey = "global_key"
)

var (
	// ErrUnavailable is returned when the provider cannot answer.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrBadCredential is returned when a credential is incomplete or rejected.
	ErrBadCredential = errors.New("upstream credential rejected")
)

// Credential is one resolved upstream credential.
type Credential struct {
	Token string
	Kind  string
	Email string
}

func (c Credential) valid() bool {
	if c.Token == "" {
		return false
	}
	return c.Kind != KindGlobalKey || c.Email != ""
}

// ZoneLookup resolves a zone identifier to its name.
type ZoneLookup interface {
	ZoneName(ctx context.Context, cred Credential, zoneID string) (string, error)
}

// Client is a [ZoneLookup] backed by cloudflare-go.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
}

// Option configures a [Client].
type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }

// WithRetries sets how many times rate-limited or failed calls are retried.
func WithRetries(n int) Option { return func(c *Client) { c.retries = n } }

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retries:    2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) api(cred Credential) (*cloudflare.API, error) {
	if !cred.valid() {
		return nil, ErrBadCredential
	}
	opts := []cloudflare.Option{
		cloudflare.BaseURL(c.baseURL),
		cloudflare.HTTPClient(c.httpClient),
		cloudflare.UsingRetryPolicy(c.retries, 1, 5),
	}
	if cred.Kind == KindGlobalKey {
		return cloudflare.New(cred.Token, cred.Email, opts...)
	}
	return cloudflare.NewWithAPIToken(cred.Token, opts...)
}

// ZoneName fetches the human-readable name of zoneID.
func (c *Client) ZoneName(ctx context.Context, cred Credential, zoneID string) (string, error) {
	api, err := c.api(cred)
	if err != nil {
		return "", err
	}
	zone, err := api.ZoneDetails(ctx, zoneID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if zone.Name == "" {
		return "", fmt.Errorf("%w: zone %s has no name", ErrUnavailable, zoneID)
	}
	return zone.Name, nil
}

// Verify checks that cred is accepted by the provider.
func (c *Client) Verify(ctx context.Context, cred Credential) error {
	api, err := c.api(cred)
	if err != nil {
		return err
	}
	if cred.Kind == KindGlobalKey {
		if _, err := api.UserDetails(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrBadCredential, err)
		}
		return nil
	}
	res, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadCredential, err)
	}
	if res.Status != "active" {
		return fmt.Errorf("%w: token status %q", ErrBadCredential, res.Status)
	}
	return nil
}

// IsZoneAllowed reports whether zoneName is in allowed, ignoring case. An
// empty list allows every zone.
func IsZoneAllowed(allowed []string, zoneName string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, z := range allowed {
		if strings.EqualFold(strings.TrimSpace(z), zoneName) {
			return true
		}
	}
	return false
}

// ZoneIDFromPath extracts the zone identifier from /api/zones/{id}[/...].
func ZoneIDFromPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/api/zones/")
	if !ok {
		return "", false
	}
	id, _, _ := strings.Cut(rest, "/")
	if id == "" {
		return "", false
	}
	return id, true
}
