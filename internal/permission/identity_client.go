package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/iruldev/edge-gateway/internal/config"
)

// httpIdentityClient is the default IdentityClient: it calls the identity
// service's internal permission RPC over HTTP
// (`GET /api/internal/permissions?user=<uid>&code=<code>`).
type httpIdentityClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPIdentityClient builds an IdentityClient bound to the identity
// service's base URL and the gateway's configured upstream timeouts.
func NewHTTPIdentityClient(cfg config.IdentityConfig, upstream config.UpstreamConfig) IdentityClient {
	return &httpIdentityClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   upstream.ReadTimeout,
		},
	}
}

type permissionResponse struct {
	Granted bool     `json:"granted"`
	Roles   []string `json:"roles"`
}

func (c *httpIdentityClient) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	u := fmt.Sprintf("%s/api/internal/permissions?user=%s&code=%s",
		c.baseURL, url.QueryEscape(userID), url.QueryEscape(permission))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	var body permissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return body.Granted, nil
}

func (c *httpIdentityClient) UserRoles(ctx context.Context, userID string) ([]string, error) {
	u := fmt.Sprintf("%s/api/internal/roles?user=%s", c.baseURL, url.QueryEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	var body permissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Roles, nil
}
