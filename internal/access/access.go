// Package access proxies access-request administration to the concierge
// service that owns the invite flow.
package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/store"
)

// ErrUnsupported reports that the deployed concierge does not implement the
// requested operation. Distinct from an upstream failure: retrying will not
// help and operators should check the concierge version instead.
var ErrUnsupported = errors.New("operation unsupported by that service")

// Client calls the concierge service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *log.Logger
}

// New builds a concierge client. An empty base URL yields an unconfigured
// client whose calls fail fast.
func New(cfg config.ConciergeConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stdout, "[ACCESS] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Configured reports whether a concierge endpoint is set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// DeleteAccessRequest removes an access request on the concierge side. A 404
// or 405 from the upstream means this concierge build has no such operation.
func (c *Client) DeleteAccessRequest(ctx context.Context, id string) error {
	if !c.Configured() {
		return &store.UpstreamError{Service: "concierge", Msg: "not configured"}
	}
	if id == "" {
		return fmt.Errorf("access request id must be provided")
	}

	u := fmt.Sprintf("%s/api/access-requests/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &store.UpstreamError{Service: "concierge", Msg: err.Error()}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Printf("deleted access request %s", id)
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed:
		return ErrUnsupported
	default:
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &store.UpstreamError{Service: "concierge", Status: resp.StatusCode, Msg: msg}
	}
}
