// Package upstream talks to the credential provider's token and usage
// endpoints.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/credpool/internal/domain/model"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

const (
	refreshPath = "/refreshToken"
	usagePath   = "/getUsageLimits"

	// maxBodyBytes bounds how much of an upstream response is read.
	maxBodyBytes = 1 << 20

	defaultTokenLifetime = time.Hour
)

// Compile-time interface satisfaction check.
var _ driven.UpstreamClient = (*Client)(nil)

// Client implements driven.UpstreamClient over HTTP. Calls are never
// retried; a shared limiter spaces them out.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a Client for baseURL. rps <= 0 disables rate limiting.
func NewClient(baseURL string, timeout time.Duration, rps float64, logger *slog.Logger) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		now:        time.Now,
	}
}

// RefreshToken exchanges cred's refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, cred model.CredentialRecord) (model.RefreshedToken, error) {
	if err := checkRefreshToken(cred.RefreshToken); err != nil {
		return model.RefreshedToken{}, err
	}

	payload := map[string]string{"refreshToken": cred.RefreshToken}
	if cred.AuthMethod == model.AuthMethodIDC {
		payload["clientId"] = cred.ClientID
		payload["clientSecret"] = cred.ClientSecret
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return model.RefreshedToken{}, model.Internal("encode refresh request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		return model.RefreshedToken{}, model.Internal("build refresh request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setRegion(req, cred)

	raw, status, err := c.do(ctx, req)
	if err != nil {
		return model.RefreshedToken{}, err
	}
	if err := refreshStatusError(status, raw); err != nil {
		c.logger.Warn("token refresh rejected", "id", cred.ID, "status", status)
		return model.RefreshedToken{}, err
	}

	res := gjson.ParseBytes(raw)
	access := res.Get("accessToken").String()
	if access == "" {
		return model.RefreshedToken{}, model.Upstream("refresh response missing accessToken", nil)
	}

	lifetime := defaultTokenLifetime
	if secs := res.Get("expiresIn").Int(); secs > 0 {
		lifetime = time.Duration(secs) * time.Second
	}

	return model.RefreshedToken{
		AccessToken:  access,
		RefreshToken: res.Get("refreshToken").String(),
		ProfileArn:   res.Get("profileArn").String(),
		ExpiresAt:    c.now().UTC().Add(lifetime),
	}, nil
}

// FetchUsage reads the current usage and limit for cred. cred must carry a
// valid access token.
func (c *Client) FetchUsage(ctx context.Context, cred model.CredentialRecord) (model.UsageInfo, error) {
	if cred.AccessToken == "" {
		return model.UsageInfo{}, model.Rejected("missing access token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+usagePath, nil)
	if err != nil {
		return model.UsageInfo{}, model.Internal("build usage request", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	if cred.ProfileArn != "" {
		q := req.URL.Query()
		q.Set("profileArn", cred.ProfileArn)
		req.URL.RawQuery = q.Encode()
	}
	c.setRegion(req, cred)

	raw, status, err := c.do(ctx, req)
	if err != nil {
		return model.UsageInfo{}, err
	}
	if err := usageStatusError(status, raw); err != nil {
		return model.UsageInfo{}, err
	}

	return parseUsage(raw), nil
}

func (c *Client) setRegion(req *http.Request, cred model.CredentialRecord) {
	if cred.Region != "" {
		req.Header.Set("X-Region", cred.Region)
	}
	if cred.MachineID != "" {
		req.Header.Set("X-Machine-Id", cred.MachineID)
	}
}

// do waits for the limiter, sends req, and reads a bounded body.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, model.Upstream("rate limiter wait", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, model.Upstream("upstream request timed out", err)
		}
		return nil, 0, model.Upstream("upstream connection failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, model.Upstream("read upstream response", err)
	}
	return raw, resp.StatusCode, nil
}

// checkRefreshToken rejects tokens that cannot succeed before any I/O.
func checkRefreshToken(token string) error {
	switch {
	case token == "":
		return model.Rejected("missing refresh token")
	case len(token) < model.MinRefreshTokenLength, strings.Contains(token, "..."):
		return model.Rejected("refresh token appears truncated")
	}
	return nil
}

func refreshStatusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return model.Rejected("refresh token rejected: " + upstreamMessage(status, body))
	case status == http.StatusTooManyRequests:
		return model.InvalidCredential("rate limited during validation")
	default:
		return model.Upstream("refresh failed", errors.New(upstreamMessage(status, body)))
	}
}

func usageStatusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return model.Rejected("access token rejected: " + upstreamMessage(status, body))
	case status == http.StatusTooManyRequests:
		return model.Upstream("rate limited", errors.New(upstreamMessage(status, body)))
	default:
		return model.Upstream("usage query failed", errors.New(upstreamMessage(status, body)))
	}
}

// upstreamMessage extracts a readable message from an error response.
func upstreamMessage(status int, body []byte) string {
	for _, path := range []string{"message", "error.message", "error"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
			return fmt.Sprintf("status %d: %s", status, v.String())
		}
	}
	return fmt.Sprintf("status %d", status)
}

func parseUsage(raw []byte) model.UsageInfo {
	res := gjson.ParseBytes(raw)

	info := model.UsageInfo{
		SubscriptionTitle: res.Get("subscriptionInfo.subscriptionTitle").String(),
	}

	var current, limit float64
	res.Get("usageBreakdownList").ForEach(func(_, item gjson.Result) bool {
		current += item.Get("currentUsage").Float()
		limit += item.Get("usageLimit").Float()
		return true
	})
	info.CurrentUsage = current
	info.UsageLimit = limit

	if reset := res.Get("nextDateReset"); reset.Exists() && reset.Float() > 0 {
		t := time.Unix(int64(reset.Float()), 0).UTC()
		info.NextResetAt = &t
	}
	return info
}
