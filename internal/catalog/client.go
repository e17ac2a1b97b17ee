package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/config"
)

const (
	maxAttempts  = 5
	tableFields  = "sys_id,name,sys_updated_on"
	sourceRemote = "servicenow"
)

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
	log        *slog.Logger
	sleep      func(time.Duration)
}

type tableResponse struct {
	Result []tableRecord `json:"result"`
	Error  *struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

type tableRecord struct {
	SysID     string `json:"sys_id"`
	Name      string `json:"name"`
	UpdatedOn string `json:"sys_updated_on"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.SNTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.SNRateLimitRPS),
		log:        slog.Default().With("component", "catalog"),
		sleep:      time.Sleep,
	}
}

// ListOfferings pages through the offering table and returns every record
// with a non-blank name, in table order.
func (c *Client) ListOfferings(ctx context.Context) ([]internal.ExistingOffering, error) {
	pageSize := c.cfg.SNPageSize
	if pageSize <= 0 {
		pageSize = 500
	}

	var all []internal.ExistingOffering
	for offset := 0; ; offset += pageSize {
		query := map[string]string{
			"sysparm_fields": tableFields,
			"sysparm_limit":  strconv.Itoa(pageSize),
			"sysparm_offset": strconv.Itoa(offset),
		}
		body, err := c.fetchJSON(ctx, query)
		if err != nil {
			return nil, err
		}

		var page tableResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode page offset=%d: %w", offset, err)
		}
		if page.Error != nil {
			return nil, fmt.Errorf("table api error: %s %s", page.Error.Message, page.Error.Detail)
		}

		for _, rec := range page.Result {
			if strings.TrimSpace(rec.Name) == "" {
				continue
			}
			o := internal.ExistingOffering{Name: rec.Name, Source: sourceRemote}
			if rec.SysID != "" {
				id := rec.SysID
				o.SysID = &id
			}
			if rec.UpdatedOn != "" {
				ts := rec.UpdatedOn
				o.UpdatedAt = &ts
			}
			all = append(all, o)
		}
		c.log.Debug("page fetched", "offset", offset, "records", len(page.Result))

		if len(page.Result) < pageSize {
			break
		}
	}

	return all, nil
}

func (c *Client) fetchJSON(ctx context.Context, params map[string]string) ([]byte, error) {
	if err := c.cfg.Require("SN_BASE_URL", c.cfg.SNBaseURL); err != nil {
		return nil, err
	}
	if err := c.cfg.Require("SN_TOKEN", c.cfg.SNToken); err != nil {
		return nil, err
	}

	u, err := url.Parse(strings.TrimRight(c.cfg.SNBaseURL, "/") + "/api/now/table/" + url.PathEscape(c.cfg.SNTable))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.SNToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				c.limiter.Pause(retryAfter(resp.Header))
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				c.log.Warn("retrying table request", "status", resp.StatusCode, "attempt", attempt, "backoff", backoff)
				c.sleep(backoff)
				lastErr = fmt.Errorf("table api status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("table api error: status=%d body=%s", resp.StatusCode, truncate(string(body), 300))
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("table api request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
