package report

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"wbstorage/internal/config"
)

const (
	authSchemeBearer = "bearer"
	authSchemeRaw    = "raw"
)

// Client talks to the paid-storage report API. All requests go through one
// retry policy: 401 fails fast, 429 and 5xx back off exponentially up to a
// bounded attempt budget, everything else is surfaced as-is. The download
// endpoint is rate-limited to roughly one call per minute on the remote
// side, so its 429s get a separately tuned long cooldown.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
	log        *logrus.Entry

	// authScheme memoizes which Authorization formatting the server
	// accepted. Empty until the first 2xx response pins it; the pinned
	// scheme is reused for the rest of the process.
	authScheme string

	download429s int
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.RateLimitRPS),
		log:        logrus.WithField("component", "report.client"),
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params map[string]string, isDownload bool) ([]byte, error) {
	u, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	delay := time.Duration(c.cfg.RetryBaseMs) * time.Millisecond
	maxDelay := time.Duration(c.cfg.RetryCapMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryMax; attempt++ {
		c.limiter.WaitTurn()

		body, status, err := c.send(ctx, u)
		switch {
		case err != nil:
			lastErr = err
		case status == http.StatusUnauthorized:
			return nil, &AuthError{Status: status, Body: excerpt(body)}
		case status == http.StatusTooManyRequests || (status >= 500 && status < 600):
			lastErr = fmt.Errorf("wb api status %d", status)
		case status < 200 || status >= 300:
			return nil, fmt.Errorf("wb api error: status=%d body=%s", status, excerpt(body))
		default:
			if isDownload {
				c.download429s = 0
			}
			return body, nil
		}

		if attempt == c.cfg.RetryMax {
			break
		}

		var sleep time.Duration
		if isDownload && status == http.StatusTooManyRequests {
			c.download429s++
			sleep = time.Duration(c.cfg.DownloadCooldownMs+(c.download429s-1)*c.cfg.DownloadCooldownStepMs) * time.Millisecond
			c.log.WithFields(logrus.Fields{
				"endpoint": endpoint,
				"cooldown": sleep.String(),
			}).Warn("download endpoint rate-limited, cooling down")
		} else {
			sleep = delay + jitter(delay)
			delay = delay * 9 / 5
			if delay > maxDelay {
				delay = maxDelay
			}
		}
		c.log.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"attempt":  attempt,
			"sleep":    sleep.String(),
			"cause":    fmt.Sprint(lastErr),
		}).Warn("retrying wb api request")
		time.Sleep(sleep)
	}

	return nil, &RetryExhausted{Attempts: c.cfg.RetryMax, Last: lastErr}
}

// send performs a single request. While no Authorization scheme has been
// pinned yet, a 401 triggers one immediate probe of the alternate formatting
// (some deployments want the bare token instead of "Bearer <token>"); no
// sleeping is involved. Once a scheme is pinned, 401 is final.
func (c *Client) send(ctx context.Context, u string) ([]byte, int, error) {
	schemes := []string{c.authScheme}
	if c.authScheme == "" {
		schemes = []string{authSchemeBearer, authSchemeRaw}
	}

	var body []byte
	status := 0
	for _, scheme := range schemes {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Authorization", c.authValue(scheme))
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, 0, err
		}
		body, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, 0, err
		}
		status = resp.StatusCode

		if status == http.StatusUnauthorized {
			continue
		}
		if status >= 200 && status < 300 && c.authScheme == "" {
			c.authScheme = scheme
		}
		return body, status, nil
	}
	return body, status, nil
}

func (c *Client) authValue(scheme string) string {
	if scheme == authSchemeRaw {
		return c.cfg.WBAPIToken
	}
	return "Bearer " + c.cfg.WBAPIToken
}

func (c *Client) buildURL(endpoint string, params map[string]string) (string, error) {
	base := strings.TrimRight(c.cfg.WBAPIBaseURL, "/")
	u, err := url.Parse(base + endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func jitter(delay time.Duration) time.Duration {
	span := int64(delay) / 10
	if span <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(span))
}
