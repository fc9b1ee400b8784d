// Package importer turns broker screenshots, pasted statement text, and CSV
// files into trade details.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"trade-journal/internal/config"
	jerrors "trade-journal/internal/errors"
	"trade-journal/internal/logging"
	"trade-journal/internal/metrics"
	"trade-journal/internal/models"
	"trade-journal/internal/security"
	"trade-journal/pkg/utils"
)

// MaxUploadSize bounds a screenshot upload.
const MaxUploadSize = 10 << 20

// Client calls the trade parsing service.
type Client struct {
	url     string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   utils.RetryConfig
	breaker *breaker
	loc     *time.Location
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry replaces the retry policy. Retryable is always set by the client.
func WithRetry(cfg utils.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithBreaker replaces the failure breaker. A threshold of zero disables it.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(c *Client) { c.breaker = newBreaker(threshold, cooldown) }
}

// WithLocation sets the zone used for dates without an offset.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithMetrics attaches request counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a parsing service client.
func NewClient(cfg config.ImporterConfig, creds config.ImporterCredentials, logger zerolog.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limit := rate.Limit(cfg.Rate)
	if cfg.Rate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		url:     strings.TrimSpace(cfg.URL),
		apiKey:  creds.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		retry:   utils.DefaultRetryConfig(),
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		loc:     time.Local,
		log:     logging.WithComponent(logger, "importer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a service URL is set.
func (c *Client) Configured() bool {
	return c.url != ""
}

// ParseImage uploads a screenshot and returns the trades found on it.
func (c *Client) ParseImage(ctx context.Context, filename string, r io.Reader) ([]models.TradeDetails, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, jerrors.NewImportError("screenshot", 0, "reading upload", err)
	}
	if len(data) > MaxUploadSize {
		return nil, jerrors.NewValidationError("image", filename, "image is larger than 10 MB")
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, jerrors.NewValidationError("image", filename, "please upload an image file")
	}

	// The body is rebuilt per attempt so retries resend the whole upload
	build := func(ctx context.Context) (*http.Request, error) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, security.SanitizeFilename(filename)))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}

	return c.parse(ctx, "screenshot", build)
}

// ParseText sends pasted statement text and returns the trades found in it.
func (c *Client) ParseText(ctx context.Context, text string) ([]models.TradeDetails, error) {
	if strings.TrimSpace(text) == "" {
		return nil, jerrors.NewValidationError("text", "", "please paste some text from your screenshot first")
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, jerrors.NewImportError("text", 0, "encoding request", err)
	}

	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	return c.parse(ctx, "text", build)
}

func (c *Client) parse(ctx context.Context, kind string, build func(context.Context) (*http.Request, error)) ([]models.TradeDetails, error) {
	if !c.Configured() {
		err := jerrors.NewImportError(kind, 0, "import service url is not configured", nil)
		c.metrics.Import(kind, err)
		return nil, err
	}

	if err := c.breaker.allow(); err != nil {
		err = jerrors.NewImportError(kind, 0, "service paused after repeated failures", err)
		c.metrics.Import(kind, err)
		return nil, err
	}

	cfg := c.retry
	cfg.Retryable = retryable
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.log.Warn().Err(err).Str("kind", kind).Int("attempt", attempt).Dur("backoff", delay).Msg("Import request failed, retrying")
	}

	rows, err := utils.RetryWithResult(ctx, cfg, func(ctx context.Context) ([]ImportedTrade, error) {
		return c.send(ctx, kind, build)
	})
	switch {
	case err == nil:
		c.breaker.success()
	case retryable(err):
		c.breaker.failure()
		c.log.Debug().Str("kind", kind).Str("breaker", string(c.breaker.current())).Msg("Import failure recorded")
	default:
		c.breaker.release()
	}
	if err != nil {
		c.metrics.Import(kind, err)
		return nil, err
	}

	details, err := ConvertAll(rows, c.loc)
	if err != nil {
		err = jerrors.NewImportError(kind, 0, "converting response", err)
	}
	c.metrics.Import(kind, err)
	if err != nil {
		return nil, err
	}

	c.log.Info().Str("kind", kind).Int("trades", len(details)).Msg("Trades parsed")
	return details, nil
}

// send performs one rate-limited request.
func (c *Client) send(ctx context.Context, kind string, build func(context.Context) (*http.Request, error)) ([]ImportedTrade, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, jerrors.NewImportError(kind, 0, "rate limiter", err)
	}

	req, err := build(ctx)
	if err != nil {
		return nil, jerrors.NewImportError(kind, 0, "building request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	logging.LogAPICall(c.log, req.Method, security.MaskSensitive(c.url), time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, jerrors.NewImportError(kind, 0, "request failed", errors.New(security.MaskSensitive(err.Error())))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("API request failed with status %d", resp.StatusCode)
		if s := strings.TrimSpace(string(snippet)); s != "" {
			msg += ": " + security.MaskSensitive(s)
		}
		return nil, jerrors.NewImportError(kind, resp.StatusCode, msg, nil)
	}

	var rows []ImportedTrade
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, jerrors.NewImportError(kind, resp.StatusCode, "decoding response", err)
	}
	return rows, nil
}

// retryable retries network failures, 429, and 5xx. Context ends and
// decode failures are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ie *jerrors.ImportError
	if !errors.As(err, &ie) {
		return false
	}
	switch ie.Message {
	case "decoding response", "building request", "rate limiter":
		return false
	}
	return ie.Retryable()
}
