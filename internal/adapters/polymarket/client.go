package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/pegbot/internal/domain"
)

const (
	defaultCLOBBase = "https://clob.polymarket.com"

	// Rate limits al 60% de los límites reales documentados.
	// CLOB /book: 500/10s → 300/10s → 30/s
	booksRatePerSec = 30
	// CLOB general (orders, cancels): 9000/10s → 5400/10s → 540/s
	generalRatePerSec = 540

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client público del CLOB con rate limiting y retries.
type Client struct {
	http         *http.Client
	clobBase     string
	clobLimiter  *rate.Limiter
	booksLimiter *rate.Limiter
	retryWait    time.Duration
}

// Option configura un Client.
type Option func(*Client)

// WithHTTPClient reemplaza el http.Client por defecto (timeout 10s).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetryWait cambia la espera base del backoff exponencial.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.retryWait = d }
}

// NewClient crea un Client. Si clobBase está vacío usa producción.
func NewClient(clobBase string, opts ...Option) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	c := &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		clobBase:     strings.TrimRight(clobBase, "/"),
		clobLimiter:  rate.NewLimiter(generalRatePerSec, 50),
		booksLimiter: rate.NewLimiter(booksRatePerSec, 5),
		retryWait:    baseRetryWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError es una respuesta HTTP no exitosa del CLOB.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

func (e *apiError) transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// venueError clasifica err en la taxonomía del dominio. Fallos de red,
// timeouts, 429 y 5xx son transitorios; el resto de 4xx no.
func venueError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *domain.VenueError
	if errors.As(err, &ve) {
		return ve
	}
	var ae *apiError
	if errors.As(err, &ae) {
		return &domain.VenueError{
			Op:        op,
			Code:      fmt.Sprintf("http_%d", ae.Status),
			Message:   apiMessage(ae.Body),
			Transient: ae.transient(),
		}
	}
	return &domain.VenueError{Op: op, Message: err.Error(), Transient: true}
}

// apiMessage extrae {"error": "..."} del body si existe.
func apiMessage(body string) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(body), &e) == nil && e.Error != "" {
		return e.Error
	}
	return body
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.doWithRetry(ctx, limiter, maxRetries, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// post hace un POST JSON con rate limiting y retries.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, limiter, maxRetries, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial, hasta retries
// reintentos. Solo se reintentan errores de red, 429 y 5xx.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, retries int, fn func() (*http.Response, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			lastErr = err
			if attempt < retries {
				c.sleep(ctx, attempt)
			}
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &apiError{Status: resp.StatusCode, Body: string(body)}
			if resp.StatusCode == http.StatusTooManyRequests {
				slog.Warn("venue: rate limited by API", "attempt", attempt+1)
			}
			if attempt < retries {
				c.sleep(ctx, attempt)
			}
			continue
		}
		if resp.StatusCode >= 400 {
			return &apiError{Status: resp.StatusCode, Body: string(body)}
		}

		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("request failed after %d retries: %w", retries, lastErr)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
