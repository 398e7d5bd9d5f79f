package optimistic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/storefront/internal/model"
)

// ErrConfirmRejected is returned when the remote cart refuses a write.
var ErrConfirmRejected = errors.New("cart confirmation rejected")

// Confirmer performs the remote cart write that confirms an optimistic add.
type Confirmer interface {
	Confirm(ctx context.Context, p model.Product) error
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p model.Product) error

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, p model.Product) error { return f(ctx, p) }

// Simulated waits Delay and then fails with probability FailureRate.
type Simulated struct {
	delay time.Duration
	rate  float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated returns a simulated confirmer. seed makes failures reproducible.
func NewSimulated(delay time.Duration, failureRate float64, seed int64) *Simulated {
	return &Simulated{delay: delay, rate: failureRate, rng: rand.New(rand.NewSource(seed))}
}

// Confirm waits the configured delay, then fails at the configured rate.
func (s *Simulated) Confirm(ctx context.Context, p model.Product) error {
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if s.rate <= 0 {
		return nil
	}
	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()
	if roll < s.rate {
		return fmt.Errorf("%w: simulated failure for product %d", ErrConfirmRejected, p.ID)
	}
	return nil
}

// HTTPConfirmer posts the added product to a dummyjson style /carts/add endpoint.
type HTTPConfirmer struct {
	url    string
	userID int
	hc     *http.Client
}

// NewHTTPConfirmer returns a confirmer posting to baseURL + "/carts/add".
func NewHTTPConfirmer(baseURL string, userID int, hc *http.Client) *HTTPConfirmer {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPConfirmer{url: strings.TrimRight(baseURL, "/") + "/carts/add", userID: userID, hc: hc}
}

type cartAddLine struct {
	ID       int `json:"id"`
	Quantity int `json:"quantity"`
}

type cartAddRequest struct {
	UserID   int           `json:"userId"`
	Products []cartAddLine `json:"products"`
}

// Confirm posts one unit of p. A non-2xx answer matches ErrConfirmRejected.
func (h *HTTPConfirmer) Confirm(ctx context.Context, p model.Product) error {
	body, err := json.Marshal(cartAddRequest{UserID: h.userID, Products: []cartAddLine{{ID: p.ID, Quantity: 1}}})
	if err != nil {
		return fmt.Errorf("encode cart add: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build cart add: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.hc.Do(req)
	if err != nil {
		return fmt.Errorf("post cart add: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrConfirmRejected, resp.StatusCode)
	}
	return nil
}
