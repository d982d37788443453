// Package hub implements the PubSubHubbub 0.3 subscriber subset:
// Subscribe, the verify callback, and the notify callback, backed by a
// persistent Subscription table and the shared URL fetcher/cache.
package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/fetcher"
	"catchup-feed/internal/resilience/circuitbreaker"
	"catchup-feed/internal/resilience/retry"

	"github.com/sony/gobreaker"
)

// increasedExpiry is the extended cache TTL requested for a feed after
// a hub notification (INCREASED_EXPIRY in the original).
const increasedExpiry = 7 * 24 * time.Hour

const refetchTimeout = 30 * time.Second

// Repository persists Subscriptions keyed by feed URL.
type Repository interface {
	Get(ctx context.Context, feedURL string) (*entity.Subscription, error)
	Upsert(ctx context.Context, sub *entity.Subscription) error
	Delete(ctx context.Context, feedURL string) error
	List(ctx context.Context) ([]entity.Subscription, error)
}

// SubscriptionError is raised when a hub rejects a subscribe request
// (a non-204 response).
type SubscriptionError struct {
	Message string
}

func (e *SubscriptionError) Error() string { return e.Message }

// Subscriber implements Subscribe plus the verify/notify HTTP
// callbacks.
type Subscriber struct {
	repo           Repository
	fetcher        *fetcher.Fetcher
	client         *http.Client
	callbackBase   string
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewSubscriber creates a Subscriber. callbackBase is this service's
// externally reachable base URL (e.g. "https://example.com"); the
// callback handed to hubs is "<callbackBase>/subscribe?url=<feedUrl>".
func NewSubscriber(repo Repository, f *fetcher.Fetcher, callbackBase string) *Subscriber {
	return &Subscriber{
		repo:           repo,
		fetcher:        f,
		client:         &http.Client{Timeout: 10 * time.Second},
		callbackBase:   strings.TrimRight(callbackBase, "/"),
		circuitBreaker: circuitbreaker.New(circuitbreaker.WebScraperConfig()),
		retryConfig:    retry.WebScraperConfig(),
	}
}

// Subscribe upserts a Subscription and POSTs the subscribe request to
// hubURL. If a verified subscribe-mode Subscription already exists for
// feedURL, it returns immediately (idempotent).
func (s *Subscriber) Subscribe(ctx context.Context, feedURL, hubURL string) error {
	existing, err := s.repo.Get(ctx, feedURL)
	if err != nil {
		return err
	}
	if existing != nil && existing.Mode == entity.ModeSubscribe && existing.Verified {
		return nil
	}
	return s.subscribe(ctx, feedURL, hubURL, existing)
}

// Renew re-issues the subscribe request for an already-verified
// Subscription whose lease is expiring, bypassing Subscribe's
// idempotent short-circuit. Callers are expected to have already
// checked Subscription.Expired.
func (s *Subscriber) Renew(ctx context.Context, sub *entity.Subscription) error {
	return s.subscribe(ctx, sub.URL, sub.HubURL, sub)
}

func (s *Subscriber) subscribe(ctx context.Context, feedURL, hubURL string, existing *entity.Subscription) error {
	token, err := generateVerifyToken()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	sub := &entity.Subscription{
		URL:         feedURL,
		HubURL:      hubURL,
		Mode:        entity.ModeSubscribe,
		VerifyToken: token,
		Verified:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		sub.CreatedAt = existing.CreatedAt
	}
	if err := s.repo.Upsert(ctx, sub); err != nil {
		return err
	}

	callback := s.callbackBase + "/subscribe?url=" + url.QueryEscape(feedURL)
	form := url.Values{
		"hub.callback":     {callback},
		"hub.mode":         {"subscribe"},
		"hub.topic":        {feedURL},
		"hub.verify":       {"sync"},
		"hub.verify_token": {token},
	}

	retryErr := retry.WithBackoff(ctx, s.retryConfig, func() error {
		_, err := s.circuitBreaker.Execute(func() (interface{}, error) {
			return nil, s.postSubscribe(ctx, hubURL, form)
		})
		if err != nil && errors.Is(err, gobreaker.ErrOpenState) {
			slog.Warn("hub subscribe circuit breaker open, request rejected",
				slog.String("hub", hubURL), slog.String("feed", feedURL))
		}
		return err
	})
	if retryErr != nil {
		return &SubscriptionError{Message: retryErr.Error()}
	}
	return nil
}

func (s *Subscriber) postSubscribe(ctx context.Context, hubURL string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hubURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return &SubscriptionError{Message: fmt.Sprintf("hub responded %s", resp.Status)}
	}
	return nil
}

// Verify handles the hub's GET verification callback. It returns the
// HTTP status to send and, on success, the challenge body to echo.
func (s *Subscriber) Verify(ctx context.Context, query url.Values) (status int, body string) {
	mode := query.Get("hub.mode")
	topic := query.Get("hub.topic")
	challenge := query.Get("hub.challenge")
	verifyToken := query.Get("hub.verify_token")

	sub, err := s.repo.Get(ctx, topic)
	if err != nil || sub == nil {
		return http.StatusNotFound, ""
	}
	if string(sub.Mode) != mode {
		return http.StatusNotFound, ""
	}
	if sub.VerifyToken != verifyToken {
		return http.StatusNotFound, ""
	}

	sub.Verified = true
	sub.UpdatedAt = time.Now().UTC()
	if lease, err := strconv.ParseInt(query.Get("hub.lease_seconds"), 10, 64); err == nil {
		sub.LeaseSeconds = lease
	}
	if err := s.repo.Upsert(ctx, sub); err != nil {
		return http.StatusInternalServerError, ""
	}
	return http.StatusOK, challenge
}

// Notify handles the hub's POST notification callback: it validates
// the Subscription is known, in subscribe mode, and verified, then
// schedules a background cache refetch with an extended TTL. The
// request body (which may carry updated entries) is never read; this
// subscriber only schedules a refetch, it does not diff deltas.
func (s *Subscriber) Notify(ctx context.Context, feedURL string) (int, error) {
	if feedURL == "" {
		return http.StatusBadRequest, errors.New("hub: url parameter missing")
	}

	sub, err := s.repo.Get(ctx, feedURL)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	if sub == nil {
		return http.StatusBadRequest, errors.New("hub: unknown subscription")
	}
	if sub.Mode != entity.ModeSubscribe {
		return http.StatusBadRequest, errors.New("hub: subscription not in subscribe mode")
	}
	if !sub.Verified {
		return http.StatusBadRequest, errors.New("hub: subscription not verified")
	}

	go s.refetch(feedURL)
	return http.StatusOK, nil
}

func (s *Subscriber) refetch(feedURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()

	opts := fetcher.DefaultOptions()
	opts.UseCache = false
	opts.ExtraTTL = increasedExpiry
	if _, err := s.fetcher.Fetch(ctx, feedURL, opts); err != nil {
		slog.Warn("hub notify refetch failed", slog.String("url", feedURL), slog.Any("error", err))
	}
}

const verifyTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
const verifyTokenLength = 32

func generateVerifyToken() (string, error) {
	raw := make([]byte, verifyTokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, verifyTokenLength)
	for i, b := range raw {
		out[i] = verifyTokenAlphabet[int(b)%len(verifyTokenAlphabet)]
	}
	return string(out), nil
}
