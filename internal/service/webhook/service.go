package webhook

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/queue"
	"github.com/splax/domainmap/internal/repository"
	"github.com/splax/domainmap/internal/service/events"
	"github.com/splax/domainmap/pkg/crypto"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Domainmap-Signature"

const (
	defaultTimeout   = 10 * time.Second
	maxErrorBodySize = 4096
)

var (
	// ErrUnauthorized indicates the receiver rejected the delivery credentials.
	ErrUnauthorized = errors.New("webhook delivery unauthorized")
	// ErrRejected indicates the receiver refused the payload.
	ErrRejected = errors.New("webhook delivery rejected")
	// ErrEndpointNotFound indicates the receiver URL does not exist.
	ErrEndpointNotFound = errors.New("webhook endpoint not found")
	// ErrInvalidWebhook is returned for malformed webhook definitions.
	ErrInvalidWebhook = errors.New("invalid webhook")
)

// EventTypes resolves registered event slugs.
type EventTypes interface {
	Type(slug string) (events.EventType, bool)
}

// Config tunes delivery.
type Config struct {
	EncryptKey string
	Timeout    time.Duration
	RatePerSec int
}

// CreateInput defines a new subscription.
type CreateInput struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Event  string `json:"event"`
	Secret string `json:"secret"`
}

// Created is returned once on creation and includes the plaintext secret.
type Created struct {
	domain.Webhook
	Secret string `json:"secret"`
}

// Service stores webhooks and delivers events to them.
type Service struct {
	repo    repository.WebhookRepository
	types   EventTypes
	client  *http.Client
	limiter *rate.Limiter
	key     string
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a webhook service.
func New(repo repository.WebhookRepository, types EventTypes, client *http.Client, logger *slog.Logger, cfg Config) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	} else if client.Timeout == 0 {
		client.Timeout = timeout
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = cfg.RatePerSec
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		types:   types,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		key:     cfg.EncryptKey,
		logger:  logger.With("component", "webhook"),
		now:     time.Now,
	}
}

// Create validates and stores a subscription. A secret is generated when none is supplied.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Created, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidWebhook)
	}
	target, err := url.Parse(strings.TrimSpace(input.URL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidWebhook)
	}
	slug := strings.TrimSpace(input.Event)
	if s.types != nil {
		if _, ok := s.types.Type(slug); !ok {
			return nil, fmt.Errorf("%w: %s", events.ErrUnknownEvent, slug)
		}
	}
	secret := strings.TrimSpace(input.Secret)
	if secret == "" {
		if secret, err = generateSecret(); err != nil {
			return nil, err
		}
	}
	sealed, err := crypto.EncryptString(s.key, secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt webhook secret: %w", err)
	}
	hook := domain.Webhook{
		ID:        uuid.NewString(),
		Name:      name,
		URL:       target.String(),
		Event:     slug,
		Secret:    sealed,
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateWebhook(ctx, &hook); err != nil {
		return nil, err
	}
	s.logger.Info("webhook created", "webhook_id", hook.ID, "event", slug)
	return &Created{Webhook: hook, Secret: secret}, nil
}

// List returns every webhook.
func (s *Service) List(ctx context.Context) ([]domain.Webhook, error) {
	return s.repo.ListWebhooks(ctx)
}

// Delete removes a webhook.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteWebhook(ctx, id)
}

// Deliver posts one event to its webhook and counts the delivery on success.
func (s *Service) Deliver(ctx context.Context, args events.DeliveryArgs) error {
	hook, err := s.repo.GetWebhook(ctx, args.WebhookID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("webhook removed before delivery", "webhook_id", args.WebhookID)
			return nil
		}
		return err
	}
	if !hook.Active {
		return nil
	}
	secret, err := crypto.DecryptToString(s.key, hook.Secret)
	if err != nil {
		return fmt.Errorf("decrypt webhook secret: %w", err)
	}

	payload := args.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	body, err := json.Marshal(map[string]any{
		"event":      args.Event,
		"payload":    payload,
		"created_at": args.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, crypto.Sign([]byte(secret), body))
	req.Header.Set("X-Domainmap-Event", args.Event)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return errorForStatus(resp)
	}
	if err := s.repo.IncrementWebhookCount(ctx, hook.ID); err != nil {
		s.logger.Warn("increment webhook count failed", "webhook_id", hook.ID, "error", err)
	}
	return nil
}

// HandleDeliveryTask processes a webhook_delivery task.
func (s *Service) HandleDeliveryTask(ctx context.Context, task queue.Task) error {
	var args events.DeliveryArgs
	if err := task.Decode(&args); err != nil {
		return err
	}
	return s.Deliver(ctx, args)
}

// ValidateSignature checks the HMAC signature for payload.
func ValidateSignature(payload []byte, secret []byte, provided string) error {
	if provided == "" {
		return errors.New("missing webhook signature")
	}
	if err := crypto.Verify(secret, payload, provided); err != nil {
		return errors.New("invalid webhook signature")
	}
	return nil
}

func errorForStatus(resp *http.Response) error {
	limited := io.LimitReader(resp.Body, maxErrorBodySize)
	buf, _ := io.ReadAll(limited)
	summary := strings.TrimSpace(string(buf))
	if summary == "" {
		summary = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, summary)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrRejected, summary)
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %s", ErrEndpointNotFound, summary)
	default:
		return fmt.Errorf("webhook delivery failed: %s", summary)
	}
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}
