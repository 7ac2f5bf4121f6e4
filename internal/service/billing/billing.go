package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/splax/domainmap/internal/service/events"
)

const minTrialLead = 48 * time.Hour

var (
	// ErrInvalidCart is returned when a cart cannot be turned into a checkout session.
	ErrInvalidCart = errors.New("billing: invalid cart")
	// ErrInvalidSignature is returned when a Stripe webhook fails verification.
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	// ErrNotConfigured is returned when no Stripe key was provided.
	ErrNotConfigured = errors.New("billing: stripe not configured")
)

// SessionCreator creates Stripe Checkout sessions.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// EventEmitter fires domain events.
type EventEmitter interface {
	Do(ctx context.Context, slug string, payload map[string]any) error
}

// Item is a single cart line.
type Item struct {
	Name          string `json:"name"`
	UnitAmount    int64  `json:"unit_amount"`
	Quantity      int64  `json:"quantity"`
	Recurring     bool   `json:"recurring"`
	Interval      string `json:"interval"`
	IntervalCount int64  `json:"interval_count"`
}

// Cart is an order handed to the checkout gateway.
type Cart struct {
	CustomerID   string    `json:"customer_id"`
	PaymentID    string    `json:"payment_id"`
	MembershipID string    `json:"membership_id"`
	Email        string    `json:"email"`
	Currency     string    `json:"currency"`
	Items        []Item    `json:"items"`
	AutoRenew    bool      `json:"auto_renew"`
	TrialEnd     time.Time `json:"trial_end"`
	SwapID       string    `json:"swap_id"`
}

func (c Cart) hasRecurring() bool {
	for _, item := range c.Items {
		if item.Recurring {
			return true
		}
	}
	return false
}

// Session is the created checkout session.
type Session struct {
	ID  string `json:"stripe_session_id"`
	URL string `json:"url"`
}

// Config holds gateway settings.
type Config struct {
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Gateway adapts Stripe Checkout to carts and payment events.
type Gateway struct {
	sessions SessionCreator
	events   EventEmitter
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewStripeSessions returns the Checkout session client for secretKey.
func NewStripeSessions(secretKey string) (SessionCreator, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, ErrNotConfigured
	}
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return sc.CheckoutSessions, nil
}

// New constructs a gateway.
func New(sessions SessionCreator, emitter EventEmitter, logger *slog.Logger, cfg Config) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		sessions: sessions,
		events:   emitter,
		logger:   logger.With("component", "billing"),
		cfg:      cfg,
		now:      time.Now,
	}
}

// SessionParams builds the Checkout parameters for cart.
func (g *Gateway) SessionParams(cart Cart) (*stripe.CheckoutSessionParams, error) {
	if len(cart.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidCart)
	}
	if cart.CustomerID == "" || cart.PaymentID == "" {
		return nil, fmt.Errorf("%w: customer and payment ids required", ErrInvalidCart)
	}
	currency := strings.ToLower(strings.TrimSpace(cart.Currency))
	if currency == "" {
		currency = "usd"
	}

	subscription := cart.AutoRenew && cart.hasRecurring()
	mode := stripe.CheckoutSessionModePayment
	if subscription {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Mode:                     stripe.String(string(mode)),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		BillingAddressCollection: stripe.String("required"),
		ClientReferenceID:        stripe.String(cart.CustomerID),
		SuccessURL:               stripe.String(g.cfg.SuccessURL),
		CancelURL:                stripe.String(g.cfg.CancelURL),
	}
	if cart.Email != "" {
		params.CustomerEmail = stripe.String(cart.Email)
	}

	metadata := map[string]string{
		"payment_id":    cart.PaymentID,
		"membership_id": cart.MembershipID,
		"customer_id":   cart.CustomerID,
	}
	if cart.SwapID != "" {
		metadata["swap_id"] = cart.SwapID
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	for _, item := range cart.Items {
		if item.UnitAmount < 0 || strings.TrimSpace(item.Name) == "" {
			return nil, fmt.Errorf("%w: item %q", ErrInvalidCart, item.Name)
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		price := &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:    stripe.String(currency),
			UnitAmount:  stripe.Int64(item.UnitAmount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(item.Name)},
		}
		if subscription && item.Recurring {
			interval := item.Interval
			if interval == "" {
				interval = "month"
			}
			count := item.IntervalCount
			if count <= 0 {
				count = 1
			}
			price.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval:      stripe.String(interval),
				IntervalCount: stripe.Int64(count),
			}
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: price,
			Quantity:  stripe.Int64(qty),
		})
	}

	if subscription {
		data := &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata}
		if !cart.TrialEnd.IsZero() {
			trialEnd := cart.TrialEnd
			if earliest := g.now().Add(minTrialLead); trialEnd.Before(earliest) {
				trialEnd = earliest
			}
			data.TrialEnd = stripe.Int64(trialEnd.Unix())
		}
		params.SubscriptionData = data
	} else {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata}
	}
	return params, nil
}

// CreateSession opens a Checkout session for cart.
func (g *Gateway) CreateSession(ctx context.Context, cart Cart) (Session, error) {
	if g.sessions == nil {
		return Session{}, ErrNotConfigured
	}
	params, err := g.SessionParams(cart)
	if err != nil {
		return Session{}, err
	}
	params.Context = ctx
	s, err := g.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("billing: create checkout session: %w", err)
	}
	g.logger.Info("checkout session created", "session_id", s.ID, "payment_id", cart.PaymentID, "mode", stripe.StringValue(params.Mode))
	return Session{ID: s.ID, URL: s.URL}, nil
}

// Confirmation summarises a processed Stripe webhook.
type Confirmation struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Handled   bool   `json:"handled"`
}

// Confirm verifies a Stripe webhook and fires payment_received for completed sessions.
func (g *Gateway) Confirm(ctx context.Context, payload []byte, signature string) (Confirmation, error) {
	if g.cfg.WebhookSecret == "" {
		return Confirmation{}, ErrNotConfigured
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	result := Confirmation{EventID: evt.ID, EventType: string(evt.Type)}
	if evt.Type != "checkout.session.completed" {
		g.logger.Debug("ignoring stripe event", "event_id", evt.ID, "type", evt.Type)
		return result, nil
	}

	var session stripe.CheckoutSession
	if evt.Data == nil {
		return result, fmt.Errorf("billing: event %s has no data", evt.ID)
	}
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		return result, fmt.Errorf("billing: decode checkout session: %w", err)
	}
	customerID := session.Metadata["customer_id"]
	if customerID == "" {
		customerID = session.ClientReferenceID
	}
	err = g.events.Do(ctx, events.EventPaymentReceived, map[string]any{
		"payment_id":    session.Metadata["payment_id"],
		"membership_id": session.Metadata["membership_id"],
		"customer_id":   customerID,
	})
	if err != nil {
		return result, fmt.Errorf("billing: fire payment event: %w", err)
	}
	g.logger.Info("payment confirmed", "session_id", session.ID, "payment_id", session.Metadata["payment_id"])
	result.Handled = true
	return result, nil
}
