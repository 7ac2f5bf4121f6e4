package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

type firedEvent struct {
	slug    string
	payload map[string]any
}

type fakeEmitter struct {
	fired []firedEvent
}

func (f *fakeEmitter) Do(_ context.Context, slug string, payload map[string]any) error {
	f.fired = append(f.fired, firedEvent{slug: slug, payload: payload})
	return nil
}

var now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newGateway(sessions SessionCreator, emitter EventEmitter) *Gateway {
	g := New(sessions, emitter, discardLogger(), Config{
		WebhookSecret: "whsec_test",
		SuccessURL:    "https://example.com/ok",
		CancelURL:     "https://example.com/cancel",
	})
	g.now = func() time.Time { return now }
	return g
}

func baseCart() Cart {
	return Cart{
		CustomerID:   "cus_1",
		PaymentID:    "pay_1",
		MembershipID: "mem_1",
		Currency:     "USD",
		Items: []Item{
			{Name: "Plan", UnitAmount: 2900, Recurring: true, Interval: "month"},
			{Name: "Setup fee", UnitAmount: 1000},
		},
	}
}

func TestSessionParamsPaymentModeWithoutAutoRenew(t *testing.T) {
	g := newGateway(&fakeSessions{}, &fakeEmitter{})

	params, err := g.SessionParams(baseCart())
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if stripe.StringValue(params.Mode) != string(stripe.CheckoutSessionModePayment) {
		t.Fatalf("expected payment mode, got %s", stripe.StringValue(params.Mode))
	}
	for _, item := range params.LineItems {
		if item.PriceData.Recurring != nil {
			t.Fatalf("payment mode must not carry recurring prices")
		}
		if stripe.StringValue(item.PriceData.Currency) != "usd" {
			t.Fatalf("currency should be lower-cased")
		}
	}
	if params.PaymentIntentData == nil || params.PaymentIntentData.Metadata["payment_id"] != "pay_1" {
		t.Fatalf("payment intent metadata missing")
	}
	if stripe.StringValue(params.ClientReferenceID) != "cus_1" || stripe.StringValue(params.BillingAddressCollection) != "required" {
		t.Fatalf("unexpected session params %+v", params)
	}
	if params.Metadata["membership_id"] != "mem_1" {
		t.Fatalf("session metadata missing: %v", params.Metadata)
	}
}

func TestSessionParamsSubscriptionAndTrialFloor(t *testing.T) {
	g := newGateway(&fakeSessions{}, &fakeEmitter{})
	cart := baseCart()
	cart.AutoRenew = true
	cart.SwapID = "swap_9"
	cart.TrialEnd = now.Add(12 * time.Hour)

	params, err := g.SessionParams(cart)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if stripe.StringValue(params.Mode) != string(stripe.CheckoutSessionModeSubscription) {
		t.Fatalf("expected subscription mode, got %s", stripe.StringValue(params.Mode))
	}
	if params.LineItems[0].PriceData.Recurring == nil || params.LineItems[1].PriceData.Recurring != nil {
		t.Fatalf("only recurring items carry an interval")
	}
	if params.SubscriptionData == nil || params.SubscriptionData.TrialEnd == nil {
		t.Fatalf("trial end missing")
	}
	if got, want := *params.SubscriptionData.TrialEnd, now.Add(48*time.Hour).Unix(); got != want {
		t.Fatalf("trial end %d, want %d", got, want)
	}
	if params.Metadata["swap_id"] != "swap_9" {
		t.Fatalf("swap id missing from metadata")
	}

	cart.TrialEnd = now.Add(10 * 24 * time.Hour)
	params, _ = g.SessionParams(cart)
	if *params.SubscriptionData.TrialEnd != cart.TrialEnd.Unix() {
		t.Fatalf("distant trial end should be kept")
	}
}

func TestSessionParamsRejectsEmptyCart(t *testing.T) {
	g := newGateway(&fakeSessions{}, &fakeEmitter{})
	if _, err := g.SessionParams(Cart{CustomerID: "c", PaymentID: "p"}); !errors.Is(err, ErrInvalidCart) {
		t.Fatalf("expected ErrInvalidCart, got %v", err)
	}
}

func TestCreateSession(t *testing.T) {
	sessions := &fakeSessions{}
	g := newGateway(sessions, &fakeEmitter{})

	s, err := g.CreateSession(context.Background(), baseCart())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if s.ID != "cs_test_1" || s.URL == "" {
		t.Fatalf("unexpected session %+v", s)
	}
	if sessions.params == nil || sessions.params.Context == nil {
		t.Fatalf("params should carry the request context")
	}
}

func signedHeader(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func completedPayload() []byte {
	return completedPayloadWithVersion(stripe.APIVersion)
}

func completedPayloadWithVersion(version string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"api_version": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"client_reference_id": "cus_1",
			"metadata": {"payment_id": "pay_1", "membership_id": "mem_1", "customer_id": "cus_1"}
		}}
	}`, version))
}

func TestConfirmFiresPaymentReceived(t *testing.T) {
	emitter := &fakeEmitter{}
	g := newGateway(&fakeSessions{}, emitter)
	payload := completedPayload()

	res, err := g.Confirm(context.Background(), payload, signedHeader(payload, "whsec_test", time.Now()))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !res.Handled || res.EventID != "evt_1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(emitter.fired) != 1 || emitter.fired[0].slug != "payment_received" {
		t.Fatalf("expected payment_received, got %+v", emitter.fired)
	}
	if emitter.fired[0].payload["membership_id"] != "mem_1" {
		t.Fatalf("unexpected payload %+v", emitter.fired[0].payload)
	}
}

func TestConfirmAcceptsOtherAPIVersions(t *testing.T) {
	emitter := &fakeEmitter{}
	g := newGateway(&fakeSessions{}, emitter)
	payload := completedPayloadWithVersion("2024-06-20")

	res, err := g.Confirm(context.Background(), payload, signedHeader(payload, "whsec_test", time.Now()))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !res.Handled || len(emitter.fired) != 1 {
		t.Fatalf("expected payment_received for a newer api version, got %+v / %+v", res, emitter.fired)
	}
}

func TestConfirmRejectsBadSignature(t *testing.T) {
	emitter := &fakeEmitter{}
	g := newGateway(&fakeSessions{}, emitter)
	payload := completedPayload()

	_, err := g.Confirm(context.Background(), payload, signedHeader(payload, "whsec_other", time.Now()))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if len(emitter.fired) != 0 {
		t.Fatalf("no event should fire on a bad signature")
	}
}

func TestConfirmIgnoresOtherEvents(t *testing.T) {
	emitter := &fakeEmitter{}
	g := newGateway(&fakeSessions{}, emitter)
	payload := []byte(fmt.Sprintf(`{"id":"evt_2","object":"event","api_version":%q,"type":"invoice.created","data":{"object":{}}}`, stripe.APIVersion))

	res, err := g.Confirm(context.Background(), payload, signedHeader(payload, "whsec_test", time.Now()))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Handled || len(emitter.fired) != 0 {
		t.Fatalf("unexpected handling %+v", res)
	}
}
