package events

// Built-in event slugs.
const (
	EventPaymentReceived        = "payment_received"
	EventDomainCreated          = "domain_created"
	EventDNSPropagationFinished = "domain_dns_propagation_finished"
	EventDomainChanged          = "domain_changed"
)

// EventType describes a registered event and a sample of its payload.
// Every key of the sample payload is required when the event is fired.
type EventType struct {
	Name    string
	Desc    string
	Payload func() map[string]any
}

// TypeInfo is the public view of a registered event type.
type TypeInfo struct {
	Slug    string         `json:"slug"`
	Name    string         `json:"name"`
	Desc    string         `json:"desc"`
	Payload map[string]any `json:"payload"`
}

func domainSample() map[string]any {
	return map[string]any{
		"domain_id":      "b7a2e0f4-6f51-4a39-9a55-5c8f2b1f6d10",
		"domain":         "mydomain.com",
		"site_id":        "1",
		"stage":          "checking-dns",
		"secure":         false,
		"primary_domain": true,
	}
}

func registerBuiltins(m *Manager) {
	m.Register(EventPaymentReceived, EventType{
		Name: "Payment Received",
		Desc: "This event is fired every time a new payment is received, regardless of the payment status.",
		Payload: func() map[string]any {
			return map[string]any{
				"payment_id":    "pay_123",
				"membership_id": "mem_123",
				"customer_id":   "cus_123",
			}
		},
	})
	m.Register(EventDomainCreated, EventType{
		Name:    "New Domain Mapping Added",
		Desc:    "This event is fired every time a new domain mapping is added.",
		Payload: domainSample,
	})
	m.Register(EventDNSPropagationFinished, EventType{
		Name:    "Domain DNS Propagation Finished",
		Desc:    "This event is fired when a mapped domain starts resolving to the network.",
		Payload: domainSample,
	})
	m.Register(EventDomainChanged, EventType{
		Name: "Domain Changed",
		Desc: "This event is fired every time a mapped domain record changes.",
		Payload: func() map[string]any {
			return map[string]any{
				"object_type": "domain",
				"object_id":   "b7a2e0f4-6f51-4a39-9a55-5c8f2b1f6d10",
				"changes": map[string]any{
					"stage": map[string]any{"old_value": "checking-dns", "new_value": "checking-ssl-cert"},
				},
			}
		},
	})
}
