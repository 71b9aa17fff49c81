// Package transport hands serialised messages to an outbound mail service.
package transport

import "context"

// Transport defines the interface for handing a message to a mail service.
type Transport interface {
	// Send delivers the envelope and reports which recipients were accepted.
	Send(ctx context.Context, env *Envelope) (*Receipt, error)
	// GetName returns the transport's identifier (e.g., "smtp", "ses").
	GetName() string
	// HealthCheck verifies the transport is reachable and functional.
	HealthCheck(ctx context.Context) error
}

// Envelope is a serialised, optionally DKIM-signed message plus its
// SMTP envelope addresses.
type Envelope struct {
	MessageID  string
	From       string
	Recipients []string
	Raw        []byte
}

// Receipt is the transport's account of a successful hand-off. Some
// recipients may still have been rejected.
type Receipt struct {
	MessageID string
	Accepted  []string
	Rejected  []string
	Response  string
}
