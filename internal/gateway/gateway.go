// Package gateway adapts the third-party push service behind a small
// multicast API. The engine never imports the vendor SDK directly, so
// tests (and the trigger --dry-run path) can swap in a local sender.
package gateway

import "context"

// MaxBatchTokens is the hard per-call token cap imposed by the gateway.
// The caller enforces it; SendMulticast rejects larger slices outright.
const MaxBatchTokens = 500

// Error classes reported per token. Anything outside the two permanent
// classes is treated as transient by the caller.
const (
	ErrClassInvalidToken = "invalid-registration-token"
	ErrClassUnregistered = "registration-token-not-registered"
)

// Message is the payload fanned out to every token in a batch.
// Data values are string-typed by construction; the gateway rejects
// anything else on the wire.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Result is the per-token outcome of one multicast call, index-aligned
// with the submitted token slice.
type Result struct {
	OK         bool
	ErrorClass string
}

// Sender is one multicast call against the push service. An error return
// means the call itself failed (network, auth) and no Result is valid.
type Sender interface {
	SendMulticast(ctx context.Context, tokens []string, msg Message) ([]Result, error)
}
