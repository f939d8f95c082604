// Package requestctx carries request-scoped identity through context so the
// audit logger and rate limiter can see who initiated an operation without
// the handlers threading every field by hand.
package requestctx

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type clientIDKey struct{}
type correlationIDKey struct{}
type ipAddressKey struct{}
type initiatorKey struct{}

// Initiator kinds recorded on audit entries.
const (
	InitiatorSystem = "SYSTEM"
	InitiatorUser   = "USER"
	InitiatorAPI    = "API"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

// RequestIDFromContext returns the request ID, or empty when unset.
func RequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDKey{})
}

// WithClientID stores the authenticated API client ID in the context.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, strings.TrimSpace(clientID))
}

// ClientIDFromContext returns the authenticated client ID, or empty when unset.
func ClientIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, clientIDKey{})
}

// WithCorrelationID stores a caller-supplied correlation ID in the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, strings.TrimSpace(correlationID))
}

// CorrelationIDFromContext returns the correlation ID, or empty when unset.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, correlationIDKey{})
}

// WithIPAddress stores the caller's source IP in the context.
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipAddressKey{}, strings.TrimSpace(ip))
}

// IPAddressFromContext returns the caller's source IP, or empty when unset.
func IPAddressFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ipAddressKey{})
}

// WithInitiator stores the initiator kind (SYSTEM/USER/API) in the context.
func WithInitiator(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, initiatorKey{}, strings.TrimSpace(kind))
}

// InitiatorFromContext returns the initiator kind, defaulting to SYSTEM.
func InitiatorFromContext(ctx context.Context) string {
	if kind := stringFromContext(ctx, initiatorKey{}); kind != "" {
		return kind
	}
	return InitiatorSystem
}

func stringFromContext(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
