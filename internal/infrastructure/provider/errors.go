package provider

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorKind is the semantic class of a failure returned by a blockchain
// provider. Low-level errors are reclassified into kinds at this boundary
// so orchestration branches on semantic kind, never on provider-specific
// strings.
type ErrorKind int

const (
	// KindNone means no error
	KindNone ErrorKind = iota
	// KindProvider covers timeouts, refused connections, malformed
	// responses and server-side failures. The caller must fail over to a
	// fresh endpoint instead of retrying the same one.
	KindProvider
	// KindNonceRace means the transaction collided with an in-flight one
	// on the same account. Retryable after refreshing the nonce.
	KindNonceRace
	// KindAlreadyKnown means the node already holds this exact
	// transaction in its pending pool. Retryable: the broadcast succeeded
	// on a previous attempt.
	KindAlreadyKnown
	// KindFunds means the account cannot cover value plus gas. Never
	// retried.
	KindFunds
	// KindUnknown is everything else. Never retried blindly.
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindProvider:
		return "provider"
	case KindNonceRace:
		return "nonce_race"
	case KindAlreadyKnown:
		return "already_known"
	case KindFunds:
		return "funds"
	default:
		return "unknown"
	}
}

// Classify maps a raw provider error to its semantic kind
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return KindProvider
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindProvider
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already known"):
		return KindAlreadyKnown
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "replacement transaction underpriced"):
		return KindNonceRace
	case strings.Contains(msg, "insufficient funds"):
		return KindFunds
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "invalid character"),
		strings.Contains(msg, "cannot unmarshal"):
		return KindProvider
	}
	return KindUnknown
}

// Retryable is the pure retry policy: given the kind of the last failure
// and how many attempts have been made, it tells whether another attempt
// is allowed within the given budget.
func Retryable(kind ErrorKind, attempt, maxAttempts int) bool {
	if attempt >= maxAttempts {
		return false
	}
	switch kind {
	case KindProvider, KindNonceRace, KindAlreadyKnown:
		return true
	default:
		return false
	}
}
