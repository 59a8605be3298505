package apperrors

import "errors"

// Envelope is the uniform error body the API surface renders for non-2xx
// responses (spec §6.1). Webhook handlers never emit this — they swallow
// errors internally and still return 200 so providers don't retry-storm a
// handler that is failing for reasons on our side.
type Envelope struct {
	Success bool          `json:"success"`
	Error   EnvelopeError `json:"error"`
}

type EnvelopeError struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
}

// ToEnvelope renders err for API clients, never including the underlying
// wrapped error text so internal details (SQL, stack-ish context) don't leak.
func ToEnvelope(err error) Envelope {
	var e *Error
	if errors.As(err, &e) {
		return Envelope{Error: EnvelopeError{Kind: e.Kind, Message: publicMessage(e.Kind)}}
	}
	return Envelope{Error: EnvelopeError{Kind: KindInternal, Message: publicMessage(KindInternal)}}
}

func publicMessage(k Kind) string {
	switch k {
	case KindNotFound:
		return "resource not found"
	case KindConflict:
		return "resource was modified concurrently"
	case KindInvalidInput:
		return "invalid request"
	case KindUnauthorized:
		return "unauthorized"
	case KindUpstream:
		return "upstream provider error"
	case KindUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}
