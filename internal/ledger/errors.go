package ledger

import "fmt"

// Wire error codes. Each maps to exactly one HTTP status.
const (
	CodeInvalidJSON              = "INVALID_JSON"
	CodeValidationError          = "VALIDATION_ERROR"
	CodeInvalidStatus            = "INVALID_STATUS"
	CodeInvalidAction            = "INVALID_ACTION"
	CodeInvalidCanonicalRawID    = "INVALID_CANONICAL_RAW_ID"
	CodeTenantMismatch           = "CANONICAL_RAW_TENANT_MISMATCH"
	CodeMissingEventType         = "MISSING_EVENT_TYPE_IN_PAYLOAD"
	CodeNotFound                 = "NOT_FOUND"
	CodeAlreadyResolved          = "ALREADY_RESOLVED"
	CodeMissingIdempotencyRecord = "MISSING_IDEMPOTENCY_RECORD"
	CodeReplayValidationFailed   = "REPLAY_VALIDATION_FAILED"
)

// Error is a domain error carrying the wire code and HTTP status. Validation
// and precondition failures abort the transaction and surface as one of
// these; infrastructure errors pass through untyped and map to 500.
type Error struct {
	Code       string
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func badRequest(code, format string, args ...any) *Error {
	return &Error{Code: code, HTTPStatus: 400, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, HTTPStatus: 404, Message: fmt.Sprintf(format, args...)}
}

func conflict(code, format string, args ...any) *Error {
	return &Error{Code: code, HTTPStatus: 409, Message: fmt.Sprintf(format, args...)}
}
