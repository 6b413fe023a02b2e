package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// allowedEventTypes is the set an event_type must normalize into to be
// processed without operator review.
var allowedEventTypes = map[string]bool{
	"SALE":       true,
	"RETURN":     true,
	"CORRECTION": true,
	"CANCEL":     true,
	"VOID":       true,
}

// AllowedEventTypes returns the allowed set in stable order, for exception
// details and error messages.
func AllowedEventTypes() []string {
	return []string{"CANCEL", "CORRECTION", "RETURN", "SALE", "VOID"}
}

// NormalizeEventType trims and uppercases for comparison against the allowed
// set. The normalized form is what gets stored on the bronze row.
func NormalizeEventType(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// EventTypeAllowed reports whether an already-normalized event type is in the
// allowed set.
func EventTypeAllowed(t string) bool {
	return allowedEventTypes[t]
}

// Submission is a decoded, envelope-validated producer submission. Payload is
// the full original body including unknown fields; the envelope fields are
// extracted copies. EventType is normalized.
type Submission struct {
	TenantID      string
	StoreID       string
	SourceSystem  string
	SchemaVersion string
	EventID       string
	SourceEventID *string
	EventType     string
	TxnID         string
	OccurredAt    time.Time
	Payload       map[string]any
}

// IdempotencyKey returns the key this submission dedupes on. Currently the
// submitted event_id; swapping in a composite key changes only this method.
func (s *Submission) IdempotencyKey() string {
	return s.EventID
}

// DecodeSubmission parses and envelope-validates a producer request body.
// Numbers decode as json.Number so the content hash is stable across
// decode/encode round trips. Unknown fields ride along in Payload untouched.
func DecodeSubmission(body []byte) (*Submission, error) {
	payload, err := DecodeJSONObject(body)
	if err != nil {
		return nil, badRequest(CodeInvalidJSON, "request body is not a JSON object")
	}

	sub := &Submission{Payload: payload}

	required := []struct {
		field string
		dst   *string
	}{
		{"tenant_id", &sub.TenantID},
		{"store_id", &sub.StoreID},
		{"source_system", &sub.SourceSystem},
		{"schema_version", &sub.SchemaVersion},
		{"event_id", &sub.EventID},
		{"event_type", &sub.EventType},
		{"txn_id", &sub.TxnID},
	}
	for _, f := range required {
		v, ok := getString(payload, f.field)
		if !ok || strings.TrimSpace(v) == "" {
			return nil, badRequest(CodeValidationError, "missing or empty required field: %s", f.field)
		}
		*f.dst = v
	}

	if v, ok := getString(payload, "source_event_id"); ok && v != "" {
		sub.SourceEventID = &v
	}

	occurredRaw, ok := getString(payload, "occurred_at")
	if !ok || occurredRaw == "" {
		return nil, badRequest(CodeValidationError, "missing or empty required field: occurred_at")
	}
	occurred, err := parseTimestamp(occurredRaw)
	if err != nil {
		return nil, badRequest(CodeValidationError, "occurred_at is not a valid timestamp: %s", occurredRaw)
	}
	sub.OccurredAt = occurred

	sub.EventType = NormalizeEventType(sub.EventType)
	return sub, nil
}

// DecodeJSONObject decodes bytes into a generic JSON object with UseNumber,
// so numeric literals survive canonicalization byte-for-byte.
func DecodeJSONObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("json value is null")
	}
	return m, nil
}

func getString(m map[string]any, k string) (string, bool) {
	if v, ok := m[k]; ok {
		if s, ok2 := v.(string); ok2 {
			return s, true
		}
	}
	return "", false
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
