package instrument

import (
	"encoding/json"
	"log/slog"
	"strings"
)

const redacted = "***"

var (
	// secretKeys are always fully redacted.
	secretKeys = []string{"code", "otp", "pepper", "password", "secret_key", "code_hash", "authorization", "cookie"}

	// contactKeys keep a short suffix so a request can still be matched to a subscriber.
	contactKeys = []string{"phone_number", "email"}
)

// Masker redacts sensitive values from log attributes, headers and decoded
// JSON documents. Key matching is case-insensitive.
type Masker struct {
	secret  map[string]struct{}
	contact map[string]struct{}
}

// NewMasker returns a Masker that redacts fields plus the built-in secret
// and contact keys.
func NewMasker(fields ...string) *Masker {
	m := &Masker{
		secret:  make(map[string]struct{}, len(fields)+len(secretKeys)),
		contact: make(map[string]struct{}, len(contactKeys)),
	}
	for _, f := range append(fields, secretKeys...) {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			m.secret[f] = struct{}{}
		}
	}
	for _, f := range contactKeys {
		if _, ok := m.secret[f]; !ok {
			m.contact[f] = struct{}{}
		}
	}
	return m
}

// Secret reports whether values under key are fully redacted.
func (m *Masker) Secret(key string) bool {
	_, ok := m.secret[strings.ToLower(key)]
	return ok
}

func (m *Masker) maskValue(key string, v any) any {
	k := strings.ToLower(key)
	if _, ok := m.secret[k]; ok {
		return redacted
	}
	if _, ok := m.contact[k]; ok {
		if s, isStr := v.(string); isStr {
			return MaskContact(s)
		}
	}
	return m.Data(v)
}

// Data walks a decoded JSON value and redacts matching object keys.
func (m *Masker) Data(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v2 := range val {
			out[k] = m.maskValue(k, v2)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, v2 := range val {
			out[k] = m.maskValue(k, v2)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v2 := range val {
			out[i] = m.Data(v2)
		}
		return out
	default:
		return v
	}
}

// JSON masks a raw JSON document. ok is false when payload is not JSON.
func (m *Masker) JSON(payload []byte) (any, bool) {
	if len(payload) == 0 || (payload[0] != '{' && payload[0] != '[') {
		return nil, false
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, false
	}
	return m.Data(doc), true
}

// Attr masks a single slog attribute, descending into groups, maps and
// JSON-looking strings.
func (m *Masker) Attr(a slog.Attr) slog.Attr {
	if m.Secret(a.Key) {
		return slog.String(a.Key, redacted)
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		masked := make([]slog.Attr, 0, len(group))
		for _, ga := range group {
			masked = append(masked, m.Attr(ga))
		}
		a.Value = slog.GroupValue(masked...)
	case slog.KindString:
		s := a.Value.String()
		if _, ok := m.contact[strings.ToLower(a.Key)]; ok {
			a.Value = slog.StringValue(MaskContact(s))
		} else if doc, ok := m.JSON([]byte(s)); ok {
			if b, err := json.Marshal(doc); err == nil {
				a.Value = slog.StringValue(string(b))
			}
		}
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case map[string]any, map[string]string, []any:
			a.Value = slog.AnyValue(m.Data(v))
		case []byte:
			if doc, ok := m.JSON(v); ok {
				a.Value = slog.AnyValue(doc)
			}
		}
	}
	return a
}

// MaskContact hides most of a phone number or email address. Phone numbers
// keep their last four digits and emails keep the first letter and domain.
func MaskContact(s string) string {
	if local, domain, ok := strings.Cut(s, "@"); ok {
		if local == "" {
			return redacted + "@" + domain
		}
		return local[:1] + redacted + "@" + domain
	}
	if len(s) <= 4 {
		return redacted
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
