package bridge

import "strings"

// The data store reserves a leading sigil for internal document keys ($id,
// $createdAt, ...). GraphQL names cannot start with '$', so those keys are
// rewritten to a leading underscore when fields are declared and when
// response payloads are translated. The storage layer reserves both prefixes
// for internal keys, so the rewrite is a bijection over observed key sets.

const (
	reservedSigil = "$"
	safeSigil     = "_"
)

// SafeKey rewrites a reserved-sigil key to its schema-safe form.
func SafeKey(key string) string {
	if strings.HasPrefix(key, reservedSigil) {
		return safeSigil + key[len(reservedSigil):]
	}
	return key
}

// RawKey is the inverse of SafeKey.
func RawKey(key string) string {
	if strings.HasPrefix(key, safeSigil) {
		return reservedSigil + key[len(safeSigil):]
	}
	return key
}

// EncodeKeys rewrites reserved-sigil keys to safe keys throughout a payload,
// recursing into nested maps and slices.
func EncodeKeys(v any) any { return mapKeys(v, SafeKey) }

// DecodeKeys rewrites safe keys back to reserved-sigil keys throughout a
// payload.
func DecodeKeys(v any) any { return mapKeys(v, RawKey) }

func mapKeys(v any, rewrite func(string) string) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[rewrite(k)] = mapKeys(inner, rewrite)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = mapKeys(inner, rewrite)
		}
		return out
	default:
		return v
	}
}
