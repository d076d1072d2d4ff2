package catalog

import (
	"encoding/json"
	"net/url"
)

// EncodeQuery folds request query parameters into the single JSON
// object a function source's query argument receives. Each value is
// JSON-parsed when possible, otherwise carried as a string literal;
// repeated keys collapse into an array in encounter order. The output
// key order is deterministic (encoding/json sorts map keys), which
// cache-key derivation relies on. Empty input yields {}, never null.
func EncodeQuery(values url.Values) []byte {
	obj := make(map[string]json.RawMessage, len(values))
	for key, vals := range values {
		switch len(vals) {
		case 0:
			continue
		case 1:
			obj[key] = coerce(vals[0])
		default:
			arr := make([]json.RawMessage, 0, len(vals))
			for _, v := range vals {
				arr = append(arr, coerce(v))
			}
			raw, _ := json.Marshal(arr)
			obj[key] = raw
		}
	}
	out, _ := json.Marshal(obj)
	return out
}

// coerce reads a raw query value as JSON when it parses, and as a JSON
// string literal when it does not.
func coerce(v string) json.RawMessage {
	if json.Valid([]byte(v)) && v != "" {
		return json.RawMessage(v)
	}
	quoted, _ := json.Marshal(v)
	return quoted
}
