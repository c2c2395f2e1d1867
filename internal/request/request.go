// Package request decodes adapter events into a typed request.
package request

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// bodyKey is the envelope key some callers wrap the payload in
const bodyKey = "body"

// DecodeError is returned for events that are not a JSON object, directly or inside a body envelope
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return "decode request: " + e.Reason
	}
	return fmt.Sprintf("decode request field %s: %s", e.Field, e.Reason)
}

// Request is a decoded adapter payload
type Request struct {
	fields map[string]interface{}
}

// New builds a request from already-decoded fields
func New(fields map[string]interface{}) Request {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	return Request{fields: fields}
}

// Decode accepts raw JSON bytes, a JSON string or a map, optionally wrapped
// in a body envelope whose value is a map or a JSON string
func Decode(event interface{}) (Request, error) {
	fields, err := toObject(event)
	if err != nil {
		return Request{}, err
	}

	if body, ok := fields[bodyKey]; ok {
		inner, err := toObject(body)
		if err != nil {
			return Request{}, &DecodeError{Field: bodyKey, Reason: err.(*DecodeError).Reason}
		}
		fields = inner
	}
	return Request{fields: fields}, nil
}

func toObject(v interface{}) (map[string]interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, &DecodeError{Reason: "empty event"}
	case map[string]interface{}:
		return t, nil
	case map[string]string:
		out := make(map[string]interface{}, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out, nil
	case json.RawMessage:
		return parseJSON(t)
	case []byte:
		return parseJSON(t)
	case string:
		return parseJSON([]byte(t))
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unsupported event type %T", v)}
	}
}

func parseJSON(data []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &DecodeError{Reason: "event is not a JSON object: " + err.Error()}
	}
	if out == nil {
		return nil, &DecodeError{Reason: "event is null"}
	}
	return out, nil
}

// Has reports whether a field is present
func (r Request) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// String returns a required, non-empty scalar field as a string
func (r Request) String(key string) (string, error) {
	v, ok := r.fields[key]
	if !ok || v == nil {
		return "", &DecodeError{Field: key, Reason: "missing"}
	}
	s := scalar(v)
	if s == "" {
		return "", &DecodeError{Field: key, Reason: "empty"}
	}
	return s, nil
}

// StringOr returns a scalar field or def when it is absent or empty
func (r Request) StringOr(key, def string) string {
	v, ok := r.fields[key]
	if !ok || v == nil {
		return def
	}
	if s := scalar(v); s != "" {
		return s
	}
	return def
}

// Int returns a field parsed as an integer, or def when absent
func (r Request) Int(key string, def int) (int, error) {
	v, ok := r.fields[key]
	if !ok || v == nil {
		return def, nil
	}
	n, err := strconv.Atoi(scalar(v))
	if err != nil {
		return 0, &DecodeError{Field: key, Reason: "not an integer"}
	}
	return n, nil
}

// Map returns an object field; a JSON string holding an object is accepted too
func (r Request) Map(key string) (map[string]interface{}, error) {
	v, ok := r.fields[key]
	if !ok || v == nil {
		return nil, &DecodeError{Field: key, Reason: "missing"}
	}
	obj, err := toObject(v)
	if err != nil {
		return nil, &DecodeError{Field: key, Reason: err.(*DecodeError).Reason}
	}
	return obj, nil
}

// Keys lists the field names in sorted order
func (r Request) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fields returns a copy of the decoded fields
func (r Request) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
