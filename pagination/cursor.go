package pagination

import (
	"encoding/base64"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Cursor is a partial mapping of key name to the last-seen value for that
// key. An empty cursor selects the first page.
type Cursor map[string]any

// ErrInvalidCursor is returned when an encoded cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid page cursor")

var cursorJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode serializes the cursor into an opaque URL-safe token.
// An empty cursor encodes to the empty string.
func (c Cursor) Encode() (string, error) {
	if len(c) == 0 {
		return "", nil
	}

	payload, err := cursorJSON.Marshal(map[string]any(c))
	if err != nil {
		return "", errors.Join(ErrInvalidCursor, err)
	}

	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a token produced by Encode. The empty string decodes
// to a nil cursor (first page).
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return nil, nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.Join(ErrInvalidCursor, err)
	}

	var values map[string]any
	if err := cursorJSON.Unmarshal(payload, &values); err != nil {
		return nil, errors.Join(ErrInvalidCursor, err)
	}

	return Cursor(values), nil
}

// Int64 returns the named cursor value as an int64, tolerating the numeric
// types JSON decoding may produce. The second return is false when the key
// is absent or not numeric.
func (c Cursor) Int64(name string) (int64, bool) {
	value, ok := c[name]
	if !ok {
		return 0, false
	}

	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Time returns the named cursor value as a time.Time, tolerating the
// RFC 3339 string form JSON decoding produces.
func (c Cursor) Time(name string) (time.Time, bool) {
	value, ok := c[name]
	if !ok {
		return time.Time{}, false
	}

	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
