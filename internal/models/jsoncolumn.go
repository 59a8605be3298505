package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSON is a generic gorm column type for opaque JSON payloads (CallEvent
// payloads, Transcript analysis, campaign settings overrides). It round-trips
// through database/sql as text/bytes and marshals to the underlying value on
// the Go side, following the same "keep the row readable, don't normalize
// into extra tables" philosophy as the teacher's CallContext model.
type JSON map[string]any

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(value any) error {
	if value == nil {
		*j = JSON{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("models: unsupported JSON column type")
	}
	if len(b) == 0 {
		*j = JSON{}
		return nil
	}
	return json.Unmarshal(b, j)
}
