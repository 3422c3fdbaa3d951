package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrRecordCorrupt is returned when a stored session value cannot be decoded.
var ErrRecordCorrupt = errors.New("session record corrupt")

// Record is the JSON value stored under a session key.
type Record struct {
	UID string `json:"uid"`
}

// Encode serializes r.
func Encode(r Record) ([]byte, error) {
	if r.UID == "" {
		return nil, errors.New("session record uid is empty")
	}
	return json.Marshal(r)
}

// Decode parses a stored session value.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordCorrupt, err)
	}
	if r.UID == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrRecordCorrupt)
	}
	return &r, nil
}
