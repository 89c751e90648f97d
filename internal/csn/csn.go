// Package csn parses LDAP replication change sequence numbers such as the
// values of the contextCSN and entryCSN operational attributes.
//
// A CSN has the form
//
//	YYYYMMDDHHMMSS[.ffffff]Z#<sequence>#<server-id>#<mod-count>
//
// where the trailing fields are hexadecimal. The timestamp is always UTC.
package csn

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxServerID is the largest server id a CSN can carry (three hex digits)
	MaxServerID = 0xFFF

	timestampLayout = "20060102150405"
)

// pattern captures the timestamp digits and the optional #-delimited tail.
// The fractional seconds are matched but not captured.
var pattern = regexp.MustCompile(
	`^(\d{14})(?:\.\d+)?Z(?:#([0-9A-Fa-f]+)#([0-9A-Fa-f]+)#([0-9A-Fa-f]+))?$`,
)

// Value is a parsed change sequence number
type Value struct {
	// Timestamp is the UTC instant of the change, truncated to the second
	Timestamp time.Time `json:"timestamp"`

	// Sequence orders changes that share the same timestamp
	Sequence uint64 `json:"sequence"`

	// ServerID identifies the server that originated the change.
	// Only meaningful when HasServerID is true.
	ServerID int `json:"serverID"`

	// HasServerID is false for timestamp-only CSNs
	HasServerID bool `json:"hasServerID"`

	// ModCount is the modification counter within the change
	ModCount uint64 `json:"modCount"`

	// Raw is the encoded string the value was parsed from
	Raw string `json:"raw"`
}

// ParseError is returned when a raw CSN does not have the expected shape
type ParseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid CSN %q: %s: %v", e.Raw, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid CSN %q: %s", e.Raw, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes a raw CSN string
func Parse(raw string) (Value, error) {
	m := pattern.FindStringSubmatch(raw)
	if m == nil {
		return Value{}, &ParseError{Raw: raw, Reason: "does not match YYYYMMDDHHMMSS[.f]Z#seq#sid#mod"}
	}

	ts, err := time.ParseInLocation(timestampLayout, m[1], time.UTC)
	if err != nil {
		return Value{}, &ParseError{Raw: raw, Reason: "invalid timestamp", Err: err}
	}

	v := Value{
		Timestamp: ts,
		Raw:       raw,
	}

	// timestamp-only form
	if m[2] == "" {
		return v, nil
	}

	if v.Sequence, err = strconv.ParseUint(m[2], 16, 64); err != nil {
		return Value{}, &ParseError{Raw: raw, Reason: "invalid sequence", Err: err}
	}
	sid, err := parseServerID(m[3])
	if err != nil {
		return Value{}, &ParseError{Raw: raw, Reason: "invalid server id", Err: err}
	}
	v.ServerID = sid
	v.HasServerID = true
	if v.ModCount, err = strconv.ParseUint(m[4], 16, 64); err != nil {
		return Value{}, &ParseError{Raw: raw, Reason: "invalid modification count", Err: err}
	}

	return v, nil
}

// ServerIDOf extracts only the server-id field of a raw CSN. It lets callers
// select among multiple values without requiring the rest of each value to be
// well formed.
func ServerIDOf(raw string) (int, error) {
	fields := strings.Split(raw, "#")
	if len(fields) != 4 {
		return 0, &ParseError{Raw: raw, Reason: "expected four #-delimited fields"}
	}
	sid, err := parseServerID(fields[2])
	if err != nil {
		return 0, &ParseError{Raw: raw, Reason: "invalid server id", Err: err}
	}
	return sid, nil
}

func parseServerID(field string) (int, error) {
	if field == "" {
		return 0, fmt.Errorf("empty field")
	}
	sid, err := strconv.ParseUint(field, 16, 32)
	if err != nil {
		return 0, err
	}
	if sid > MaxServerID {
		return 0, fmt.Errorf("%d exceeds maximum %d", sid, MaxServerID)
	}
	return int(sid), nil
}

// FormatServerID renders a server id the way it appears inside a CSN (three
// zero-padded upper-case hex digits, e.g. 195 -> "0C3")
func FormatServerID(id int) string {
	return fmt.Sprintf("%03X", id)
}

// String returns the raw encoded CSN
func (v Value) String() string {
	return v.Raw
}

// Compare orders two values by timestamp, sequence, server id and
// modification count. It returns -1, 0 or +1.
func Compare(a, b Value) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	switch {
	case a.Sequence < b.Sequence:
		return -1
	case a.Sequence > b.Sequence:
		return 1
	case a.ServerID < b.ServerID:
		return -1
	case a.ServerID > b.ServerID:
		return 1
	case a.ModCount < b.ModCount:
		return -1
	case a.ModCount > b.ModCount:
		return 1
	}
	return 0
}
