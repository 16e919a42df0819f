// Package validate checks HTTP request payloads before handlers process
// them.
//
// Each handler composes a checkRequest sequence out of the functions in this
// package plus the database-backed checks on the service layer. Every check
// returns *Error on failure (nil on success), carrying the key of the
// offending property so the client can attach the message to the right form
// field. Keys are slash-separated, e.g. the value 42 in
// {"a": {"b": {"c": 42}}} is under key "/a/b/c".
//
// A request payload is a map decoded from JSON (or assembled from query or
// URL parameters). All declared properties must be present; an explicit nil
// is a valid "absent" value, the Absent sentinel is not. Optional query
// properties arrive as empty strings and must be normalized with
// NullifyEmptyString before checking, since only nil means "absent".
package validate

import (
	"regexp"
	"strconv"
)

var (
	uuidPattern  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	emailPattern = regexp.MustCompile(`^[\w\-.+]+@([\w-]+\.)+[\w-]{2,4}$`)
)

// Error indicates either a syntax or semantic error with the request sent by
// the client: a number where a string was expected, or an update to an
// entity that doesn't exist. It results in an HTTP 400 response carrying the
// key and message.
type Error struct {
	Key     string
	Message string
}

func (e *Error) Error() string {
	return e.Key + ": " + e.Message
}

func fail(k, msg string) *Error {
	return &Error{Key: k, Message: msg}
}

// Absent marks a property that a handler knows was never supplied, as
// opposed to one explicitly set to null. Props rejects it.
var Absent = absent{}

type absent struct{}

// Props checks that a payload is well-formed: it has all expected
// properties, no unexpected properties, and no property set to Absent.
func Props(k string, payload map[string]any, props ...string) *Error {
	expected := make(map[string]bool, len(props))
	for _, p := range props {
		expected[p] = true
	}
	for p, v := range payload {
		if !expected[p] {
			return fail(k, "Unexpected property '"+p+"'.")
		}
		delete(expected, p)
		if v == Absent {
			return fail(k, "Undefined property '"+p+"'.")
		}
	}
	for p := range expected {
		return fail(k, "Missing property '"+p+"'.")
	}
	return nil
}

// StringOpts constrains a string check. A MaxLen of 0 means unbounded.
type StringOpts struct {
	MinLen   int
	MaxLen   int
	Optional bool
}

// String checks that a value is a string within the given constraints.
func String(k string, v any, opts StringOpts) *Error {
	isNil, err := checkNil(k, v, opts.Optional)
	if isNil || err != nil {
		return err
	}
	s, ok := v.(string)
	if !ok {
		return fail(k, "Not a string.")
	}
	if len(s) < opts.MinLen {
		return fail(k, "Length must be at least "+strconv.Itoa(opts.MinLen)+".")
	}
	if opts.MaxLen > 0 && len(s) > opts.MaxLen {
		return fail(k, "Length must be no more than "+strconv.Itoa(opts.MaxLen)+".")
	}
	return nil
}

// UUID checks that a value is a canonically formatted UUID string.
func UUID(k string, v any, optional bool) *Error {
	isNil, err := checkNil(k, v, optional)
	if isNil || err != nil {
		return err
	}
	s, ok := v.(string)
	if !ok {
		return fail(k, "Not a string.")
	}
	if !uuidPattern.MatchString(s) {
		return fail(k, "Invalid uuid format.")
	}
	return nil
}

// EmailFormat checks that a value is a well-formed email address within the
// given length bounds. A nil value passes; availability against the users
// table is a separate, database-backed check.
func EmailFormat(k string, v any, minLen, maxLen int) *Error {
	isNil, err := checkNil(k, v, true)
	if isNil || err != nil {
		return err
	}
	s, ok := v.(string)
	if !ok {
		return fail(k, "Not a string.")
	}
	if len(s) < minLen {
		return fail(k, "Length must be at least "+strconv.Itoa(minLen)+".")
	}
	if len(s) > maxLen {
		return fail(k, "Length must be no more than "+strconv.Itoa(maxLen)+".")
	}
	if !emailPattern.MatchString(s) {
		return fail(k, "Invalid email format.")
	}
	return nil
}

// NullifyEmptyString replaces an empty-string property with nil. Optional
// properties sent as part of a query string cannot be represented as null,
// only as empty strings.
func NullifyEmptyString(payload map[string]any, prop string) {
	if payload[prop] == "" {
		payload[prop] = nil
	}
}

// checkNil reports whether a value is nil, failing when the value is
// required. Callers short-circuit on either result:
//
//	if isNil, err := checkNil(k, v, optional); isNil || err != nil {
//		return err
//	}
func checkNil(k string, v any, optional bool) (bool, *Error) {
	if v == nil {
		if !optional {
			return true, fail(k, "Required field missing.")
		}
		return true, nil
	}
	return false, nil
}
