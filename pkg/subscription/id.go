// Package subscription delivers server-pushed events to subscribers under per-subscriber
// demand, with hierarchical wildcard addressing.
package subscription

import (
	"errors"
	"fmt"
	"strings"
)

// Wildcard matches any single segment.
const Wildcard = "*"

const idSegments = 4

// ErrInvalidID is returned for ids that are not <receiver>.<component>.<operation>.<unique>.
var ErrInvalidID = errors.New("subscription: invalid id")

// ID is a parsed subscription id. Its segment forms are computed once at parse time.
type ID struct {
	raw      string
	segments []string
	filtered []string
}

// ParseID parses <receiver>.<component>.<operation>.<unique>. Any segment may be "*".
func ParseID(s string) (ID, error) {
	segments := strings.Split(s, ".")
	if len(segments) != idSegments {
		return ID{}, fmt.Errorf("%w: %q has %d segments, want %d", ErrInvalidID, s, len(segments), idSegments)
	}
	filtered := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			return ID{}, fmt.Errorf("%w: %q has an empty segment", ErrInvalidID, s)
		}
		if seg != Wildcard {
			filtered = append(filtered, seg)
		}
	}
	return ID{raw: s, segments: segments, filtered: filtered}, nil
}

// MustParseID is ParseID for constants; it panics on error.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// NewID joins segments into an id.
func NewID(receiver, component, operation, unique string) (ID, error) {
	return ParseID(strings.Join([]string{receiver, component, operation, unique}, "."))
}

func (id ID) String() string { return id.raw }

// Segments returns all segments, wildcards included.
func (id ID) Segments() []string {
	return append([]string(nil), id.segments...)
}

// Filtered returns the segments with wildcards removed.
func (id ID) Filtered() []string {
	return append([]string(nil), id.filtered...)
}

// Concrete reports whether the id has no wildcard segment.
func (id ID) Concrete() bool {
	return len(id.filtered) == len(id.segments)
}

func (id ID) Receiver() string  { return id.segment(0) }
func (id ID) Component() string { return id.segment(1) }
func (id ID) Operation() string { return id.segment(2) }
func (id ID) Unique() string    { return id.segment(3) }

func (id ID) segment(i int) string {
	if i >= len(id.segments) {
		return ""
	}
	return id.segments[i]
}

// Matches compares two ids segment by segment. Both must have the same number of
// segments; a wildcard on either side matches any segment.
func (id ID) Matches(other ID) bool {
	if len(id.segments) != len(other.segments) || len(id.segments) == 0 {
		return false
	}
	if id.Concrete() && other.Concrete() {
		return id.raw == other.raw
	}
	for i, seg := range id.segments {
		o := other.segments[i]
		if seg == Wildcard || o == Wildcard {
			continue
		}
		if seg != o {
			return false
		}
	}
	return true
}
