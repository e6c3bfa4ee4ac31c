// Package chatid implements the chat-identifier sum type used as the
// SessionRegistry's map key: a signed 64-bit integer, or a textual handle
// prefixed with "@".
package chatid

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

var foldCaser = cases.Fold()

// ChatId is either an integer chat id or a textual @handle. The zero value
// is the integer variant with value 0, which is a valid (if unusual) chat id.
//
// ChatId is comparable and may be used directly as a Go map key; two values
// compare equal under == only when they share the same variant and payload,
// with string payloads compared in both their folded and original-cased
// forms — == on the raw struct is case-sensitive, so callers that need
// case-insensitive equality must call Equal, not ==.
type ChatId struct {
	isName bool
	num    int64
	name   string // folded (case-insensitive) form, without leading "@"
	raw    string // original-cased form, without leading "@", for String()
}

// Int64 constructs the integer variant.
func Int64(id int64) ChatId {
	return ChatId{num: id}
}

// Name constructs the textual-handle variant. A leading "@" is stripped if
// present; String() re-adds it on render.
func Name(handle string) ChatId {
	h := strings.TrimPrefix(handle, "@")
	return ChatId{isName: true, raw: h, name: foldCaser.String(h)}
}

// Parse classifies token per spec: purely numeric input is the integer
// variant, anything else is the string variant.
func Parse(token string) ChatId {
	if n, err := strconv.ParseInt(token, 10, 64); err == nil && isPureDigits(token) {
		return Int64(n)
	}
	return Name(token)
}

// isPureDigits rejects forms ParseInt accepts but the wire format never
// produces, such as a leading "+" or internal whitespace.
func isPureDigits(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsName reports whether this is the textual-handle variant.
func (c ChatId) IsName() bool { return c.isName }

// Int64Value returns the integer payload and whether this is the integer
// variant.
func (c ChatId) Int64Value() (int64, bool) {
	return c.num, !c.isName
}

// String renders the chat id as it should appear on the wire: the integer
// as decimal, the handle with its leading "@" restored.
func (c ChatId) String() string {
	if !c.isName {
		return strconv.FormatInt(c.num, 10)
	}
	return "@" + c.raw
}

// Equal compares by variant tag then payload; string payloads compare
// case-insensitively.
func (c ChatId) Equal(o ChatId) bool {
	if c.isName != o.isName {
		return false
	}
	if !c.isName {
		return c.num == o.num
	}
	return c.name == o.name
}

// Key returns a canonical string safe to use as a map key when
// case-insensitive equality is required (e.g. SessionRegistry), since the
// struct's own == is case-sensitive on the string variant. Int64(1) and
// Name("1") can never collide: the tag byte differs.
func (c ChatId) Key() string {
	if !c.isName {
		return "i" + strconv.FormatInt(c.num, 10)
	}
	return "n" + c.name
}

// Less orders integers totally, strings ordinally (case-insensitive), and
// places any integer above any string. This ordering exists only to give
// ChatId a deterministic tie-break in places like sorted admin listings; it
// is not a domain guarantee about chat importance.
func (c ChatId) Less(o ChatId) bool {
	switch {
	case !c.isName && !o.isName:
		return c.num < o.num
	case c.isName && o.isName:
		return c.name < o.name
	case c.isName && !o.isName:
		// any integer is greater than any string
		return true
	default:
		return false
	}
}
