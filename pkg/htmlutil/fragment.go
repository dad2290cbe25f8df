package htmlutil

import (
	"strings"
	"unicode"
)

// Fragment is a piece of raw markup being narrowed down by literal markers.
//
// Every step returns a new Fragment. Once a step cannot find its marker the
// fragment becomes invalid and all following steps are no-ops, so an
// extraction chain either yields a value at the end or nothing at all.
type Fragment struct {
	text string
	ok   bool
}

// Frag starts an extraction chain over s.
func Frag(s string) Fragment {
	return Fragment{text: s, ok: true}
}

var invalid = Fragment{}

// After keeps everything after the first occurrence of marker.
func (f Fragment) After(marker string) Fragment {
	if !f.ok || marker == "" {
		return invalid
	}
	_, after, found := strings.Cut(f.text, marker)
	if !found {
		return invalid
	}
	return Fragment{text: after, ok: true}
}

// Before keeps everything before the first occurrence of marker, the marker
// must be present.
func (f Fragment) Before(marker string) Fragment {
	if !f.ok || marker == "" {
		return invalid
	}
	before, _, found := strings.Cut(f.text, marker)
	if !found {
		return invalid
	}
	return Fragment{text: before, ok: true}
}

// UpTo keeps everything before the first occurrence of marker, or the whole
// fragment when the marker is absent.
func (f Fragment) UpTo(marker string) Fragment {
	if !f.ok {
		return invalid
	}
	before, _, _ := strings.Cut(f.text, marker)
	return Fragment{text: before, ok: true}
}

// Field splits the fragment on sep and keeps the n-th (zero based) piece.
func (f Fragment) Field(sep string, n int) Fragment {
	if !f.ok || sep == "" || n < 0 {
		return invalid
	}
	parts := strings.SplitN(f.text, sep, n+2)
	if n >= len(parts) {
		return invalid
	}
	return Fragment{text: parts[n], ok: true}
}

// LeadingText skips any leading tags and keeps the first run of text up to
// the next tag.
func (f Fragment) LeadingText() Fragment {
	if !f.ok {
		return invalid
	}
	rest := strings.TrimLeftFunc(f.text, unicode.IsSpace)
	for strings.HasPrefix(rest, "<") {
		_, after, found := strings.Cut(rest, ">")
		if !found {
			return invalid
		}
		rest = strings.TrimLeftFunc(after, unicode.IsSpace)
	}
	return Fragment{text: strings.TrimSpace(Frag(rest).UpTo("<").text), ok: true}
}

// TrimSpace removes leading and trailing whitespace.
func (f Fragment) TrimSpace() Fragment {
	if !f.ok {
		return invalid
	}
	return Fragment{text: strings.TrimSpace(f.text), ok: true}
}

// RemoveWhitespace drops every space and newline inside the fragment.
func (f Fragment) RemoveWhitespace() Fragment {
	if !f.ok {
		return invalid
	}
	return Fragment{text: strings.NewReplacer(" ", "", "\n", "", "\r", "", "\t", "").Replace(f.text), ok: true}
}

// Contains reports whether the fragment is valid and contains s.
func (f Fragment) Contains(s string) bool {
	return f.ok && strings.Contains(f.text, s)
}

// Value returns the extracted text and whether every step of the chain
// succeeded.
func (f Fragment) Value() (string, bool) {
	return f.text, f.ok
}

// NonEmpty is like Value but also rejects an empty result.
func (f Fragment) NonEmpty() (string, bool) {
	return f.text, f.ok && f.text != ""
}

func (f Fragment) String() string {
	return f.text
}

// Chunks splits s on sep and drops the leading piece, which is whatever came
// before the first separator. It returns nil when sep never occurs.
func Chunks(s, sep string) []string {
	parts := strings.Split(s, sep)
	if len(parts) <= 1 {
		return nil
	}
	return parts[1:]
}
