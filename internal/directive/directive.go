// Package directive implements the freeze directive naming convention and
// discovery of directive roots inside a namespace.
//
// A directive is an empty marker file named
//
//	.freeze.<key>=<value>;<key>=<value>
//
// placed in the directory whose subtree should receive the tags.
package directive

import (
	"fmt"
	"strings"

	"github.com/animus-labs/freezer/internal/domain"
)

const Prefix = ".freeze."

// ParseError reports a directive name that does not follow the convention.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid directive %q: %s", e.Name, e.Reason)
}

func IsDirective(name string) bool {
	return strings.HasPrefix(name, Prefix)
}

// Parse extracts the tag set encoded in a directive file name.
func Parse(name string) (domain.TagSet, error) {
	if !IsDirective(name) {
		return nil, &ParseError{Name: name, Reason: "missing " + Prefix + " prefix"}
	}
	body := strings.TrimPrefix(name, Prefix)
	if body == "" {
		return nil, &ParseError{Name: name, Reason: "no tags"}
	}

	tags := domain.TagSet{}
	for _, pair := range strings.Split(body, ";") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, &ParseError{Name: name, Reason: fmt.Sprintf("pair %q has no '='", pair)}
		}
		if strings.Contains(value, "=") {
			return nil, &ParseError{Name: name, Reason: fmt.Sprintf("pair %q has more than one '='", pair)}
		}
		if key == "" {
			return nil, &ParseError{Name: name, Reason: fmt.Sprintf("pair %q has an empty key", pair)}
		}
		if _, dup := tags[key]; dup {
			return nil, &ParseError{Name: name, Reason: fmt.Sprintf("duplicate key %q", key)}
		}
		tags[key] = value
	}
	return tags, nil
}

// Format is the inverse of Parse.
func Format(tags domain.TagSet) string {
	return Prefix + tags.String()
}
