package template

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no active template matches the lookup.
	ErrNotFound = errors.New("template not found")

	// ErrConflict is returned on duplicate slug registration per channel.
	ErrConflict = errors.New("template slug already exists for channel")

	// ErrVersionNotFound is returned for unknown (template, version) pairs.
	ErrVersionNotFound = errors.New("template version not found")
)

// MissingVariableError names the required variables absent from a render
// call that also lack a declared default. Rendering never silently drops
// required content.
type MissingVariableError struct {
	Slug string
	Keys []string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template %q: missing required variables: %s", e.Slug, strings.Join(e.Keys, ", "))
}
