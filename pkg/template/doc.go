// Package template stores and renders channel-specific content templates.
//
// A template is addressed by (slug, channel) and carries a declared variable
// list. Rendering substitutes {{key}} placeholders literally: required
// variables without a caller value or declared default fail the render with
// MissingVariableError, while unresolved optional placeholders are left
// verbatim in the output so partial previews remain possible.
//
// Every create or update captures an immutable Version snapshot. Archived
// templates stop resolving by slug+channel (render fails with ErrNotFound)
// but historical versions stay retrievable by explicit version number.
package template
