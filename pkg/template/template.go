package template

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Status represents the publication state of a template.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// Variable declares one substitution key a template expects.
type Variable struct {
	Key          string `json:"key" yaml:"key"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	Required     bool   `json:"required" yaml:"required"`
	DefaultValue string `json:"default_value,omitempty" yaml:"default,omitempty"`
}

// Body holds the channel-specific template text. Only the fields relevant
// to the template's channel are populated.
type Body struct {
	Subject  string `json:"subject,omitempty" yaml:"subject,omitempty"`
	HTMLBody string `json:"html_body,omitempty" yaml:"html_body,omitempty"`
	TextBody string `json:"text_body,omitempty" yaml:"text_body,omitempty"`
	SMSBody  string `json:"sms_body,omitempty" yaml:"sms_body,omitempty"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	PushBody string `json:"push_body,omitempty" yaml:"push_body,omitempty"`
}

// Template is a named, versioned content definition. Slug is unique per
// channel. Mutations go through the management surface only; the dispatch
// path consumes templates read-only.
type Template struct {
	ID        uuid.UUID            `json:"id"`
	Slug      string               `json:"slug"`
	Channel   notification.Channel `json:"channel"`
	Status    Status               `json:"status"`
	Category  string               `json:"category,omitempty"`
	Body      Body                 `json:"body"`
	Variables []Variable           `json:"variables,omitempty"`
	Version   int                  `json:"version"`
	CreatedBy string               `json:"created_by,omitempty"`
	UpdatedBy string               `json:"updated_by,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Version is an immutable snapshot of a template, taken on every create and
// update. Keyed by (TemplateID, Number); never mutated.
type Version struct {
	TemplateID uuid.UUID  `json:"template_id"`
	Number     int        `json:"number"`
	Body       Body       `json:"body"`
	Variables  []Variable `json:"variables,omitempty"`
	CreatedBy  string     `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// snapshot captures the current template state as an immutable version.
func (t *Template) snapshot() *Version {
	vars := make([]Variable, len(t.Variables))
	copy(vars, t.Variables)
	return &Version{
		TemplateID: t.ID,
		Number:     t.Version,
		Body:       t.Body,
		Variables:  vars,
		CreatedBy:  t.UpdatedBy,
		CreatedAt:  time.Now(),
	}
}
