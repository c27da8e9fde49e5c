package template

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Resolver renders active templates into channel content.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger used for render diagnostics.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a resolver over the given template store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render resolves the active (slug, channel) template and substitutes
// {{key}} placeholders with caller-supplied variables, falling back to
// declared defaults. Required variables with neither a value nor a default
// fail the render with MissingVariableError naming every missing key.
// Unresolved optional placeholders are left verbatim.
func (r *Resolver) Render(ctx context.Context, slug string, channel notification.Channel, vars map[string]string) (*notification.Content, error) {
	tpl, err := r.store.GetBySlug(ctx, slug, channel)
	if err != nil {
		return nil, err
	}

	values, missing := resolveVariables(tpl.Variables, vars)
	if len(missing) > 0 {
		return nil, &MissingVariableError{Slug: slug, Keys: missing}
	}

	r.logger.DebugContext(ctx, "rendering template",
		slog.String("slug", slug),
		slog.String("channel", string(channel)),
		slog.Int("version", tpl.Version))

	body := tpl.Body
	substitute := func(s string) string {
		for key, value := range values {
			s = strings.ReplaceAll(s, "{{"+key+"}}", value)
		}
		return s
	}

	content := &notification.Content{}
	switch channel {
	case notification.ChannelEmail:
		content.Email = &notification.EmailContent{
			Subject:  substitute(body.Subject),
			HTMLBody: substitute(body.HTMLBody),
			TextBody: substitute(body.TextBody),
		}
	case notification.ChannelSMS:
		content.SMS = &notification.SMSContent{
			Body: substitute(body.SMSBody),
		}
	case notification.ChannelPush:
		content.Push = &notification.PushContent{
			Title: substitute(body.Title),
			Body:  substitute(body.PushBody),
		}
	}
	return content, nil
}

// resolveVariables merges caller values with declared defaults and reports
// required keys that ended up with no value at all.
func resolveVariables(declared []Variable, supplied map[string]string) (map[string]string, []string) {
	values := make(map[string]string, len(supplied))
	for k, v := range supplied {
		values[k] = v
	}

	var missing []string
	for _, v := range declared {
		if _, ok := values[v.Key]; ok {
			continue
		}
		if v.DefaultValue != "" {
			values[v.Key] = v.DefaultValue
			continue
		}
		if v.Required {
			missing = append(missing, v.Key)
		}
	}
	sort.Strings(missing)
	return values, missing
}
