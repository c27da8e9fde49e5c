package template_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/template"
)

func seedStore(t *testing.T) *template.MemoryStore {
	t.Helper()

	store := template.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &template.Template{
		Slug:    "welcome-email",
		Channel: notification.ChannelEmail,
		Body: template.Body{
			Subject:  "Welcome, {{name}}!",
			TextBody: "Hi {{name}}, thanks for joining {{service_name}}. Ref {{ref}}.",
		},
		Variables: []template.Variable{
			{Key: "name", Required: true},
			{Key: "service_name", Required: false, DefaultValue: "Notifykit"},
			{Key: "ref", Required: false},
		},
	}))
	require.NoError(t, store.Create(context.Background(), &template.Template{
		Slug:    "verification-code",
		Channel: notification.ChannelSMS,
		Body: template.Body{
			SMSBody: "Your code is {{code}}.",
		},
		Variables: []template.Variable{
			{Key: "code", Required: true},
		},
	}))
	return store
}

func TestResolver_RenderEmail(t *testing.T) {
	t.Parallel()

	resolver := template.NewResolver(seedStore(t))

	content, err := resolver.Render(context.Background(), "welcome-email", notification.ChannelEmail, map[string]string{
		"name": "Ada",
		"ref":  "X1",
	})
	require.NoError(t, err)
	require.NotNil(t, content.Email)
	assert.Equal(t, "Welcome, Ada!", content.Email.Subject)
	assert.Equal(t, "Hi Ada, thanks for joining Notifykit. Ref X1.", content.Email.TextBody,
		"declared default fills the missing optional variable")
}

func TestResolver_RenderSMS(t *testing.T) {
	t.Parallel()

	resolver := template.NewResolver(seedStore(t))

	content, err := resolver.Render(context.Background(), "verification-code", notification.ChannelSMS, map[string]string{
		"code": "123456",
	})
	require.NoError(t, err)
	require.NotNil(t, content.SMS)
	assert.Equal(t, "Your code is 123456.", content.SMS.Body)
}

func TestResolver_MissingRequiredVariable(t *testing.T) {
	t.Parallel()

	resolver := template.NewResolver(seedStore(t))

	_, err := resolver.Render(context.Background(), "welcome-email", notification.ChannelEmail, nil)
	require.Error(t, err)

	var missing *template.MissingVariableError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"name"}, missing.Keys)
}

func TestResolver_OptionalPlaceholderLeftVerbatim(t *testing.T) {
	t.Parallel()

	resolver := template.NewResolver(seedStore(t))

	content, err := resolver.Render(context.Background(), "welcome-email", notification.ChannelEmail, map[string]string{
		"name": "Ada",
	})
	require.NoError(t, err)
	assert.Contains(t, content.Email.TextBody, "{{ref}}",
		"optional variable with no value and no default stays verbatim")
}

func TestResolver_UnknownTemplate(t *testing.T) {
	t.Parallel()

	resolver := template.NewResolver(seedStore(t))

	_, err := resolver.Render(context.Background(), "nope", notification.ChannelEmail, nil)
	assert.ErrorIs(t, err, template.ErrNotFound)
}

func TestResolver_ChannelScopedLookup(t *testing.T) {
	t.Parallel()

	resolver := template.NewResolver(seedStore(t))

	// The slug exists, but only for email.
	_, err := resolver.Render(context.Background(), "welcome-email", notification.ChannelSMS, nil)
	assert.ErrorIs(t, err, template.ErrNotFound)
}

func TestMemoryStore_ArchivedTemplateHiddenFromRender(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	ctx := context.Background()

	tpl, err := store.GetBySlug(ctx, "welcome-email", notification.ChannelEmail)
	require.NoError(t, err)
	require.NoError(t, store.Archive(ctx, tpl.ID))

	_, err = store.GetBySlug(ctx, "welcome-email", notification.ChannelEmail)
	assert.ErrorIs(t, err, template.ErrNotFound)
}

func TestMemoryStore_DuplicateSlugPerChannel(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	ctx := context.Background()

	err := store.Create(ctx, &template.Template{
		Slug:    "welcome-email",
		Channel: notification.ChannelEmail,
		Body:    template.Body{Subject: "again", TextBody: "again"},
	})
	assert.ErrorIs(t, err, template.ErrConflict)

	// Same slug on another channel is a distinct template.
	assert.NoError(t, store.Create(ctx, &template.Template{
		Slug:    "welcome-email",
		Channel: notification.ChannelPush,
		Body:    template.Body{Title: "Welcome", PushBody: "Hi"},
	}))
}

func TestMemoryStore_UpdateBumpsVersion(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	ctx := context.Background()

	tpl, err := store.GetBySlug(ctx, "welcome-email", notification.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, tpl.Version)

	tpl.Body.Subject = "Hello, {{name}}!"
	require.NoError(t, store.Update(ctx, tpl))
	assert.Equal(t, 2, tpl.Version)

	v1, err := store.GetVersion(ctx, tpl.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Welcome, {{name}}!", v1.Body.Subject)
}
