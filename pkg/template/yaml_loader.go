package template

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// seedFile is the YAML shape of a canned template definition file. One file
// may declare several templates.
type seedFile struct {
	Templates []seedTemplate `yaml:"templates"`
}

type seedTemplate struct {
	Slug      string     `yaml:"slug"`
	Channel   string     `yaml:"channel"`
	Category  string     `yaml:"category"`
	Body      Body       `yaml:"body"`
	Variables []Variable `yaml:"variables"`
}

// LoadDir seeds the store with every template declared in *.yaml / *.yml
// files under dir. Templates whose (slug, channel) already exist are left
// untouched, so re-running the loader on a persistent store is safe.
// Returns the number of templates created.
func LoadDir(ctx context.Context, store Store, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read template dir: %w", err)
	}

	created := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		n, err := loadFile(ctx, store, filepath.Join(dir, entry.Name()))
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

func loadFile(ctx context.Context, store Store, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	created := 0
	for _, seed := range file.Templates {
		channel := notification.Channel(strings.ToUpper(seed.Channel))
		if seed.Slug == "" || !channel.Valid() {
			return created, fmt.Errorf("%s: template %q has invalid slug or channel %q", path, seed.Slug, seed.Channel)
		}

		err := store.Create(ctx, &Template{
			Slug:      seed.Slug,
			Channel:   channel,
			Status:    StatusActive,
			Category:  seed.Category,
			Body:      seed.Body,
			Variables: seed.Variables,
		})
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("%s: create template %q: %w", path, seed.Slug, err)
		}
		created++
	}
	return created, nil
}
