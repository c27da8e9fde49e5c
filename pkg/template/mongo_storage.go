package template

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

const (
	templatesCollection = "templates"
	versionsCollection  = "template_versions"
)

// MongoStore implements Store on a MongoDB database. Templates live in one
// collection, immutable version snapshots in another.
type MongoStore struct {
	templates *mongo.Collection
	versions  *mongo.Collection
}

// NewMongoStore wraps an existing database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		templates: db.Collection(templatesCollection),
		versions:  db.Collection(versionsCollection),
	}
}

// EnsureIndexes creates the unique (slug, channel) index and the
// (template_id, number) version index. Call once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.templates.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}, {Key: "channel", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create slug index: %w", err)
	}
	_, err = s.versions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "template_id", Value: 1}, {Key: "number", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create version index: %w", err)
	}
	return nil
}

type templateDoc struct {
	ID        string     `bson:"_id"`
	Slug      string     `bson:"slug"`
	Channel   string     `bson:"channel"`
	Status    string     `bson:"status"`
	Category  string     `bson:"category,omitempty"`
	Body      Body       `bson:"body"`
	Variables []Variable `bson:"variables,omitempty"`
	Version   int        `bson:"version"`
	CreatedBy string     `bson:"created_by,omitempty"`
	UpdatedBy string     `bson:"updated_by,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

type versionDoc struct {
	TemplateID string     `bson:"template_id"`
	Number     int        `bson:"number"`
	Body       Body       `bson:"body"`
	Variables  []Variable `bson:"variables,omitempty"`
	CreatedBy  string     `bson:"created_by,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
}

func (s *MongoStore) Create(ctx context.Context, t *Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	t.Version = 1
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	if _, err := s.templates.InsertOne(ctx, toTemplateDoc(t)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert template: %w", err)
	}
	if _, err := s.versions.InsertOne(ctx, toVersionDoc(t.snapshot())); err != nil {
		return fmt.Errorf("insert version snapshot: %w", err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, t *Template) error {
	var current templateDoc
	err := s.templates.FindOne(ctx, bson.M{"_id": t.ID.String()}).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}

	t.Version = current.Version + 1
	t.CreatedAt = current.CreatedAt
	t.UpdatedAt = time.Now()

	if _, err := s.templates.ReplaceOne(ctx, bson.M{"_id": t.ID.String()}, toTemplateDoc(t)); err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if _, err := s.versions.InsertOne(ctx, toVersionDoc(t.snapshot())); err != nil {
		return fmt.Errorf("insert version snapshot: %w", err)
	}
	return nil
}

func (s *MongoStore) Archive(ctx context.Context, id uuid.UUID) error {
	res, err := s.templates.UpdateOne(ctx, bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"status": string(StatusArchived), "updated_at": time.Now()}})
	if err != nil {
		return fmt.Errorf("archive template: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetBySlug(ctx context.Context, slug string, channel notification.Channel) (*Template, error) {
	var doc templateDoc
	err := s.templates.FindOne(ctx, bson.M{
		"slug":    slug,
		"channel": string(channel),
		"status":  bson.M{"$ne": string(StatusArchived)},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find template: %w", err)
	}
	return fromTemplateDoc(&doc)
}

func (s *MongoStore) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	var doc templateDoc
	err := s.templates.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find template: %w", err)
	}
	return fromTemplateDoc(&doc)
}

func (s *MongoStore) GetVersion(ctx context.Context, templateID uuid.UUID, number int) (*Version, error) {
	var doc versionDoc
	err := s.versions.FindOne(ctx, bson.M{"template_id": templateID.String(), "number": number}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find version: %w", err)
	}
	id, err := uuid.Parse(doc.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("parse template id: %w", err)
	}
	return &Version{
		TemplateID: id,
		Number:     doc.Number,
		Body:       doc.Body,
		Variables:  doc.Variables,
		CreatedBy:  doc.CreatedBy,
		CreatedAt:  doc.CreatedAt,
	}, nil
}

func (s *MongoStore) List(ctx context.Context, channel notification.Channel) ([]*Template, error) {
	cur, err := s.templates.Find(ctx, bson.M{"channel": string(channel)},
		options.Find().SetSort(bson.D{{Key: "slug", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*Template
	for cur.Next(ctx) {
		var doc templateDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode template: %w", err)
		}
		t, err := fromTemplateDoc(&doc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, cur.Err()
}

func toTemplateDoc(t *Template) *templateDoc {
	return &templateDoc{
		ID:        t.ID.String(),
		Slug:      t.Slug,
		Channel:   string(t.Channel),
		Status:    string(t.Status),
		Category:  t.Category,
		Body:      t.Body,
		Variables: t.Variables,
		Version:   t.Version,
		CreatedBy: t.CreatedBy,
		UpdatedBy: t.UpdatedBy,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func toVersionDoc(v *Version) *versionDoc {
	return &versionDoc{
		TemplateID: v.TemplateID.String(),
		Number:     v.Number,
		Body:       v.Body,
		Variables:  v.Variables,
		CreatedBy:  v.CreatedBy,
		CreatedAt:  v.CreatedAt,
	}
}

func fromTemplateDoc(doc *templateDoc) (*Template, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parse template id: %w", err)
	}
	return &Template{
		ID:        id,
		Slug:      doc.Slug,
		Channel:   notification.Channel(doc.Channel),
		Status:    Status(doc.Status),
		Category:  doc.Category,
		Body:      doc.Body,
		Variables: doc.Variables,
		Version:   doc.Version,
		CreatedBy: doc.CreatedBy,
		UpdatedBy: doc.UpdatedBy,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}
