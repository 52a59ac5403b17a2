package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"polegrid/internal/config"
	"polegrid/internal/model"
	"polegrid/internal/repository"
	"polegrid/internal/storage"
)

var (
	ErrUnknownEntity = errors.New("unknown entity type")
	ErrReaderNil     = errors.New("reader is nil")
)

// ValidationError lists required fields that were absent or empty.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// TooManyFilesError is returned when a file field carries more files than its schema allows.
type TooManyFilesError struct {
	Field string
	Max   int
}

func (e *TooManyFilesError) Error() string {
	return fmt.Sprintf("too many files for field %s (max %d)", e.Field, e.Max)
}

// FileField declares a form field that carries uploaded files.
// Single fields are stored as one path (or null); Multiple fields as a list of paths.
type FileField struct {
	Name     string
	MaxCount int
	Multiple bool
	Required bool
}

// Schema describes what a submission of one entity type must and may contain.
type Schema struct {
	Entity   model.Entity
	Required []string
	Files    []FileField
	Message  string
}

// DefaultSchemas returns the landlord, organization and contact schemas with the configured required fields.
func DefaultSchemas(req config.RequiredFields) map[model.Entity]Schema {
	return map[model.Entity]Schema{
		model.EntityLandlord: {
			Entity:   model.EntityLandlord,
			Required: req.Landlord,
			Files: []FileField{
				{Name: "idPhoto", MaxCount: 1},
				{Name: "supportingDocs", MaxCount: 5, Multiple: true},
				{Name: "ownershipDoc", MaxCount: 1},
			},
			Message: "Landlord registered and saved to DB!",
		},
		model.EntityOrganization: {
			Entity:   model.EntityOrganization,
			Required: req.Organization,
			Files: []FileField{
				{Name: "documents", MaxCount: 10, Multiple: true},
			},
			Message: "Organization registered and saved to DB!",
		},
		model.EntityContact: {
			Entity:   model.EntityContact,
			Required: req.Contact,
			Message:  "Contact message saved!",
		},
	}
}

// Submission is a parsed registration request: plain fields plus files grouped by form field.
type Submission struct {
	Fields map[string]any
	Files  map[string][]File
}

// RegistrationService defines the use cases behind the registration API.
type RegistrationService interface {
	// Register validates a submission, stores its files, and appends the resulting record.
	// Nothing is persisted when it returns an error.
	Register(ctx context.Context, entity model.Entity, sub Submission) (*model.Record, error)

	// List returns every record of an entity type in insertion order.
	List(ctx context.Context, entity model.Entity) ([]model.Record, error)

	// Upload stores a single standalone file.
	Upload(ctx context.Context, f File) (*StoredFile, error)

	// Message returns the success message for an entity type.
	Message(entity model.Entity) string

	// Ping checks the record store.
	Ping(ctx context.Context) error
}

type registrationService struct {
	files   storage.Storage
	up      *uploader
	repo    repository.RecordStore
	schemas map[model.Entity]Schema
	log     *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewRegistrationService constructs a new RegistrationService.
func NewRegistrationService(files storage.Storage, repo repository.RecordStore, schemas map[model.Entity]Schema, log *zap.Logger) RegistrationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &registrationService{
		files:   files,
		up:      newUploader(files),
		repo:    repo,
		schemas: schemas,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (s *registrationService) Register(ctx context.Context, entity model.Entity, sub Submission) (*model.Record, error) {
	schema, ok := s.schemas[entity]
	if !ok {
		return nil, ErrUnknownEntity
	}

	if missing := missingFields(schema, sub); len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}
	for _, ff := range schema.Files {
		if ff.MaxCount > 0 && len(sub.Files[ff.Name]) > ff.MaxCount {
			return nil, &TooManyFilesError{Field: ff.Name, Max: ff.MaxCount}
		}
	}

	fields := make(map[string]any, len(sub.Fields)+len(schema.Files))
	for k, v := range sub.Fields {
		fields[k] = v
	}

	var stored []string
	for _, ff := range schema.Files {
		paths := make([]string, 0, len(sub.Files[ff.Name]))
		for _, f := range sub.Files[ff.Name] {
			sf, err := s.up.save(ctx, f)
			if err != nil {
				s.rollback(ctx, stored)
				return nil, fmt.Errorf("store %s: %w", ff.Name, err)
			}
			stored = append(stored, sf.Filename)
			paths = append(paths, sf.Path)
		}

		switch {
		case ff.Multiple:
			fields[ff.Name] = paths
		case len(paths) > 0:
			fields[ff.Name] = paths[0]
		default:
			fields[ff.Name] = nil
		}
	}

	rec := model.Record{
		ID:        s.newID(),
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
		Fields:    fields,
	}
	if err := s.repo.Append(ctx, entity.Collection(), rec); err != nil {
		s.rollback(ctx, stored)
		return nil, fmt.Errorf("save record: %w", err)
	}

	s.log.Info("record_created",
		zap.String("entity", string(entity)),
		zap.String("id", rec.ID),
		zap.Int("files", len(stored)),
	)
	return &rec, nil
}

func (s *registrationService) List(ctx context.Context, entity model.Entity) ([]model.Record, error) {
	if _, ok := s.schemas[entity]; !ok {
		return nil, ErrUnknownEntity
	}
	items, err := s.repo.List(ctx, entity.Collection())
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Record{}
	}
	return items, nil
}

func (s *registrationService) Upload(ctx context.Context, f File) (*StoredFile, error) {
	sf, err := s.up.save(ctx, f)
	if err != nil {
		return nil, err
	}
	s.log.Info("file_uploaded", zap.String("filename", sf.Filename), zap.Int64("size", sf.Size))
	return sf, nil
}

func (s *registrationService) Message(entity model.Entity) string {
	return s.schemas[entity].Message
}

func (s *registrationService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// rollback deletes files stored for a registration that could not be persisted.
func (s *registrationService) rollback(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.files.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.log.Warn("rollback_delete_failed", zap.String("filename", key), zap.Error(err))
		}
	}
}

// missingFields reports required fields that are absent, null, "" or empty lists,
// followed by required file fields without any file.
func missingFields(schema Schema, sub Submission) []string {
	var missing []string
	for _, name := range schema.Required {
		if isEmpty(sub.Fields[name]) && len(sub.Files[name]) == 0 {
			missing = append(missing, name)
		}
	}
	for _, ff := range schema.Files {
		if ff.Required && len(sub.Files[ff.Name]) == 0 {
			missing = append(missing, ff.Name)
		}
	}
	return missing
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
