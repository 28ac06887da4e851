package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/model"
	"github.com/iliyamo/booking-record-engine/internal/repository"
	"github.com/iliyamo/booking-record-engine/internal/validate"
)

// FieldDefinitionService manages the extras catalog.
type FieldDefinitionService struct {
	repo *repository.FieldDefinitionRepo
	log  *zap.Logger
}

// NewFieldDefinitionService wires the service.
func NewFieldDefinitionService(repo *repository.FieldDefinitionRepo, log *zap.Logger) *FieldDefinitionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FieldDefinitionService{repo: repo, log: log}
}

// checkDefinition reports every problem with def at once.
func checkDefinition(def model.FieldDefinition) []validate.FieldError {
	var errs []validate.FieldError
	add := func(field, code, msg string) {
		errs = append(errs, validate.FieldError{Field: field, Code: code, Message: msg})
	}
	if !model.IsFieldKey(def.Key) {
		add("key", validate.CodeFormat, "key must start with a lower case letter and contain only a-z, 0-9 and _ (max 64)")
	}
	if strings.TrimSpace(def.Label) == "" {
		add("label", validate.CodeRequired, validate.Message(validate.CodeRequired, "label"))
	}
	if !model.IsFieldType(def.Type) {
		add("type", validate.CodeEnum, fmt.Sprintf("type %q is not recognized", def.Type))
	}
	if def.Pattern != nil {
		if _, err := regexp.Compile(*def.Pattern); err != nil {
			add("pattern", validate.CodePattern, "pattern does not compile: "+err.Error())
		}
	}
	if (def.Type == model.FieldSelect || def.Type == model.FieldMultiselect) && len(def.Options) == 0 {
		add("options", validate.CodeRequired, "select and multiselect fields need options")
	}
	return errs
}

func prepare(def *model.FieldDefinition) {
	def.Key = strings.TrimSpace(def.Key)
	def.Label = strings.TrimSpace(def.Label)
	def.Type = strings.ToLower(strings.TrimSpace(def.Type))
	if def.Category == "" {
		def.Category = model.DefaultCategory
	}
	if def.Pattern != nil && *def.Pattern == "" {
		def.Pattern = nil
	}
}

// List returns definitions ordered by category, sort order and key.
func (s *FieldDefinitionService) List(ctx context.Context, activeOnly bool, category string) ([]model.FieldDefinition, error) {
	return s.repo.List(ctx, activeOnly, category)
}

// Get returns one definition.
func (s *FieldDefinitionService) Get(ctx context.Context, key string) (*model.FieldDefinition, error) {
	return s.repo.Get(ctx, key)
}

// Create adds a definition.  New definitions are active.
func (s *FieldDefinitionService) Create(ctx context.Context, def model.FieldDefinition) (*model.FieldDefinition, error) {
	prepare(&def)
	def.IsActive = true
	if errs := checkDefinition(def); len(errs) > 0 {
		return nil, repository.Validation("invalid field definition", errs)
	}
	if err := s.repo.Create(ctx, &def); err != nil {
		if repository.KindOf(err) == repository.KindConflict {
			return nil, repository.Conflict(repository.CodeConflictDuplicate, fmt.Sprintf("field %q already exists", def.Key))
		}
		return nil, err
	}
	s.log.Info("field definition created", zap.String("key", def.Key), zap.String("type", def.Type))
	return &def, nil
}

// Update applies a partial change.  A type change affects only writes made
// afterwards; stored values are never re-typed.
func (s *FieldDefinitionService) Update(ctx context.Context, key string, patch model.FieldDefinitionPatch) (*model.FieldDefinition, error) {
	def, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	patch.Apply(def)
	prepare(def)
	if errs := checkDefinition(*def); len(errs) > 0 {
		return nil, repository.Validation("invalid field definition", errs)
	}
	if err := s.repo.Update(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// Deactivate disables a definition, or removes it when hard is set.  A
// hard delete is refused while any live record still stores a value for
// the key.
func (s *FieldDefinitionService) Deactivate(ctx context.Context, key string, hard bool) error {
	if !hard {
		return s.repo.Deactivate(ctx, key)
	}
	if _, err := s.repo.Get(ctx, key); err != nil {
		return err
	}
	inUse, err := s.repo.HasStoredValues(ctx, key)
	if err != nil {
		return err
	}
	if inUse {
		return repository.Conflict(repository.CodeConflict,
			fmt.Sprintf("field %q still has stored values; deactivate it instead", key))
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return err
	}
	s.log.Info("field definition deleted", zap.String("key", key))
	return nil
}

// ImportError is one rejected item of a bulk import.
type ImportError struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Imported int           `json:"imported"`
	Updated  int           `json:"updated"`
	Errors   []ImportError `json:"errors"`
}

// DefinitionInput is one import item.  An omitted is_active means active.
type DefinitionInput struct {
	model.FieldDefinition
	Active *bool `json:"is_active"`
}

// BulkImport upserts definitions by key.  Each item succeeds or fails on
// its own; one bad item never aborts the batch.
func (s *FieldDefinitionService) BulkImport(ctx context.Context, items []DefinitionInput) (*ImportResult, error) {
	out := &ImportResult{Errors: []ImportError{}}
	for i, item := range items {
		def := item.FieldDefinition
		def.IsActive = item.Active == nil || *item.Active
		prepare(&def)
		if errs := checkDefinition(def); len(errs) > 0 {
			out.Errors = append(out.Errors, ImportError{Index: i, Key: def.Key, Error: errs[0].Message})
			continue
		}
		existing, err := s.repo.Get(ctx, def.Key)
		switch {
		case err == nil:
			def.ID = existing.ID
			def.CreatedAt = existing.CreatedAt
			if err := s.repo.Update(ctx, &def); err != nil {
				out.Errors = append(out.Errors, ImportError{Index: i, Key: def.Key, Error: err.Error()})
				continue
			}
			out.Updated++
		case repository.KindOf(err) == repository.KindNotFound:
			if err := s.repo.Create(ctx, &def); err != nil {
				out.Errors = append(out.Errors, ImportError{Index: i, Key: def.Key, Error: err.Error()})
				continue
			}
			out.Imported++
		default:
			return nil, err
		}
	}
	s.log.Info("field definitions imported",
		zap.Int("imported", out.Imported), zap.Int("updated", out.Updated), zap.Int("errors", len(out.Errors)))
	return out, nil
}
