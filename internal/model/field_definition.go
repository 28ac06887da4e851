package model

import (
	"regexp"
	"time"
)

// Field types accepted by the dynamic attribute catalog.
const (
	FieldString      = "string"
	FieldNumber      = "number"
	FieldBoolean     = "boolean"
	FieldDate        = "date"
	FieldTime        = "time"
	FieldDatetime    = "datetime"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldSelect      = "select"
	FieldMultiselect = "multiselect"
	FieldTextarea    = "textarea"
)

var fieldTypes = map[string]bool{
	FieldString: true, FieldNumber: true, FieldBoolean: true, FieldDate: true,
	FieldTime: true, FieldDatetime: true, FieldEmail: true, FieldPhone: true,
	FieldSelect: true, FieldMultiselect: true, FieldTextarea: true,
}

// IsFieldType reports whether t is a recognized field type.
func IsFieldType(t string) bool { return fieldTypes[t] }

var fieldKeyRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// IsFieldKey reports whether key is identifier-safe: lower case ASCII,
// starting with a letter, at most 64 characters.
func IsFieldKey(key string) bool { return fieldKeyRe.MatchString(key) }

// DefaultCategory groups definitions created without a category.
const DefaultCategory = "general"

// FieldDefinition describes one legal extras key.  Definitions are read
// live on every record write; deactivating one stops validation of the
// key going forward but leaves stored values in place.
type FieldDefinition struct {
	ID           uint64    `json:"id"`
	Key          string    `json:"key"`
	Label        string    `json:"label"`
	Type         string    `json:"type"`
	Required     bool      `json:"required"`
	Pattern      *string   `json:"pattern,omitempty"`
	Options      []string  `json:"options,omitempty"`
	Category     string    `json:"category"`
	SortOrder    int       `json:"sort_order"`
	IsActive     bool      `json:"is_active"`
	Placeholder  *string   `json:"placeholder,omitempty"`
	HelpText     *string   `json:"help_text,omitempty"`
	DefaultValue any       `json:"default_value,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FieldDefinitionPatch carries a partial update; nil members are left
// unchanged.
type FieldDefinitionPatch struct {
	Label        *string   `json:"label"`
	Type         *string   `json:"type"`
	Required     *bool     `json:"required"`
	Pattern      *string   `json:"pattern"`
	Options      *[]string `json:"options"`
	Category     *string   `json:"category"`
	SortOrder    *int      `json:"sort_order"`
	IsActive     *bool     `json:"is_active"`
	Placeholder  *string   `json:"placeholder"`
	HelpText     *string   `json:"help_text"`
	DefaultValue any       `json:"default_value"`
}

// Apply merges the patch into def.
func (p FieldDefinitionPatch) Apply(def *FieldDefinition) {
	if p.Label != nil {
		def.Label = *p.Label
	}
	if p.Type != nil {
		def.Type = *p.Type
	}
	if p.Required != nil {
		def.Required = *p.Required
	}
	if p.Pattern != nil {
		if *p.Pattern == "" {
			def.Pattern = nil
		} else {
			v := *p.Pattern
			def.Pattern = &v
		}
	}
	if p.Options != nil {
		def.Options = append([]string(nil), (*p.Options)...)
	}
	if p.Category != nil {
		def.Category = *p.Category
	}
	if p.SortOrder != nil {
		def.SortOrder = *p.SortOrder
	}
	if p.IsActive != nil {
		def.IsActive = *p.IsActive
	}
	if p.Placeholder != nil {
		def.Placeholder = p.Placeholder
	}
	if p.HelpText != nil {
		def.HelpText = p.HelpText
	}
	if p.DefaultValue != nil {
		def.DefaultValue = p.DefaultValue
	}
}

// ActiveOnly filters defs down to the active definitions, preserving order.
func ActiveOnly(defs []FieldDefinition) []FieldDefinition {
	out := make([]FieldDefinition, 0, len(defs))
	for _, d := range defs {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out
}
