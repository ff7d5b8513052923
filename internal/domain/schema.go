package domain

import (
	"fmt"
	"regexp"

	"github.com/utafrali/facetsearch/pkg/slug"
)

// ValueType is the declared type of a category attribute.
type ValueType string

// Attribute value types. The spellings match the catalog documents.
const (
	TypeString    ValueType = "string"
	TypeNumber    ValueType = "number"
	TypeBoolean   ValueType = "boolean"
	TypeEnum      ValueType = "enum"
	TypeMultiEnum ValueType = "multi_enum"
)

// Valid reports whether t is one of the known value types.
func (t ValueType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeEnum, TypeMultiEnum:
		return true
	}
	return false
}

// IsEnum reports whether t is a single- or multi-valued enumeration.
func (t ValueType) IsEnum() bool {
	return t == TypeEnum || t == TypeMultiEnum
}

var attributeKeyRegexp = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

// ValidAttributeKey reports whether key is safe to use as an attribute path
// in every store translator.
func ValidAttributeKey(key string) bool {
	return attributeKeyRegexp.MatchString(key)
}

// AttributeDefinition describes one typed attribute of a category.
type AttributeDefinition struct {
	Key     string    `json:"key" yaml:"key"`
	Name    string    `json:"name" yaml:"name"`
	Type    ValueType `json:"type" yaml:"type"`
	Options []string  `json:"options,omitempty" yaml:"options,omitempty"`
}

// IsFacetable reports whether the attribute produces facet buckets.
func (d AttributeDefinition) IsFacetable() bool {
	return d.Type.IsEnum() || d.Type == TypeBoolean
}

// HasOption reports whether v is one of the allowed enumeration values.
func (d AttributeDefinition) HasOption(v string) bool {
	for _, o := range d.Options {
		if o == v {
			return true
		}
	}
	return false
}

// Validate checks the definition in isolation.
func (d AttributeDefinition) Validate() error {
	if !ValidAttributeKey(d.Key) {
		return fmt.Errorf("attribute key %q is invalid", d.Key)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("attribute %q: unknown type %q", d.Key, d.Type)
	}
	if d.Type.IsEnum() && len(d.Options) == 0 {
		return fmt.Errorf("attribute %q: enum attributes need at least one option", d.Key)
	}
	return nil
}

// CategorySchema is the ordered attribute schema of one category.
type CategorySchema struct {
	ID         string                `json:"id" yaml:"id"`
	Slug       string                `json:"slug" yaml:"slug"`
	Name       string                `json:"name" yaml:"name"`
	Attributes []AttributeDefinition `json:"attributeSchema" yaml:"attributes"`
}

// Attribute returns the definition for key, if the schema declares it.
func (s *CategorySchema) Attribute(key string) (AttributeDefinition, bool) {
	if s == nil {
		return AttributeDefinition{}, false
	}
	for _, a := range s.Attributes {
		if a.Key == key {
			return a, true
		}
	}
	return AttributeDefinition{}, false
}

// FacetableAttributes returns the enum, multi_enum and boolean attributes in
// schema order.
func (s *CategorySchema) FacetableAttributes() []AttributeDefinition {
	if s == nil {
		return nil
	}
	out := make([]AttributeDefinition, 0, len(s.Attributes))
	for _, a := range s.Attributes {
		if a.IsFacetable() {
			out = append(out, a)
		}
	}
	return out
}

// Validate enforces unique attribute keys, non-empty enum options and a
// URL-safe slug.
func (s *CategorySchema) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("category %q: id is required", s.Slug)
	}
	if !slug.Valid(s.Slug) {
		return fmt.Errorf("category slug %q is not url-safe", s.Slug)
	}
	seen := make(map[string]struct{}, len(s.Attributes))
	for _, a := range s.Attributes {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("category %q: %w", s.Slug, err)
		}
		if _, dup := seen[a.Key]; dup {
			return fmt.Errorf("category %q: duplicate attribute key %q", s.Slug, a.Key)
		}
		seen[a.Key] = struct{}{}
	}
	return nil
}
