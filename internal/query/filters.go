package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/utafrali/facetsearch/internal/domain"
)

// ParseFilters decodes the serialized attribute filter map. Each value may be
// a scalar or an array of scalars; everything is reduced to deduplicated string
// terms. Null values, nested objects and empty strings are skipped. An empty or
// blank payload yields no filters.
func ParseFilters(raw string) (map[string][]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var decoded map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode filters: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode filters: trailing data after object")
	}

	out := make(map[string][]string, len(decoded))
	for key, v := range decoded {
		var terms []string
		switch x := v.(type) {
		case []any:
			for _, el := range x {
				if s, ok := domain.ScalarString(el); ok {
					terms = append(terms, s)
				}
			}
		default:
			if s, ok := domain.ScalarString(x); ok {
				terms = append(terms, s)
			}
		}
		if terms = dedupe(terms); len(terms) > 0 {
			out[key] = terms
		}
	}
	return out, nil
}

func dedupe(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
