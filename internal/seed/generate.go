// Package seed generates deterministic demo listings that conform to a set of
// category schemas.
package seed

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/facetsearch/internal/domain"
)

// namespace scopes the name-based listing ids so re-runs produce the same ids.
var namespace = uuid.MustParse("3f1c6a52-9d3e-4b8e-a1a4-6d0e2b7c9f10")

var adjectives = []string{"Compact", "Classic", "Premium", "Everyday", "Pro", "Lightweight", "Rugged", "Refined"}

var locations = []string{"Berlin", "Istanbul", "Lisbon", "Madrid", "Oslo", "Prague", "Vienna", "Warsaw"}

// ListingID returns the stable id of the i-th generated listing of a category.
func ListingID(categoryID string, i int) string {
	return uuid.NewSHA1(namespace, []byte(categoryID+":"+strconv.Itoa(i))).String()
}

// Generate returns perCategory listings for every schema. The same seed
// always yields the same listings.
func Generate(schemas []domain.CategorySchema, perCategory int, seed uint64) []domain.Item {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	items := make([]domain.Item, 0, len(schemas)*perCategory)
	for _, s := range schemas {
		for i := 0; i < perCategory; i++ {
			created := base.Add(time.Duration(len(items)) * time.Minute)
			items = append(items, domain.Item{
				ID:          ListingID(s.ID, i),
				Title:       fmt.Sprintf("%s %s #%d", adjectives[rng.IntN(len(adjectives))], s.Name, i+1),
				Description: fmt.Sprintf("Demo listing in %s.", s.Name),
				Price:       float64(rng.IntN(200000)) / 100,
				Location:    locations[rng.IntN(len(locations))],
				CategoryID:  s.ID,
				Images:      []string{fmt.Sprintf("https://picsum.photos/seed/%s-%d/640/480", s.Slug, i)},
				Attributes:  attributes(rng, s.Attributes),
				CreatedAt:   created,
				UpdatedAt:   created,
			})
		}
	}
	return items
}

// attributes draws one value per definition. Roughly one value in ten is
// left out to exercise missing-attribute handling.
func attributes(rng *rand.Rand, defs []domain.AttributeDefinition) map[string]domain.AttributeValue {
	attrs := make(map[string]domain.AttributeValue, len(defs))
	for _, d := range defs {
		if rng.IntN(10) == 0 {
			continue
		}
		switch d.Type {
		case domain.TypeEnum:
			attrs[d.Key] = domain.EnumValue(d.Options[rng.IntN(len(d.Options))])
		case domain.TypeMultiEnum:
			picked := make([]string, 0, len(d.Options))
			for _, o := range d.Options {
				if rng.IntN(2) == 0 {
					picked = append(picked, o)
				}
			}
			attrs[d.Key] = domain.ListValue(picked...)
		case domain.TypeBoolean:
			attrs[d.Key] = domain.BoolValue(rng.IntN(2) == 0)
		case domain.TypeNumber:
			attrs[d.Key] = domain.NumberValue(float64(rng.IntN(100) + 1))
		default:
			attrs[d.Key] = domain.StringValue(fmt.Sprintf("%s-%d", d.Key, rng.IntN(1000)))
		}
	}
	return attrs
}

// Batches splits items into consecutive slices of at most size elements.
func Batches(items []domain.Item, size int) [][]domain.Item {
	if size <= 0 {
		size = len(items)
	}
	var out [][]domain.Item
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
