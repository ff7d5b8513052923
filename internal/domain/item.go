package domain

import "time"

// Item is one searchable listing in the catalog.
type Item struct {
	ID          string                    `json:"id" validate:"required,max=128"`
	Title       string                    `json:"title" validate:"required,max=500"`
	Description string                    `json:"description"`
	Price       float64                   `json:"price" validate:"gte=0"`
	Location    string                    `json:"location"`
	CategoryID  string                    `json:"categoryId" validate:"required"`
	Images      []string                  `json:"images"`
	Attributes  map[string]AttributeValue `json:"attributes"`
	CreatedAt   time.Time                 `json:"createdAt"`
	UpdatedAt   time.Time                 `json:"updatedAt"`
}

// Attribute returns the value stored under key, or a null value.
func (i *Item) Attribute(key string) AttributeValue {
	if i.Attributes == nil {
		return AttributeValue{}
	}
	return i.Attributes[key]
}

// Before reports whether i sorts before o in the stable result order:
// creation time ascending, then id.
func (i *Item) Before(o *Item) bool {
	if !i.CreatedAt.Equal(o.CreatedAt) {
		return i.CreatedAt.Before(o.CreatedAt)
	}
	return i.ID < o.ID
}
