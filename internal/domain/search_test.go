package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testItem() *Item {
	return &Item{
		ID:          "item-1",
		Title:       "Dell XPS 13",
		Description: "Compact ultrabook with a great keyboard",
		CategoryID:  "cat-laptops",
		Attributes: map[string]AttributeValue{
			"brand":       EnumValue("Dell"),
			"touchscreen": BoolValue(true),
			"ports":       ListValue("usb-c", "hdmi"),
		},
	}
}

func TestPredicate_Matches(t *testing.T) {
	item := testItem()

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"empty matches everything", Predicate{}, true},
		{"match none", Predicate{MatchNone: true}, false},
		{"category hit", Predicate{CategoryID: "cat-laptops"}, true},
		{"category miss", Predicate{CategoryID: "cat-phones"}, false},
		{"text in title ignores case", Predicate{Text: "xps"}, true},
		{"text in description", Predicate{Text: "GREAT KEYBOARD"}, true},
		{"text whole phrase", Predicate{Text: "dell keyboard"}, false},
		{"enum union", Predicate{Clauses: []Clause{{Key: "brand", Op: OpIn, Values: []string{"HP", "Dell"}}}}, true},
		{"enum miss", Predicate{Clauses: []Clause{{Key: "brand", Op: OpIn, Values: []string{"HP"}}}}, false},
		{"list element", Predicate{Clauses: []Clause{{Key: "ports", Op: OpIn, Values: []string{"hdmi"}}}}, true},
		{"bool true", Predicate{Clauses: []Clause{{Key: "touchscreen", Op: OpBool, Bool: true}}}, true},
		{"absent bool reads false", Predicate{Clauses: []Clause{{Key: "backlit", Op: OpBool, Bool: false}}}, true},
		{"raw fallback", Predicate{Clauses: []Clause{{Key: "brand", Op: OpRaw, Values: []string{"Dell"}}}}, true},
		{"clauses are and-ed", Predicate{Clauses: []Clause{
			{Key: "brand", Op: OpIn, Values: []string{"Dell"}},
			{Key: "touchscreen", Op: OpBool, Bool: false},
		}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Matches(item))
		})
	}
}

func TestItem_Before(t *testing.T) {
	now := time.Now()
	a := &Item{ID: "a", CreatedAt: now}
	b := &Item{ID: "b", CreatedAt: now}
	c := &Item{ID: "0", CreatedAt: now.Add(time.Second)}

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, b.Before(c))
}

func TestPageRequest_Offset(t *testing.T) {
	assert.Equal(t, 0, PageRequest{Page: 1, PageSize: 10}.Offset())
	assert.Equal(t, 20, PageRequest{Page: 3, PageSize: 10}.Offset())
	assert.Equal(t, 0, PageRequest{Page: 0, PageSize: 10}.Offset())
	assert.Equal(t, math.MaxInt, PageRequest{Page: math.MaxInt, PageSize: 10}.Offset())
	assert.Equal(t, math.MaxInt, PageRequest{Page: 1 << 62, PageSize: 10}.Offset())
}
