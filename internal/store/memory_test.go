package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seed(t *testing.T, m *Memory) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]map[string]any{
		"a": {"dept": "Engineering", "years": []any{"1", "2"}, "active": true, "rank": 3, "at": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		"b": {"dept": "Engineering", "years": []any{"3"}, "active": false, "rank": 1, "at": time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
		"c": {"dept": "Medicine", "years": []any{"2"}, "active": true, "rank": 2, "at": time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)},
	}
	for id, data := range docs {
		if err := m.Put(ctx, "things", id, data); err != nil {
			t.Fatal(err)
		}
	}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestMemoryQueryPredicates(t *testing.T) {
	m := NewMemory()
	seed(t, m)
	ctx := context.Background()

	tests := []struct {
		name  string
		preds []Predicate
		want  []string
	}{
		{"equality", []Predicate{Eq("dept", "Engineering")}, []string{"a", "b"}},
		{"bool equality", []Predicate{Eq("active", true)}, []string{"a", "c"}},
		{"array contains", []Predicate{ArrayContains("years", "2")}, []string{"a", "c"}},
		{"combined", []Predicate{Eq("dept", "Engineering"), ArrayContains("years", "2")}, []string{"a"}},
		{"range on time", []Predicate{{Field: "at", Op: OpGte, Value: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)}}, []string{"b", "c"}},
		{"half-open upper bound", []Predicate{{Field: "at", Op: OpLt, Value: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)}}, []string{"a"}},
		{"in", []Predicate{{Field: "dept", Op: OpIn, Value: []any{"Medicine", "Law"}}}, []string{"c"}},
		{"numeric compare", []Predicate{{Field: "rank", Op: OpLte, Value: 2}}, []string{"b", "c"}},
		{"missing field matches nothing", []Predicate{Eq("nope", "x")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := m.Query(ctx, Query{Collection: "things", Predicates: tt.preds})
			if err != nil {
				t.Fatal(err)
			}
			got := ids(docs)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestMemoryQueryOrderAndLimit(t *testing.T) {
	m := NewMemory()
	seed(t, m)
	ctx := context.Background()

	docs, err := m.Query(ctx, Query{Collection: "things", OrderBy: "rank"})
	if err != nil {
		t.Fatal(err)
	}
	got := ids(docs)
	if got[0] != "b" || got[1] != "c" || got[2] != "a" {
		t.Errorf("order = %v", got)
	}

	docs, err = m.Query(ctx, Query{Collection: "things", OrderBy: "rank", Descending: true, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	got = ids(docs)
	if len(got) != 2 || got[0] != "a" {
		t.Errorf("desc limited = %v", got)
	}
}

func TestMemoryGetPutDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetByID(ctx, "things", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if err := m.Put(ctx, "things", "x", map[string]any{"v": 1}); err != nil {
		t.Fatal(err)
	}
	doc, err := m.GetByID(ctx, "things", "x")
	if err != nil {
		t.Fatal(err)
	}

	// Mutating the returned copy must not touch the stored document.
	doc.Data["v"] = 99
	again, err := m.GetByID(ctx, "things", "x")
	if err != nil {
		t.Fatal(err)
	}
	if again.Data["v"] != 1 {
		t.Error("stored document aliased by a read")
	}

	if err := m.Delete(ctx, "things", "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetByID(ctx, "things", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after delete = %v", err)
	}
}

func TestMemoryBatchUpdate(t *testing.T) {
	m := NewMemory()
	seed(t, m)
	ctx := context.Background()

	err := m.BatchUpdate(ctx, []Update{
		{Collection: "things", ID: "a", Field: "active", Value: false},
		{Collection: "things", ID: "b", Field: "active", Value: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := m.GetByID(ctx, "things", "a")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Data["active"] != false {
		t.Errorf("a.active = %v", doc.Data["active"])
	}

	err = m.BatchUpdate(ctx, []Update{
		{Collection: "things", ID: "missing", Field: "active", Value: true},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
