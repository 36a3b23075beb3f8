package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory DocStore for dev mode and tests.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]map[string]any)}
}

// Query filters a collection by the predicate list, then orders and limits.
func (m *Memory) Query(_ context.Context, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Document
	ids := make([]string, 0, len(m.collections[q.Collection]))
	for id := range m.collections[q.Collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic iteration for ties
	for _, id := range ids {
		data := m.collections[q.Collection][id]
		if matchesAll(data, q.Predicates) {
			out = append(out, Document{ID: id, Data: copyMap(data)})
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := compareValues(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy]) < 0
			if q.Descending {
				return !less
			}
			return less
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// GetByID returns one document or ErrNotFound.
func (m *Memory) GetByID(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Data: copyMap(data)}, nil
}

// Put creates or replaces a document.
func (m *Memory) Put(_ context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]map[string]any)
	}
	m.collections[collection][id] = copyMap(data)
	return nil
}

// Delete removes a document; deleting a missing document is a no-op.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	return nil
}

// BatchUpdate applies field rewrites; a missing target fails the batch.
func (m *Memory) BatchUpdate(_ context.Context, updates []Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		doc, ok := m.collections[u.Collection][u.ID]
		if !ok {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, u.Collection, u.ID)
		}
		doc[u.Field] = u.Value
	}
	return nil
}

func matchesAll(data map[string]any, preds []Predicate) bool {
	for _, p := range preds {
		if !matches(data, p) {
			return false
		}
	}
	return true
}

func matches(data map[string]any, p Predicate) bool {
	v, ok := data[p.Field]
	if !ok {
		return false
	}
	switch p.Op {
	case OpEq:
		return compareValues(v, p.Value) == 0
	case OpLt:
		return compareValues(v, p.Value) < 0
	case OpLte:
		return compareValues(v, p.Value) <= 0
	case OpGt:
		return compareValues(v, p.Value) > 0
	case OpGte:
		return compareValues(v, p.Value) >= 0
	case OpArrayContains:
		items, ok := v.([]any)
		if !ok {
			if ss, ok2 := v.([]string); ok2 {
				for _, s := range ss {
					if compareValues(s, p.Value) == 0 {
						return true
					}
				}
			}
			return false
		}
		for _, item := range items {
			if compareValues(item, p.Value) == 0 {
				return true
			}
		}
		return false
	case OpIn:
		wanted, ok := p.Value.([]any)
		if !ok {
			return false
		}
		for _, w := range wanted {
			if compareValues(v, w) == 0 {
				return true
			}
		}
		return false
	}
	return false
}

// compareValues orders two field values. Times compare as times, numbers
// as float64, everything else by string form.
func compareValues(a, b any) int {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyMap(nested)
			continue
		}
		if arr, ok := v.([]any); ok {
			out[k] = append([]any(nil), arr...)
			continue
		}
		if ss, ok := v.([]string); ok {
			out[k] = append([]string(nil), ss...)
			continue
		}
		out[k] = v
	}
	return out
}
