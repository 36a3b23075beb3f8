package store

import (
	"testing"
	"time"
)

func TestCompilePredicateCastsTimestamps(t *testing.T) {
	// A record stamped a fraction of a second past a whole-second
	// boundary renders as "...T00:00:00.5Z", which sorts before the
	// boundary's "...T00:00:00Z" as text. The compiled clause must
	// compare timestamps, not text, or half-open windows leak.
	end := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	clause, args, err := compilePredicate(Predicate{Field: "timestamp", Op: OpLt, Value: end}, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := "(data->>'timestamp')::timestamptz < $2"
	if clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if len(args) != 1 {
		t.Fatalf("args = %v", args)
	}
	ts, ok := args[0].(time.Time)
	if !ok || !ts.Equal(end) {
		t.Errorf("arg = %v, want the boundary passed as a timestamp", args[0])
	}
}

func TestCompilePredicateTextOps(t *testing.T) {
	clause, args, err := compilePredicate(Predicate{Field: "status", Op: OpEq, Value: "absent"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := "data->>'status' = $3"; clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if len(args) != 1 || args[0] != "absent" {
		t.Errorf("args = %v", args)
	}
}

func TestCompilePredicateArrayContains(t *testing.T) {
	clause, args, err := compilePredicate(Predicate{Field: "targetYears", Op: OpArrayContains, Value: "2"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if want := "data->'targetYears' @> $2::jsonb"; clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if len(args) != 1 || args[0] != `["2"]` {
		t.Errorf("args = %v", args)
	}
}

func TestCompilePredicateEmptyIn(t *testing.T) {
	clause, args, err := compilePredicate(Predicate{Field: "status", Op: OpIn, Value: []any{}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if clause != "FALSE" || len(args) != 0 {
		t.Errorf("clause = %q, args = %v", clause, args)
	}
}
