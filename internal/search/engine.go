// Package search implements course and session lookups. Course search
// runs a progressive-fallback cascade: filters are relaxed stage by
// stage until enough results are found, so a thin catalog or a missing
// field never turns into an empty screen.
package search

import (
	"context"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"campusattend/internal/eligibility"
	"campusattend/internal/model"
	"campusattend/internal/store"
	"campusattend/internal/timewindow"
)

const (
	// DefaultMinAcceptable is the result count that stops the cascade.
	DefaultMinAcceptable = 3

	stageTwoCap   = 10
	stageThreeCap = 8
)

var (
	stageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "course_search_stage_runs_total",
		Help: "Fallback search stages executed, by stage number.",
	}, []string{"stage"})
	stageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "course_search_stage_errors_total",
		Help: "Fallback search stages that failed, by stage number.",
	}, []string{"stage"})
)

// Criteria is the identity side of a search: the caller's placement.
type Criteria struct {
	Department string
	Field      string
	Year       string
}

// Engine runs queries against the injected document store.
type Engine struct {
	store store.DocStore
}

// NewEngine creates a search engine.
func NewEngine(s store.DocStore) *Engine {
	return &Engine{store: s}
}

// stageResult carries one stage's outcome to the next; stages never
// share mutable state.
type stageResult struct {
	docs []store.Document
	err  error
}

type stage struct {
	name  string
	query store.Query
}

// Search runs the cascade and returns the first stage result meeting
// minAcceptable. When no stage reaches the threshold the final stage's
// results are returned as-is; low counts are never an error. A store
// failure at a non-final stage falls through to the next stage, and
// only a failure of the final stage surfaces.
func (e *Engine) Search(ctx context.Context, c Criteria, minAcceptable int) ([]model.Course, error) {
	if minAcceptable <= 0 {
		minAcceptable = DefaultMinAcceptable
	}

	stages := []stage{
		{
			name: "1",
			query: store.Query{
				Collection: model.ColCourses,
				Predicates: []store.Predicate{
					store.Eq("department", c.Department),
					store.Eq("field", c.Field),
					store.ArrayContains("targetYears", c.Year),
					store.Eq("isActive", true),
				},
			},
		},
		{
			name: "2",
			query: store.Query{
				Collection: model.ColCourses,
				Predicates: []store.Predicate{
					store.Eq("field", c.Field),
					store.ArrayContains("targetYears", c.Year),
					store.Eq("isActive", true),
				},
				Limit: stageTwoCap,
			},
		},
		{
			name: "3",
			query: store.Query{
				Collection: model.ColCourses,
				Predicates: []store.Predicate{
					store.Eq("field", c.Field),
					store.Eq("isActive", true),
				},
				Limit: stageThreeCap,
			},
		},
	}

	var res stageResult
	for i, st := range stages {
		stageRuns.WithLabelValues(st.name).Inc()
		docs, err := e.store.Query(ctx, st.query)
		res = stageResult{docs: docs, err: err}
		if err != nil {
			stageErrors.WithLabelValues(st.name).Inc()
			if i == len(stages)-1 {
				return nil, err
			}
			log.Printf("course search stage %s failed, relaxing filters: %v", st.name, err)
			continue
		}
		if len(docs) >= minAcceptable {
			break
		}
	}
	return decodeCourses(res.docs), nil
}

// SessionsInWindow returns the sessions starting inside the half-open
// window that the person is eligible for. A person with no field set
// skips the field filter explicitly; eligibility is never silently
// widened.
func (e *Engine) SessionsInWindow(ctx context.Context, p eligibility.Person, w timewindow.Window) ([]model.Session, error) {
	docs, err := e.store.Query(ctx, store.Query{
		Collection: model.ColSessions,
		Predicates: []store.Predicate{
			{Field: "start", Op: store.OpGte, Value: w.Start.UTC()},
			{Field: "start", Op: store.OpLt, Value: w.End.UTC()},
		},
		OrderBy: "start",
	})
	if err != nil {
		return nil, err
	}

	match := eligibility.Matches
	if p.Field == "" {
		match = eligibility.MatchesIgnoringField
	}

	var out []model.Session
	for _, d := range docs {
		sess, err := model.SessionFromDoc(d)
		if err != nil {
			log.Printf("skipping session %s: %v", d.ID, err)
			continue
		}
		target := eligibility.Target{
			Department:  sess.Department,
			Field:       sess.Field,
			TargetYears: sess.TargetYears,
		}
		if match(p, target) {
			out = append(out, sess)
		}
	}
	return out, nil
}

// TeacherSessionsInWindow lists a teacher's own sessions in the window.
func (e *Engine) TeacherSessionsInWindow(ctx context.Context, teacherEmail string, w timewindow.Window) ([]model.Session, error) {
	docs, err := e.store.Query(ctx, store.Query{
		Collection: model.ColSessions,
		Predicates: []store.Predicate{
			store.Eq("teacherEmail", teacherEmail),
			{Field: "start", Op: store.OpGte, Value: w.Start.UTC()},
			{Field: "start", Op: store.OpLt, Value: w.End.UTC()},
		},
		OrderBy: "start",
	})
	if err != nil {
		return nil, err
	}
	var out []model.Session
	for _, d := range docs {
		sess, err := model.SessionFromDoc(d)
		if err != nil {
			log.Printf("skipping session %s: %v", d.ID, err)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func decodeCourses(docs []store.Document) []model.Course {
	var out []model.Course
	for _, d := range docs {
		c, err := model.CourseFromDoc(d)
		if err != nil {
			log.Printf("skipping course %s: %v", d.ID, err)
			continue
		}
		out = append(out, c)
	}
	return out
}
