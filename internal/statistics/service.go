package statistics

import (
	"context"
	"fmt"
	"log"
	"time"

	"campusattend/internal/model"
	"campusattend/internal/store"
	"campusattend/internal/timewindow"
)

// Cache is the read-through cache in front of the record scan.
// *store.Redis implements it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Service computes attendance statistics for a student over a time
// window, with a short-TTL redis cache in front of the record scan.
// Cached values age out rather than being invalidated on write; the
// dashboard tolerates a minute of staleness.
type Service struct {
	store store.DocStore
	cache Cache
	ttl   time.Duration
}

// NewService creates a statistics service. cache may be nil.
func NewService(s store.DocStore, cache Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{store: s, cache: cache, ttl: ttl}
}

// Compute aggregates the student's records inside the window.
func (s *Service) Compute(ctx context.Context, studentEmail string, w timewindow.Window) (Stats, error) {
	key := s.cacheKey("stats", studentEmail, w)
	var cached Stats
	if s.cache != nil {
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	records, err := s.records(ctx, studentEmail, w)
	if err != nil {
		return Stats{}, err
	}
	st := Aggregate(records)
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, st, s.ttl); err != nil {
			log.Printf("stats cache write failed for %s: %v", studentEmail, err)
		}
	}
	return st, nil
}

// ComputeByCourse aggregates the student's records per course.
func (s *Service) ComputeByCourse(ctx context.Context, studentEmail string, w timewindow.Window) (map[string]Stats, error) {
	key := s.cacheKey("stats_courses", studentEmail, w)
	cached := map[string]Stats{}
	if s.cache != nil {
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	records, err := s.records(ctx, studentEmail, w)
	if err != nil {
		return nil, err
	}
	byCourse := AggregateByCourse(records)
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, byCourse, s.ttl); err != nil {
			log.Printf("stats cache write failed for %s: %v", studentEmail, err)
		}
	}
	return byCourse, nil
}

func (s *Service) records(ctx context.Context, studentEmail string, w timewindow.Window) ([]model.AttendanceRecord, error) {
	docs, err := s.store.Query(ctx, store.Query{
		Collection: model.ColAttendance,
		Predicates: []store.Predicate{
			store.Eq("studentEmail", studentEmail),
			{Field: "timestamp", Op: store.OpGte, Value: w.Start.UTC()},
			{Field: "timestamp", Op: store.OpLt, Value: w.End.UTC()},
		},
		OrderBy: "timestamp",
	})
	if err != nil {
		return nil, err
	}
	var out []model.AttendanceRecord
	for _, d := range docs {
		rec, err := model.AttendanceRecordFromDoc(d)
		if err != nil {
			log.Printf("skipping attendance record %s: %v", d.ID, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// cacheKey buckets the window boundaries by the cache TTL. Lookback
// windows are anchored on time.Now(), so exact boundaries differ on
// every request; truncating keeps the key stable for one TTL so
// repeated dashboard loads actually hit.
func (s *Service) cacheKey(prefix, email string, w timewindow.Window) string {
	return fmt.Sprintf("%s:%s:%d:%d",
		prefix, email, w.Start.Truncate(s.ttl).Unix(), w.End.Truncate(s.ttl).Unix())
}
