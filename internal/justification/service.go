// Package justification implements the absence-justification review
// workflow: submitted -> under_review -> approved/rejected. Approval
// triggers the bulk rewrite of matching absent attendance records to
// justified, applied asynchronously by the worker.
package justification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"campusattend/internal/model"
	"campusattend/internal/queue"
	"campusattend/internal/store"
	"campusattend/internal/timewindow"
)

// TopicApproved is the queue message type published on approval.
const TopicApproved = "justification.approved"

// ErrInvalidTransition is returned for illegal review-state moves.
var ErrInvalidTransition = errors.New("justification: invalid transition")

var rewrites = promauto.NewCounter(prometheus.CounterOpts{
	Name: "justification_record_rewrites_total",
	Help: "Attendance records rewritten from absent to justified.",
})

// ApprovedMessage is the queue payload consumed by the worker.
type ApprovedMessage struct {
	JustificationID string `json:"justificationId"`
}

// Service owns justification state and the approval side effect.
type Service struct {
	store    store.DocStore
	queue    queue.Queue
	resolver *timewindow.Resolver
}

// NewService creates a justification service. q may be nil; approvals
// are then applied synchronously.
func NewService(s store.DocStore, q queue.Queue, resolver *timewindow.Resolver) *Service {
	return &Service{store: s, queue: q, resolver: resolver}
}

// Get loads one justification.
func (s *Service) Get(ctx context.Context, id string) (model.Justification, error) {
	doc, err := s.store.GetByID(ctx, model.ColJustifications, id)
	if err != nil {
		return model.Justification{}, err
	}
	return model.JustificationFromDoc(doc)
}

// Submit files a new justification for review.
func (s *Service) Submit(ctx context.Context, studentEmail, courseID, reason, description string) (model.Justification, error) {
	if strings.TrimSpace(studentEmail) == "" || strings.TrimSpace(courseID) == "" {
		return model.Justification{}, errors.New("justification: student and course required")
	}
	j := model.Justification{
		ID:           uuid.NewString(),
		StudentEmail: studentEmail,
		CourseID:     courseID,
		Reason:       reason,
		Description:  description,
		Status:       model.JustificationSubmitted,
		SubmittedAt:  time.Now().UTC(),
	}
	return j, s.store.Put(ctx, model.ColJustifications, j.ID, j.Doc())
}

// Review moves a submitted justification under review.
func (s *Service) Review(ctx context.Context, id, reviewer string) (model.Justification, error) {
	j, err := s.Get(ctx, id)
	if err != nil {
		return model.Justification{}, err
	}
	if j.Status != model.JustificationSubmitted {
		return model.Justification{}, fmt.Errorf("%w: review from %s", ErrInvalidTransition, j.Status)
	}
	j.Status = model.JustificationUnderReview
	j.Reviewer = reviewer
	return j, s.store.Put(ctx, model.ColJustifications, j.ID, j.Doc())
}

// Decide approves or rejects a justification under review. Approval
// publishes the rewrite job; when no queue is configured the rewrite
// runs inline.
func (s *Service) Decide(ctx context.Context, id, reviewer string, approve bool, decisionReason string) (model.Justification, error) {
	j, err := s.Get(ctx, id)
	if err != nil {
		return model.Justification{}, err
	}
	if j.Status != model.JustificationUnderReview {
		return model.Justification{}, fmt.Errorf("%w: decide from %s", ErrInvalidTransition, j.Status)
	}
	if approve {
		j.Status = model.JustificationApproved
	} else {
		j.Status = model.JustificationRejected
	}
	j.Reviewer = reviewer
	j.DecisionReason = decisionReason
	j.DecidedAt = time.Now().UTC()
	if err := s.store.Put(ctx, model.ColJustifications, j.ID, j.Doc()); err != nil {
		return model.Justification{}, err
	}

	if !approve {
		return j, nil
	}
	if s.queue == nil {
		return j, s.ApplyApproval(ctx, j)
	}
	body, _ := json.Marshal(ApprovedMessage{JustificationID: j.ID})
	if err := s.queue.Publish(ctx, queue.Message{Type: TopicApproved, Body: body}); err != nil {
		// The approval is recorded; fall back to applying it here so the
		// records do not stay absent until someone retries.
		log.Printf("publish approval for %s failed, applying inline: %v", j.ID, err)
		return j, s.ApplyApproval(ctx, j)
	}
	return j, nil
}

// ApplyApproval rewrites the student's absent records for the course on
// the justification's submission day to justified. Present and already
// justified records are untouched, so reapplying is harmless.
func (s *Service) ApplyApproval(ctx context.Context, j model.Justification) error {
	if j.Status != model.JustificationApproved {
		return fmt.Errorf("%w: apply on %s", ErrInvalidTransition, j.Status)
	}
	day := s.resolver.Day(j.SubmittedAt)
	docs, err := s.store.Query(ctx, store.Query{
		Collection: model.ColAttendance,
		Predicates: []store.Predicate{
			store.Eq("studentEmail", j.StudentEmail),
			store.Eq("courseId", j.CourseID),
			{Field: "timestamp", Op: store.OpGte, Value: day.Start.UTC()},
			{Field: "timestamp", Op: store.OpLt, Value: day.End.UTC()},
		},
	})
	if err != nil {
		return err
	}

	var updates []store.Update
	for _, d := range docs {
		rec, err := model.AttendanceRecordFromDoc(d)
		if err != nil {
			log.Printf("skipping attendance record %s: %v", d.ID, err)
			continue
		}
		if strings.ToLower(rec.Status) != model.StatusAbsent {
			continue
		}
		updates = append(updates, store.Update{
			Collection: model.ColAttendance,
			ID:         rec.ID,
			Field:      "status",
			Value:      model.StatusJustified,
		})
	}
	if len(updates) == 0 {
		return nil
	}
	if err := s.store.BatchUpdate(ctx, updates); err != nil {
		return err
	}
	rewrites.Add(float64(len(updates)))
	log.Printf("justification %s: rewrote %d absent record(s) to justified", j.ID, len(updates))
	return nil
}

// ListForStudent returns a student's justifications, newest first.
func (s *Service) ListForStudent(ctx context.Context, studentEmail string) ([]model.Justification, error) {
	return s.list(ctx, store.Eq("studentEmail", studentEmail))
}

// ListPending returns justifications awaiting review action.
func (s *Service) ListPending(ctx context.Context) ([]model.Justification, error) {
	return s.list(ctx, store.Predicate{
		Field: "status",
		Op:    store.OpIn,
		Value: []any{string(model.JustificationSubmitted), string(model.JustificationUnderReview)},
	})
}

func (s *Service) list(ctx context.Context, pred store.Predicate) ([]model.Justification, error) {
	docs, err := s.store.Query(ctx, store.Query{
		Collection: model.ColJustifications,
		Predicates: []store.Predicate{pred},
		OrderBy:    "submittedAt",
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	var out []model.Justification
	for _, d := range docs {
		j, err := model.JustificationFromDoc(d)
		if err != nil {
			log.Printf("skipping justification %s: %v", d.ID, err)
			continue
		}
		out = append(out, j)
	}
	return out, nil
}
