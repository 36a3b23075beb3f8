package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"campusattend/internal/config"
	"campusattend/internal/justification"
	"campusattend/internal/model"
	"campusattend/internal/queue"
	"campusattend/internal/session"
	"campusattend/internal/store"
	"campusattend/internal/timewindow"
)

// The worker applies the side effects the API defers: rewriting absent
// attendance records after a justification approval, and auto-ending
// sessions whose scheduled end has passed.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store connect failed: %v", err)
	}
	defer closeStore()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campusattend:jobs")
	}

	resolver := timewindow.NewResolver(cfg.Location(), cfg.WeekStart())
	justs := justification.NewService(st, nil, resolver)
	sessions := session.NewService(st)

	c := cron.New()
	if _, err := c.AddFunc("* * * * *", func() {
		closeOverdueSessions(ctx, st, sessions)
	}); err != nil {
		log.Fatalf("cron setup failed: %v", err)
	}
	c.Start()
	defer c.Stop()

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != justification.TopicApproved {
			continue
		}

		var payload justification.ApprovedMessage
		if err := json.Unmarshal(msg.Body, &payload); err != nil {
			log.Printf("dropping malformed approval message: %v", err)
			continue
		}

		j, err := justs.Get(ctx, payload.JustificationID)
		if err != nil {
			log.Printf("fetch justification %s failed: %v", payload.JustificationID, err)
			continue
		}
		if err := justs.ApplyApproval(ctx, j); err != nil {
			log.Printf("apply approval %s failed: %v", j.ID, err)
			continue
		}
		log.Printf("justification %s applied", j.ID)
	}

	log.Println("worker stopped")
}

// closeOverdueSessions ends every non-terminal session whose scheduled
// end is in the past, so enrolled-but-unmarked students get their
// inferred absences even when a teacher forgets to close the session.
func closeOverdueSessions(ctx context.Context, st store.DocStore, sessions *session.Service) {
	now := time.Now().UTC()
	for _, status := range []model.SessionStatus{model.SessionScheduled, model.SessionActive} {
		docs, err := st.Query(ctx, store.Query{
			Collection: model.ColSessions,
			Predicates: []store.Predicate{
				store.Eq("status", string(status)),
				{Field: "end", Op: store.OpLt, Value: now},
			},
		})
		if err != nil {
			log.Printf("overdue session scan (%s) failed: %v", status, err)
			continue
		}
		for _, d := range docs {
			if _, err := sessions.End(ctx, d.ID); err != nil {
				// Already closed by the teacher between scan and write.
				if errors.Is(err, session.ErrInvalidState) {
					continue
				}
				log.Printf("auto-end session %s failed: %v", d.ID, err)
				continue
			}
			log.Printf("auto-ended overdue session %s", d.ID)
		}
	}
}

func openStore(ctx context.Context, cfg config.App) (store.DocStore, func(), error) {
	switch cfg.StoreBackend {
	case "firestore":
		fs, err := store.NewFirestore(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentials)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() { _ = fs.Close() }, nil
	case "memory":
		return store.NewMemory(), func() {}, nil
	default:
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if pg == nil {
			return nil, nil, err
		}
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	}
}
