package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusattend/internal/auth"
	"campusattend/internal/config"
	"campusattend/internal/eligibility"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/justification"
	"campusattend/internal/model"
	"campusattend/internal/queue"
	"campusattend/internal/report"
	"campusattend/internal/search"
	"campusattend/internal/session"
	"campusattend/internal/statistics"
	"campusattend/internal/store"
	"campusattend/internal/timewindow"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient := store.NewRedis(cfg.RedisAddr)

	// Only redis reaches a worker process. The in-memory queue has no
	// consumer here, so leave q nil and approvals apply inline.
	var q queue.Queue
	if cfg.QueueBackend != "memory" {
		q = queue.NewRedisQueue(redisClient.Client, "campusattend:jobs")
	}

	resolver := timewindow.NewResolver(cfg.Location(), cfg.WeekStart())
	engine := search.NewEngine(st)
	sessions := session.NewService(st)
	stats := statistics.NewService(st, redisClient, cfg.StatsCacheTTL)
	justs := justification.NewService(st, q, resolver)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "store": cfg.StoreBackend})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required,email"`
			Role  string `json:"role" binding:"required,oneof=student teacher admin"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, err := auth.ResolveIdentity(c.Request.Context(), st, model.Role(req.Role), req.Email)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": "unknown identity"})
			return
		}
		tokens, err := auth.Issue(id, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
			"role":          id.Role,
			"name":          id.Name,
		})
	})

	r.POST("/v1/auth/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, err := auth.Parse(req.RefreshToken, cfg.JWTSigningKey, cfg.JWTIssuer, auth.TokenUseRefresh)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		// Re-resolve so profile updates land in the fresh token.
		id, err := auth.ResolveIdentity(c.Request.Context(), st, claims.Role, claims.Email())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": "unknown identity"})
			return
		}
		tokens, err := auth.Issue(id, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	v1 := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))
	staff := v1.Group("", auth.RequireRole(model.RoleTeacher, model.RoleAdmin))
	admins := v1.Group("", auth.RequireRole(model.RoleAdmin))

	v1.GET("/courses/search", func(c *gin.Context) {
		claims := auth.FromContext(c)
		criteria := search.Criteria{
			Department: defaultStr(c.Query("department"), claims.Department),
			Field:      defaultStr(c.Query("field"), claims.Field),
			Year:       defaultStr(c.Query("year"), claims.Year),
		}
		min := intQuery(c, "min", cfg.SearchMinAcceptable)
		courses, err := engine.Search(c.Request.Context(), criteria, min)
		if err != nil {
			// Availability over precision: the catalog screen shows an
			// empty list instead of a transport error.
			log.Printf("course search failed for %s: %v", claims.Email(), err)
			c.JSON(http.StatusOK, gin.H{"courses": []model.Course{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"courses": courses})
	})

	staff.POST("/courses", func(c *gin.Context) {
		var req struct {
			Name        string   `json:"name" binding:"required"`
			Department  string   `json:"department" binding:"required"`
			Field       string   `json:"field" binding:"required"`
			TargetYears []string `json:"target_years" binding:"required,min=1"`
			Active      bool     `json:"is_active"`
			DayOfWeek   string   `json:"day_of_week"`
			StartTime   string   `json:"start_time"`
			EndTime     string   `json:"end_time"`
			Room        string   `json:"room"`
			Recurring   bool     `json:"recurring"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.FromContext(c)
		course := model.Course{
			ID:           uuid.NewString(),
			Name:         req.Name,
			TeacherEmail: claims.Email(),
			Department:   req.Department,
			Field:        req.Field,
			TargetYears:  req.TargetYears,
			Active:       req.Active,
			Schedule: model.Schedule{
				DayOfWeek: req.DayOfWeek,
				StartTime: req.StartTime,
				EndTime:   req.EndTime,
				Room:      req.Room,
				Recurring: req.Recurring,
			},
		}
		if err := st.Put(c.Request.Context(), model.ColCourses, course.ID, course.Doc()); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"course": course})
	})

	v1.GET("/sessions", func(c *gin.Context) {
		claims := auth.FromContext(c)
		w, err := scopedWindow(resolver, c.Query("scope"), c.Query("anchor"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var list []model.Session
		if claims.Role == model.RoleTeacher {
			list, err = engine.TeacherSessionsInWindow(c.Request.Context(), claims.Email(), w)
		} else {
			person := eligibility.Person{
				Department: claims.Department,
				Field:      claims.Field,
				Year:       claims.Year,
			}
			list, err = engine.SessionsInWindow(c.Request.Context(), person, w)
		}
		if err != nil {
			log.Printf("session listing failed for %s: %v", claims.Email(), err)
			c.JSON(http.StatusOK, gin.H{"sessions": []model.Session{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list})
	})

	staff.POST("/sessions", func(c *gin.Context) {
		var req struct {
			CourseID string    `json:"course_id" binding:"required"`
			Start    time.Time `json:"start" binding:"required"`
			End      time.Time `json:"end" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		doc, err := st.GetByID(c.Request.Context(), model.ColCourses, req.CourseID)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": "course not found"})
			return
		}
		course, err := model.CourseFromDoc(doc)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "course record is malformed"})
			return
		}
		sess, err := sessions.Schedule(c.Request.Context(), course, req.Start, req.End)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, sessionResponse(sess))
	})

	staff.POST("/sessions/:id/start", func(c *gin.Context) {
		sess, err := sessions.Start(c.Request.Context(), c.Param("id"))
		respondSession(c, sess, err)
	})
	staff.POST("/sessions/:id/end", func(c *gin.Context) {
		sess, err := sessions.End(c.Request.Context(), c.Param("id"))
		respondSession(c, sess, err)
	})
	staff.POST("/sessions/:id/cancel", func(c *gin.Context) {
		sess, err := sessions.Cancel(c.Request.Context(), c.Param("id"))
		respondSession(c, sess, err)
	})

	v1.POST("/sessions/:id/enroll", func(c *gin.Context) {
		claims := auth.FromContext(c)
		email := claims.Email()
		if claims.Role != model.RoleStudent {
			var req struct {
				Email string `json:"email" binding:"required,email"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			email = req.Email
		}
		sess, err := sessions.Enroll(c.Request.Context(), c.Param("id"), email)
		respondSession(c, sess, err)
	})

	staff.POST("/sessions/:id/present", func(c *gin.Context) {
		var req struct {
			Email      string  `json:"email" binding:"required,email"`
			Confidence float64 `json:"confidence" binding:"gte=0,lte=1"`
			Manual     bool    `json:"is_manual_entry"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess, err := sessions.MarkPresent(c.Request.Context(), c.Param("id"), req.Email, req.Confidence, req.Manual)
		respondSession(c, sess, err)
	})

	staff.POST("/sessions/:id/absent", func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required,email"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess, err := sessions.MarkAbsent(c.Request.Context(), c.Param("id"), req.Email)
		respondSession(c, sess, err)
	})

	v1.GET("/statistics", func(c *gin.Context) {
		claims := auth.FromContext(c)
		email := studentParam(c, claims)
		days := intQuery(c, "days", cfg.StatsLookbackDays)
		w := resolver.Lookback(time.Now(), days)
		overall, err := stats.Compute(c.Request.Context(), email, w)
		if err != nil {
			log.Printf("statistics failed for %s: %v", email, err)
			c.JSON(http.StatusOK, gin.H{"statistics": statistics.Stats{}, "degraded": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"statistics": overall})
	})

	v1.GET("/statistics/courses", func(c *gin.Context) {
		claims := auth.FromContext(c)
		email := studentParam(c, claims)
		days := intQuery(c, "days", cfg.StatsLookbackDays)
		w := resolver.Lookback(time.Now(), days)
		byCourse, err := stats.ComputeByCourse(c.Request.Context(), email, w)
		if err != nil {
			log.Printf("per-course statistics failed for %s: %v", email, err)
			c.JSON(http.StatusOK, gin.H{"courses": map[string]statistics.Stats{}, "degraded": true})
			return
		}
		resp := gin.H{"courses": byCourse}
		if best, worst, ok := statistics.BestWorst(byCourse); ok {
			resp["best_course"] = best
			resp["worst_course"] = worst
		}
		c.JSON(http.StatusOK, resp)
	})

	v1.POST("/justifications", auth.RequireRole(model.RoleStudent), func(c *gin.Context) {
		var req struct {
			CourseID    string `json:"course_id" binding:"required"`
			Reason      string `json:"reason" binding:"required"`
			Description string `json:"description"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.FromContext(c)
		j, err := justs.Submit(c.Request.Context(), claims.Email(), req.CourseID, req.Reason, req.Description)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"justification": j})
	})

	v1.GET("/justifications", func(c *gin.Context) {
		claims := auth.FromContext(c)
		var list []model.Justification
		var err error
		if claims.Role == model.RoleAdmin {
			list, err = justs.ListPending(c.Request.Context())
		} else {
			list, err = justs.ListForStudent(c.Request.Context(), claims.Email())
		}
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"justifications": list})
	})

	admins.POST("/justifications/:id/review", func(c *gin.Context) {
		claims := auth.FromContext(c)
		j, err := justs.Review(c.Request.Context(), c.Param("id"), claims.Email())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"justification": j})
	})

	admins.POST("/justifications/:id/decide", func(c *gin.Context) {
		var req struct {
			Approve        bool   `json:"approve"`
			DecisionReason string `json:"decision_reason"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.FromContext(c)
		j, err := justs.Decide(c.Request.Context(), c.Param("id"), claims.Email(), req.Approve, req.DecisionReason)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"justification": j})
	})

	staff.GET("/reports/attendance.csv", func(c *gin.Context) {
		byCourse, email, ok := reportData(c, stats, resolver, cfg)
		if !ok {
			return
		}
		c.Header("Content-Disposition", `attachment; filename="attendance.csv"`)
		c.Header("Content-Type", "text/csv")
		if err := report.WriteCSV(c.Writer, byCourse); err != nil {
			log.Printf("csv report for %s failed: %v", email, err)
		}
	})

	staff.GET("/reports/attendance.xlsx", func(c *gin.Context) {
		byCourse, email, ok := reportData(c, stats, resolver, cfg)
		if !ok {
			return
		}
		c.Header("Content-Disposition", `attachment; filename="attendance.xlsx"`)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := report.WriteXLSX(c.Writer, "Attendance for "+email, byCourse); err != nil {
			log.Printf("xlsx report for %s failed: %v", email, err)
		}
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s (store=%s)", cfg.HTTPPort, cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}

// openStore selects the document-store backend from config.
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
			log.Printf("warning: postgres not fully reachable: %v", err)
		}
		return pg, func() { _ = pg.Close() }, nil
	}
}

func scopedWindow(resolver *timewindow.Resolver, scope, anchor string) (timewindow.Window, error) {
	at := time.Now()
	if anchor != "" {
		parsed, err := time.Parse(time.RFC3339, anchor)
		if err != nil {
			return timewindow.Window{}, errors.New("anchor must be RFC3339")
		}
		at = parsed
	}
	switch scope {
	case "", "day":
		return resolver.Day(at), nil
	case "week":
		return resolver.Week(at), nil
	case "month":
		return resolver.Month(at), nil
	}
	return timewindow.Window{}, errors.New("scope must be day, week, or month")
}

// studentParam lets staff query another student's statistics; students
// always get their own.
func studentParam(c *gin.Context, claims auth.Claims) string {
	if claims.Role == model.RoleStudent {
		return claims.Email()
	}
	if v := c.Query("student"); v != "" {
		return v
	}
	return claims.Email()
}

func reportData(c *gin.Context, stats *statistics.Service, resolver *timewindow.Resolver, cfg config.App) (map[string]statistics.Stats, string, bool) {
	email := c.Query("student")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "student query parameter required"})
		return nil, "", false
	}
	days := intQuery(c, "days", cfg.StatsLookbackDays)
	w := resolver.Lookback(time.Now(), days)
	byCourse, err := stats.ComputeByCourse(c.Request.Context(), email, w)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return nil, "", false
	}
	return byCourse, email, true
}

func respondSession(c *gin.Context, sess model.Session, err error) {
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessionResponse(sess))
}

func sessionResponse(sess model.Session) gin.H {
	return gin.H{"session": sess, "statistics": session.ComputeStats(&sess)}
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, justification.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func defaultStr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// CORS middleware for the mobile web views.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
