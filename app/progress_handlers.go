package app

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/jaleski01/DESVICIAR-VERCEL/app/models"
	"github.com/jaleski01/DESVICIAR-VERCEL/app/store"
	"github.com/jaleski01/DESVICIAR-VERCEL/auth"
)

const defaultProgressWindow = 7

// GetProgress returns the chart and trigger insight for the caller's window.
func (s *Server) GetProgress(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	window := defaultProgressWindow
	if raw := c.Query("window"); raw != "" {
		n, err := parsePositiveInt(raw)
		if err != nil || !ValidWindow(n) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidWindow.Error()})
			return
		}
		window = n
	}

	loc, err := loadLocation(c.Query("tz"), s.cfg.HTTP.DefaultTimezone)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tz"})
		return
	}

	ctx := c.Request.Context()
	uid := claims.Subject
	acct, err := s.store.GetAccount(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if err != nil {
		s.log.Error("progress account lookup failed", "uid", uid, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load progress"})
		return
	}

	today := s.now().In(loc)
	start := WindowStart(today, window)

	var (
		records []models.DailyRecord
		logs    []models.TriggerLog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.store.DailyRecordsSince(gctx, uid, start.Format(models.DateLayout))
		return err
	})
	g.Go(func() error {
		var err error
		logs, err = s.store.TriggerLogsSince(gctx, uid, localMidnight(start, loc))
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Error("progress fetch failed", "uid", uid, "window", window, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load progress"})
		return
	}

	chart, err := BuildProgress(ProgressInput{
		StreakStart: acct.StreakStartAt,
		Today:       today,
		Window:      window,
		Records:     records,
	})
	if err != nil {
		s.log.Error("progress build failed", "uid", uid, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load progress"})
		return
	}

	c.JSON(http.StatusOK, models.ProgressView{
		Window:         window,
		Points:         chart.Points,
		Average:        chart.Average,
		PerfectDays:    chart.PerfectDays,
		TriggerInsight: BuildTriggerInsight(logs),
	})
}

type dailyRecordRequest struct {
	CompletedCount int `json:"completedCount"`
	TotalHabits    int `json:"totalHabits"`
}

// PutDailyRecord stores the caller's habit completion for one day.
func (s *Server) PutDailyRecord(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	day, err := time.Parse(models.DateLayout, c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	var req dailyRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.CompletedCount < 0 || req.TotalHabits < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "counts must not be negative"})
		return
	}
	if req.TotalHabits == 0 {
		req.TotalHabits = DefaultTotalHabits
	}

	rec := models.DailyRecord{
		Date:           day.Format(models.DateLayout),
		CompletedCount: req.CompletedCount,
		TotalHabits:    req.TotalHabits,
	}
	if err := s.store.PutDailyRecord(c.Request.Context(), claims.Subject, rec); err != nil {
		s.log.Error("daily record write failed", "uid", claims.Subject, "date", rec.Date, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save progress"})
		return
	}
	s.touch(c, claims.Subject)

	c.JSON(http.StatusOK, rec)
}

type triggerLogRequest struct {
	Emotion   string     `json:"emotion"`
	Context   string     `json:"context"`
	Timestamp *time.Time `json:"timestamp"`
}

// LogTrigger appends a craving entry for the caller.
func (s *Server) LogTrigger(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req triggerLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	req.Emotion = strings.TrimSpace(req.Emotion)
	req.Context = strings.TrimSpace(req.Context)
	if req.Emotion == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "emotion is required"})
		return
	}

	entry := models.TriggerLog{
		Emotion:   req.Emotion,
		Context:   req.Context,
		Timestamp: s.now().UTC(),
	}
	if req.Timestamp != nil {
		entry.Timestamp = req.Timestamp.UTC()
	}

	saved, err := s.store.AppendTriggerLog(c.Request.Context(), claims.Subject, entry)
	if err != nil {
		s.log.Error("trigger log write failed", "uid", claims.Subject, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save trigger"})
		return
	}
	s.touch(c, claims.Subject)

	c.JSON(http.StatusCreated, saved)
}

type streakRequest struct {
	StartAt *time.Time `json:"startAt"`
}

// SetStreakStart starts (or restarts after a relapse) the caller's recovery
// streak. Without startAt the streak starts now.
func (s *Server) SetStreakStart(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req streakRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	now := s.now().UTC()
	start := now
	if req.StartAt != nil {
		start = req.StartAt.UTC()
	}
	if start.After(now) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startAt is in the future"})
		return
	}

	if err := s.store.SetStreakStart(c.Request.Context(), claims.Subject, start); err != nil {
		s.log.Error("streak start write failed", "uid", claims.Subject, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save streak"})
		return
	}
	s.touch(c, claims.Subject)

	c.JSON(http.StatusOK, gin.H{"streakStartAt": start})
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

// SetPushToken registers the caller's FCM token. An empty token unregisters.
func (s *Server) SetPushToken(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req pushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token := strings.TrimSpace(req.Token)
	var err error
	if token == "" {
		err = s.store.ClearPushToken(c.Request.Context(), claims.Subject)
	} else {
		err = s.store.SetPushToken(c.Request.Context(), claims.Subject, token)
	}
	if err != nil {
		s.log.Error("push token write failed", "uid", claims.Subject, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save push token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// touch records activity for the inactivity notifier. A failure only logs.
func (s *Server) touch(c *gin.Context, uid string) {
	if err := s.store.TouchActivity(c.Request.Context(), uid, s.now().UTC()); err != nil {
		s.log.Warn("touch activity failed", "uid", uid, "error", err)
	}
}
