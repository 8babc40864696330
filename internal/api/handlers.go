package api

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/caldav"
	"calplan/internal/events"
	"calplan/internal/syncer"
	"calplan/internal/tasks"
	"calplan/internal/validate"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func pathID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, validate.Field("id", "invalid id")
	}
	return id, nil
}

func queryID(c *gin.Context, key string) (*uuid.UUID, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, validate.Field(key, "invalid id")
	}
	return &id, nil
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, validate.Field(key, "expected an RFC 3339 timestamp")
	}
	return &t, nil
}

// OAuth

func (s *Server) authorize(c *gin.Context) {
	if !s.cfg.GoogleConfigured() {
		respondError(c, apperr.New("internal_error", http.StatusInternalServerError, "Google OAuth not configured. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET"))
		return
	}
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		respondError(c, validate.Field("user_id", "invalid id"))
		return
	}
	url, err := s.accounts.AuthorizeURL(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

func (s *Server) callback(c *gin.Context) {
	if _, err := s.accounts.Connect(c.Request.Context(), c.Query("state"), c.Query("code")); err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, s.cfg.FrontendURL+"/calendar?success=true")
}

func (s *Server) disconnect(c *gin.Context) {
	n, err := s.accounts.Disconnect(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          "Google Calendar disconnected successfully",
		"accounts_removed": n,
	})
}

func (s *Server) status(c *gin.Context) {
	list, err := s.accounts.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Calendars

func (s *Server) listCalendars(c *gin.Context) {
	cals, err := s.repo.ListCalendarsForUser(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cals)
}

func (s *Server) getCalendar(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	cal, err := s.repo.GetCalendarForUser(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cal)
}

func (s *Server) exportCalendar(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	userID := currentUser(c).ID
	cal, err := s.repo.GetCalendarForUser(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	list, err := s.events.List(c.Request.Context(), userID, events.Filter{CalendarSourceID: &cal.ID})
	if err != nil {
		respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := caldav.EncodeCalendar(&buf, cal.Name, list, s.now()); err != nil {
		respondError(c, apperr.Wrap(err, apperr.ErrInternal, ""))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+cal.ID.String()+`.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

type syncRequest struct {
	CalendarSourceID *uuid.UUID `json:"calendar_source_id"`
}

type syncFailure struct {
	AccountID uuid.UUID `json:"account_id"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
}

type syncResponse struct {
	SyncedCalendars int           `json:"synced_calendars"`
	SyncedEvents    int           `json:"synced_events"`
	SyncStartedAt   time.Time     `json:"sync_started_at"`
	SyncCompletedAt time.Time     `json:"sync_completed_at"`
	ReauthRequired  []uuid.UUID   `json:"reauth_required"`
	Failures        []syncFailure `json:"failures"`
}

func (s *Server) syncCalendars(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
	}
	ctx := c.Request.Context()
	userID := currentUser(c).ID
	resp := syncResponse{ReauthRequired: []uuid.UUID{}, Failures: []syncFailure{}}

	if req.CalendarSourceID != nil {
		if _, err := s.repo.GetCalendarForUser(ctx, userID, *req.CalendarSourceID); err != nil {
			respondError(c, err)
			return
		}
		resp.SyncStartedAt = s.now().UTC()
		n, err := s.syncer.SyncOneCalendar(ctx, *req.CalendarSourceID)
		if err != nil {
			respondError(c, err)
			return
		}
		resp.SyncedCalendars, resp.SyncedEvents = 1, n
		resp.SyncCompletedAt = s.now().UTC()
		c.JSON(http.StatusOK, resp)
		return
	}

	res, err := s.syncer.SyncAllAccountsForUser(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	resp.SyncedCalendars, resp.SyncedEvents = res.CalendarsSynced, res.EventsSynced
	resp.SyncStartedAt, resp.SyncCompletedAt = res.StartedAt, res.CompletedAt
	resp.ReauthRequired = append(resp.ReauthRequired, res.ReauthRequired...)
	for _, f := range res.Failures {
		resp.Failures = append(resp.Failures, failureOf(f))
	}
	s.logger.Info("Synced calendars for user", "userID", userID, "calendars", res.CalendarsSynced, "events", res.EventsSynced)
	c.JSON(http.StatusOK, resp)
}

func failureOf(f syncer.AccountFailure) syncFailure {
	return syncFailure{AccountID: f.AccountID, Code: apperr.Code(f.Err), Message: apperr.Message(f.Err)}
}

// Events

func (s *Server) listEvents(c *gin.Context) {
	var f events.Filter
	var err error
	if f.StartMin, err = queryTime(c, "start_min"); err != nil {
		respondError(c, err)
		return
	}
	if f.StartMax, err = queryTime(c, "start_max"); err != nil {
		respondError(c, err)
		return
	}
	if f.CalendarSourceID, err = queryID(c, "calendar_source_id"); err != nil {
		respondError(c, err)
		return
	}
	list, err := s.events.List(c.Request.Context(), currentUser(c).ID, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getEvent(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ev, err := s.events.Get(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (s *Server) createEvent(c *gin.Context) {
	var in events.CreateInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, err)
		return
	}
	ev, err := s.events.Create(c.Request.Context(), currentUser(c).ID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

func (s *Server) updateEvent(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var in events.UpdateInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, err)
		return
	}
	ev, err := s.events.Update(c.Request.Context(), currentUser(c).ID, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (s *Server) deleteEvent(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.events.Delete(c.Request.Context(), currentUser(c).ID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Tasks

func (s *Server) createTaskBatch(c *gin.Context) {
	var in tasks.BatchInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, err)
		return
	}
	b, err := s.tasks.CreateBatch(c.Request.Context(), currentUser(c).ID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (s *Server) listTaskBatches(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(c, validate.Field("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}
	list, err := s.tasks.ListBatches(c.Request.Context(), currentUser(c).ID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getTaskBatch(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	b, err := s.tasks.GetBatch(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
