package main

import (
	"database/sql"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"gorow/internal/common"
	"gorow/internal/formats/rws"
	"gorow/internal/session"
	"gorow/internal/stroke"
)

type sessionSummary struct {
	Id     string                `json:"id"`
	Start  *time.Time            `json:"start"`
	Record *common.SessionRecord `json:"record,omitempty"`
}

type activeSession struct {
	Id       string        `json:"id"`
	Start    time.Time     `json:"start"`
	IsActive bool          `json:"is_active"`
	Strokes  int           `json:"num_strokes"`
	Paused   bool          `json:"paused"`
	Stats    *stroke.Stats `json:"stats"`
}

type sessionDetail struct {
	Id    string        `json:"id"`
	Start *time.Time    `json:"start"`
	Stats *stroke.Stats `json:"stats"`
}

type InvalidIdError struct {
	Id string
}

func (e *InvalidIdError) Error() string {
	return "invalid session id '" + e.Id + "'"
}

func parseStart(id string) *time.Time {
	start, err := session.ParseStart(id)
	if err != nil {
		return nil
	}
	return &start
}

func newActiveSession(s *session.Session) activeSession {
	points := s.Points()
	return activeSession{
		Id:       s.ID(),
		Start:    s.Start(),
		IsActive: true,
		Strokes:  len(points),
		Paused:   s.Paused(),
		Stats:    stroke.Calculate(points),
	}
}

// sessionPath maps an id to a file in the data directory. Anything that is
// not a plain session file name is rejected.
func (this *RequestHandler) sessionPath(id string) (string, error) {
	if id != filepath.Base(id) || filepath.Ext(id) != rws.Extension || id == rws.Extension {
		return "", &InvalidIdError{Id: id}
	}
	return filepath.Join(this.Manager.Dir(), id), nil
}

func (this *RequestHandler) GetSessions(c *gin.Context) {
	paths, err := session.ListSessions(this.Manager.Dir())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	records := make(map[string]common.SessionRecord)
	if this.Catalog != nil {
		list, err := this.Catalog.Sessions()
		if err != nil {
			this.Logger.Warn("could not load catalog", "error", err)
		}
		for _, r := range list {
			records[r.Id] = r
		}
	}

	sessions := make([]sessionSummary, 0, len(paths))
	for _, path := range paths {
		id := filepath.Base(path)
		summary := sessionSummary{Id: id, Start: parseStart(id)}
		if r, ok := records[id]; ok {
			summary.Record = &r
		}
		sessions = append(sessions, summary)
	}

	c.JSON(http.StatusOK, sessions)
}

func (this *RequestHandler) GetActiveSession(c *gin.Context) {
	s := this.Manager.Active()
	if s == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, newActiveSession(s))
}

func (this *RequestHandler) StartSession(c *gin.Context) {
	s, err := this.Recorder.Start()
	if err != nil {
		var dre *session.DeviceResetError
		switch {
		case errors.Is(err, session.ErrSessionActive):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.As(err, &dre):
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, newActiveSession(s))
}

func (this *RequestHandler) StopSession(c *gin.Context) {
	summary, err := this.Recorder.Stop()
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (this *RequestHandler) GetAllSessionsStats(c *gin.Context) {
	rollup, err := session.AnalyzeAll(this.Manager.Dir())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rollup)
}

func (this *RequestHandler) existingSession(c *gin.Context) (string, bool) {
	path, err := this.sessionPath(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session '" + c.Param("id") + "' not found"})
		return "", false
	}
	return path, true
}

func (this *RequestHandler) GetSession(c *gin.Context) {
	path, ok := this.existingSession(c)
	if !ok {
		return
	}

	id := filepath.Base(path)
	stats, err := session.HistoricalStats(path)
	if err != nil {
		this.Logger.Warn("could not compute session stats", "id", id, "error", err)
		stats = nil
	}

	c.JSON(http.StatusOK, sessionDetail{Id: id, Start: parseStart(id), Stats: stats})
}

func (this *RequestHandler) GetSessionData(c *gin.Context) {
	path, ok := this.existingSession(c)
	if !ok {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(path))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (this *RequestHandler) DeleteSession(c *gin.Context) {
	path, ok := this.existingSession(c)
	if !ok {
		return
	}

	id := filepath.Base(path)
	if s := this.Manager.Active(); s != nil && s.ID() == id {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "session '" + id + "' is being recorded"})
		return
	}
	if err := session.DeleteSession(path); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if this.Catalog != nil {
		if err := this.Catalog.Delete(id); err != nil && !errors.Is(err, sql.ErrNoRows) {
			this.Logger.Warn("could not remove session from catalog", "id", id, "error", err)
		}
	}

	c.Status(http.StatusNoContent)
}
