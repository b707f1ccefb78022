// api/handlers/dashboard_handlers.go
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"vsltrack/api/models"
)

// StatsProvider is what the dashboard needs from the funnel engine.
type StatsProvider interface {
	Snapshot() models.DashboardStats
	Live() []models.LiveSession
	Sessions() []models.SessionSummary
	Refresh(ctx context.Context) error
}

type DashboardHandlers struct {
	Engine StatsProvider
}

func NewDashboardHandlers(engine StatsProvider) *DashboardHandlers {
	return &DashboardHandlers{Engine: engine}
}

// GetSummary returns the last computed snapshot. A disconnected store shows
// up as connected=false with zero stats; the UI renders its banner, the
// endpoint never fails.
func (h *DashboardHandlers) GetSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.Snapshot())
}

func (h *DashboardHandlers) GetLiveSessions(c *gin.Context) {
	live := h.Engine.Live()
	if live == nil {
		live = []models.LiveSession{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(live), "sessions": live})
}

func (h *DashboardHandlers) GetSessions(c *gin.Context) {
	sessions := h.Engine.Sessions()
	if sessions == nil {
		sessions = []models.SessionSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(sessions), "sessions": sessions})
}

// Refresh triggers an immediate aggregation pass (manual dashboard refresh)
// and returns the resulting snapshot.
func (h *DashboardHandlers) Refresh(c *gin.Context) {
	if err := h.Engine.Refresh(c.Request.Context()); err != nil {
		log.WithError(err).Warn("manual refresh failed")
	}
	c.JSON(http.StatusOK, h.Engine.Snapshot())
}
