package status

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/medallion/cascade"
	"github.com/kbukum/medallion/component"
	"github.com/kbukum/medallion/daemon"
	"github.com/kbukum/medallion/version"
)

// LoopState reports the daemon loop. *daemon.Daemon implements it.
type LoopState interface {
	Snapshot() daemon.Snapshot
}

// FreshnessView evaluates unit freshness. *cascade.Orchestrator implements it.
type FreshnessView interface {
	Freshness(ctx context.Context) []cascade.UnitFreshness
}

// HealthChecker returns health for registered components.
type HealthChecker func(ctx context.Context) []component.Health

// Sources are the read-only views the server exposes. Nil fields disable
// the matching route's content.
type Sources struct {
	Service   string
	Loop      LoopState
	Freshness FreshnessView
	Health    HealthChecker
}

func (s *Server) healthz(c *gin.Context) {
	var components []component.Health
	if s.src.Health != nil {
		components = s.src.Health(c.Request.Context())
	}
	overall := component.Overall(components)

	code := http.StatusOK
	if overall == component.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     overall,
		"service":    s.src.Service,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"components": components,
	})
}

func (s *Server) status(c *gin.Context) {
	if s.src.Loop == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "daemon is not running"})
		return
	}
	snap := s.src.Loop.Snapshot()
	body := gin.H{"daemon": snap}
	if snap.Last != nil {
		body["summary"] = snap.Last.Counts()
		body["exit_code"] = snap.Last.ExitCode()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) freshness(c *gin.Context) {
	if s.src.Freshness == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no plan configured"})
		return
	}
	units := s.src.Freshness.Freshness(c.Request.Context())
	stale := 0
	for _, u := range units {
		if u.Stale || u.Error != "" {
			stale++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"units": units,
		"stale": stale,
	})
}

func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}
