package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// SyncGuard makes retried sync requests safe: while a sync for a target is
// running, a second request for the same target answers 409 instead of
// starting another sweep against the remote platform.
//
// The target is the request method and path (which carries the farmer or
// field id) plus the resolved farmer, so two farmers syncing the same field
// id do not block each other. Safe for concurrent use.
type SyncGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

// NewSyncGuard returns an empty guard.
func NewSyncGuard() *SyncGuard {
	return &SyncGuard{running: make(map[string]struct{})}
}

func syncTarget(c *gin.Context) string {
	return c.Request.Method + " " + c.Request.URL.Path + " " + FarmerID(c)
}

func (g *SyncGuard) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.running[key]; busy {
		return false
	}
	g.running[key] = struct{}{}
	return true
}

func (g *SyncGuard) release(key string) {
	g.mu.Lock()
	delete(g.running, key)
	g.mu.Unlock()
}

// Handler guards the routes it is attached to.
func (g *SyncGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := syncTarget(c)
		if !g.acquire(key) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "sync_in_progress",
				"message":    "a sync for this target is already running",
			})
			return
		}
		defer g.release(key)
		c.Next()
	}
}
