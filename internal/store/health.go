package store

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthServer is an ambient HTTP surface sitting alongside the line
// protocol: a load balancer or operator can probe /healthz and
// /status without speaking the wire protocol.
type HealthServer struct {
	store      *Store
	instanceID string
	srv        *http.Server
}

// NewHealthServer builds a gin engine exposing /healthz and /status.
func NewHealthServer(s *Store, instanceID string) *HealthServer {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	hs := &HealthServer{store: s, instanceID: instanceID}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "instanceId": instanceID})
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"instanceId": instanceID,
			"volumes":    s.Status(),
		})
	})

	hs.srv = &http.Server{Handler: r}
	return hs
}

// Run listens on addr until ctx is cancelled.
func (hs *HealthServer) Run(ctx context.Context, addr string) error {
	hs.srv.Addr = addr
	go func() {
		<-ctx.Done()
		_ = hs.srv.Close()
	}()
	if err := hs.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("store: health server: %w", err)
	}
	return nil
}
