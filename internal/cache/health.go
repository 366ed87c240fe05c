package cache

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthServer is an ambient HTTP surface alongside the line protocol.
type HealthServer struct {
	srv *http.Server
}

// NewHealthServer builds a gin engine exposing /healthz.
func NewHealthServer(instanceID string) *HealthServer {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "instanceId": instanceID})
	})

	return &HealthServer{srv: &http.Server{Handler: r}}
}

// Run listens on addr until ctx is cancelled.
func (hs *HealthServer) Run(ctx context.Context, addr string) error {
	hs.srv.Addr = addr
	go func() {
		<-ctx.Done()
		_ = hs.srv.Close()
	}()
	if err := hs.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("cache: health server: %w", err)
	}
	return nil
}
