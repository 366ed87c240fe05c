// Command store runs the blob storage backend: a fixed set of haystack
// volumes served over a line-oriented TCP protocol, plus an ambient
// HTTP health/status surface.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/barnstore/barnstore/internal/instanceid"
	"github.com/barnstore/barnstore/internal/store"
)

func main() {
	var (
		addr        = flag.String("addr", ":7070", "store TCP listen address")
		healthAddr  = flag.String("health-addr", ":7071", "health/status HTTP listen address")
		dataDir     = flag.String("data-dir", "data/store", "directory holding haystack_* volume files")
		volumeCount = flag.Uint64("volumes", store.DefaultVolumeCount, "number of volumes to open or create")
		volumeSize  = flag.Uint64("volume-size", store.DefaultMaxVolumeSize, "max bytes per volume")
		maxFileSize = flag.Uint64("max-file-size", store.DefaultMaxFileSize, "max bytes per needle payload")
	)
	flag.Parse()

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		log.Fatalf("store: create data dir %s: %v", *dataDir, err)
	}

	id, err := instanceid.GetOrCreate(filepath.Join(*dataDir, "instance_id"))
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	log.Printf("store: instance id %s", id)

	cfg := store.Config{
		Dir:           *dataDir,
		VolumeCount:   *volumeCount,
		MaxVolumeSize: *volumeSize,
		MaxFileSize:   *maxFileSize,
	}
	s, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("store: open: %v", err)
	}
	defer s.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- store.NewServer(s).Run(ctx, *addr) }()
	go func() { errCh <- store.NewHealthServer(s, id).Run(ctx, *healthAddr) }()

	select {
	case <-ctx.Done():
		log.Printf("store: shutting down")
	case err := <-errCh:
		if err != nil {
			log.Printf("store: server error: %v", err)
		}
		cancel()
	}
	<-errCh
}
