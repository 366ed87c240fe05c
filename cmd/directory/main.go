// Command directory runs the facade that allocates needle ids, picks a
// volume for each upload, proxies payloads to a Store, and records the
// needleId/haystackId mapping in a Postgres-backed ledger.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/barnstore/barnstore/internal/directory"
	"github.com/barnstore/barnstore/internal/instanceid"
)

func main() {
	var (
		addr        = flag.String("addr", ":7080", "directory TCP listen address")
		healthAddr  = flag.String("health-addr", ":7081", "health/status HTTP listen address")
		storeAddr   = flag.String("store-addr", "localhost:7070", "store TCP address")
		dbDSN       = flag.String("db-dsn", "postgres://localhost/barnstore?sslmode=disable", "ledger database DSN")
		volumeCount = flag.Uint64("volumes", 5, "number of volumes the store exposes")
		idFile      = flag.String("instance-id-file", "directory_instance_id", "path to persist this instance's id")
	)
	flag.Parse()

	id, err := instanceid.GetOrCreate(*idFile)
	if err != nil {
		log.Fatalf("directory: %v", err)
	}
	log.Printf("directory: instance id %s", id)

	ledger, err := directory.OpenLedger(*dbDSN)
	if err != nil {
		log.Fatalf("directory: %v", err)
	}
	defer ledger.Close()

	d, err := directory.Open(*storeAddr, ledger, *volumeCount)
	if err != nil {
		log.Fatalf("directory: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- directory.NewServer(d).Run(ctx, *addr) }()
	go func() { errCh <- directory.NewHealthServer(d, id).Run(ctx, *healthAddr) }()

	select {
	case <-ctx.Done():
		log.Printf("directory: shutting down")
	case err := <-errCh:
		if err != nil {
			log.Printf("directory: server error: %v", err)
		}
		cancel()
	}
	<-errCh
}
