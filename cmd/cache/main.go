// Command cache runs the write-through front end over a Redis-
// compatible key-value cache, falling back to a Store on a miss.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/barnstore/barnstore/internal/cache"
	"github.com/barnstore/barnstore/internal/instanceid"
)

func main() {
	var (
		addr       = flag.String("addr", ":7090", "cache TCP listen address")
		healthAddr = flag.String("health-addr", ":7091", "health HTTP listen address")
		redisAddr  = flag.String("redis-addr", "localhost:6379", "redis server address")
		storeAddr  = flag.String("store-addr", "localhost:7070", "store TCP address")
		idFile     = flag.String("instance-id-file", "cache_instance_id", "path to persist this instance's id")
	)
	flag.Parse()

	id, err := instanceid.GetOrCreate(*idFile)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	log.Printf("cache: instance id %s", id)

	c := cache.Open(*redisAddr, *storeAddr)
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- cache.NewServer(c).Run(ctx, *addr) }()
	go func() { errCh <- cache.NewHealthServer(id).Run(ctx, *healthAddr) }()

	select {
	case <-ctx.Done():
		log.Printf("cache: shutting down")
	case err := <-errCh:
		if err != nil {
			log.Printf("cache: server error: %v", err)
		}
		cancel()
	}
	<-errCh
}
