package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/barnstore/barnstore/internal/protocol"
)

// Server accepts TCP connections and serves the Cache line protocol:
// get/delete, one request per connection.
type Server struct {
	cache *Cache
}

// NewServer wraps c in a Server ready to Run.
func NewServer(c *Cache) *Server {
	return &Server{cache: c}
}

// Run listens on addr and serves connections until ctx is cancelled.
func (srv *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cache: listen on %s: %w", addr, err)
	}
	log.Printf("cache: listening on %s", addr)
	return srv.serveListener(ctx, ln)
}

// serveListener runs the accept loop over an already-bound listener,
// split out from Run so tests can serve over a listener bound to an
// ephemeral port.
func (srv *Server) serveListener(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Printf("cache: accept error: %v", err)
				continue
			}
		}
		go srv.handleConnection(ctx, conn)
	}
}

func (srv *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	fields, err := protocol.ReadLine(r)
	if err != nil {
		return
	}
	if len(fields) == 0 {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}

	switch fields[0] {
	case "get":
		srv.handleGet(ctx, conn, fields)
	case "delete":
		srv.handleDelete(ctx, conn, fields)
	default:
		_ = protocol.WriteErr(conn, "BadCommand")
	}
}

func (srv *Server) handleGet(ctx context.Context, conn net.Conn, fields []string) {
	if len(fields) < 2 {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}
	needleID, err := protocol.ParseUint64("needleId", fields[1])
	if err != nil {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}

	payload, err := srv.cache.Get(ctx, needleID)
	if err != nil {
		_ = protocol.WriteErr(conn, errReason(err))
		return
	}
	_ = protocol.WriteOKWithSize(conn, payload)
}

func (srv *Server) handleDelete(ctx context.Context, conn net.Conn, fields []string) {
	if len(fields) < 2 {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}
	needleID, err := protocol.ParseUint64("needleId", fields[1])
	if err != nil {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}

	if err := srv.cache.Remove(ctx, needleID); err != nil {
		_ = protocol.WriteErr(conn, errReason(err))
		return
	}
	_ = protocol.WriteOK(conn)
}

// errReason maps a Cache error to its wire-protocol reason string. A
// genuine Store rejection is forwarded using Store's own reason text; a
// transport failure talking to Store never surfaces its raw Go error
// text, only Unknown, matching the original's outer
// catch(std::exception&) around the TcpStream.
func errReason(err error) string {
	var rejected *StoreRejected
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	switch {
	case errors.Is(err, ErrRedisErr):
		return "RedisErr"
	case errors.Is(err, ErrTooBig):
		return "TooBig"
	default:
		return "Unknown"
	}
}
