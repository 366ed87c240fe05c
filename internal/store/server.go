package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/barnstore/barnstore/internal/protocol"
)

// Server accepts TCP connections and serves the Store line protocol:
// put/get/delete, one request per connection.
type Server struct {
	store *Store
}

// NewServer wraps s in a Server ready to Run.
func NewServer(s *Store) *Server {
	return &Server{store: s}
}

// Run listens on addr and serves connections until ctx is cancelled.
func (srv *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("store: listen on %s: %w", addr, err)
	}
	log.Printf("store: listening on %s", addr)
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
				log.Printf("store: accept error: %v", err)
				continue
			}
		}
		go srv.handleConnection(conn)
	}
}

// handleConnection reads exactly one request, executes it, writes
// exactly one response line (and payload on success), and closes the
// connection. Every error is caught here: a worker never crashes the
// process, and a failure writing the error line back is swallowed.
func (srv *Server) handleConnection(conn net.Conn) {
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
		srv.handleGet(conn, fields)
	case "put":
		srv.handlePut(conn, r, fields)
	case "delete":
		srv.handleDelete(conn, fields)
	default:
		_ = protocol.WriteErr(conn, "BadCommand")
	}
}

func (srv *Server) handleGet(conn net.Conn, fields []string) {
	if len(fields) < 2 {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}
	needleID, err := protocol.ParseUint64("needleId", fields[1])
	if err != nil {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}

	buf := make([]byte, srv.store.MaxFileSize())
	size, err := srv.store.Get(needleID, buf)
	if err != nil {
		_ = protocol.WriteErr(conn, errReason(err))
		return
	}
	_ = protocol.WriteOKWithSize(conn, buf[:size])
}

func (srv *Server) handlePut(conn net.Conn, r *bufio.Reader, fields []string) {
	if len(fields) < 4 {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}
	volumeID, err := protocol.ParseUint64("volumeId", fields[1])
	if err != nil {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}
	needleID, err := protocol.ParseUint64("needleId", fields[2])
	if err != nil {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}
	size, err := protocol.ParseUint64("size", fields[3])
	if err != nil {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}

	if volumeID >= uint64(srv.store.VolumeCount()) {
		_ = protocol.WriteErr(conn, "BadHaystackId")
		return
	}
	if size > srv.store.MaxFileSize() {
		_ = protocol.WriteErr(conn, "TooManyBytes")
		return
	}

	payload, err := protocol.ReadPayload(r, size)
	if err != nil {
		return
	}

	if err := srv.store.Put(volumeID, needleID, payload, size); err != nil {
		_ = protocol.WriteErr(conn, errReason(err))
		return
	}
	_ = protocol.WriteOK(conn)
}

func (srv *Server) handleDelete(conn net.Conn, fields []string) {
	if len(fields) < 2 {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}
	needleID, err := protocol.ParseUint64("needleId", fields[1])
	if err != nil {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}

	if err := srv.store.Remove(needleID); err != nil {
		_ = protocol.WriteErr(conn, errReason(err))
		return
	}
	_ = protocol.WriteOK(conn)
}

// errReason maps a Store error to its wire-protocol reason string.
func errReason(err error) string {
	switch {
	case errors.Is(err, ErrBadNeedle):
		return "BadNeedle"
	case errors.Is(err, ErrNoFit):
		return "NoFit"
	case errors.Is(err, ErrBadHaystackID):
		return "BadHaystackId"
	case errors.Is(err, ErrTooManyBytes):
		return "TooManyBytes"
	default:
		return "Unknown"
	}
}
