package directory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/barnstore/barnstore/internal/protocol"
)

// Server accepts TCP connections and serves the Directory line
// protocol: upload/list/delete, one request per connection.
type Server struct {
	dir *Directory
}

// NewServer wraps d in a Server ready to Run.
func NewServer(d *Directory) *Server {
	return &Server{dir: d}
}

// Run listens on addr and serves connections until ctx is cancelled.
func (srv *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("directory: listen on %s: %w", addr, err)
	}
	log.Printf("directory: listening on %s", addr)
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
				log.Printf("directory: accept error: %v", err)
				continue
			}
		}
		go srv.handleConnection(conn)
	}
}

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
	case "list":
		srv.handleList(conn)
	case "upload":
		srv.handleUpload(conn, r, fields)
	case "delete":
		srv.handleDelete(conn, fields)
	default:
		_ = protocol.WriteErr(conn, "BadCommand")
	}
}

func (srv *Server) handleList(conn net.Conn) {
	ids, err := srv.dir.List()
	if err != nil {
		_ = protocol.WriteErr(conn, errReason(err))
		return
	}

	var body strings.Builder
	for _, id := range ids {
		body.WriteString(strconv.FormatUint(id, 10))
		body.WriteByte('\n')
	}
	_ = protocol.WriteOKWithSize(conn, []byte(body.String()))
}

func (srv *Server) handleUpload(conn net.Conn, r *bufio.Reader, fields []string) {
	if len(fields) < 2 {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}
	size, err := protocol.ParseUint64("size", fields[1])
	if err != nil {
		_ = protocol.WriteErr(conn, "BadCommand")
		return
	}

	payload, err := protocol.ReadPayload(r, size)
	if err != nil {
		return
	}

	needleID, err := srv.dir.Upload(payload)
	if err != nil {
		_ = protocol.WriteErr(conn, errReason(err))
		return
	}
	_ = protocol.WriteOKWithID(conn, needleID)
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

	if err := srv.dir.Remove(needleID); err != nil {
		_ = protocol.WriteErr(conn, errReason(err))
		return
	}
	_ = protocol.WriteOK(conn)
}

// errReason maps a Directory error to its wire-protocol reason string.
// A genuine Store rejection is forwarded using Store's own reason text;
// a transport failure talking to Store never surfaces its raw Go error
// text, only Unknown, matching the original's outer
// catch(std::exception&) around the TcpStream.
func errReason(err error) string {
	var rejected *StoreRejected
	if errors.As(err, &rejected) {
		return rejected.Reason
	}
	switch {
	case errors.Is(err, ErrDbErr):
		return "DbErr"
	default:
		return "Unknown"
	}
}
