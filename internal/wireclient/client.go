// Package wireclient implements small TCP clients for the Store
// protocol, shared by Directory (which forwards uploads/deletes) and
// Cache (which forwards on-miss gets; its deletes never reach Store).
package wireclient

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/barnstore/barnstore/internal/protocol"
)

// Response is a parsed Store response line: either "ok [size]" or
// "err <reason>".
type Response struct {
	OK      bool
	Reason  string // set when !OK
	Size    uint64 // set when OK and a size follows (get)
	Payload []byte // set when OK and a payload follows (get)
}

// Line renders the response exactly as it would appear on the wire,
// for forwarding verbatim to a Directory/Cache client.
func (r Response) Line() string {
	if r.OK {
		if r.Payload != nil {
			return "ok " + strconv.FormatUint(r.Size, 10)
		}
		return "ok"
	}
	return "err " + r.Reason
}

// Put uploads needleID/volumeID's payload to the store at addr.
func Put(addr string, volumeID, needleID uint64, payload []byte) (Response, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("wireclient: dial store: %w", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "put %d %d %d\n", volumeID, needleID, len(payload)); err != nil {
		return Response{}, fmt.Errorf("wireclient: write put command: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return Response{}, fmt.Errorf("wireclient: write put payload: %w", err)
	}

	return readResponse(bufio.NewReader(conn), false)
}

// Get fetches needleID's payload from the store at addr.
func Get(addr string, needleID uint64) (Response, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("wireclient: dial store: %w", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "get %d\n", needleID); err != nil {
		return Response{}, fmt.Errorf("wireclient: write get command: %w", err)
	}

	return readResponse(bufio.NewReader(conn), true)
}

// Delete removes needleID from the store at addr.
func Delete(addr string, needleID uint64) (Response, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return Response{}, fmt.Errorf("wireclient: dial store: %w", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "delete %d\n", needleID); err != nil {
		return Response{}, fmt.Errorf("wireclient: write delete command: %w", err)
	}

	return readResponse(bufio.NewReader(conn), false)
}

func readResponse(r *bufio.Reader, expectPayload bool) (Response, error) {
	fields, err := protocol.ReadLine(r)
	if err != nil {
		return Response{}, fmt.Errorf("wireclient: read response line: %w", err)
	}
	if len(fields) == 0 {
		return Response{}, fmt.Errorf("wireclient: empty response line")
	}

	status := fields[0]
	if status != "ok" {
		reason := "Unknown"
		if len(fields) > 1 {
			reason = strings.Join(fields[1:], " ")
		}
		return Response{OK: false, Reason: reason}, nil
	}

	resp := Response{OK: true}
	if !expectPayload || len(fields) < 2 {
		return resp, nil
	}

	size, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Response{}, fmt.Errorf("wireclient: bad size in response: %w", err)
	}
	resp.Size = size

	payload, err := protocol.ReadPayload(r, size)
	if err != nil {
		return Response{}, fmt.Errorf("wireclient: read response payload: %w", err)
	}
	resp.Payload = payload
	return resp, nil
}
