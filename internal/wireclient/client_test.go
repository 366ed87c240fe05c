package wireclient

import (
	"bufio"
	"net"
	"testing"
)

// serveOnce accepts a single connection, writes response, and closes.
func serveOnce(t *testing.T, response string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer ln.Close()
		bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte(response))
	}()
	return ln.Addr().String()
}

func TestGet_OK(t *testing.T) {
	addr := serveOnce(t, "ok 5\nhello")
	resp, err := Get(addr, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !resp.OK || string(resp.Payload) != "hello" {
		t.Fatalf("Get() = %+v, want ok payload %q", resp, "hello")
	}
}

func TestGet_Err(t *testing.T) {
	addr := serveOnce(t, "err BadNeedle\n")
	resp, err := Get(addr, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.OK || resp.Reason != "BadNeedle" {
		t.Fatalf("Get() = %+v, want err BadNeedle", resp)
	}
}

func TestPut_OK(t *testing.T) {
	addr := serveOnce(t, "ok\n")
	resp, err := Put(addr, 0, 1, []byte("payload"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !resp.OK {
		t.Fatalf("Put() = %+v, want ok", resp)
	}
}

func TestDelete_OK(t *testing.T) {
	addr := serveOnce(t, "ok\n")
	resp, err := Delete(addr, 1)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !resp.OK {
		t.Fatalf("Delete() = %+v, want ok", resp)
	}
}
