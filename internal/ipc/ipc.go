// Package ipc is the local channel CLI commands (status, last) use to query
// a running clip2web agent.
//
// The agent listens on a Unix domain socket (a named pipe on Windows) and
// answers one request per connection using the newline-delimited JSON
// protocol in package message.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"go.klb.dev/clip2web/internal/message"
	"go.klb.dev/clip2web/internal/wire"
)

const requestTimeout = 5 * time.Second

// SocketPath returns the platform-appropriate path for the IPC socket.
//
//   - Linux / macOS: $XDG_RUNTIME_DIR/clip2web.sock, else $TMPDIR/clip2web.sock
//   - Windows:       \\.\pipe\clip2web
//
// $CLIP2WEB_SOCKET overrides both.
func SocketPath() string {
	if s := os.Getenv("CLIP2WEB_SOCKET"); s != "" {
		return s
	}
	return socketPath()
}

// IsRunning reports whether an agent appears to be listening on the IPC
// socket. It does a cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	c, err := Dial()
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates a net.Listener on the IPC socket path, removing any stale
// socket left by a crashed run first.
func Listen() (net.Listener, error) {
	return listenIPC(SocketPath())
}

// Dial connects to the IPC socket.
func Dial() (net.Conn, error) {
	return dialIPC(SocketPath())
}

// Handler answers one request.
type Handler func(*message.Message) *message.Message

// Serve accepts connections on ln until ctx is done, answering each with h.
func Serve(ctx context.Context, ln net.Listener, h Handler) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("ipc accept: %w", err)
		}
		go serveConn(conn, h)
	}
}

func serveConn(conn net.Conn, h Handler) {
	wc := wire.New(conn)
	defer wc.Close()

	wc.SetReadDeadline(requestTimeout)
	req, err := wc.ReadMsg()
	if err != nil {
		slog.Debug("ipc: bad request", "err", err)
		_ = wc.WriteMsg(message.Errorf("bad request: %v", err))
		return
	}
	resp := h(req)
	if resp == nil {
		resp = message.Errorf("no response for %s", req.Type)
	}
	if err := wc.WriteMsg(resp); err != nil {
		slog.Debug("ipc: write response", "type", resp.Type, "err", err)
	}
}

// Request sends req to the running agent and returns its response. An
// ERROR response is returned as an error.
func Request(req *message.Message) (*message.Message, error) {
	conn, err := Dial()
	if err != nil {
		return nil, fmt.Errorf("no agent listening on %s: %w", SocketPath(), err)
	}
	wc := wire.New(conn)
	defer wc.Close()

	if err := wc.WriteMsg(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Type, err)
	}
	wc.SetReadDeadline(requestTimeout)
	resp, err := wc.ReadMsg()
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Type, err)
	}
	if resp.Type == message.TypeError {
		return nil, fmt.Errorf("agent: %s", resp.Error)
	}
	return resp, nil
}
