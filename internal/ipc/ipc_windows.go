//go:build windows

package ipc

import (
	"net"
	"time"

	"github.com/microsoft/go-winio"
)

const pipeName = `\\.\pipe\clip2web`

func socketPath() string { return pipeName }

func listenIPC(path string) (net.Listener, error) {
	return winio.ListenPipe(path, nil)
}

func dialIPC(path string) (net.Conn, error) {
	timeout := time.Second
	return winio.DialPipe(path, &timeout)
}
