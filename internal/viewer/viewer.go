// Package viewer connects a chain session to the operating system's source
// of clipboard notifications.
//
// On Windows that source is the clipboard viewer chain itself: a hidden
// message-only window joins the chain with SetClipboardViewer and receives
// WM_DRAWCLIPBOARD / WM_CHANGECBCHAIN. Other platforms have no viewer chain,
// so the session is the sole member of a chain of one and the backend's
// Watch ticks stand in for WM_DRAWCLIPBOARD.
//
// On every platform Run registers the session before delivering anything and
// unregisters it on every exit path.
package viewer

import (
	"context"
	"log/slog"

	"go.klb.dev/clip2web/internal/chain"
)

// Endpoint is the OS side of the chain as seen from one member.
type Endpoint interface {
	chain.System
	Self() chain.Handle
}

// Session is a chain member driven by Run. *chain.Handler satisfies it.
type Session interface {
	Register() error
	Dispatch(chain.Message)
	Unregister() error
}

// Binder creates the session for an endpoint. It is called once, on the
// goroutine that will deliver messages.
type Binder func(Endpoint) Session

// pump registers the session and delivers a content change for every tick
// of watch until ctx is done.
func pump(ctx context.Context, ep Endpoint, watch <-chan struct{}, bind Binder) error {
	s := bind(ep)
	defer leave(s)
	if err := s.Register(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-watch:
			s.Dispatch(chain.Changed())
		}
	}
}

func leave(s Session) {
	if err := s.Unregister(); err != nil {
		slog.Warn("leaving clipboard viewer chain", "err", err)
	}
}

// soloHandle identifies this process in a chain of one.
const soloHandle chain.Handle = 1

// soloEndpoint is a chain with a single member and no OS-level chain behind it.
type soloEndpoint struct{}

func (soloEndpoint) Self() chain.Handle { return soloHandle }

func (soloEndpoint) SetViewer(chain.Handle) (chain.Handle, error) { return chain.NoHandle, nil }

func (soloEndpoint) ChangeChain(chain.Handle, chain.Handle) error { return nil }

func (soloEndpoint) Forward(target chain.Handle, _ chain.Message) error {
	if target != chain.NoHandle {
		slog.Warn("dropping chain message for unknown member", "target", uintptr(target))
	}
	return nil
}
