//go:build !windows

package viewer

import (
	"context"

	"go.klb.dev/clip2web/internal/clip"
)

// Run drives a session from backend change ticks until ctx is done.
func Run(ctx context.Context, backend clip.Backend, bind Binder) error {
	return pump(ctx, soloEndpoint{}, backend.Watch(), bind)
}
