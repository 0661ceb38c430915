package console

import (
	"context"

	"github.com/propdesk/agent-console/internal/realtime"
	"github.com/propdesk/agent-console/internal/reconcile"
)

// HubPlayer relays each alert replay to attached UI tabs, which do the actual
// sound playback. The daemon has no audio device of its own.
func HubPlayer(hub *realtime.Hub) reconcile.Player {
	return reconcile.PlayerFunc(func(ctx context.Context) {
		if hub == nil || ctx.Err() != nil {
			return
		}
		hub.Broadcast(realtime.StreamAlerts, realtime.Message{Event: "alert.play"})
	})
}
