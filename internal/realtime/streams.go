package realtime

// Named realtime streams relayed to attached UI tabs.
const (
	StreamNotifications = "notifications"
	StreamAlerts        = "alerts"
	StreamPresence      = "presence"
)

// DefaultStreams are the subscriptions applied when a client attaches
// without naming any.
func DefaultStreams() []string {
	return []string{StreamNotifications, StreamAlerts, StreamPresence}
}
