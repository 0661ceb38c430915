package console

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/propdesk/agent-console/internal/category"
	"github.com/propdesk/agent-console/internal/realtime"
	"github.com/propdesk/agent-console/pkg/metrics"
)

// RefreshPending reloads the full pending backlog from upstream and applies
// it per category. Alerting only considers categories whose gate is enabled;
// the backlog itself is applied regardless so counts stay truthful.
func (con *Console) RefreshPending(ctx context.Context) error {
	payload, err := con.backend.PendingItems(ctx)
	if err != nil {
		return err
	}
	return con.applyPendingPayload(ctx, payload)
}

// RefreshCategory reloads the pending backlog for one category, used after
// a disabled category is re-enabled.
func (con *Console) RefreshCategory(ctx context.Context, c category.Category) error {
	d, ok := category.Lookup(c)
	if !ok {
		return nil
	}
	payload, err := con.backend.PendingItemsFor(ctx, d.APIType)
	if err != nil {
		return err
	}
	return con.applyPendingPayload(ctx, payload)
}

func (con *Console) applyPendingPayload(ctx context.Context, payload map[string][]map[string]interface{}) error {
	var errs error
	gated := false

	for key, batch := range payload {
		c, ok := category.Parse(key)
		if !ok {
			con.log.Debug("unknown pending key skipped", zap.String("key", key))
			continue
		}

		applied, err := con.store.ApplyPendingBatch(c, batch)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		if applied > 0 && con.settingEnabled(c) {
			gated = true
		}

		metrics.PendingBacklog.WithLabelValues(string(c)).Set(float64(con.store.PendingCount(c)))
	}

	con.broadcast(realtime.StreamNotifications, "notification.refreshed", con.store.Snapshot())
	con.evaluateAlert(gated)
	return errs
}

// backgroundCheck runs on the cron schedule: it asks upstream for the
// outstanding request count and, when non-zero, nudges attached tabs.
func (con *Console) backgroundCheck(ctx context.Context) {
	if !con.Active() {
		return
	}

	count, err := con.backend.NewRequestCount(ctx)
	if err != nil {
		con.log.Debug("background count check failed", zap.Error(err))
		return
	}
	if count == 0 {
		return
	}

	con.log.Debug("outstanding requests upstream", zap.Int("count", count))
	con.broadcast(realtime.StreamAlerts, "requests.outstanding", map[string]interface{}{
		"count": count,
	})
}
