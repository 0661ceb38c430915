// Package console wires the reconciliation core together: it owns the
// notification store and the alert signal, consumes the upstream feeds,
// applies the per-category settings gate, and performs accept/reject
// resolution against the CRM backend.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/propdesk/agent-console/internal/category"
	"github.com/propdesk/agent-console/internal/journal"
	"github.com/propdesk/agent-console/internal/models"
	"github.com/propdesk/agent-console/internal/realtime"
	"github.com/propdesk/agent-console/internal/reconcile"
	apperrors "github.com/propdesk/agent-console/pkg/errors"
	"github.com/propdesk/agent-console/pkg/logger"
	"github.com/propdesk/agent-console/pkg/metrics"
)

// Backend is the slice of the upstream REST client the console uses.
type Backend interface {
	NewRequestCount(ctx context.Context) (int, error)
	PendingItems(ctx context.Context) (map[string][]map[string]interface{}, error)
	PendingItemsFor(ctx context.Context, apiType string) (map[string][]map[string]interface{}, error)
	UpdateLoginTime(ctx context.Context, settings map[string]bool) error
	UpdateLogoutTime(ctx context.Context, settings map[string]bool) error
	UpdateNotificationSettings(ctx context.Context, settings map[string]bool) error
	Accept(ctx context.Context, apiType, itemID string) error
	Reject(ctx context.Context, apiType, itemID string) error
}

// Config tunes console behavior.
type Config struct {
	// PendingCountsAreSnapshots preserves the upstream dashboard's
	// overwrite-not-accumulate pending counting.
	PendingCountsAreSnapshots bool

	// RollbackOnResolveFailure restores the optimistic local removal when
	// the upstream accept/reject call fails. Off by default, matching the
	// source dashboard.
	RollbackOnResolveFailure bool

	// AlertInterval is the delay between alert replays while looping.
	AlertInterval time.Duration

	// BackgroundCheckSpec is the cron schedule for the new-request check.
	BackgroundCheckSpec string
}

// Deps bundles the console's collaborators.
type Deps struct {
	DB      *gorm.DB
	Backend Backend
	Hub     *realtime.Hub
	Journal *journal.Service
	Player  reconcile.Player
	Logger  *zap.Logger
}

// State is the full console view handed to the UI.
type State struct {
	Snapshot reconcile.Snapshot         `json:"snapshot"`
	Active   bool                       `json:"active"`
	Settings map[category.Category]bool `json:"settings"`
	Alert    reconcile.SignalState      `json:"alert"`
}

// Console is the notification reconciliation core for one agent seat.
type Console struct {
	cfg     Config
	store   *reconcile.Store
	alert   *reconcile.Signal
	backend Backend
	hub     *realtime.Hub
	journal *journal.Service
	db      *gorm.DB
	cron    *cron.Cron
	log     *zap.Logger

	mu       sync.Mutex
	active   bool
	settings map[category.Category]bool
}

// New constructs a stopped console. Settings default to enabled and are
// overlaid with the locally mirrored rows.
func New(cfg Config, deps Deps) (*Console, error) {
	if deps.Backend == nil {
		return nil, errors.New("console: backend is required")
	}
	if deps.DB == nil {
		return nil, errors.New("console: db is required")
	}

	log := deps.Logger
	if log == nil {
		log = logger.WithModule("console")
	}
	if cfg.BackgroundCheckSpec == "" {
		cfg.BackgroundCheckSpec = "@every 1m"
	}

	settings := make(map[category.Category]bool, len(category.Categories()))
	for _, c := range category.Categories() {
		settings[c] = true
	}

	var rows []models.NotificationSetting
	if err := deps.DB.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("console: load settings mirror: %w", err)
	}
	for _, row := range rows {
		if c, ok := category.Parse(row.Category); ok {
			settings[c] = row.Enabled
		}
	}

	return &Console{
		cfg:      cfg,
		store:    reconcile.NewStore(reconcile.Options{PendingCountsAreSnapshots: cfg.PendingCountsAreSnapshots}),
		alert:    reconcile.NewSignal(deps.Player, cfg.AlertInterval, log.Named("alert")),
		backend:  deps.Backend,
		hub:      deps.Hub,
		journal:  deps.Journal,
		db:       deps.DB,
		cron:     cron.New(),
		log:      log,
		settings: settings,
	}, nil
}

// Start marks the agent active upstream, loads the pending backlog, and
// begins the periodic background check.
func (con *Console) Start(ctx context.Context) error {
	if err := con.SetActive(ctx, true); err != nil {
		return err
	}

	if _, err := con.cron.AddFunc(con.cfg.BackgroundCheckSpec, func() {
		con.backgroundCheck(context.Background())
	}); err != nil {
		return fmt.Errorf("console: schedule background check: %w", err)
	}
	con.cron.Start()

	return nil
}

// Stop marks the agent inactive upstream and halts background work. Errors
// are aggregated so shutdown continues past individual failures.
func (con *Console) Stop(ctx context.Context) error {
	var errs error

	stopCtx := con.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		errs = multierr.Append(errs, ctx.Err())
	}

	if err := con.SetActive(ctx, false); err != nil {
		errs = multierr.Append(errs, err)
	}

	con.alert.Stop()
	return errs
}

// HandleLiveEvent merges one socket-delivered record. It is wired as the
// socket's OnNew handler.
func (con *Console) HandleLiveEvent(d category.Descriptor, record map[string]interface{}) {
	item, applied, err := con.store.ApplyLive(d.Category, record, false)
	if err != nil {
		con.log.Warn("live event dropped", zap.String("category", string(d.Category)), zap.Error(err))
		return
	}
	if !applied {
		return
	}

	metrics.NotificationsReceived.WithLabelValues(string(d.Category), models.SourceLive).Inc()

	if con.journal != nil {
		if err := con.journal.Record(context.Background(), item); err != nil {
			con.log.Warn("journal record failed", zap.Error(err))
		}
	}

	con.broadcast(realtime.StreamNotifications, "notification.created", item)
	con.evaluateAlert(con.settingEnabled(d.Category))
}

// HandleAssignment silently removes an item claimed by another agent. It is
// wired as the socket's OnAssigned handler.
func (con *Console) HandleAssignment(c category.Category, id string) {
	removedNew, removedPending := con.store.RemoveByAssignment(c, id)
	if !removedNew && !removedPending {
		return
	}

	metrics.NotificationsResolved.WithLabelValues(string(c), models.OutcomeClaimed).Inc()
	metrics.PendingBacklog.WithLabelValues(string(c)).Set(float64(con.store.PendingCount(c)))

	if con.journal != nil {
		if err := con.journal.MarkResolved(context.Background(), c, id, models.OutcomeClaimed); err != nil {
			con.log.Warn("journal mark failed", zap.Error(err))
		}
	}

	con.broadcast(realtime.StreamNotifications, "notification.claimed", map[string]interface{}{
		"category": c,
		"id":       id,
	})
	con.evaluateAlert(true)
}

// HandleSocketDown reacts to the socket exhausting its reconnect budget.
// Live updates stop; the poller keeps feeding the store.
func (con *Console) HandleSocketDown(err error) {
	con.log.Warn("live feed down; relying on pending polls", zap.Error(err))
}

// Resolution outcomes accepted by Resolve.
const (
	OutcomeAccept = "accept"
	OutcomeReject = "reject"
)

// Resolve accepts or rejects an item: the local removal is optimistic, then
// the upstream mutation runs. With rollback configured, a failed mutation
// restores the item; otherwise the local removal stands until the next poll
// reconciles it. Accepting returns the UI navigation target.
func (con *Console) Resolve(ctx context.Context, c category.Category, id string, wasPending bool, outcome string) (string, error) {
	d, ok := category.Lookup(c)
	if !ok {
		return "", apperrors.ErrUnknownCategory
	}

	item, found := con.store.Resolve(c, id, wasPending)
	if !found {
		return "", apperrors.ErrNotFound
	}

	var err error
	journalOutcome := models.OutcomeAccepted
	switch outcome {
	case OutcomeAccept:
		err = con.backend.Accept(ctx, d.APIType, id)
	case OutcomeReject:
		journalOutcome = models.OutcomeRejected
		err = con.backend.Reject(ctx, d.APIType, id)
	default:
		con.store.Restore(item)
		return "", apperrors.NewBadRequest(fmt.Sprintf("unknown outcome %q", outcome))
	}

	if err != nil {
		if con.cfg.RollbackOnResolveFailure {
			con.store.Restore(item)
		}
		con.log.Warn("upstream resolve failed",
			zap.String("category", string(c)), zap.String("id", id), zap.Error(err))
		return "", apperrors.ErrUpstreamUnavailable.WithInternal(err)
	}

	metrics.NotificationsResolved.WithLabelValues(string(c), journalOutcome).Inc()
	metrics.PendingBacklog.WithLabelValues(string(c)).Set(float64(con.store.PendingCount(c)))

	if con.journal != nil {
		if jerr := con.journal.MarkResolved(ctx, c, id, journalOutcome); jerr != nil {
			con.log.Warn("journal mark failed", zap.Error(jerr))
		}
	}

	con.broadcast(realtime.StreamNotifications, "notification.resolved", map[string]interface{}{
		"category": c,
		"id":       id,
		"outcome":  journalOutcome,
	})
	con.evaluateAlert(true)

	if outcome == OutcomeAccept {
		return d.NavigationTarget, nil
	}
	return "", nil
}

// ToggleSetting flips one category's alert gate. The agent must be active.
// The new value is persisted upstream before taking effect locally;
// disabling clears the category's pending queue, enabling refreshes it.
func (con *Console) ToggleSetting(ctx context.Context, c category.Category) (bool, error) {
	if _, ok := category.Lookup(c); !ok {
		return false, apperrors.ErrUnknownCategory
	}

	con.mu.Lock()
	if !con.active {
		con.mu.Unlock()
		return false, apperrors.ErrAgentInactive
	}
	next := make(map[string]bool, len(con.settings))
	for k, v := range con.settings {
		next[string(k)] = v
	}
	enabled := !con.settings[c]
	next[string(c)] = enabled
	con.mu.Unlock()

	if err := con.backend.UpdateNotificationSettings(ctx, next); err != nil {
		return !enabled, apperrors.ErrUpstreamUnavailable.WithInternal(err)
	}

	con.mu.Lock()
	con.settings[c] = enabled
	con.mu.Unlock()

	con.persistSetting(ctx, c, enabled)

	if enabled {
		if err := con.RefreshCategory(ctx, c); err != nil {
			con.log.Warn("pending refresh after enable failed",
				zap.String("category", string(c)), zap.Error(err))
		}
	} else {
		dropped := con.store.ClearPending(c)
		metrics.PendingBacklog.WithLabelValues(string(c)).Set(0)
		con.log.Info("pending queue cleared",
			zap.String("category", string(c)), zap.Int("dropped", dropped))
		con.broadcast(realtime.StreamNotifications, "notification.cleared", map[string]interface{}{
			"category": c,
		})
		con.evaluateAlert(true)
	}

	con.broadcast(realtime.StreamPresence, "settings.changed", con.Settings())
	return enabled, nil
}

// SetActive flips agent presence. Going inactive zeroes the settings sent
// upstream and stops the alert; going active re-sends the real settings and
// reloads the pending backlog.
func (con *Console) SetActive(ctx context.Context, active bool) error {
	con.mu.Lock()
	if con.active == active {
		con.mu.Unlock()
		return nil
	}
	settings := make(map[string]bool, len(con.settings))
	for k, v := range con.settings {
		if active {
			settings[string(k)] = v
		} else {
			settings[string(k)] = false
		}
	}
	con.active = active
	con.mu.Unlock()

	var err error
	if active {
		err = con.backend.UpdateLoginTime(ctx, settings)
	} else {
		err = con.backend.UpdateLogoutTime(ctx, settings)
	}
	if err != nil {
		// Presence still flips locally; the next successful call converges.
		con.log.Warn("presence update failed upstream", zap.Bool("active", active), zap.Error(err))
	}

	con.broadcast(realtime.StreamPresence, "presence.changed", map[string]interface{}{
		"active": active,
	})

	if active {
		if perr := con.RefreshPending(ctx); perr != nil {
			con.log.Warn("pending refresh on activate failed", zap.Error(perr))
		}
	} else {
		con.evaluateAlert(true)
	}
	return nil
}

// Active reports agent presence.
func (con *Console) Active() bool {
	con.mu.Lock()
	defer con.mu.Unlock()
	return con.active
}

// Settings returns a copy of the per-category gate.
func (con *Console) Settings() map[category.Category]bool {
	con.mu.Lock()
	defer con.mu.Unlock()

	out := make(map[category.Category]bool, len(con.settings))
	for k, v := range con.settings {
		out[k] = v
	}
	return out
}

// CurrentState returns everything the UI renders.
func (con *Console) CurrentState() State {
	return State{
		Snapshot: con.store.Snapshot(),
		Active:   con.Active(),
		Settings: con.Settings(),
		Alert:    con.alert.State(),
	}
}

// AlertState exposes the signal state, primarily for tests and the UI badge.
func (con *Console) AlertState() reconcile.SignalState {
	return con.alert.State()
}

// OnUIAttach treats a newly attached tab like a foreground transition and
// refreshes the pending backlog without blocking the attach.
func (con *Console) OnUIAttach() {
	go func() {
		if err := con.RefreshPending(context.Background()); err != nil {
			con.log.Debug("attach refresh failed", zap.Error(err))
		}
	}()
}

func (con *Console) settingEnabled(c category.Category) bool {
	con.mu.Lock()
	defer con.mu.Unlock()
	return con.settings[c]
}

func (con *Console) evaluateAlert(gate bool) {
	con.alert.Evaluate(con.store.TotalCount(), con.Active(), gate)
}

func (con *Console) broadcast(stream, event string, data interface{}) {
	if con.hub == nil {
		return
	}
	con.hub.Broadcast(stream, realtime.Message{Event: event, Data: data})
}

func (con *Console) persistSetting(ctx context.Context, c category.Category, enabled bool) {
	row := models.NotificationSetting{Category: string(c), Enabled: enabled}
	err := con.db.WithContext(ctx).
		Where("category = ?", string(c)).
		Assign(map[string]interface{}{"enabled": enabled}).
		FirstOrCreate(&row).Error
	if err != nil {
		con.log.Warn("settings mirror write failed", zap.String("category", string(c)), zap.Error(err))
	}
}
