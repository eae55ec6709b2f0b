package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/infra"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/remote"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
)

// ErrSyncInFlight is returned when PerformSync is called while another run
// is still active. Handlers map it to 409.
var ErrSyncInFlight = errors.New("a sync is already in progress")

// Stock deficits up to this size are auto-compensated when applying pulled
// sales: the sale is accepted, stock is clamped at zero and the invoice is
// flagged for supervisor review. Larger deficits leave stock untouched.
const stockDeficitThreshold = 3

const pushBatchSize = 50

var syncedCollections = []string{
	model.CollectionProducts,
	model.CollectionInvoices,
	model.CollectionCustomers,
}

// AuthFunc re-establishes remote credentials after the operator answers the
// re-auth dialog. Nil means unauthorized errors are terminal for the run.
type AuthFunc func(ctx context.Context, creds Credentials) error

// EngineConfig bundles the engine's collaborators.
type EngineConfig struct {
	Changes   repository.ChangeLogRepository
	State     repository.SyncStateRepository
	Products  repository.ProductRepository
	Invoices  repository.InvoiceRepository
	Customers repository.CustomerRepository
	Movements repository.StockMovementRepository
	Remote    remote.Store
	Breaker   *infra.CircuitBreaker
	Hub       *Hub
	Reauth    *ReauthRegistry
	AuthFn    AuthFunc
	DeviceID  string
	// MaxAttempts is how many pushes a change gets before it is parked as
	// failed and handed to the dead letter queue.
	MaxAttempts int
	// RetryInterval is the background retry loop's tick period.
	RetryInterval time.Duration
	Logger        zerolog.Logger
}

// Engine reconciles the local database with the remote document store.
// All local mutations flow through the outbox (change_log); the engine
// drains it on demand and pulls remote changes past the stored cursor.
type Engine struct {
	changes   repository.ChangeLogRepository
	state     repository.SyncStateRepository
	products  repository.ProductRepository
	invoices  repository.InvoiceRepository
	customers repository.CustomerRepository
	movements repository.StockMovementRepository
	remote    remote.Store
	cb        *infra.CircuitBreaker
	hub       *Hub
	reauth    *ReauthRegistry
	authFn    AuthFunc
	deviceID  string
	maxTries  int
	retryTick time.Duration
	log       zerolog.Logger

	inFlight atomic.Bool
	online   atomic.Bool
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	return &Engine{
		changes:   cfg.Changes,
		state:     cfg.State,
		products:  cfg.Products,
		invoices:  cfg.Invoices,
		customers: cfg.Customers,
		movements: cfg.Movements,
		remote:    cfg.Remote,
		cb:        cfg.Breaker,
		hub:       cfg.Hub,
		reauth:    cfg.Reauth,
		authFn:    cfg.AuthFn,
		deviceID:  cfg.DeviceID,
		maxTries:  cfg.MaxAttempts,
		retryTick: cfg.RetryInterval,
		log:       cfg.Logger.With().Str("component", "sync").Logger(),
	}
}

// runTx opens a transaction on db, or calls fn with a nil handle when there
// is no database (unit tests wire repos with no gorm backing).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ─── Status ─────────────────────────────────────────────────────────────────

// CheckUnsynced reports what a sync would move, without moving anything.
// It is read-only and safe to call repeatedly: no cursor advances, no
// outbox row changes state. Remote unreachability degrades the answer to
// local-only counts rather than failing the call.
func (e *Engine) CheckUnsynced(ctx context.Context) (*dto.SyncStatusResponse, error) {
	pending, err := e.changes.CountByStatus(ctx, model.ChangePending)
	if err != nil {
		return nil, fmt.Errorf("count pending changes: %w", err)
	}
	conflicts, err := e.changes.CountByStatus(ctx, model.ChangeConflict)
	if err != nil {
		return nil, fmt.Errorf("count conflicts: %w", err)
	}

	st, err := e.state.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	since := time.Time{}
	if st.LastPulledAt != nil {
		since = *st.LastPulledAt
	}

	resp := &dto.SyncStatusResponse{
		Success:        true,
		UnsyncedCounts: make(map[string]dto.CollectionCounts, len(syncedCollections)),
	}
	for _, col := range syncedCollections {
		counts := dto.CollectionCounts{
			ToUpload:  pending[col],
			Conflicts: conflicts[col],
		}
		n, err := e.remote.CountChangedSince(ctx, col, since, e.deviceID)
		if err != nil {
			// Offline: answer with what is known locally.
			e.log.Debug().Err(err).Str("collection", col).Msg("remote count unavailable")
		} else {
			counts.ToDownload = n
		}
		counts.Total = counts.ToUpload + counts.ToDownload + counts.Conflicts
		resp.UnsyncedCounts[col] = counts
		resp.TotalUnsyncedItems += counts.Total
	}
	resp.HasUnsyncedData = resp.TotalUnsyncedItems > 0
	return resp, nil
}

// ─── Full sync ──────────────────────────────────────────────────────────────

// PerformSync runs one pull-then-push pass over every synced collection.
// Only one run may be active at a time; concurrent callers get
// ErrSyncInFlight. When nothing is pending in either direction the call
// succeeds immediately and emits no progress events.
func (e *Engine) PerformSync(ctx context.Context) (*dto.SyncResultResponse, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSyncInFlight
	}
	defer e.inFlight.Store(false)

	status, err := e.CheckUnsynced(ctx)
	if err != nil {
		return nil, err
	}
	if !status.HasUnsyncedData {
		return &dto.SyncResultResponse{
			Success:   true,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Message:   "nothing to sync",
		}, nil
	}

	e.hub.Publish(Event{Type: EventSyncStarted})
	e.log.Info().Int("pending", status.TotalUnsyncedItems).Msg("sync started")

	st, err := e.state.Get(ctx)
	if err != nil {
		return e.fail(err)
	}
	since := time.Time{}
	if st.LastPulledAt != nil {
		since = *st.LastPulledAt
	}
	highWater := since

	for _, col := range syncedCollections {
		e.hub.Publish(Event{Type: EventSyncProgress, Payload: map[string]any{"collection": col}})

		pulled, err := e.pullCollection(ctx, col, since, &highWater)
		if err != nil {
			return e.fail(fmt.Errorf("pull %s: %w", col, err))
		}
		pushed, err := e.pushCollection(ctx, col)
		if err != nil {
			return e.fail(fmt.Errorf("push %s: %w", col, err))
		}
		e.log.Info().Str("collection", col).Int("pulled", pulled).Int("pushed", pushed).Msg("collection synced")
	}

	now := time.Now().UTC()
	st.LastSyncTime = &now
	if highWater.After(since) {
		st.LastPulledAt = &highWater
	}
	if err := e.state.Save(ctx, st); err != nil {
		return e.fail(fmt.Errorf("save sync state: %w", err))
	}

	ts := now.Format(time.RFC3339)
	e.hub.Publish(Event{Type: EventSyncCompleted, Payload: map[string]any{"success": true, "timestamp": ts}})
	e.setOnline(true)
	return &dto.SyncResultResponse{Success: true, Timestamp: ts}, nil
}

func (e *Engine) fail(err error) (*dto.SyncResultResponse, error) {
	kind := remote.KindOf(err)
	e.log.Error().Err(err).Stringer("kind", kind).Msg("sync failed")
	e.hub.Publish(Event{Type: EventSyncCompleted, Payload: map[string]any{
		"success": false,
		"error":   err.Error(),
	}})
	if kind == remote.KindTransient {
		e.setOnline(false)
	}
	return &dto.SyncResultResponse{Success: false, Message: err.Error()}, nil
}

// ─── Pull ───────────────────────────────────────────────────────────────────

func (e *Engine) pullCollection(ctx context.Context, col string, since time.Time, highWater *time.Time) (int, error) {
	var docs []remote.Document
	err := e.cb.Execute(func() error {
		var lerr error
		docs, lerr = e.remote.ListChangedSince(ctx, col, since, e.deviceID)
		return lerr
	})
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range docs {
		doc := docs[i]
		if err := e.applyRemote(ctx, col, doc); err != nil {
			return applied, fmt.Errorf("apply %s/%s: %w", col, doc.ID, err)
		}
		if doc.UpdatedAt.After(*highWater) {
			*highWater = doc.UpdatedAt
		}
		applied++
	}
	return applied, nil
}

func (e *Engine) applyRemote(ctx context.Context, col string, doc remote.Document) error {
	recordID, err := uuid.Parse(doc.ID)
	if err != nil {
		return fmt.Errorf("remote document id %q: %w", doc.ID, err)
	}

	// A pending local change for the same record means both sides edited
	// since the last sync. Last write wins; the loser is preserved in the
	// outbox with status=conflict for later review.
	pendingChange, err := e.changes.FindPendingByRecord(ctx, col, recordID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		pendingChange = nil
	}

	switch col {
	case model.CollectionProducts:
		return e.applyRemoteProduct(ctx, doc, pendingChange)
	case model.CollectionInvoices:
		return e.applyRemoteInvoice(ctx, doc, pendingChange)
	case model.CollectionCustomers:
		return e.applyRemoteCustomer(ctx, doc, pendingChange)
	default:
		return fmt.Errorf("unknown collection %q", col)
	}
}

func (e *Engine) markConflict(ctx context.Context, change *model.ChangeLog, winner Winner) error {
	if change == nil {
		return nil
	}
	e.log.Warn().
		Str("collection", change.Collection).
		Str("record", change.RecordID.String()).
		Stringer("winner", winner).
		Msg("sync conflict")
	if winner == WinnerLocal {
		// Local copy stands and its pending change will overwrite the
		// remote on push. Nothing to park.
		return nil
	}
	return e.changes.MarkStatus(ctx, change.ID, model.ChangeConflict)
}

func (e *Engine) applyRemoteProduct(ctx context.Context, doc remote.Document, pending *model.ChangeLog) error {
	incoming, err := DecodeProduct(doc.Data)
	if err != nil {
		return err
	}

	local, err := e.products.FindByID(ctx, incoming.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		local = nil
	}

	if local == nil {
		if doc.Deleted {
			return nil
		}
		return e.products.Create(ctx, nil, incoming)
	}

	if pending != nil {
		winner := Resolve(local.UpdatedAt, local.Revision, doc.UpdatedAt, doc.Revision)
		if err := e.markConflict(ctx, pending, winner); err != nil {
			return err
		}
		if winner == WinnerLocal {
			return nil
		}
	}

	if doc.Deleted {
		return e.products.SoftDelete(ctx, local.ID)
	}

	// Stock is intentionally not copied from the remote snapshot: it moves
	// only through sale and adjustment deltas, which commute across devices.
	incoming.Stock = local.Stock
	return e.products.Update(ctx, nil, incoming)
}

func (e *Engine) applyRemoteCustomer(ctx context.Context, doc remote.Document, pending *model.ChangeLog) error {
	incoming, err := DecodeCustomer(doc.Data)
	if err != nil {
		return err
	}

	local, err := e.customers.FindByID(ctx, incoming.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		local = nil
	}

	if local == nil {
		if doc.Deleted {
			return nil
		}
		return e.customers.Create(ctx, nil, incoming)
	}

	if pending != nil {
		winner := Resolve(local.UpdatedAt, local.Revision, doc.UpdatedAt, doc.Revision)
		if err := e.markConflict(ctx, pending, winner); err != nil {
			return err
		}
		if winner == WinnerLocal {
			return nil
		}
	}

	if doc.Deleted {
		return e.customers.SoftDelete(ctx, local.ID)
	}
	return e.customers.Update(ctx, nil, incoming)
}

// applyRemoteInvoice inserts a sale finalized on another device. Invoices
// are immutable after finalization, so an existing local copy only changes
// if the remote revision advanced (edit-and-resave on the other side).
// Stock effects are replayed as movement deltas inside one transaction.
func (e *Engine) applyRemoteInvoice(ctx context.Context, doc remote.Document, pending *model.ChangeLog) error {
	incoming, err := DecodeInvoice(doc.Data)
	if err != nil {
		return err
	}

	local, err := e.invoices.FindByID(ctx, incoming.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		local = nil
	}
	if local == nil && incoming.ClientID != nil {
		// Replays of our own pushes, or the same offline sale arriving via
		// two paths, dedupe on the client-generated id.
		local, err = e.invoices.FindByClientID(ctx, *incoming.ClientID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			local = nil
		}
	}

	if local != nil {
		if pending != nil {
			winner := Resolve(local.UpdatedAt, local.Revision, doc.UpdatedAt, doc.Revision)
			if err := e.markConflict(ctx, pending, winner); err != nil {
				return err
			}
			if winner == WinnerLocal {
				return nil
			}
		}
		if doc.Revision <= local.Revision {
			return nil
		}
		return runTx(ctx, e.invoices.DB(), func(tx *gorm.DB) error {
			items := incoming.Items
			incoming.Items = nil
			incoming.Number = local.Number
			if err := e.invoices.Update(ctx, tx, incoming); err != nil {
				return err
			}
			return e.invoices.ReplaceItemsTx(tx, incoming.ID, items)
		})
	}

	return runTx(ctx, e.invoices.DB(), func(tx *gorm.DB) error {
		// Display numbers are per-device sequences; identity across devices
		// is the uuid and client id. Pulled invoices get a local number.
		num, err := e.invoices.NextNumber(ctx, tx)
		if err != nil {
			return err
		}
		incoming.Number = num
		if err := e.invoices.Create(ctx, tx, incoming); err != nil {
			return err
		}
		return e.applyInvoiceStock(ctx, tx, incoming)
	})
}

// applyInvoiceStock replays a pulled invoice's stock effect. A deficit of
// up to stockDeficitThreshold units is auto-compensated: stock clamps at
// zero and the invoice is flagged. Larger deficits skip the decrement
// entirely so a bad remote row cannot wreck local inventory.
func (e *Engine) applyInvoiceStock(ctx context.Context, tx *gorm.DB, inv *model.Invoice) error {
	if inv.Status == model.InvoiceVoided {
		return nil
	}
	flagged := false
	for _, item := range inv.Items {
		if item.ProductID == nil || item.Quantity == 0 {
			continue
		}
		delta := -item.Quantity
		if inv.IsRefund || item.IsRefund {
			delta = item.Quantity
		}

		p, err := e.products.FindByIDTx(tx, *item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return err
		}

		after := p.Stock + delta
		if after < 0 {
			deficit := -after
			if deficit > stockDeficitThreshold {
				e.log.Warn().
					Str("invoice", inv.ID.String()).
					Str("product", p.ID.String()).
					Int("deficit", deficit).
					Msg("stock deficit over threshold, decrement skipped")
				flagged = true
				continue
			}
			delta = -p.Stock
			after = 0
			flagged = true
		}

		if err := e.products.UpdateStockTx(tx, p.ID, delta); err != nil {
			return err
		}
		mv := &model.StockMovement{
			ProductID:   p.ID,
			Type:        model.MovementSync,
			Quantity:    delta,
			StockBefore: p.Stock,
			StockAfter:  after,
			Reason:      "synced invoice",
			ReferenceID: &inv.ID,
		}
		if err := e.movements.CreateTx(tx, mv); err != nil {
			return err
		}
	}
	if flagged && !inv.StockConflict {
		inv.StockConflict = true
		return e.invoices.Update(ctx, tx, inv)
	}
	return nil
}

// ─── Push ───────────────────────────────────────────────────────────────────

func (e *Engine) pushCollection(ctx context.Context, col string) (int, error) {
	pushed := 0
	for {
		batch, err := e.changes.ListPending(ctx, col, pushBatchSize)
		if err != nil {
			return pushed, err
		}
		if len(batch) == 0 {
			return pushed, nil
		}
		for i := range batch {
			if err := e.pushChange(ctx, &batch[i]); err != nil {
				return pushed, err
			}
			pushed++
		}
		if len(batch) < pushBatchSize {
			return pushed, nil
		}
	}
}

// pushChange uploads one outbox row. Remote-side conflicts (the remote copy
// advanced past the revision this change was captured at) park the row as
// conflict and pull the remote copy in. Transient failures schedule a retry;
// unauthorized failures go through the re-auth channel once.
func (e *Engine) pushChange(ctx context.Context, change *model.ChangeLog) error {
	if err := e.changes.MarkStatus(ctx, change.ID, model.ChangeInflight); err != nil {
		return err
	}

	err := e.uploadChange(ctx, change)
	if err == nil {
		return e.changes.MarkStatus(ctx, change.ID, model.ChangeSynced)
	}

	switch remote.KindOf(err) {
	case remote.KindConflict:
		if merr := e.changes.MarkStatus(ctx, change.ID, model.ChangeConflict); merr != nil {
			return merr
		}
		e.log.Warn().Str("record", change.RecordID.String()).Msg("push lost to newer remote write")
		return nil
	case remote.KindUnauthorized:
		if rerr := e.reauthenticate(ctx); rerr != nil {
			e.scheduleRetry(ctx, change, err)
			return err
		}
		if err2 := e.uploadChange(ctx, change); err2 != nil {
			e.scheduleRetry(ctx, change, err2)
			return err2
		}
		return e.changes.MarkStatus(ctx, change.ID, model.ChangeSynced)
	default:
		e.scheduleRetry(ctx, change, err)
		return err
	}
}

func (e *Engine) uploadChange(ctx context.Context, change *model.ChangeLog) error {
	return e.cb.Execute(func() error {
		if change.Op != model.ChangeOpDelete {
			// Guard against lost updates: if the remote revision moved past
			// the one this change was captured at, the remote write is newer.
			current, err := e.remote.Get(ctx, change.Collection, change.RecordID.String())
			if err != nil && !errors.Is(err, remote.ErrNotFound) {
				return err
			}
			if current != nil && current.Revision > change.Revision &&
				current.UpdatedAt.After(change.UpdatedAt) {
				return &remote.Error{Kind: remote.KindConflict, Err: fmt.Errorf("remote revision %d ahead of %d", current.Revision, change.Revision)}
			}
		}
		return e.remote.Upsert(ctx, change.Collection, remote.Document{
			ID:        change.RecordID.String(),
			Revision:  change.Revision,
			UpdatedAt: time.Now().UTC(),
			DeviceID:  e.deviceID,
			Deleted:   change.Op == model.ChangeOpDelete,
			Data:      change.Payload,
		})
	})
}

// reauthenticate runs the one-shot credential prompt and, when answered,
// re-establishes the remote session.
func (e *Engine) reauthenticate(ctx context.Context) error {
	if e.reauth == nil || e.authFn == nil {
		return errors.New("no re-auth channel configured")
	}
	creds, err := e.reauth.Request(ctx)
	if err != nil {
		return err
	}
	return e.authFn(ctx, creds)
}

func (e *Engine) scheduleRetry(ctx context.Context, change *model.ChangeLog, cause error) {
	change.Attempts++
	msg := cause.Error()
	change.LastError = &msg

	if change.Attempts >= e.maxTries {
		change.Status = model.ChangeFailed
		change.NextAttemptAt = nil
		e.log.Error().Str("record", change.RecordID.String()).Int("attempts", change.Attempts).Msg("change exhausted retries")
	} else {
		next := time.Now().Add(retryBackoff(change.Attempts))
		change.Status = model.ChangePending
		change.NextAttemptAt = &next
	}
	if err := e.changes.Update(ctx, change); err != nil {
		e.log.Error().Err(err).Msg("persist retry schedule")
	}
}

// ─── Online status ──────────────────────────────────────────────────────────

// Online reports the last observed connectivity state.
func (e *Engine) Online() bool { return e.online.Load() }

func (e *Engine) setOnline(v bool) {
	if e.online.Swap(v) != v {
		e.hub.Publish(Event{Type: EventOnlineStatusChanged, Payload: map[string]any{"online": v}})
		e.log.Info().Bool("online", v).Msg("online status changed")
	}
}

// CheckOnline pings the remote store and publishes a transition event if
// connectivity flipped.
func (e *Engine) CheckOnline(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	e.setOnline(e.remote.Ping(pingCtx) == nil)
	return e.online.Load()
}

// LastSync returns the timestamp of the last successful full sync, or nil
// if no sync has completed on this device yet.
func (e *Engine) LastSync(ctx context.Context) (*time.Time, error) {
	st, err := e.state.Get(ctx)
	if err != nil {
		return nil, err
	}
	return st.LastSyncTime, nil
}
