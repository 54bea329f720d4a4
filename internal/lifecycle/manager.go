package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roach88/homestore/internal/compaction"
	"github.com/roach88/homestore/internal/config"
	"github.com/roach88/homestore/internal/metrics"
	"github.com/roach88/homestore/internal/migrate"
	"github.com/roach88/homestore/internal/schema"
	"github.com/roach88/homestore/internal/store"
)

// In-memory store identifiers.
const (
	FallbackIdentifier  = "Fallback"
	TestIdentifier      = "Tests"
	EphemeralIdentifier = "Memory"
)

// FailureObserver is told about an unrecoverable open or migration failure.
// It is the UI's cue to offer "delete store" (DestroyStore, then restart)
// or "quit". It is called at most once per Manager, after the open has
// settled and without the manager's lock held, so it may call back into it.
type FailureObserver func(message string, err error)

// Handle is an open store together with how it was obtained.
type Handle struct {
	*store.Store

	degraded bool
	cause    error
}

// Degraded reports whether this is the in-memory fallback standing in for
// the live store. Data written to a degraded handle is not persisted.
func (h *Handle) Degraded() bool {
	return h.degraded
}

// Cause returns the error that forced the fallback, or nil.
func (h *Handle) Cause() error {
	return h.cause
}

// Options configures a Manager. Zero fields take the defaults noted.
type Options struct {
	// Resolver locates the container directory. Default: StaticDir("").
	Resolver PathResolver

	// Engine migrates the live store. Default: schema.NewEngine.
	Engine *migrate.Engine

	// Policy decides compaction. Default: compaction.DefaultPolicy().
	Policy compaction.Policy

	StoreDirName string // default "dataStore"
	StoreFile    string // default "store.db"
	BackupFile   string // default "backup.db"

	// TestMarkerEnv names the variable that selects the test store.
	TestMarkerEnv string

	// LookupEnv reads the environment. Default: os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// Observer receives unrecoverable failures. Without one the manager
	// only logs; deciding to exit is the caller's business.
	Observer FailureObserver

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// OptionsFromConfig fills Options from a loaded configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Resolver:      StaticDir(cfg.DataDir),
		Policy:        cfg.Compaction,
		StoreDirName:  cfg.StoreDirName,
		StoreFile:     cfg.StoreFile,
		BackupFile:    cfg.BackupFile,
		TestMarkerEnv: cfg.TestMarkerEnv,
	}
}

// Manager owns the live store handle for the process.
type Manager struct {
	resolver      PathResolver
	engine        *migrate.Engine
	policy        compaction.Policy
	storeDirName  string
	storeFile     string
	backupFile    string
	testMarkerEnv string
	lookupEnv     func(string) (string, bool)
	observer      FailureObserver
	metrics       *metrics.Metrics
	log           *slog.Logger

	mu       sync.Mutex
	state    State
	dir      string
	live     *Handle
	reported bool
	notice   *OpenError // reported under mu, delivered after unlock
}

// New creates a manager. No file is touched until OpenLiveStore.
func New(opts Options) (*Manager, error) {
	m := &Manager{
		resolver:      opts.Resolver,
		engine:        opts.Engine,
		policy:        opts.Policy,
		storeDirName:  opts.StoreDirName,
		storeFile:     opts.StoreFile,
		backupFile:    opts.BackupFile,
		testMarkerEnv: opts.TestMarkerEnv,
		lookupEnv:     opts.LookupEnv,
		observer:      opts.Observer,
		metrics:       opts.Metrics,
		log:           opts.Logger,
	}

	defaults := config.Default()
	if m.resolver == nil {
		m.resolver = StaticDir("")
	}
	if m.engine == nil {
		e, err := schema.NewEngine(schema.Options{}, migrate.WithLogger(opts.Logger))
		if err != nil {
			return nil, err
		}
		m.engine = e
	}
	if m.policy == (compaction.Policy{}) {
		m.policy = compaction.DefaultPolicy()
	}
	if err := m.policy.Validate(); err != nil {
		return nil, err
	}
	if m.storeDirName == "" {
		m.storeDirName = defaults.StoreDirName
	}
	if m.storeFile == "" {
		m.storeFile = defaults.StoreFile
	}
	if m.backupFile == "" {
		m.backupFile = defaults.BackupFile
	}
	if m.testMarkerEnv == "" {
		m.testMarkerEnv = defaults.TestMarkerEnv
	}
	if m.lookupEnv == nil {
		m.lookupEnv = os.LookupEnv
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StoreDirectory returns the resolved store directory.
func (m *Manager) StoreDirectory() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeDirectory()
}

// StorePath returns the live store file path.
func (m *Manager) StorePath() string {
	return filepath.Join(m.StoreDirectory(), m.storeFile)
}

// InTestHarness reports whether the test marker is set in the environment.
func (m *Manager) InTestHarness() bool {
	v, ok := m.lookupEnv(m.testMarkerEnv)
	return ok && v != ""
}

// OpenLiveStore returns the live store, opening and migrating it on first
// use. Later calls return the same handle.
//
// Under a test harness it returns the test store instead, owned by the
// manager like the live store. If the file cannot be opened or a migration
// step fails, the failure is logged and reported and an in-memory fallback
// handle is returned with a nil error. A store written
// by a newer binary is not opened at all: the result is a nil handle and an
// *OpenError of kind VersionRegression.
//
// The open is not cancellable once started; ctx is used for logging and
// passed to the store only for values.
func (m *Manager) OpenLiveStore(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	h, err := m.openLocked(ctx)
	notice := m.notice
	m.notice = nil
	m.mu.Unlock()

	if notice != nil && m.observer != nil {
		m.observer(notice.Message(), notice)
	}
	return h, err
}

func (m *Manager) openLocked(ctx context.Context) (*Handle, error) {
	if m.live != nil {
		return m.live, nil
	}
	if m.InTestHarness() {
		h, err := m.OpenTestStore()
		if err != nil {
			return nil, err
		}
		m.live = h
		m.state = StateReady
		return h, nil
	}
	ctx = context.WithoutCancel(ctx)

	m.state = StateOpening
	dir := m.storeDirectory()
	path := filepath.Join(dir, m.storeFile)

	if err := ensureDirectory(dir); err != nil {
		// Opening below fails too and degrades; report the cause here.
		m.report(&OpenError{Kind: OpenFailure, Path: dir, Err: err})
	}

	s, err := store.Open(path, store.WithLogger(m.log), store.WithWriteRecorder(m.metrics))
	if err != nil {
		return m.degrade(ctx, &OpenError{Kind: OpenFailure, Path: path, Err: err})
	}

	if s.Created() {
		if err := m.engine.Initialize(ctx, migrate.ForStore(s)); err != nil {
			s.Close()
			return m.degrade(ctx, &OpenError{Kind: OpenFailure, Path: path, Err: err})
		}
		m.log.Info("created store", "path", path, "schema_version", m.engine.Target())
	} else {
		m.state = StateMigrating
		start := time.Now()
		res, err := m.engine.Migrate(ctx, migrate.ForStore(s))
		m.metrics.ObserveMigration(len(res.Applied), time.Since(start))
		if err != nil {
			s.Close()
			if migrate.IsVersionRegression(err) {
				return nil, m.fail(&OpenError{Kind: VersionRegression, Path: path, Err: err})
			}
			kind := OpenFailure
			if migrate.IsStepFailed(err) {
				kind = StepFailed
			}
			return m.degrade(ctx, &OpenError{Kind: kind, Path: path, Err: err})
		}
		if res.Migrated() {
			m.log.Info("migrated store", "path", path,
				"from", res.From, "to", res.To, "steps", len(res.Applied))
		}
	}

	m.scheduleCompaction(ctx, s)

	m.live = &Handle{Store: s}
	m.state = StateReady
	m.metrics.ObserveOpen(metrics.OpenReady)
	m.metrics.ObserveSchemaVersion(m.engine.Target())
	return m.live, nil
}

// scheduleCompaction evaluates the policy against the file as opened and
// flags the store to be compacted by its next open. Failures only log.
func (m *Manager) scheduleCompaction(ctx context.Context, s *store.Store) {
	usage, err := s.SpaceUsage(ctx)
	if err != nil {
		m.log.Warn("unable to read store space usage", "error", err)
		return
	}
	m.metrics.ObserveSpace(usage.FileBytes, usage.UsedBytes)
	if !m.policy.ShouldCompact(usage.FileBytes, usage.UsedBytes) {
		return
	}
	if err := s.MarkCompaction(ctx); err != nil {
		m.log.Warn("unable to schedule compaction", "error", err)
		return
	}
	m.metrics.ObserveCompactionScheduled()
	m.log.Info("store compaction scheduled for next open",
		"file_bytes", usage.FileBytes, "used_bytes", usage.UsedBytes)
}

// degrade reports cause and substitutes an in-memory store. Called with mu held.
func (m *Manager) degrade(ctx context.Context, cause *OpenError) (*Handle, error) {
	m.report(cause)

	s, err := m.openMemory(ctx, FallbackIdentifier)
	if err != nil {
		m.state = StateFailed
		m.metrics.ObserveOpen(metrics.OpenFailed)
		return nil, fmt.Errorf("open fallback store: %w", errors.Join(cause, err))
	}

	m.live = &Handle{Store: s, degraded: true, cause: cause}
	m.state = StateDegraded
	m.metrics.ObserveOpen(metrics.OpenDegraded)
	m.log.Warn("running on in-memory fallback store; changes will not be saved",
		"kind", cause.Kind.String())
	return m.live, nil
}

// fail reports a fatal cause. Called with mu held.
func (m *Manager) fail(cause *OpenError) error {
	m.report(cause)
	m.state = StateFailed
	m.metrics.ObserveOpen(metrics.OpenFailed)
	return cause
}

// report logs cause and queues it for the observer the first time only.
// Called with mu held.
func (m *Manager) report(cause *OpenError) {
	m.log.Error("store unavailable",
		"kind", cause.Kind.String(),
		"path", cause.Path,
		"error", cause.Err,
	)
	if m.reported {
		return
	}
	m.reported = true
	m.notice = cause
}

func (m *Manager) openMemory(ctx context.Context, identifier string) (*store.Store, error) {
	s, err := store.OpenMemory(identifier, store.WithLogger(m.log), store.WithWriteRecorder(m.metrics))
	if err != nil {
		return nil, err
	}
	if err := m.engine.Initialize(ctx, migrate.ForStore(s)); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// OpenTestStore returns an in-memory store for automated tests. It never
// touches the live path and never migrates.
func (m *Manager) OpenTestStore() (*Handle, error) {
	return m.OpenEphemeralStore(TestIdentifier)
}

// OpenEphemeralStore returns an in-memory store named identifier, stamped
// with the current schema version. Opens with the same identifier share
// data while any of them is open. An empty identifier means "Memory".
func (m *Manager) OpenEphemeralStore(identifier string) (*Handle, error) {
	if identifier == "" {
		identifier = EphemeralIdentifier
	}
	s, err := m.openMemory(context.Background(), identifier)
	if err != nil {
		return nil, fmt.Errorf("open ephemeral store %q: %w", identifier, err)
	}
	m.metrics.ObserveOpen(metrics.OpenEphemeral)
	return &Handle{Store: s}, nil
}

// Live returns the live handle if OpenLiveStore has produced one.
func (m *Manager) Live() (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live, m.live != nil
}

// Reset deletes every record from the live store in one transaction.
// The schema version is kept.
func (m *Manager) Reset(ctx context.Context) error {
	h, ok := m.Live()
	if !ok {
		return ErrNotOpen
	}
	if err := h.DeleteAll(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	m.log.Info("store reset", "path", h.Path(), "in_memory", h.IsInMemory())
	return nil
}

// DestroyStore closes the live store and deletes the store directory,
// backup included. The process should restart afterwards.
func (m *Manager) DestroyStore() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.closeLocked(); err != nil {
		m.log.Warn("error closing store before destroy", "error", err)
	}
	dir := m.storeDirectory()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("destroy store: %w", err)
	}
	m.log.Info("store destroyed", "dir", dir)
	return nil
}

// Close closes the live handle. Pending background writes finish first.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	if m.live == nil {
		m.state = StateClosed
		return nil
	}
	err := m.live.Close()
	m.live = nil
	m.state = StateClosed
	return err
}
