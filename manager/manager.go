package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/moqclient/catalog"
	"github.com/zsiec/moqclient/internal/telemetry"
	"github.com/zsiec/moqclient/session"
)

// Result is the manager's external result code, distinct from the
// session engine's own Result.
type Result int

const (
	ResSuccess          Result = 0
	ResInvalidParameter Result = -1
	ResNotConnected     Result = -2
	ResAlreadyConnected Result = -3
	ResInternal         Result = -4
)

// catalogTrackNames are the two accepted names for the catalog track;
// either is accepted from a publisher.
var catalogTrackNames = []string{"catalog", "catalog.json"}

// Manager is the supervisor layer above a Session: it owns subscription
// or broadcast configuration, drives the announce/catalog-gated
// reconciliation loop for consumer mode, and handles opt-in reconnection.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu            sync.Mutex
	running       bool
	requested     map[string]DataCallback
	broadcasts    []BroadcastConfig
	workers       map[string]*worker
	sess          *session.Session
	broadcastC    *session.BroadcastConsumer
	lastReconnect time.Time

	catalogProc *catalog.Processor

	errCb        func(error)
	statusCb     func(string)
	trackReadyCb func(trackName string, tp *session.TrackProducer)
	callbackMu   sync.Mutex

	lastErrMu sync.Mutex
	lastErr   error

	lifeCancel    context.CancelFunc // cancels the manager's whole lifetime
	sessionCancel context.CancelFunc // cancels only the current session's loops; replaced on each (re)connect
}

// New creates a Manager. It does not connect until Start is called.
func New(cfg Config) *Manager {
	return &Manager{
		cfg:         cfg,
		log:         cfg.logger().With("component", "moq-manager"),
		requested:   make(map[string]DataCallback),
		workers:     make(map[string]*worker),
		catalogProc: catalog.NewProcessor(cfg.logger()),
	}
}

// AddSubscription registers a track to subscribe to once the catalog
// advertises it. Must precede Start.
func (m *Manager) AddSubscription(trackName string, cb DataCallback) Result {
	if !m.cfg.Mode.canSubscribe() {
		return ResInvalidParameter
	}
	if trackName == "" || cb == nil {
		return ResInvalidParameter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ResAlreadyConnected
	}
	m.requested[trackName] = cb
	return ResSuccess
}

// AddBroadcast registers a track to publish. Must precede Start.
func (m *Manager) AddBroadcast(trackName string, priority byte) Result {
	if !m.cfg.Mode.canPublish() {
		return ResInvalidParameter
	}
	if trackName == "" {
		return ResInvalidParameter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ResAlreadyConnected
	}
	m.broadcasts = append(m.broadcasts, BroadcastConfig{TrackName: trackName, Priority: priority})
	return ResSuccess
}

// SetErrorCallback registers a callback for session/manager errors.
func (m *Manager) SetErrorCallback(fn func(error)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.errCb = fn
}

// SetStatusCallback registers a callback for informational status
// updates (retry attempts, reconnection events).
func (m *Manager) SetStatusCallback(fn func(string)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.statusCb = fn
}

// SetTrackReadyCallback registers a callback invoked once per published
// track, handing the caller its TrackProducer so it can begin writing
// groups. It fires even before any peer has subscribed: writes before a
// subscriber exists are simply discarded by the track producer.
func (m *Manager) SetTrackReadyCallback(fn func(trackName string, tp *session.TrackProducer)) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.trackReadyCb = fn
}

// IsRunning reports whether the manager has been started and not yet
// stopped.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// WorkerRunning reports whether a subscription worker for trackName is
// currently active; it is false both before a worker starts and after it
// stops.
func (m *Manager) WorkerRunning(trackName string) bool {
	m.mu.Lock()
	w := m.workers[trackName]
	m.mu.Unlock()
	return w != nil && w.isRunning()
}

// Status is a point-in-time health snapshot of the manager, for embedding
// applications that want a /healthz-style probe without the library
// binding one itself.
type Status struct {
	Running       bool
	ActiveWorkers int
	LastReconnect time.Time
}

// Status returns a snapshot of the manager's current running state,
// active subscription-worker count, and last reconnection time.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := 0
	for _, w := range m.workers {
		if w.isRunning() {
			active++
		}
	}
	return Status{
		Running:       m.running,
		ActiveWorkers: active,
		LastReconnect: m.lastReconnect,
	}
}

// LastError returns the last error recorded by the manager or its
// session, if any.
func (m *Manager) LastError() string {
	m.lastErrMu.Lock()
	defer m.lastErrMu.Unlock()
	if m.lastErr == nil {
		return ""
	}
	return m.lastErr.Error()
}

func (m *Manager) setLastErr(err error) {
	m.lastErrMu.Lock()
	m.lastErr = err
	m.lastErrMu.Unlock()
}

func (m *Manager) reportError(err error) {
	m.setLastErr(err)
	m.callbackMu.Lock()
	cb := m.errCb
	m.callbackMu.Unlock()
	if cb != nil {
		safeInvoke(m.log, func() { cb(err) })
	}
}

func (m *Manager) reportStatus(msg string) {
	m.callbackMu.Lock()
	cb := m.statusCb
	m.callbackMu.Unlock()
	if cb != nil {
		safeInvoke(m.log, func() { cb(msg) })
	}
}

func safeInvoke(log *slog.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("manager callback panicked", "recover", r)
		}
	}()
	fn()
}

// Start connects the session and, depending on mode, begins publishing
// configured broadcasts and/or the announce-gated subscription
// reconciliation loop. On transport failure it optionally reconnects,
// per Config.ReconnectOnFailure, respecting the configured minimum
// interval between attempts.
func (m *Manager) Start(ctx context.Context) Result {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ResAlreadyConnected
	}
	m.running = true
	m.mu.Unlock()

	lifeCtx, lifeCancel := context.WithCancel(ctx)
	m.lifeCancel = lifeCancel

	res := m.connectAndRun()
	if res != ResSuccess {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		lifeCancel()
		return res
	}

	go m.supervise(lifeCtx)
	return ResSuccess
}

// connectAndRun establishes a session and spawns its worker loops, bound
// to a session-scoped context so a later reconnect can tear down exactly
// this session's goroutines without disturbing the manager's own
// lifetime. The session context is rooted in context.Background rather
// than the manager's lifetime context because reconnects replace it
// wholesale; Stop cancels the current one directly via sessionCancel.
func (m *Manager) connectAndRun() Result {
	sessCtx, sessCancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.sessionCancel = sessCancel
	m.mu.Unlock()

	res := m.connectOnce(sessCtx, sessCancel)
	if res != ResSuccess {
		sessCancel()
		return res
	}

	g, gctx := errgroup.WithContext(sessCtx)
	if m.cfg.Mode.canPublish() {
		g.Go(func() error { return m.runPublisher(gctx) })
	}
	if m.cfg.Mode.canSubscribe() {
		g.Go(func() error { return m.runAnnounceLoop(gctx) })
	}

	go func() {
		g.Wait()
		sessCancel()
		m.stopAllWorkers()
	}()

	return ResSuccess
}

// supervise waits for the manager's lifetime context to end, then closes
// the active session and stops all workers. Reconnection after a session
// terminates on its own is not handled here: maybeReconnect runs from the
// session's connection-closed callback.
func (m *Manager) supervise(lifeCtx context.Context) {
	<-lifeCtx.Done()
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
	m.stopAllWorkers()
}

func (m *Manager) connectOnce(ctx context.Context, onTerminate context.CancelFunc) Result {
	sessCfg := session.Config{
		TLSDisableVerify: m.cfg.TLSDisableVerify,
		TLSRootCertPath:  m.cfg.TLSRootCertPath,
		BindAddr:         m.cfg.BindAddr,
		Logger:           m.log,
	}
	sess, res := session.Connect(ctx, m.cfg.ServerURL, m.cfg.Mode.sessionMode(), sessCfg)
	if res != session.ResSuccess {
		err := fmt.Errorf("manager: connect failed: result=%d", res)
		m.reportError(err)
		return ResNotConnected
	}
	sess.SetConnectionClosedCallback(func(err error) {
		if err != nil {
			m.reportError(fmt.Errorf("manager: session terminated: %w", err))
		}
		onTerminate()
		m.maybeReconnect()
	})

	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()
	return ResSuccess
}

func (m *Manager) maybeReconnect() {
	if !m.cfg.ReconnectOnFailure {
		return
	}

	m.mu.Lock()
	if !m.running || m.lifeCancel == nil {
		m.mu.Unlock()
		return
	}
	since := time.Since(m.lastReconnect)
	minInterval := m.cfg.reconnectMinInterval()
	m.mu.Unlock()

	if since < minInterval {
		time.Sleep(minInterval - since)
	}

	m.mu.Lock()
	running := m.running
	m.lastReconnect = time.Now()
	m.mu.Unlock()
	if !running {
		return
	}

	m.reportStatus("attempting reconnection")
	telemetry.ReconnectAttempted()
	m.stopAllWorkers()

	if res := m.connectAndRun(); res != ResSuccess {
		m.reportError(fmt.Errorf("manager: reconnect failed: result=%d", res))
	}
}

func (m *Manager) runPublisher(ctx context.Context) error {
	m.mu.Lock()
	sess := m.sess
	broadcasts := append([]BroadcastConfig(nil), m.broadcasts...)
	m.mu.Unlock()

	bp, err := sess.Publish(m.cfg.Namespace)
	if err != nil {
		m.reportError(fmt.Errorf("manager: publish failed: %w", err))
		return err
	}

	for _, bc := range broadcasts {
		tp := bp.CreateTrack(bc.TrackName, bc.Priority)
		m.callbackMu.Lock()
		cb := m.trackReadyCb
		m.callbackMu.Unlock()
		if cb != nil {
			name, producer := bc.TrackName, tp
			safeInvoke(m.log, func() { cb(name, producer) })
		}
	}

	<-ctx.Done()
	return nil
}

func (m *Manager) runAnnounceLoop(ctx context.Context) error {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()

	origin, err := sess.OriginConsumer()
	if err != nil {
		m.reportError(fmt.Errorf("manager: origin consumer: %w", err))
		return err
	}

	for {
		entry, err := origin.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if entry.Path != m.cfg.Namespace {
			continue
		}
		if entry.Active {
			m.handleBroadcastAvailable(ctx, sess)
		} else {
			m.handleBroadcastWithdrawn()
		}
	}
}

func (m *Manager) handleBroadcastAvailable(ctx context.Context, sess *session.Session) {
	bc, err := sess.Consume(m.cfg.Namespace)
	if err != nil {
		m.reportError(fmt.Errorf("manager: consume failed: %w", err))
		return
	}
	m.mu.Lock()
	m.broadcastC = bc
	m.mu.Unlock()

	for _, name := range catalogTrackNames {
		go m.runCatalogConsumer(ctx, bc, name)
	}
}

func (m *Manager) handleBroadcastWithdrawn() {
	m.mu.Lock()
	m.broadcastC = nil
	m.mu.Unlock()
	m.stopAllWorkers()
}

func (m *Manager) runCatalogConsumer(ctx context.Context, bc *session.BroadcastConsumer, trackName string) {
	tc := bc.SubscribeTrack(trackName, 0)
	defer tc.Close()

	for {
		g, err := tc.NextGroup(ctx)
		if err != nil {
			return
		}
		for {
			frame, err := g.ReadFrame()
			if err == io.EOF {
				break
			}
			if err != nil {
				m.log.Warn("catalog group aborted", "track", trackName, "error", err)
				break
			}
			if err := m.catalogProc.Update(frame); err != nil {
				telemetry.CatalogParseError()
				m.reportError(fmt.Errorf("manager: catalog parse: %w", err))
				continue
			}
			m.reconcile(ctx)
		}
	}
}

// reconcile implements the subscription reconciliation algorithm: active
// workers whose track fell out of availability are stopped, and workers
// are started for every name in requested ∩ available with none active.
// The diff is computed under the lock; starting and stopping workers
// happens after releasing it, since worker start/stop may itself take
// time and must not be done while holding manager state.
func (m *Manager) reconcile(ctx context.Context) {
	available := m.catalogProc.Snapshot()

	m.mu.Lock()
	bc := m.broadcastC
	var toStop []*worker
	for name, w := range m.workers {
		if _, ok := available[name]; !ok {
			toStop = append(toStop, w)
			delete(m.workers, name)
		}
	}
	var toStart []string
	for name := range m.requested {
		if _, avail := available[name]; !avail {
			continue
		}
		if _, active := m.workers[name]; active {
			continue
		}
		toStart = append(toStart, name)
	}
	interval := m.cfg.reconcileInterval()
	callbacks := make(map[string]DataCallback, len(toStart))
	for _, name := range toStart {
		callbacks[name] = m.requested[name]
	}
	m.mu.Unlock()

	for _, w := range toStop {
		w.stop()
		telemetry.NewRecorder(w.trackName).DecSubscribers()
		m.reportStatus(fmt.Sprintf("stopped subscription worker for %q", w.trackName))
	}

	if bc == nil {
		return
	}

	for _, name := range toStart {
		priority := byte(available[name].Priority)
		w := startWorker(ctx, bc, name, priority, callbacks[name], interval, m.log)
		m.mu.Lock()
		m.workers[name] = w
		m.mu.Unlock()
		telemetry.NewRecorder(name).IncSubscribers()
		m.reportStatus(fmt.Sprintf("started subscription worker for %q", name))
	}
}

func (m *Manager) stopAllWorkers() {
	m.mu.Lock()
	workers := make([]*worker, 0, len(m.workers))
	for name, w := range m.workers {
		workers = append(workers, w)
		delete(m.workers, name)
	}
	m.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
}

// Stop gracefully shuts the manager down: its session, its workers, and
// its internal loops. Idempotent.
func (m *Manager) Stop() Result {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ResSuccess
	}
	m.running = false
	cancel := m.lifeCancel
	sessCancel := m.sessionCancel
	m.mu.Unlock()

	if sessCancel != nil {
		sessCancel()
	}
	if cancel != nil {
		cancel()
	}
	m.stopAllWorkers()
	return ResSuccess
}
