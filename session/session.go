package session

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/moqclient/announce"
	"github.com/zsiec/moqclient/internal/telemetry"
	"github.com/zsiec/moqclient/wire"
)

// Mode controls which operations a Session permits.
type Mode int

const (
	ModePublishOnly Mode = iota
	ModeSubscribeOnly
	ModeBoth
)

func (m Mode) canPublish() bool   { return m == ModePublishOnly || m == ModeBoth }
func (m Mode) canSubscribe() bool { return m == ModeSubscribeOnly || m == ModeBoth }

// State is the session's lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateClosing
	StateClosed
	StateTerminated
)

// Result is the outcome of a session-level operation, mirrored across the
// library's external result-code surface.
type Result int

const (
	ResSuccess Result = iota
	ResInvalidArgument
	ResNetworkError
	ResTLSError
	ResDNSError
	ResGeneralError
)

// Config configures a Session at connect time.
type Config struct {
	// TLSConfig, if set, is used verbatim for the QUIC handshake.
	TLSConfig *tls.Config
	// TLSDisableVerify disables certificate verification when TLSConfig
	// is nil. Defaults to verification enabled.
	TLSDisableVerify bool
	// TLSRootCertPath, if set and TLSConfig is nil, is loaded as an
	// additional trusted root.
	TLSRootCertPath string
	// BindAddr, if set, is the local UDP address the QUIC socket binds to
	// before dialing (host:port or :port). Defaults to an ephemeral port
	// on the system's chosen interface.
	BindAddr string
	// QUICConfig, if set, is passed to the QUIC dialer verbatim.
	QUICConfig *quic.Config
	// SetupPath is sent as the CLIENT_SETUP path parameter, for relays
	// that route a connection by an initial path.
	SetupPath string
	// AnnounceQueueHint is passed to the origin/announce bus as its
	// capacity hint; the bus does not enforce it.
	AnnounceQueueHint int
	// Logger receives structured session log output. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

type pendingSubscribe struct {
	path     string
	name     string
	consumer *TrackConsumer
}

// Session is a MoQ connection: the CLIENT_SETUP/SERVER_SETUP handshake,
// control stream, and the stream multiplexer for group streams, plus the
// broadcast/track producer and consumer registries layered on top.
type Session struct {
	log  *slog.Logger
	mode Mode

	conn          quic.Connection
	control       quic.Stream
	controlReader *bufio.Reader
	controlMu     sync.Mutex

	ctx       context.Context
	cancelCtx context.CancelFunc

	originBus  *announce.Bus
	groupSched *groupScheduler

	mu                sync.RWMutex
	state             State
	nextTrackID       uint64
	nextRequestID     uint64
	nextConsumerID    uint64
	published         map[string]*BroadcastProducer   // path -> producer
	producedTracks    map[uint64]*TrackProducer       // our track_id -> producer
	pendingSubscribes map[uint64]*pendingSubscribe    // request_id -> pending
	publisherGrants   map[uint64]uint64               // request_id -> our track_id (subscriptions we granted)
	activeConsumers   map[uint64]*TrackConsumer        // peer-assigned track_id -> consumer

	closeOnce sync.Once
	lastErr   atomic.Value // error

	onBroadcastAnnounced func(path string)
	onBroadcastCancelled func(path string)
	onConnectionClosed   func(err error)
	callbackMu           sync.Mutex
}

func newSession(mode Mode, cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		log:               cfg.logger().With("component", "moq-session"),
		mode:              mode,
		ctx:               ctx,
		cancelCtx:         cancel,
		originBus:         announce.NewBus(cfg.AnnounceQueueHint),
		groupSched:        newGroupScheduler(ctx.Done()),
		state:             StateConnecting,
		published:         make(map[string]*BroadcastProducer),
		producedTracks:    make(map[uint64]*TrackProducer),
		pendingSubscribes: make(map[uint64]*pendingSubscribe),
		publisherGrants:   make(map[uint64]uint64),
		activeConsumers:   make(map[uint64]*TrackConsumer),
	}
}

// Connect dials a MoQ relay at the given https URL and performs the
// client side of the CLIENT_SETUP/SERVER_SETUP handshake.
func Connect(ctx context.Context, rawURL string, mode Mode, cfg Config) (*Session, Result) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, ResInvalidArgument
	}

	tlsConf := cfg.TLSConfig
	if tlsConf == nil {
		tlsConf = &tls.Config{
			NextProtos:         []string{"moq-00"},
			InsecureSkipVerify: cfg.TLSDisableVerify,
			ServerName:         u.Hostname(),
		}
		if cfg.TLSRootCertPath != "" {
			pool, err := loadRootCertPool(cfg.TLSRootCertPath)
			if err != nil {
				return nil, ResTLSError
			}
			tlsConf.RootCAs = pool
		}
	}

	conn, err := dialQUIC(ctx, u.Host, cfg.BindAddr, tlsConf, cfg.QUICConfig)
	if err != nil {
		return nil, classifyDialErr(err)
	}

	s := newSession(mode, cfg)
	s.conn = conn

	if res := s.clientHandshake(ctx, cfg); res != ResSuccess {
		conn.CloseWithError(0, "setup failed")
		return nil, res
	}

	s.start()
	return s, ResSuccess
}

// Accept performs the peer side of the CLIENT_SETUP/SERVER_SETUP
// handshake over an already-established QUIC connection. It is used by
// test harnesses and embedding relays that terminate the QUIC connection
// themselves and hand the accepted quic.Connection to this package.
func Accept(ctx context.Context, conn quic.Connection, mode Mode, cfg Config) (*Session, Result) {
	s := newSession(mode, cfg)
	s.conn = conn

	if res := s.serverHandshake(ctx); res != ResSuccess {
		conn.CloseWithError(0, "setup failed")
		return nil, res
	}

	s.start()
	return s, ResSuccess
}

// loadRootCertPool reads a PEM file and returns a cert pool containing it,
// for Config.TLSRootCertPath.
func loadRootCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("session: no certificates parsed from %s", path)
	}
	return pool, nil
}

// dialQUIC dials hostPort over QUIC. When bindAddr is empty it dials from
// an ephemeral local port via quic.DialAddr; when set, it binds a UDP
// socket to bindAddr first and dials over it with quic.Dial, so the local
// address a relay observes is the caller's choice rather than whatever the
// OS picks.
func dialQUIC(ctx context.Context, hostPort, bindAddr string, tlsConf *tls.Config, quicConf *quic.Config) (quic.Connection, error) {
	if bindAddr == "" {
		return quic.DialAddr(ctx, hostPort, tlsConf, quicConf)
	}

	localAddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, err
	}
	remoteAddr, err := net.ResolveUDPAddr("udp", hostPort)
	if err != nil {
		return nil, err
	}
	pconn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, err
	}
	conn, err := quic.Dial(ctx, pconn, remoteAddr, tlsConf, quicConf)
	if err != nil {
		pconn.Close()
		return nil, err
	}
	return conn, nil
}

func classifyDialErr(err error) Result {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ResDNSError
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return ResTLSError
	}
	return ResNetworkError
}

func (s *Session) clientHandshake(ctx context.Context, cfg Config) Result {
	control, err := s.conn.OpenStreamSync(ctx)
	if err != nil {
		return ResNetworkError
	}
	s.control = control
	s.controlReader = bufio.NewReader(control)

	cs := wire.ClientSetup{Versions: []uint64{wire.Version}}
	if cfg.SetupPath != "" {
		cs.Path = cfg.SetupPath
		cs.HasPath = true
	}
	if err := wire.WriteControlMsg(control, wire.MsgClientSetup, wire.SerializeClientSetup(cs)); err != nil {
		return ResNetworkError
	}

	msgType, payload, err := wire.ReadControlMsg(s.controlReader)
	if err != nil {
		return ResNetworkError
	}
	if msgType != wire.MsgServerSetup {
		return ResGeneralError
	}
	ss, err := wire.ParseServerSetup(payload)
	if err != nil || ss.SelectedVersion != wire.Version {
		return ResGeneralError
	}

	s.mu.Lock()
	s.state = StateConnected
	s.mu.Unlock()
	return ResSuccess
}

func (s *Session) serverHandshake(ctx context.Context) Result {
	control, err := s.conn.AcceptStream(ctx)
	if err != nil {
		return ResNetworkError
	}
	s.control = control
	s.controlReader = bufio.NewReader(control)

	msgType, payload, err := wire.ReadControlMsg(s.controlReader)
	if err != nil {
		return ResNetworkError
	}
	if msgType != wire.MsgClientSetup {
		return ResGeneralError
	}
	cs, err := wire.ParseClientSetup(payload)
	if err != nil {
		return ResGeneralError
	}

	compatible := false
	for _, v := range cs.Versions {
		if v == wire.Version {
			compatible = true
			break
		}
	}
	if !compatible {
		return ResGeneralError
	}

	ss := wire.ServerSetup{SelectedVersion: wire.Version, MaxRequestID: 1 << 16}
	if err := wire.WriteControlMsg(control, wire.MsgServerSetup, wire.SerializeServerSetup(ss)); err != nil {
		return ResNetworkError
	}

	s.mu.Lock()
	s.state = StateConnected
	s.mu.Unlock()
	return ResSuccess
}

func (s *Session) start() {
	go s.acceptGroupStreams()
	go s.controlLoop()
}

// IsConnected reports whether the session completed its handshake and
// has not yet begun closing.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateConnected
}

// IsAlive reports whether the session has not reached a terminal state.
func (s *Session) IsAlive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state != StateClosed && s.state != StateTerminated
}

// LastError returns the error that caused the session to terminate, if
// any.
func (s *Session) LastError() error {
	if v := s.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// SetBroadcastAnnouncedCallback registers a callback invoked when the
// origin/announce bus observes a new broadcast path. It is recovered: a
// panicking callback is logged and does not bring down the session.
func (s *Session) SetBroadcastAnnouncedCallback(fn func(path string)) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.onBroadcastAnnounced = fn
}

// SetBroadcastCancelledCallback registers a callback invoked when the
// origin/announce bus observes a broadcast withdrawal.
func (s *Session) SetBroadcastCancelledCallback(fn func(path string)) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.onBroadcastCancelled = fn
}

// SetConnectionClosedCallback registers a callback invoked once the
// session reaches a terminal state.
func (s *Session) SetConnectionClosedCallback(fn func(err error)) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.onConnectionClosed = fn
}

// Publish announces path to the peer and returns a BroadcastProducer for
// it. Fails with ErrWrongMode if the session isn't publish-capable, or
// ErrPathAlreadyUsed if path is already published on this session.
func (s *Session) Publish(path string) (*BroadcastProducer, error) {
	if !s.mode.canPublish() {
		return nil, ErrWrongMode
	}

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	if _, exists := s.published[path]; exists {
		s.mu.Unlock()
		return nil, ErrPathAlreadyUsed
	}
	bp := &BroadcastProducer{session: s, path: path, tracks: make(map[string]*TrackProducer)}
	s.published[path] = bp
	s.mu.Unlock()

	s.controlMu.Lock()
	err := wire.WriteControlMsg(s.control, wire.MsgAnnounce, wire.SerializeAnnounce(path))
	s.controlMu.Unlock()
	if err != nil {
		s.mu.Lock()
		delete(s.published, path)
		s.mu.Unlock()
		return nil, err
	}

	return bp, nil
}

// unpublish withdraws path: it sends UNANNOUNCE to the peer and removes
// path from the published set, freeing it for a later Publish call.
func (s *Session) unpublish(path string) error {
	s.mu.Lock()
	if _, exists := s.published[path]; !exists {
		s.mu.Unlock()
		return nil
	}
	delete(s.published, path)
	s.mu.Unlock()

	s.controlMu.Lock()
	err := wire.WriteControlMsg(s.control, wire.MsgUnannounce, wire.SerializeUnannounce(path))
	s.controlMu.Unlock()
	return err
}

// Consume returns a BroadcastConsumer for path. Unlike Publish, it does
// not require the broadcast to already be announced: the broadcast may
// appear later, and SubscribeTrack on the result is itself
// non-blocking-at-call-time. It fails with ErrNotConnected once the
// session is no longer connected.
func (s *Session) Consume(path string) (*BroadcastConsumer, error) {
	if !s.mode.canSubscribe() {
		return nil, ErrWrongMode
	}
	s.mu.RLock()
	connected := s.state == StateConnected
	s.mu.RUnlock()
	if !connected {
		return nil, ErrNotConnected
	}
	return &BroadcastConsumer{session: s, path: path}, nil
}

// OriginConsumer returns the session's single announce-bus consumer. A
// second call fails; at most one is live per session.
func (s *Session) OriginConsumer() (*announce.Consumer, error) {
	s.mu.RLock()
	connected := s.state == StateConnected
	s.mu.RUnlock()
	if !connected {
		return nil, ErrNotConnected
	}
	return s.originBus.Consumer()
}

// Close gracefully shuts down the session: it sends GOAWAY, closes the
// origin bus, unblocks any pending track consumers, and closes the
// underlying QUIC connection. Idempotent.
func (s *Session) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing
		s.mu.Unlock()

		s.controlMu.Lock()
		wire.WriteControlMsg(s.control, wire.MsgGoAway, wire.SerializeGoAway(wire.GoAway{}))
		s.controlMu.Unlock()

		closeErr = s.conn.CloseWithError(0, "session closed")
		s.terminate(nil)
	})
	return closeErr
}

func (s *Session) terminate(err error) {
	s.mu.Lock()
	if s.state == StateTerminated || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.state = StateTerminated
	} else {
		s.state = StateClosed
	}
	consumers := make([]*TrackConsumer, 0, len(s.activeConsumers))
	for _, tc := range s.activeConsumers {
		consumers = append(consumers, tc)
	}
	s.mu.Unlock()

	if err != nil {
		s.lastErr.Store(err)
	}

	s.originBus.Close()
	for _, tc := range consumers {
		tc.Close()
	}
	s.cancelCtx()

	s.callbackMu.Lock()
	cb := s.onConnectionClosed
	s.callbackMu.Unlock()
	if cb != nil {
		safeInvoke(s.log, func() { cb(err) })
	}
}

func safeInvoke(log *slog.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("callback panicked", "recover", r)
		}
	}()
	fn()
}

func (s *Session) allocateTrackID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextTrackID
	s.nextTrackID++
	return id
}

func (s *Session) allocateRequestID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextRequestID
	s.nextRequestID++
	return id
}

func (s *Session) allocateConsumerID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextConsumerID
	s.nextConsumerID++
	return id
}

func (s *Session) registerProducedTrack(path string, tp *TrackProducer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.producedTracks[tp.trackID] = tp
}

func (s *Session) subscribeTrack(path, name string, priority byte) *TrackConsumer {
	_, cancel := context.WithCancel(s.ctx)
	tc := &TrackConsumer{
		id:      s.allocateConsumerID(),
		name:    name,
		session: s,
		groups:  make(chan *GroupConsumer, 16),
		done:    make(chan struct{}),
		cancel:  cancel,
	}

	reqID := s.allocateRequestID()
	s.mu.Lock()
	s.pendingSubscribes[reqID] = &pendingSubscribe{path: path, name: name, consumer: tc}
	s.mu.Unlock()

	sub := wire.Subscribe{
		RequestID:  reqID,
		Path:       path,
		TrackName:  name,
		Priority:   priority,
		FilterType: wire.FilterNextGroupStart,
	}
	s.controlMu.Lock()
	err := wire.WriteControlMsg(s.control, wire.MsgSubscribe, wire.SerializeSubscribe(sub))
	s.controlMu.Unlock()
	if err != nil {
		s.log.Warn("subscribe send failed", "path", path, "track", name, "error", err)
	}
	return tc
}

func (s *Session) unsubscribe(tc *TrackConsumer) {
	s.mu.Lock()
	for id, c := range s.activeConsumers {
		if c == tc {
			delete(s.activeConsumers, id)
			break
		}
	}
	s.mu.Unlock()
	// UNSUBSCRIBE is keyed by request_id in the wire protocol; since that
	// mapping is discarded once a subscription becomes active, an explicit
	// UNSUBSCRIBE is not sent here. Session Close/terminate tears down the
	// control stream, which the peer observes as the subscriber going away.
}

func (s *Session) controlLoop() {
	for {
		msgType, payload, err := wire.ReadControlMsg(s.controlReader)
		if err != nil {
			s.terminate(fmt.Errorf("control stream closed: %w", err))
			return
		}
		s.dispatchControl(msgType, payload)
	}
}

func (s *Session) dispatchControl(msgType uint64, payload []byte) {
	switch msgType {
	case wire.MsgAnnounce:
		a, err := wire.ParseAnnounce(payload)
		if err != nil {
			s.log.Warn("malformed ANNOUNCE", "error", err)
			return
		}
		s.originBus.Publish(announce.Entry{Path: a.Path, Active: true})
		s.invokeAnnounced(a.Path)

	case wire.MsgUnannounce:
		a, err := wire.ParseUnannounce(payload)
		if err != nil {
			s.log.Warn("malformed UNANNOUNCE", "error", err)
			return
		}
		s.originBus.Publish(announce.Entry{Path: a.Path, Active: false})
		s.invokeCancelled(a.Path)

	case wire.MsgSubscribe:
		s.handleSubscribe(payload)

	case wire.MsgSubscribeOK:
		s.handleSubscribeOK(payload)

	case wire.MsgSubscribeError:
		s.handleSubscribeError(payload)

	case wire.MsgUnsubscribe:
		s.handleUnsubscribe(payload)

	case wire.MsgGoAway:
		s.log.Info("peer sent GOAWAY")

	case wire.MsgMaxRequestID:
		s.log.Debug("peer updated MAX_REQUEST_ID")

	default:
		s.log.Debug("unhandled control message", "type", msgType)
	}
}

func (s *Session) invokeAnnounced(path string) {
	s.callbackMu.Lock()
	cb := s.onBroadcastAnnounced
	s.callbackMu.Unlock()
	if cb != nil {
		safeInvoke(s.log, func() { cb(path) })
	}
}

func (s *Session) invokeCancelled(path string) {
	s.callbackMu.Lock()
	cb := s.onBroadcastCancelled
	s.callbackMu.Unlock()
	if cb != nil {
		safeInvoke(s.log, func() { cb(path) })
	}
}

func (s *Session) handleSubscribe(payload []byte) {
	sub, err := wire.ParseSubscribe(payload)
	if err != nil {
		s.log.Warn("malformed SUBSCRIBE", "error", err)
		return
	}

	s.mu.RLock()
	bp, ok := s.published[sub.Path]
	s.mu.RUnlock()
	if !ok {
		s.sendSubscribeError(sub.RequestID, 404, "unknown path")
		return
	}
	bp.mu.RLock()
	tp, ok := bp.tracks[sub.TrackName]
	bp.mu.RUnlock()
	if !ok {
		s.sendSubscribeError(sub.RequestID, 404, "unknown track")
		return
	}

	tp.setSubscribed(true)
	s.mu.Lock()
	s.publisherGrants[sub.RequestID] = tp.trackID
	s.mu.Unlock()

	s.controlMu.Lock()
	err = wire.WriteControlMsg(s.control, wire.MsgSubscribeOK, wire.SerializeSubscribeOK(wire.SubscribeOK{
		RequestID: sub.RequestID,
		TrackID:   tp.trackID,
	}))
	s.controlMu.Unlock()
	if err != nil {
		s.log.Warn("subscribe_ok send failed", "error", err)
	}
}

func (s *Session) sendSubscribeError(reqID, code uint64, reason string) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	wire.WriteControlMsg(s.control, wire.MsgSubscribeError, wire.SerializeSubscribeError(wire.SubscribeError{
		RequestID:    reqID,
		ErrorCode:    code,
		ReasonPhrase: reason,
	}))
}

func (s *Session) handleSubscribeOK(payload []byte) {
	sok, err := wire.ParseSubscribeOK(payload)
	if err != nil {
		s.log.Warn("malformed SUBSCRIBE_OK", "error", err)
		return
	}
	s.mu.Lock()
	pending, ok := s.pendingSubscribes[sok.RequestID]
	if ok {
		delete(s.pendingSubscribes, sok.RequestID)
		s.activeConsumers[sok.TrackID] = pending.consumer
	}
	s.mu.Unlock()
	if !ok {
		s.log.Warn("SUBSCRIBE_OK for unknown request", "request_id", sok.RequestID)
	}
}

func (s *Session) handleSubscribeError(payload []byte) {
	se, err := wire.ParseSubscribeError(payload)
	if err != nil {
		s.log.Warn("malformed SUBSCRIBE_ERROR", "error", err)
		return
	}
	s.mu.Lock()
	delete(s.pendingSubscribes, se.RequestID)
	s.mu.Unlock()
	s.log.Warn("subscription rejected", "request_id", se.RequestID, "code", se.ErrorCode, "reason", se.ReasonPhrase)
}

func (s *Session) handleUnsubscribe(payload []byte) {
	u, err := wire.ParseUnsubscribe(payload)
	if err != nil {
		s.log.Warn("malformed UNSUBSCRIBE", "error", err)
		return
	}
	s.mu.Lock()
	trackID, ok := s.publisherGrants[u.RequestID]
	if ok {
		delete(s.publisherGrants, u.RequestID)
	}
	tp := s.producedTracks[trackID]
	s.mu.Unlock()
	if ok && tp != nil {
		tp.setSubscribed(false)
	}
}

func (s *Session) acceptGroupStreams() {
	for {
		stream, err := s.conn.AcceptUniStream(s.ctx)
		if err != nil {
			return
		}
		go s.handleIncomingGroup(stream)
	}
}

func (s *Session) handleIncomingGroup(stream quic.ReceiveStream) {
	hdr, err := wire.ReadGroupHeader(stream)
	if err != nil {
		s.log.Warn("malformed group header", "error", err)
		return
	}

	s.mu.RLock()
	tc := s.activeConsumers[hdr.TrackID]
	s.mu.RUnlock()

	if tc == nil {
		s.log.Warn("group for unsubscribed track, draining", "track_id", hdr.TrackID)
		drainGroup(stream)
		return
	}

	telemetry.NewRecorder(tc.Name()).GroupReceived()
	gc := &GroupConsumer{seq: hdr.GroupSequence, stream: stream}
	tc.deliver(gc)
}

func drainGroup(r quic.ReceiveStream) {
	for {
		if _, err := wire.ReadFrame(r); err != nil {
			return
		}
	}
}
