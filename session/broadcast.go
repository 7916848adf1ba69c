package session

import "sync"

// BroadcastProducer owns the tracks published under one path. Obtained
// from Session.Publish.
type BroadcastProducer struct {
	session *Session
	path    string

	mu     sync.RWMutex
	tracks map[string]*TrackProducer
}

// Path returns the broadcast's path.
func (b *BroadcastProducer) Path() string { return b.path }

// CreateTrack registers a new track under this broadcast and returns its
// producer. Calling CreateTrack twice with the same name replaces the
// prior track producer.
func (b *BroadcastProducer) CreateTrack(name string, priority byte) *TrackProducer {
	b.mu.Lock()
	defer b.mu.Unlock()

	trackID := b.session.allocateTrackID()
	tp := &TrackProducer{session: b.session, path: b.path, name: name, priority: priority, trackID: trackID}
	b.tracks[name] = tp
	b.session.registerProducedTrack(b.path, tp)
	return tp
}

// Close withdraws the broadcast: it sends UNANNOUNCE for this path and
// removes it from the session's published set, after which the same
// path may be published again.
func (b *BroadcastProducer) Close() error {
	return b.session.unpublish(b.path)
}

// Consumable returns a read-only snapshot of this broadcast's current
// track set, decoupled from the live, mutable BroadcastProducer so that a
// reader iterating the snapshot never observes a track appearing or
// disappearing mid-iteration.
func (b *BroadcastProducer) Consumable() *BroadcastSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.tracks))
	for name := range b.tracks {
		names = append(names, name)
	}
	return &BroadcastSnapshot{path: b.path, trackNames: names}
}

// BroadcastSnapshot is a read-only, point-in-time view of a broadcast's
// track set. It never mutates and never blocks on the producer's lock.
type BroadcastSnapshot struct {
	path       string
	trackNames []string
}

// Path returns the broadcast's path.
func (s *BroadcastSnapshot) Path() string { return s.path }

// TrackNames returns the track names present at the moment the snapshot
// was taken.
func (s *BroadcastSnapshot) TrackNames() []string {
	out := make([]string, len(s.trackNames))
	copy(out, s.trackNames)
	return out
}

// BroadcastConsumer subscribes to tracks within a broadcast path that has
// been announced by the peer. Obtained from Session.Consume.
type BroadcastConsumer struct {
	session *Session
	path    string
}

// Path returns the broadcast's path.
func (b *BroadcastConsumer) Path() string { return b.path }

// SubscribeTrack requests delivery of a track and returns its consumer
// immediately; subscribe_track never fails at call time, per the
// session's asynchronous subscription semantics. A rejection or timeout
// surfaces as a TrackConsumer whose NextGroup never returns a group.
func (b *BroadcastConsumer) SubscribeTrack(name string, priority byte) *TrackConsumer {
	return b.session.subscribeTrack(b.path, name, priority)
}
