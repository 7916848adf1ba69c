package manager

import (
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/moqclient/certs"
	"github.com/zsiec/moqclient/session"
)

// startLoopbackServer brings up a QUIC listener on loopback and hands
// back the accepted peer Session on serverCh once something dials in.
func startLoopbackServer(t *testing.T) (addr string, serverCh <-chan *session.Session) {
	t.Helper()

	cert, err := certs.Generate(0)
	if err != nil {
		t.Fatalf("generate cert: %v", err)
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert.TLSCert},
		NextProtos:   []string{"moq-00"},
	}
	ln, err := quic.ListenAddr("127.0.0.1:0", tlsConf, nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	ch := make(chan *session.Session, 1)
	go func() {
		conn, err := ln.Accept(context.Background())
		if err != nil {
			ch <- nil
			return
		}
		sess, res := session.Accept(context.Background(), conn, session.ModeBoth, session.Config{})
		if res != session.ResSuccess {
			ch <- nil
			return
		}
		ch <- sess
	}()

	return ln.Addr().String(), ch
}

func acceptServer(t *testing.T, ch <-chan *session.Session) *session.Session {
	t.Helper()
	select {
	case sess := <-ch:
		if sess == nil {
			t.Fatal("server accept failed")
		}
		return sess
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server session")
		return nil
	}
}

// publishUntil repeatedly writes a one-frame group to tp, at seq
// numbers counting up from seqStart, until cond reports true or timeout
// elapses. Writes before a consumer has subscribed are silently
// discarded by the track producer, so retrying is the only way to land
// a frame without reaching into the session package's unexported
// subscription state from this package.
func publishUntil(t *testing.T, tp *session.TrackProducer, seqStart *uint64, payload []byte, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		seq := *seqStart
		*seqStart++
		gp, err := tp.CreateGroup(context.Background(), seq)
		if err == nil {
			gp.WriteFrame(payload)
			gp.Finish()
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

// TestManagerCatalogGating exercises seed scenarios 2 and 3: a
// subscription worker only starts once the catalog advertises its
// track, and stops within one reconciliation cycle of the catalog
// withdrawing it.
func TestManagerCatalogGating(t *testing.T) {
	addr, serverCh := startLoopbackServer(t)

	cfg := Config{
		ServerURL:              "https://" + addr,
		Namespace:              "live/cam1",
		Mode:                   ModeSubscribeOnly,
		TLSDisableVerify:       true,
		ReconcileIntervalMS:    50,
		ReconnectMinIntervalMS: 50,
	}
	m := New(cfg)

	received := make(chan []byte, 4)
	if res := m.AddSubscription("video/hd", func(_ string, payload []byte) {
		received <- append([]byte(nil), payload...)
	}); res != ResSuccess {
		t.Fatalf("AddSubscription = %d", res)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if res := m.Start(startCtx); res != ResSuccess {
		t.Fatalf("Start = %d", res)
	}
	defer m.Stop()

	server := acceptServer(t, serverCh)
	defer server.Close()

	bp, err := server.Publish("live/cam1")
	if err != nil {
		t.Fatal(err)
	}
	catalogTrack := bp.CreateTrack("catalog", 0)
	videoTrack := bp.CreateTrack("video/hd", 128)

	var catalogSeq uint64
	catalogAdvertised := []byte(`{"tracks":[{"trackName":"video/hd","type":"video","priority":0}]}`)
	publishUntil(t, catalogTrack, &catalogSeq, catalogAdvertised, 5*time.Second, func() bool {
		return m.WorkerRunning("video/hd")
	})

	var videoSeq uint64
	publishUntil(t, videoTrack, &videoSeq, []byte("frame0"), 5*time.Second, func() bool {
		select {
		case payload := <-received:
			if string(payload) != "frame0" {
				t.Fatalf("payload = %q, want frame0", payload)
			}
			return true
		default:
			return false
		}
	})

	catalogWithdrawn := []byte(`{"tracks":[]}`)
	publishUntil(t, catalogTrack, &catalogSeq, catalogWithdrawn, 5*time.Second, func() bool {
		return !m.WorkerRunning("video/hd")
	})
}

// TestManagerHANGCatalogFormat exercises seed scenario 6: a HANG-format
// catalog advertising a rendition under a kind gates a worker for the
// rendition's name, not the kind's.
func TestManagerHANGCatalogFormat(t *testing.T) {
	addr, serverCh := startLoopbackServer(t)

	cfg := Config{
		ServerURL:           "https://" + addr,
		Namespace:           "live/cam2",
		Mode:                ModeSubscribeOnly,
		TLSDisableVerify:    true,
		ReconcileIntervalMS: 50,
	}
	m := New(cfg)

	if res := m.AddSubscription("720p", func(string, []byte) {}); res != ResSuccess {
		t.Fatalf("AddSubscription = %d", res)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if res := m.Start(startCtx); res != ResSuccess {
		t.Fatalf("Start = %d", res)
	}
	defer m.Stop()

	server := acceptServer(t, serverCh)
	defer server.Close()

	bp, err := server.Publish("live/cam2")
	if err != nil {
		t.Fatal(err)
	}
	catalogTrack := bp.CreateTrack("catalog.json", 0)

	var seq uint64
	doc := []byte(`{"video": {"priority": 0, "renditions": {"720p": {"codec":"avc1"}}}}`)
	publishUntil(t, catalogTrack, &seq, doc, 5*time.Second, func() bool {
		return m.WorkerRunning("720p")
	})
}

// TestManagerStatus confirms Status reports running state and active
// worker count as subscriptions start and stop.
func TestManagerStatus(t *testing.T) {
	addr, serverCh := startLoopbackServer(t)

	cfg := Config{
		ServerURL:           "https://" + addr,
		Namespace:           "live/cam4",
		Mode:                ModeSubscribeOnly,
		TLSDisableVerify:    true,
		ReconcileIntervalMS: 50,
	}
	m := New(cfg)
	if res := m.AddSubscription("audio", func(string, []byte) {}); res != ResSuccess {
		t.Fatalf("AddSubscription = %d", res)
	}

	if st := m.Status(); st.Running {
		t.Fatalf("Status before Start = %+v, want Running = false", st)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if res := m.Start(startCtx); res != ResSuccess {
		t.Fatalf("Start = %d", res)
	}
	defer m.Stop()

	if st := m.Status(); !st.Running {
		t.Fatalf("Status after Start = %+v, want Running = true", st)
	}

	server := acceptServer(t, serverCh)
	defer server.Close()

	bp, err := server.Publish("live/cam4")
	if err != nil {
		t.Fatal(err)
	}
	catalogTrack := bp.CreateTrack("catalog", 0)
	bp.CreateTrack("audio", 1)

	var seq uint64
	doc := []byte(`{"tracks":[{"trackName":"audio","type":"audio","priority":1}]}`)
	publishUntil(t, catalogTrack, &seq, doc, 5*time.Second, func() bool {
		return m.Status().ActiveWorkers == 1
	})

	m.Stop()
	if st := m.Status(); st.Running || st.ActiveWorkers != 0 {
		t.Fatalf("Status after Stop = %+v, want Running = false, ActiveWorkers = 0", st)
	}
}

// TestManagerBroadcastWithdrawalStopsWorkers confirms that when the
// publisher withdraws the whole broadcast, every active subscription
// worker stops even without an explicit catalog update.
func TestManagerBroadcastWithdrawalStopsWorkers(t *testing.T) {
	addr, serverCh := startLoopbackServer(t)

	cfg := Config{
		ServerURL:           "https://" + addr,
		Namespace:           "live/cam3",
		Mode:                ModeSubscribeOnly,
		TLSDisableVerify:    true,
		ReconcileIntervalMS: 50,
	}
	m := New(cfg)
	if res := m.AddSubscription("audio", func(string, []byte) {}); res != ResSuccess {
		t.Fatalf("AddSubscription = %d", res)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if res := m.Start(startCtx); res != ResSuccess {
		t.Fatalf("Start = %d", res)
	}
	defer m.Stop()

	server := acceptServer(t, serverCh)
	defer server.Close()

	bp, err := server.Publish("live/cam3")
	if err != nil {
		t.Fatal(err)
	}
	catalogTrack := bp.CreateTrack("catalog", 0)
	bp.CreateTrack("audio", 1)

	var seq uint64
	doc := []byte(`{"tracks":[{"trackName":"audio","type":"audio","priority":1}]}`)
	publishUntil(t, catalogTrack, &seq, doc, 5*time.Second, func() bool {
		return m.WorkerRunning("audio")
	})

	if err := bp.Close(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return !m.WorkerRunning("audio")
	})
}
