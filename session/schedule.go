package session

import "sync"

// groupScheduler orders pending outgoing group-stream opens across every
// track producer of one session by the track's publisher priority (0
// highest, generalized from the teacher's moqWriter.publisherPriority
// constant), ties broken by submission order. It serializes
// stream-opening work session-wide so a burst of simultaneous
// CreateGroup calls across tracks of differing priority opens the
// highest-priority one first, rather than in whatever order goroutines
// happened to call in.
type groupScheduler struct {
	mu      sync.Mutex
	pending []*groupRequest
	seq     uint64
	notify  chan struct{}
}

type groupRequest struct {
	priority byte
	seq      uint64
	open     func() (*GroupProducer, error)
	result   chan groupResult
}

type groupResult struct {
	gp  *GroupProducer
	err error
}

func newGroupScheduler(done <-chan struct{}) *groupScheduler {
	s := &groupScheduler{notify: make(chan struct{}, 1)}
	go s.run(done)
	return s
}

// submit enqueues open to run once it is the highest-priority pending
// request, and blocks until it has run.
func (s *groupScheduler) submit(priority byte, open func() (*GroupProducer, error)) (*GroupProducer, error) {
	s.mu.Lock()
	s.seq++
	req := &groupRequest{priority: priority, seq: s.seq, open: open, result: make(chan groupResult, 1)}
	s.pending = append(s.pending, req)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}

	res := <-req.result
	return res.gp, res.err
}

func (s *groupScheduler) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-s.notify:
		}

		for {
			req := s.popHighestPriority()
			if req == nil {
				break
			}
			gp, err := req.open()
			req.result <- groupResult{gp: gp, err: err}
		}
	}
}

func (s *groupScheduler) popHighestPriority() *groupRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(s.pending); i++ {
		c := s.pending[i]
		if c.priority < s.pending[best].priority ||
			(c.priority == s.pending[best].priority && c.seq < s.pending[best].seq) {
			best = i
		}
	}
	req := s.pending[best]
	s.pending = append(s.pending[:best], s.pending[best+1:]...)
	return req
}
