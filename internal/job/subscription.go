package job

// defaultBufferSize is the per-subscription queue depth. A stream adapter
// drains it continuously, so this only needs to absorb short bursts.
const defaultBufferSize = 64

// Subscription is a bounded queue of job snapshots registered against one
// job id. The channel returned by C is closed when the subscription is
// removed by Unsubscribe, Sweep, or Registry.Close.
type Subscription struct {
	// jobID is the job this subscription watches.
	jobID string
	// ch carries snapshots in the order the registry applied them.
	ch chan Job
	// closed is set once ch has been closed. Guarded by Registry.mu.
	closed bool
}

func newSubscription(jobID string, size int) *Subscription {
	return &Subscription{jobID: jobID, ch: make(chan Job, size)}
}

// C returns the receive side of the subscription queue.
func (s *Subscription) C() <-chan Job { return s.ch }

// JobID returns the id of the watched job.
func (s *Subscription) JobID() string { return s.jobID }

// send offers snap without blocking. It returns false when the queue is full
// or already closed; the snapshot is then dropped. Caller holds Registry.mu.
func (s *Subscription) send(snap Job) bool {
	if s.closed {
		return false
	}
	select {
	case s.ch <- snap:
		return true
	default:
		return false
	}
}

// close closes the queue once. Caller holds Registry.mu.
func (s *Subscription) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
