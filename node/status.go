package node

// Status is a snapshot of a node, published after every tick.
type Status struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Ticks    uint64 `json:"ticks"`
	QueueLen int    `json:"queue_len"`
	Sent     uint64 `json:"sent"`
	Dropped  uint64 `json:"dropped"`
	Received uint64 `json:"received"`
	Detail   any    `json:"detail,omitempty"`
}

// Status returns the latest snapshot. It is safe to call from any goroutine.
func (e *Engine) Status() *Status {
	return e.status.Load()
}

func (e *Engine) publish() {
	s := &Status{
		ID:       e.id,
		Name:     e.name,
		Kind:     e.kind,
		Ticks:    e.ticks,
		QueueLen: e.queue.Len(),
		Sent:     e.sent,
		Dropped:  e.dropped,
		Received: e.received,
	}

	if e.reporter != nil {
		s.Detail = e.reporter.StatusDetail()
	}

	e.status.Store(s)
}
