package audit

import "github.com/upb/agent-control-plane/models"

// ring is a fixed-capacity FIFO of events; pushing onto a full ring evicts
// the oldest entry.
type ring struct {
	buf   []models.AuditEvent
	start int
	size  int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]models.AuditEvent, capacity)}
}

func (r *ring) push(e models.AuditEvent) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = e
		r.size++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int { return r.size }

func (r *ring) cap() int { return len(r.buf) }

// at returns the i-th oldest event
func (r *ring) at(i int) models.AuditEvent {
	return r.buf[(r.start+i)%len(r.buf)]
}

// each visits events oldest first
func (r *ring) each(fn func(models.AuditEvent)) {
	for i := 0; i < r.size; i++ {
		fn(r.at(i))
	}
}
