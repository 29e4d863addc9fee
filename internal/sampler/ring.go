package sampler

import "vigil-governor/internal/model"

// Ring is a fixed-capacity sample buffer. Once full, appending drops the
// oldest entry. Not safe for concurrent use; the sampler owns it.
type Ring struct {
	buf   []model.MemorySample
	head  int
	count int
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]model.MemorySample, capacity)}
}

func (r *Ring) Append(s model.MemorySample) {
	idx := (r.head + r.count) % len(r.buf)
	r.buf[idx] = s
	if r.count < len(r.buf) {
		r.count++
		return
	}
	r.head = (r.head + 1) % len(r.buf)
}

func (r *Ring) Len() int { return r.count }

func (r *Ring) Cap() int { return len(r.buf) }

// Snapshot returns the window oldest-first. The slice is a copy.
func (r *Ring) Snapshot() []model.MemorySample {
	out := make([]model.MemorySample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Last returns the newest sample, if any.
func (r *Ring) Last() (model.MemorySample, bool) {
	if r.count == 0 {
		return model.MemorySample{}, false
	}
	return r.buf[(r.head+r.count-1)%len(r.buf)], true
}
