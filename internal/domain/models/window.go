package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultWindowLength is the context length demand predictors are trained on.
const DefaultWindowLength = 30

// WindowState is a fixed-capacity ring buffer of scaled feature vectors for one subject.
// Once full, every Push evicts the oldest entry so the length stays constant.
type WindowState struct {
	subject      string
	capacity     int
	width        int
	buf          [][]float64
	start        int
	size         int
	lastObserved time.Time
}

// NewWindowState creates an empty window. capacity <= 0 selects DefaultWindowLength.
func NewWindowState(subject string, capacity int) *WindowState {
	if capacity <= 0 {
		capacity = DefaultWindowLength
	}
	return &WindowState{
		subject:  subject,
		capacity: capacity,
		buf:      make([][]float64, capacity),
	}
}

func (w *WindowState) Subject() string { return w.subject }
func (w *WindowState) Cap() int        { return w.capacity }
func (w *WindowState) Len() int        { return w.size }
func (w *WindowState) Full() bool      { return w.size == w.capacity }

// Width returns the vector width, or 0 when empty.
func (w *WindowState) Width() int { return w.width }

// LastObserved is the timestamp of the newest real observation pushed.
func (w *WindowState) LastObserved() time.Time { return w.lastObserved }

// SetLastObserved records the newest observation time.
func (w *WindowState) SetLastObserved(t time.Time) { w.lastObserved = t }

// Push appends a copy of vec, evicting the oldest entry when full.
func (w *WindowState) Push(vec []float64) error {
	if len(vec) == 0 {
		return fmt.Errorf("window %s: empty vector", w.subject)
	}
	if w.width == 0 {
		w.width = len(vec)
	} else if len(vec) != w.width {
		return fmt.Errorf("window %s: vector width %d, want %d", w.subject, len(vec), w.width)
	}
	cp := make([]float64, len(vec))
	copy(cp, vec)

	if w.size < w.capacity {
		w.buf[(w.start+w.size)%w.capacity] = cp
		w.size++
		return nil
	}
	w.buf[w.start] = cp
	w.start = (w.start + 1) % w.capacity
	return nil
}

// Vectors returns copies of the entries ordered oldest to newest.
func (w *WindowState) Vectors() [][]float64 {
	out := make([][]float64, w.size)
	for i := 0; i < w.size; i++ {
		src := w.buf[(w.start+i)%w.capacity]
		cp := make([]float64, len(src))
		copy(cp, src)
		out[i] = cp
	}
	return out
}

// Last returns a copy of the newest entry, or nil when empty.
func (w *WindowState) Last() []float64 {
	if w.size == 0 {
		return nil
	}
	src := w.buf[(w.start+w.size-1)%w.capacity]
	cp := make([]float64, len(src))
	copy(cp, src)
	return cp
}

// Clone returns an independent copy.
func (w *WindowState) Clone() *WindowState {
	c := NewWindowState(w.subject, w.capacity)
	c.lastObserved = w.lastObserved
	for _, v := range w.Vectors() {
		_ = c.Push(v)
	}
	return c
}

type windowJSON struct {
	Subject      string      `json:"subject"`
	Capacity     int         `json:"capacity"`
	Vectors      [][]float64 `json:"vectors"`
	LastObserved time.Time   `json:"last_observed"`
}

func (w *WindowState) MarshalJSON() ([]byte, error) {
	return json.Marshal(windowJSON{
		Subject:      w.subject,
		Capacity:     w.capacity,
		Vectors:      w.Vectors(),
		LastObserved: w.lastObserved,
	})
}

func (w *WindowState) UnmarshalJSON(b []byte) error {
	var wj windowJSON
	if err := json.Unmarshal(b, &wj); err != nil {
		return err
	}
	n := NewWindowState(wj.Subject, wj.Capacity)
	n.lastObserved = wj.LastObserved
	for _, v := range wj.Vectors {
		if err := n.Push(v); err != nil {
			return err
		}
	}
	*w = *n
	return nil
}
