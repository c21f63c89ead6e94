package trend

// WindowBuffer keeps one fixed-capacity FIFO per channel, oldest sample first.
type WindowBuffer struct {
	capacity int
	windows  [][]float64
}

// NewWindowBuffer allocates channels windows of the given capacity.
func NewWindowBuffer(channels, capacity int) *WindowBuffer {
	w := &WindowBuffer{
		capacity: capacity,
		windows:  make([][]float64, channels),
	}
	for c := range w.windows {
		w.windows[c] = make([]float64, 0, capacity)
	}
	return w
}

// Ingest appends sample to the channel window, evicting the oldest value
// once the window is full. The shift is O(N); N is small and fixed.
func (w *WindowBuffer) Ingest(channel int, sample float64) {
	win := w.windows[channel]
	if len(win) < w.capacity {
		w.windows[channel] = append(win, sample)
		return
	}
	copy(win, win[1:])
	win[len(win)-1] = sample
}

// IsWarm reports whether every channel holds a full window.
func (w *WindowBuffer) IsWarm() bool {
	for _, win := range w.windows {
		if len(win) < w.capacity {
			return false
		}
	}
	return true
}

// Fill returns the smallest per-channel fill count.
func (w *WindowBuffer) Fill() int {
	if len(w.windows) == 0 {
		return 0
	}
	fill := w.capacity
	for _, win := range w.windows {
		if len(win) < fill {
			fill = len(win)
		}
	}
	return fill
}

// Capacity is the configured window length N.
func (w *WindowBuffer) Capacity() int { return w.capacity }

// Channels is the number of windows.
func (w *WindowBuffer) Channels() int { return len(w.windows) }

// Windows exposes the live windows for read-only use within the current tick.
func (w *WindowBuffer) Windows() [][]float64 { return w.windows }

// Snapshot copies every window.
func (w *WindowBuffer) Snapshot() [][]float64 {
	out := make([][]float64, len(w.windows))
	for c, win := range w.windows {
		out[c] = append([]float64(nil), win...)
	}
	return out
}

// Reset empties every window without reallocating.
func (w *WindowBuffer) Reset() {
	for c := range w.windows {
		w.windows[c] = w.windows[c][:0]
	}
}
