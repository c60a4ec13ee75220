package game

// replayRing is a bounded FIFO of output lines. Once full, pushing evicts the
// oldest line. A zero capacity ring retains nothing.
type replayRing struct {
	lines []string
	cap   int
}

func newReplayRing(capacity int) *replayRing {
	if capacity < 0 {
		capacity = 0
	}
	return &replayRing{cap: capacity}
}

func (r *replayRing) push(line string) {
	if r.cap == 0 {
		return
	}
	r.lines = append(r.lines, line)
	if len(r.lines) > r.cap {
		r.lines = r.lines[1:]
	}
}

func (r *replayRing) snapshot() []string {
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
