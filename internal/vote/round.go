package vote

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotAcceptingVotes is returned for ballots arriving after the window
	// elapsed or after the round was closed. Informational, never fatal.
	ErrNotAcceptingVotes = errors.New("round not accepting votes")

	// ErrEmptyCommand is returned for ballots whose command is blank after
	// trimming. The ballot has no tally effect.
	ErrEmptyCommand = errors.New("empty command")
)

// Result is the resolution of one round. When NoMajority is set the leading
// command did not reach the snapshotted threshold (or no votes were cast) and
// Winner is empty.
type Result struct {
	Winner     string
	Count      int
	Required   int
	TotalVotes int
	NoMajority bool
}

// ballot is one voter's current choice. seq orders ballots cast at the same
// instant so the tie-break stays deterministic.
type ballot struct {
	raw  string
	norm string
	cast time.Time
	seq  int
}

// Round is one bounded voting window. It holds the threshold snapshotted at
// open time and one ballot per voter (a later ballot overwrites the earlier
// one). Rounds go OPEN -> CLOSED and never reopen; Close caches its result so
// repeated calls return the same value. Not safe for concurrent use; the
// coordinator serializes access.
type Round struct {
	start    time.Time
	duration time.Duration
	required int

	ballots map[string]ballot
	nextSeq int

	closed bool
	result Result
}

// NewRound opens a round at now with the given required-vote snapshot.
func NewRound(now time.Time, required int, duration time.Duration) *Round {
	return &Round{
		start:    now,
		duration: duration,
		required: required,
		ballots:  make(map[string]ballot),
	}
}

func (r *Round) Required() int { return r.required }

// Remaining reports how much of the window is left at now, floored at zero.
func (r *Round) Remaining(now time.Time) time.Duration {
	left := r.start.Add(r.duration).Sub(now)
	if left < 0 {
		left = 0
	}
	return left
}

// Cast records the voter's ballot, replacing any earlier one from the same
// voter. Ballots are accepted only while the round is open and strictly
// before start+duration.
func (r *Round) Cast(voter, command string, now time.Time) error {
	if r.closed || !now.Before(r.start.Add(r.duration)) {
		return ErrNotAcceptingVotes
	}
	raw := strings.TrimSpace(command)
	if raw == "" {
		return ErrEmptyCommand
	}
	r.ballots[voter] = ballot{
		raw:  raw,
		norm: strings.ToLower(raw),
		cast: now,
		seq:  r.nextSeq,
	}
	r.nextSeq++
	return nil
}

// Tallies returns the current distinct-voter count per command (normalized
// form, shown as the earliest-cast spelling). Used for the vote-status
// display; the authoritative resolution happens in Close.
func (r *Round) Tallies() map[string]int {
	counts := make(map[string]int, len(r.ballots))
	spelling := make(map[string]ballot, len(r.ballots))
	for _, b := range r.ballots {
		counts[b.norm]++
		if first, ok := spelling[b.norm]; !ok || b.before(first) {
			spelling[b.norm] = b
		}
	}
	out := make(map[string]int, len(counts))
	for norm, n := range counts {
		out[spelling[norm].raw] = n
	}
	return out
}

// Close transitions the round to CLOSED and resolves it. Closing an already
// closed round returns the previously computed result unchanged.
func (r *Round) Close(now time.Time) Result {
	if r.closed {
		return r.result
	}
	r.closed = true
	r.result = r.tally()
	return r.result
}

func (b ballot) before(other ballot) bool {
	if !b.cast.Equal(other.cast) {
		return b.cast.Before(other.cast)
	}
	return b.seq < other.seq
}

// tally groups ballots by normalized command and picks the group with the
// strictly greatest voter count. Groups tied on count are ranked by when each
// reached that count: the timestamp of its count-th ballot, earliest first.
func (r *Round) tally() Result {
	res := Result{Required: r.required, TotalVotes: len(r.ballots), NoMajority: true}
	if len(r.ballots) == 0 {
		return res
	}

	groups := make(map[string][]ballot)
	for _, b := range r.ballots {
		groups[b.norm] = append(groups[b.norm], b)
	}

	leading := 0
	for _, g := range groups {
		if len(g) > leading {
			leading = len(g)
		}
	}

	var winner []ballot
	for _, g := range groups {
		if len(g) != leading {
			continue
		}
		sort.Slice(g, func(i, j int) bool { return g[i].before(g[j]) })
		if winner == nil || g[leading-1].before(winner[leading-1]) {
			winner = g
		}
	}

	res.Count = leading
	if leading < r.required {
		return res
	}
	res.NoMajority = false
	res.Winner = winner[0].raw
	return res
}
