package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yukawat/storyvote/internal/activity"
	"github.com/yukawat/storyvote/internal/game"
)

type fakeNotifier struct {
	msgs []string
}

func (n *fakeNotifier) SendChannelMessage(text string) {
	n.msgs = append(n.msgs, text)
}

type fakeProcess struct {
	pending []string
	sent    []string
	alive   bool
	stops   int
	sendErr error
}

func (p *fakeProcess) SendLine(text string) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, text)
	return nil
}

func (p *fakeProcess) ReadAvailable() []string {
	out := p.pending
	p.pending = nil
	return out
}

func (p *fakeProcess) Replay() []string { return p.pending }
func (p *fakeProcess) IsAlive() bool    { return p.alive }
func (p *fakeProcess) Stop()            { p.stops++; p.alive = false }

type fakeRecorder struct {
	started  []string
	ended    []int64
	commands []int
}

func (r *fakeRecorder) SessionStarted(ctx context.Context, story string, at time.Time) (int64, error) {
	r.started = append(r.started, story)
	return int64(len(r.started)), nil
}

func (r *fakeRecorder) SessionEnded(ctx context.Context, id int64, at time.Time, commandsSent int) error {
	r.ended = append(r.ended, id)
	r.commands = append(r.commands, commandsSent)
	return nil
}

type fixture struct {
	coord    *Coordinator
	notifier *fakeNotifier
	proc     *fakeProcess
	recorder *fakeRecorder
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		notifier: &fakeNotifier{},
		proc:     &fakeProcess{alive: true},
		recorder: &fakeRecorder{},
		now:      time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC),
	}
	f.coord = New(Config{
		Notifier:     f.notifier,
		Tracker:      activity.NewTracker(5*time.Minute, 0.5),
		Recorder:     f.recorder,
		GameDir:      "/games",
		VoteInterval: time.Hour, // the tests resolve rounds directly
		Starter: func(storyPath string) (Process, error) {
			return f.proc, nil
		},
		ListStories: func(dir string) ([]string, error) {
			return []string{"zork1.z5", "anchorhead.z8"}, nil
		},
		Now: func() time.Time { return f.now },
	})
	t.Cleanup(f.coord.Shutdown)
	return f
}

// resolveRound forces the current round closed the way its timer would.
func (f *fixture) resolveRound() {
	f.coord.mu.Lock()
	defer f.coord.mu.Unlock()
	f.coord.resolveRoundLocked(f.coord.round)
}

func (f *fixture) touchUsers(users ...string) {
	for _, u := range users {
		f.coord.Touch(u)
	}
}

func TestLoadStartsSession(t *testing.T) {
	f := newFixture(t)

	f.coord.Load("alice", "zork1.z5")

	assert.Contains(t, f.notifier.msgs, "Loading game: zork1.z5")
	assert.True(t, f.coord.Snapshot().Playing)
	assert.Equal(t, []string{"zork1.z5"}, f.recorder.started)
}

func TestLoadUnknownStory(t *testing.T) {
	f := newFixture(t)

	f.coord.Load("alice", "hitchhiker.z5")

	assert.Contains(t, f.notifier.msgs, "alice: game 'hitchhiker.z5' not found.")
	assert.False(t, f.coord.Snapshot().Playing)
}

func TestLoadSpawnFailure(t *testing.T) {
	f := newFixture(t)
	f.coord.cfg.Starter = func(storyPath string) (Process, error) {
		return nil, errors.New("no such interpreter")
	}

	f.coord.Load("alice", "zork1.z5")

	assert.Contains(t, f.notifier.msgs, "Failed to start 'zork1.z5'.")
	assert.False(t, f.coord.Snapshot().Playing)
}

func TestLoadReplacesRunningSession(t *testing.T) {
	f := newFixture(t)
	first := f.proc

	f.coord.Load("alice", "zork1.z5")
	f.proc = &fakeProcess{alive: true}
	f.coord.Load("alice", "anchorhead.z8")

	assert.Equal(t, 1, first.stops)
	assert.Contains(t, f.notifier.msgs, "Previous game stopped.")
	assert.Equal(t, "anchorhead.z8", f.coord.Snapshot().Story)
}

func TestMajorityCommandForwarded(t *testing.T) {
	f := newFixture(t)
	// 4 active users at ratio 0.5 -> threshold 2.
	f.touchUsers("user1", "user2", "user3", "user4")
	f.coord.Load("user1", "zork1.z5")

	f.coord.CastVote("user1", "north")
	f.coord.CastVote("user2", "North")
	f.coord.CastVote("user3", "south")
	f.resolveRound()

	assert.Equal(t, []string{"north"}, f.proc.sent)
	assert.Contains(t, f.notifier.msgs, "> north")
	// The next round is already open.
	assert.True(t, f.coord.Snapshot().Playing)
	assert.Equal(t, 1, f.coord.Snapshot().CommandsSent)
}

func TestSplitVoteSendsNothing(t *testing.T) {
	f := newFixture(t)
	f.touchUsers("user1", "user2", "user3", "user4")
	f.coord.Load("user1", "zork1.z5")

	f.coord.CastVote("user1", "north")
	f.coord.CastVote("user2", "south")
	f.resolveRound()

	assert.Empty(t, f.proc.sent)
	assert.Contains(t, f.notifier.msgs, "No majority for command. Votes cleared.")
}

func TestEmptyRoundRollsOverSilently(t *testing.T) {
	f := newFixture(t)
	f.coord.Load("user1", "zork1.z5")

	before := len(f.notifier.msgs)
	f.resolveRound()

	assert.Len(t, f.notifier.msgs, before)
	assert.True(t, f.coord.Snapshot().Playing)
}

func TestVoteWithoutGame(t *testing.T) {
	f := newFixture(t)

	f.coord.CastVote("alice", "north")

	assert.Contains(t, f.notifier.msgs, "No game loaded. Load one first using: !load <gamefile>")
}

func TestThresholdSnapshottedAtRoundOpen(t *testing.T) {
	f := newFixture(t)
	f.touchUsers("user1", "user2", "user3", "user4")
	f.coord.Load("user1", "zork1.z5")

	// More users become active mid-round; the open round keeps its
	// threshold of 2.
	f.touchUsers("user5", "user6", "user7", "user8")
	assert.Equal(t, 2, f.coord.Snapshot().RequiredVotes)

	f.coord.CastVote("user1", "north")
	f.coord.CastVote("user2", "north")
	f.resolveRound()

	assert.Equal(t, []string{"north"}, f.proc.sent)
}

func TestProcessOutputRelayed(t *testing.T) {
	f := newFixture(t)
	f.coord.Load("user1", "zork1.z5")

	f.proc.pending = []string{"West of House", "", "You are standing in an open field."}
	f.coord.poll()

	assert.Contains(t, f.notifier.msgs, "West of House")
	assert.Contains(t, f.notifier.msgs, "You are standing in an open field.")
	assert.NotContains(t, f.notifier.msgs, "")
}

func TestTitleDetection(t *testing.T) {
	f := newFixture(t)
	f.coord.Load("user1", "zork1.z5")

	f.proc.pending = []string{"Using normal formatting.", "", "Loading zork1.z5.", "ZORK I: The Great Underground Empire"}
	f.coord.poll()

	assert.Equal(t, "ZORK I: The Great Underground Empire", f.coord.Snapshot().Title)
}

func TestProcessDeathEndsSessionOnce(t *testing.T) {
	f := newFixture(t)
	f.coord.Load("user1", "zork1.z5")

	f.proc.alive = false
	f.coord.poll()

	assert.Contains(t, f.notifier.msgs, "The game has ended.")
	assert.False(t, f.coord.Snapshot().Playing)
	assert.Equal(t, 1, f.proc.stops)
	assert.Equal(t, []int64{1}, f.recorder.ended)

	// Subsequent polls must not tear down again.
	ended := len(f.notifier.msgs)
	f.coord.poll()
	f.coord.poll()
	assert.Len(t, f.notifier.msgs, ended)
	assert.Equal(t, 1, f.proc.stops)
}

func TestDeadProcessOnSendEndsSession(t *testing.T) {
	f := newFixture(t)
	f.coord.Load("user1", "zork1.z5")
	f.proc.sendErr = game.ErrProcessDead

	f.coord.CastVote("user1", "north")
	f.resolveRound()

	assert.Contains(t, f.notifier.msgs, "The game has ended.")
	assert.False(t, f.coord.Snapshot().Playing)
}

func TestUnloadStopsSession(t *testing.T) {
	f := newFixture(t)
	f.coord.Load("user1", "zork1.z5")
	round := f.coord.round

	f.coord.Unload()

	assert.Contains(t, f.notifier.msgs, "Game stopped.")
	assert.False(t, f.coord.Snapshot().Playing)
	assert.Equal(t, 1, f.proc.stops)

	// A stale timer firing for the old round is a no-op.
	before := len(f.notifier.msgs)
	f.coord.mu.Lock()
	f.coord.resolveRoundLocked(round)
	f.coord.mu.Unlock()
	assert.Len(t, f.notifier.msgs, before)
}

func TestUnloadWithoutGame(t *testing.T) {
	f := newFixture(t)

	f.coord.Unload()

	assert.Contains(t, f.notifier.msgs, "No game is currently running.")
}

func TestSessionEndRecordsCommandCount(t *testing.T) {
	f := newFixture(t)
	f.coord.Load("user1", "zork1.z5")

	f.coord.CastVote("user1", "north")
	f.resolveRound()
	f.coord.CastVote("user1", "east")
	f.resolveRound()
	f.coord.Unload()

	assert.Equal(t, []int{2}, f.recorder.commands)
}

func TestReplayPostsBufferedLines(t *testing.T) {
	f := newFixture(t)
	f.coord.Load("user1", "zork1.z5")
	f.proc.pending = []string{"line one", "line two"}

	f.coord.Replay()

	assert.Contains(t, f.notifier.msgs, "line one")
	assert.Contains(t, f.notifier.msgs, "line two")
}

func TestReplayWithoutLines(t *testing.T) {
	f := newFixture(t)

	f.coord.Replay()

	assert.Contains(t, f.notifier.msgs, "No lines to replay yet.")
}

func TestVoteStatus(t *testing.T) {
	f := newFixture(t)
	f.coord.Load("user1", "zork1.z5")

	f.coord.CastVote("user1", "north")
	f.coord.CastVote("user2", "north")
	f.coord.CastVote("user3", "south")
	f.coord.VoteStatus()

	assert.Contains(t, f.notifier.msgs, "Command votes: 'north': 2, 'south': 1")
}

func TestStories(t *testing.T) {
	f := newFixture(t)

	f.coord.Stories()

	assert.Contains(t, f.notifier.msgs, "Available games: zork1.z5, anchorhead.z8")
}

func TestShutdownTearsDownSession(t *testing.T) {
	f := newFixture(t)
	f.coord.Load("user1", "zork1.z5")

	f.coord.Shutdown()

	assert.Equal(t, 1, f.proc.stops)
	assert.False(t, f.coord.Snapshot().Playing)
	// Shutdown is quiet: teardown without an announcement.
	assert.NotContains(t, f.notifier.msgs, "Game stopped.")
}
