package session

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yukawat/storyvote/internal/activity"
	"github.com/yukawat/storyvote/internal/game"
	"github.com/yukawat/storyvote/internal/vote"
)

// Notifier posts a line to the play channel.
type Notifier interface {
	SendChannelMessage(text string)
}

// Process is the running interpreter as the coordinator sees it.
type Process interface {
	SendLine(text string) error
	ReadAvailable() []string
	Replay() []string
	IsAlive() bool
	Stop()
}

// Recorder persists per-session summary rows. May be absent.
type Recorder interface {
	SessionStarted(ctx context.Context, story string, at time.Time) (int64, error)
	SessionEnded(ctx context.Context, id int64, at time.Time, commandsSent int) error
}

type state int

const (
	stateNoGame state = iota
	statePlaying
)

// Config wires the coordinator's collaborators. Starter, ListStories and Now
// default to the real implementations; tests substitute fakes.
type Config struct {
	Notifier     Notifier
	Tracker      *activity.Tracker
	Recorder     Recorder
	GameDir      string
	Interpreter  string
	VoteInterval time.Duration
	BufferLength int
	PollInterval time.Duration

	Starter     func(storyPath string) (Process, error)
	ListStories func(dir string) ([]string, error)
	Now         func() time.Time
}

// Coordinator runs the session state machine: NoGame until a story loads,
// then Playing with a perpetually re-opened vote round until the interpreter
// exits or the game is unloaded. Every mutation happens under mu, whether it
// enters through a chat handler, the round timer, or the output poll worker,
// so there is exactly one logical writer.
type Coordinator struct {
	cfg Config

	mu           sync.Mutex
	st           state
	proc         Process
	story        string
	title        string
	titleLines   int
	commandsSent int
	historyID    int64
	round        *vote.Round
	roundTimer   *time.Timer

	stopOnce sync.Once
	stopChan chan struct{}
}

func New(cfg Config) *Coordinator {
	if cfg.Starter == nil {
		interp, buflen := cfg.Interpreter, cfg.BufferLength
		cfg.Starter = func(storyPath string) (Process, error) {
			return game.Start(interp, storyPath, buflen)
		}
	}
	if cfg.ListStories == nil {
		cfg.ListStories = game.ListStories
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Coordinator{
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start launches the output poll worker.
func (c *Coordinator) Start() {
	go c.pollLoop()
}

// Shutdown tears down any running session and stops the poll worker.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.endSessionLocked("")
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// Touch marks the user as active. Called for every channel message, votes or
// not, so the threshold tracks real presence rather than participation.
func (c *Coordinator) Touch(user string) {
	c.cfg.Tracker.Touch(user, c.cfg.Now())
}

// Forget drops a user from the active set (left the channel).
func (c *Coordinator) Forget(user string) {
	c.cfg.Tracker.Forget(user)
}

// Load starts the named story, replacing any running session first. On a
// spawn failure the state stays NoGame and the failure is reported to chat.
func (c *Coordinator) Load(user, story string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	available, err := c.cfg.ListStories(c.cfg.GameDir)
	if err != nil {
		log.Printf("session: listing stories: %v", err)
		c.cfg.Notifier.SendChannelMessage("Game directory is not readable.")
		return
	}
	if !contains(available, story) {
		c.cfg.Notifier.SendChannelMessage(fmt.Sprintf("%s: game '%s' not found.", user, story))
		return
	}

	if c.st == statePlaying {
		c.endSessionLocked("Previous game stopped.")
	}

	proc, err := c.cfg.Starter(filepath.Join(c.cfg.GameDir, story))
	if err != nil {
		log.Printf("session: starting %s: %v", story, err)
		c.cfg.Notifier.SendChannelMessage(fmt.Sprintf("Failed to start '%s'.", story))
		return
	}

	c.st = statePlaying
	c.proc = proc
	c.story = story
	c.title = ""
	c.titleLines = 0
	c.commandsSent = 0
	c.historyID = 0
	if c.cfg.Recorder != nil {
		id, err := c.cfg.Recorder.SessionStarted(context.Background(), story, c.cfg.Now())
		if err != nil {
			log.Printf("session: recording session start: %v", err)
		} else {
			c.historyID = id
		}
	}
	c.cfg.Notifier.SendChannelMessage("Loading game: " + story)
	c.openRoundLocked()
}

// CastVote records the user's ballot in the open round.
func (c *Coordinator) CastVote(user, command string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != statePlaying {
		c.cfg.Notifier.SendChannelMessage("No game loaded. Load one first using: !load <gamefile>")
		return
	}
	switch err := c.round.Cast(user, command, c.cfg.Now()); err {
	case nil, vote.ErrEmptyCommand:
	case vote.ErrNotAcceptingVotes:
		// Ballot landed between window expiry and the timer firing.
	default:
		log.Printf("session: casting vote: %v", err)
	}
}

// VoteStatus posts the current tallies and the time left in the window.
func (c *Coordinator) VoteStatus() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != statePlaying {
		c.cfg.Notifier.SendChannelMessage("No game loaded. Load one first using: !load <gamefile>")
		return
	}
	tallies := c.round.Tallies()
	if len(tallies) == 0 {
		c.cfg.Notifier.SendChannelMessage("No votes cast yet this round.")
		return
	}
	parts := make([]string, 0, len(tallies))
	for cmd, n := range tallies {
		parts = append(parts, fmt.Sprintf("'%s': %d", cmd, n))
	}
	sort.Strings(parts)
	remaining := int(c.round.Remaining(c.cfg.Now()).Seconds())
	c.cfg.Notifier.SendChannelMessage("Command votes: " + strings.Join(parts, ", "))
	c.cfg.Notifier.SendChannelMessage(fmt.Sprintf("!! %d seconds left to vote. !!", remaining))
}

// Unload stops the running session on explicit request.
func (c *Coordinator) Unload() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != statePlaying {
		c.cfg.Notifier.SendChannelMessage("No game is currently running.")
		return
	}
	c.endSessionLocked("Game stopped.")
}

// Replay re-posts the buffered interpreter output to the channel.
func (c *Coordinator) Replay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != statePlaying || c.proc == nil {
		c.cfg.Notifier.SendChannelMessage("No lines to replay yet.")
		return
	}
	lines := c.proc.Replay()
	if len(lines) == 0 {
		c.cfg.Notifier.SendChannelMessage("No lines to replay yet.")
		return
	}
	for _, line := range lines {
		c.cfg.Notifier.SendChannelMessage(line)
	}
}

// Stories posts the story files available for loading.
func (c *Coordinator) Stories() {
	names, err := c.cfg.ListStories(c.cfg.GameDir)
	if err != nil || len(names) == 0 {
		c.cfg.Notifier.SendChannelMessage("No games found.")
		return
	}
	c.cfg.Notifier.SendChannelMessage("Available games: " + strings.Join(names, ", "))
}

// Status posts a one-line session summary.
func (c *Coordinator) Status() {
	snap := c.Snapshot()
	gameStatus := "No game loaded."
	if snap.Playing {
		gameStatus = "Active game: " + snap.Title
	}
	c.cfg.Notifier.SendChannelMessage(fmt.Sprintf(
		"%s | Vote interval: %ds | Majority threshold: %d votes | Replay buffer: %d/%d",
		gameStatus, int(c.cfg.VoteInterval.Seconds()), snap.RequiredVotes,
		snap.BufferedLines, c.cfg.BufferLength,
	))
}

// Snapshot is the coordinator state as exposed over the HTTP API.
type Snapshot struct {
	Playing       bool           `json:"playing"`
	Story         string         `json:"story,omitempty"`
	Title         string         `json:"title,omitempty"`
	ActiveUsers   int            `json:"active_users"`
	RequiredVotes int            `json:"required_votes"`
	Tallies       map[string]int `json:"tallies,omitempty"`
	SecondsLeft   int            `json:"seconds_left,omitempty"`
	BufferedLines int            `json:"buffered_lines"`
	CommandsSent  int            `json:"commands_sent"`
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Now()
	snap := Snapshot{
		ActiveUsers:   c.cfg.Tracker.ActiveCount(now),
		RequiredVotes: c.cfg.Tracker.RequiredVotes(now),
	}
	if c.st == statePlaying {
		snap.Playing = true
		snap.Story = c.story
		snap.Title = c.titleOrStory()
		snap.RequiredVotes = c.round.Required()
		snap.Tallies = c.round.Tallies()
		snap.SecondsLeft = int(c.round.Remaining(now).Seconds())
		snap.BufferedLines = len(c.proc.Replay())
		snap.CommandsSent = c.commandsSent
	}
	return snap
}

// ReplayLines returns the replay buffer for the HTTP API (empty when no game
// is loaded).
func (c *Coordinator) ReplayLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st != statePlaying || c.proc == nil {
		return nil
	}
	return c.proc.Replay()
}

func (c *Coordinator) titleOrStory() string {
	if c.title != "" {
		return c.title
	}
	return c.story
}

// openRoundLocked starts the next voting window and arms its one-shot close
// timer. The callback captures the round so a stale timer for a replaced
// round cannot resolve the current one.
func (c *Coordinator) openRoundLocked() {
	r := vote.NewRound(c.cfg.Now(), c.cfg.Tracker.RequiredVotes(c.cfg.Now()), c.cfg.VoteInterval)
	c.round = r
	c.roundTimer = time.AfterFunc(c.cfg.VoteInterval, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.resolveRoundLocked(r)
	})
}

// resolveRoundLocked closes the round, forwards a winner to the interpreter,
// and opens the next window. No-majority outcomes with at least one ballot
// are announced; empty rounds roll over silently.
func (c *Coordinator) resolveRoundLocked(r *vote.Round) {
	if c.st != statePlaying || c.round != r {
		return
	}
	res := r.Close(c.cfg.Now())

	switch {
	case res.NoMajority && res.TotalVotes == 0:
	case res.NoMajority:
		c.cfg.Notifier.SendChannelMessage("No majority for command. Votes cleared.")
	default:
		if err := c.proc.SendLine(res.Winner); err != nil {
			log.Printf("session: sending command: %v", err)
			c.endSessionLocked("The game has ended.")
			return
		}
		c.commandsSent++
		c.cfg.Notifier.SendChannelMessage("> " + res.Winner)
	}
	c.openRoundLocked()
}

func (c *Coordinator) pollLoop() {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.poll()
		case <-c.stopChan:
			return
		}
	}
}

// poll relays pending interpreter output to the channel and detects process
// death.
func (c *Coordinator) poll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st != statePlaying {
		return
	}
	for _, line := range c.proc.ReadAvailable() {
		c.observeTitleLocked(line)
		if line != "" {
			c.cfg.Notifier.SendChannelMessage(line)
		}
	}
	if !c.proc.IsAlive() {
		c.endSessionLocked("The game has ended.")
	}
}

// observeTitleLocked picks the story title out of the interpreter banner: the
// third non-empty line of output (dfrotz prints its own header first).
func (c *Coordinator) observeTitleLocked(line string) {
	if c.title != "" || strings.TrimSpace(line) == "" {
		return
	}
	c.titleLines++
	if c.titleLines == 3 {
		c.title = strings.TrimSpace(line)
	}
}

// endSessionLocked tears the session down exactly once: cancels the round
// timer, stops the child, records the history row, and returns to NoGame.
// A non-empty announcement is posted after the teardown.
func (c *Coordinator) endSessionLocked(announce string) {
	if c.st != statePlaying {
		return
	}
	c.st = stateNoGame
	if c.roundTimer != nil {
		c.roundTimer.Stop()
		c.roundTimer = nil
	}
	if c.round != nil {
		c.round.Close(c.cfg.Now())
		c.round = nil
	}
	c.proc.Stop()
	c.proc = nil
	if c.cfg.Recorder != nil && c.historyID != 0 {
		if err := c.cfg.Recorder.SessionEnded(context.Background(), c.historyID, c.cfg.Now(), c.commandsSent); err != nil {
			log.Printf("session: recording session end: %v", err)
		}
	}
	if announce != "" {
		c.cfg.Notifier.SendChannelMessage(announce)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
