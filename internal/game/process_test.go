package game

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoScript stands in for the interpreter: it accepts the same positional
// story argument (via sh -m) and echoes whatever it is fed.
const echoScript = `echo ready
while read line; do
  echo "echo: $line"
done
`

func startEchoProcess(t *testing.T, bufferLen int) *Process {
	t.Helper()

	script := filepath.Join(t.TempDir(), "echo.sh")
	require.NoError(t, os.WriteFile(script, []byte(echoScript), 0644))

	p, err := Start("sh", script, bufferLen)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

// collectLines polls ReadAvailable until want lines arrived or the deadline
// passed.
func collectLines(t *testing.T, p *Process, want int) []string {
	t.Helper()

	var lines []string
	deadline := time.Now().Add(5 * time.Second)
	for len(lines) < want && time.Now().Before(deadline) {
		lines = append(lines, p.ReadAvailable()...)
		time.Sleep(10 * time.Millisecond)
	}
	require.Len(t, lines, want)
	return lines
}

func TestStartMissingStory(t *testing.T) {
	_, err := Start("sh", filepath.Join(t.TempDir(), "no-such-story.z5"), 5)
	assert.Error(t, err)
}

func TestStartMissingInterpreter(t *testing.T) {
	story := filepath.Join(t.TempDir(), "story.z5")
	require.NoError(t, os.WriteFile(story, []byte("zcode"), 0644))

	_, err := Start("definitely-not-an-interpreter", story, 5)
	assert.Error(t, err)
}

func TestSendAndRead(t *testing.T) {
	p := startEchoProcess(t, 5)

	lines := collectLines(t, p, 1)
	assert.Equal(t, []string{"ready"}, lines)

	require.NoError(t, p.SendLine("go north"))
	lines = collectLines(t, p, 1)
	assert.Equal(t, []string{"echo: go north"}, lines)
}

func TestReadAvailableDoesNotBlock(t *testing.T) {
	p := startEchoProcess(t, 5)
	collectLines(t, p, 1)

	// The child is waiting for input; a drain must return immediately.
	done := make(chan struct{})
	go func() {
		p.ReadAvailable()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadAvailable blocked")
	}
}

func TestReplayBuffering(t *testing.T) {
	p := startEchoProcess(t, 3)
	collectLines(t, p, 1)

	for _, cmd := range []string{"one", "two", "three"} {
		require.NoError(t, p.SendLine(cmd))
	}
	collectLines(t, p, 3)

	// Capacity 3: "ready" has been evicted.
	assert.Equal(t, []string{"echo: one", "echo: two", "echo: three"}, p.Replay())

	// Replay does not consume.
	assert.Equal(t, []string{"echo: one", "echo: two", "echo: three"}, p.Replay())
}

func TestStopAndDeath(t *testing.T) {
	p := startEchoProcess(t, 5)
	collectLines(t, p, 1)

	assert.True(t, p.IsAlive())
	p.Stop()
	p.Stop() // idempotent

	deadline := time.Now().Add(5 * time.Second)
	for p.IsAlive() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, p.IsAlive())
	assert.ErrorIs(t, p.SendLine("north"), ErrProcessDead)
}
