package game

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ErrProcessDead is returned when writing to an interpreter that has already
// exited.
var ErrProcessDead = errors.New("interpreter process is not running")

// lineChanSize bounds how far the reader goroutine can run ahead of the
// coordinator's polling.
const lineChanSize = 256

// Process owns one spawned interpreter bound to a single story file. Stdout
// and stderr are merged and split into lines by a reader goroutine; the
// coordinator drains them with ReadAvailable, which never blocks. The last
// lines are retained in a bounded replay ring.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string

	mu      sync.Mutex
	alive   bool
	buffer  *replayRing
	stopped bool
}

// Start spawns the interpreter for the given story file. The child runs under
// stdbuf -oL so its output arrives line by line instead of in stdio-sized
// batches.
func Start(interpreter, storyPath string, bufferLen int) (*Process, error) {
	if _, err := os.Stat(storyPath); err != nil {
		return nil, fmt.Errorf("story file: %w", err)
	}
	if _, err := exec.LookPath(interpreter); err != nil {
		return nil, fmt.Errorf("interpreter: %w", err)
	}

	cmd := exec.Command("stdbuf", "-oL", interpreter, "-m", storyPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	// Single pipe for stdout+stderr so interpreter errors reach the channel
	// in stream order.
	pr, pw, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		stdin.Close()
		pw.Close()
		pr.Close()
		return nil, fmt.Errorf("start interpreter: %w", err)
	}
	pw.Close()

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, lineChanSize),
		alive:  true,
		buffer: newReplayRing(bufferLen),
	}
	go p.readLoop(pr)
	return p, nil
}

// readLoop splits the merged output stream into lines. It ends when the child
// exits (EOF on the pipe), at which point the child is reaped and the process
// marked dead.
func (p *Process) readLoop(r io.ReadCloser) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	close(p.lines)
	r.Close()
	p.cmd.Wait()

	p.mu.Lock()
	p.alive = false
	p.mu.Unlock()
}

// SendLine writes one command line to the interpreter's stdin.
func (p *Process) SendLine(text string) error {
	p.mu.Lock()
	alive := p.alive
	p.mu.Unlock()
	if !alive {
		return ErrProcessDead
	}
	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrProcessDead, err)
	}
	return nil
}

// ReadAvailable drains whatever output lines have arrived since the last call
// without blocking, records them in the replay ring, and returns them.
func (p *Process) ReadAvailable() []string {
	var out []string
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				p.bufferAppend(out)
				return out
			}
			out = append(out, line)
		default:
			p.bufferAppend(out)
			return out
		}
	}
}

func (p *Process) bufferAppend(lines []string) {
	if len(lines) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, line := range lines {
		p.buffer.push(line)
	}
}

// Replay returns the buffered output lines oldest-first without consuming
// them.
func (p *Process) Replay() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.snapshot()
}

// IsAlive reports whether the child is still running.
func (p *Process) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// Stop terminates the interpreter if it is still running and closes its
// stdin. Safe to call multiple times.
func (p *Process) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	alive := p.alive
	p.mu.Unlock()

	p.stdin.Close()
	if alive {
		p.cmd.Process.Signal(syscall.SIGTERM)
		// readLoop reaps the child on EOF; give a stuck interpreter a
		// harder push if SIGTERM did not take.
		go func() {
			time.Sleep(3 * time.Second)
			if p.IsAlive() {
				p.cmd.Process.Kill()
			}
		}()
	}
}
