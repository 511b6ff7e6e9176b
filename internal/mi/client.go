package mi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/internal/supervisor"
)

// ErrClosed is returned for commands sent after gdb went away
var ErrClosed = errors.New("gdb connection closed")

const eventBuffer = 256

// Client speaks MI2 to a gdb process over pipes
type Client struct {
	w   io.WriteCloser
	log logr.Logger
	cmd *exec.Cmd

	writeMu sync.Mutex

	mu      sync.Mutex
	token   int64
	pending map[int64]chan *Record
	closed  bool

	events chan *Record
	done   chan struct{}
}

// Start launches gdb with the MI2 interpreter. args are appended after the
// interpreter flags, typically the executable to debug.
func Start(gdbPath string, args []string, dir string, log logr.Logger) (*Client, error) {
	argv := append([]string{"--interpreter=mi2", "--nx", "-q"}, args...)

	//nolint:gosec // G204: the gdb path is operator configuration
	cmd := exec.Command(gdbPath, argv...)
	cmd.Dir = dir
	supervisor.SetProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get gdb stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get gdb stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, dbgerrors.SpawnFailed(gdbPath, err)
	}
	log.Info("gdb started", "path", gdbPath, "pid", cmd.Process.Pid)

	c := NewClient(stdout, stdin, log)
	c.cmd = cmd
	go func() {
		<-c.done
		_ = cmd.Wait()
	}()
	return c, nil
}

// NewClient runs the MI protocol over an existing reader/writer pair
func NewClient(r io.Reader, w io.WriteCloser, log logr.Logger) *Client {
	c := &Client{
		w:       w,
		log:     log,
		pending: make(map[int64]chan *Record),
		events:  make(chan *Record, eventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// Events returns the out-of-band record stream. It is closed when gdb exits.
func (c *Client) Events() <-chan *Record {
	return c.events
}

// Done is closed when gdb's output ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send writes a tokenized command and waits for its result record
func (c *Client) Send(ctx context.Context, command string) (*Record, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.token++
	token := c.token
	reply := make(chan *Record, 1)
	c.pending[token] = reply
	c.mu.Unlock()

	c.log.V(1).Info("mi command", "token", token, "command", command)

	c.writeMu.Lock()
	_, err := fmt.Fprintf(c.w, "%d%s\n", token, command)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(token)
		return nil, fmt.Errorf("failed to write MI command: %w", err)
	}

	select {
	case rec, ok := <-reply:
		if !ok {
			return nil, ErrClosed
		}
		if rec.Class == "error" {
			return rec, dbgerrors.MICommandFailed(command, rec.ErrorMessage())
		}
		return rec, nil
	case <-ctx.Done():
		c.forget(token)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(token int64) {
	c.mu.Lock()
	delete(c.pending, token)
	c.mu.Unlock()
}

func (c *Client) readLoop(r io.Reader) {
	defer c.shutdown()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || IsPrompt(line) {
			continue
		}

		rec, err := ParseRecord(line)
		if err != nil {
			c.log.V(1).Info("ignoring unparsable MI output", "line", line, "error", err.Error())
			continue
		}

		if rec.Type == ResultRecord && rec.Token >= 0 {
			c.mu.Lock()
			reply, ok := c.pending[rec.Token]
			delete(c.pending, rec.Token)
			c.mu.Unlock()
			if ok {
				reply <- rec
				continue
			}
		}

		c.events <- rec
	}
	if err := scanner.Err(); err != nil {
		c.log.Error(err, "gdb output read failed")
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	for token, reply := range c.pending {
		close(reply)
		delete(c.pending, token)
	}
	c.mu.Unlock()

	close(c.events)
	close(c.done)
}

// Close closes gdb's stdin and kills the process if it has not exited
// within a second.
func (c *Client) Close() error {
	err := c.w.Close()
	if c.cmd == nil {
		return err
	}

	select {
	case <-c.done:
	case <-time.After(time.Second):
		if killErr := supervisor.KillProcessGroup(c.cmd.Process.Pid, c.cmd); killErr != nil {
			return killErr
		}
	}
	return err
}
