package keepawake

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
)

// Command keeps the host awake by running an inhibitor process, such as
// systemd-inhibit, for as long as the hold is requested.
type Command struct {
	args []string

	mu       sync.Mutex
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	released chan struct{}
}

func NewCommand(args []string) *Command {
	return &Command{
		args:     args,
		released: make(chan struct{}, 1),
	}
}

// Request starts the inhibitor unless it is already running.
func (c *Command) Request(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return nil
	}

	path, err := exec.LookPath(c.args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupported, err)
	}

	// The hold outlives the request context; Release ends it.
	cmdCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(cmdCtx, path, c.args[1:]...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: starting %s: %s", ErrUnsupported, c.args[0], err)
	}

	c.cmd = cmd
	c.cancel = cancel

	go c.wait(cmd)

	return nil
}

// Release stops the inhibitor. Releasing without a hold is a no-op.
func (c *Command) Release() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cmd = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (c *Command) Released() <-chan struct{} {
	return c.released
}

func (c *Command) wait(cmd *exec.Cmd) {
	_ = cmd.Wait()

	c.mu.Lock()
	external := c.cmd == cmd
	if external {
		c.cmd = nil
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	if external {
		select {
		case c.released <- struct{}{}:
		default:
		}
	}
}
