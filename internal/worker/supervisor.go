// Package worker supervises isolated child processes that run
// crash-prone stage work (GPU capture, recognition, translation) out of
// the pipeline host. Each Supervisor owns exactly one child and speaks
// the ipc wire protocol with it: a synchronous request/response at a
// time, a bounded restart budget when the child dies or stalls, and a
// one-way transition to a failed state when the budget is exhausted.
package worker

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/yavanika/internal/ipc"
)

// Default supervisor settings.
const (
	// DefaultTimeout bounds one request/response round trip.
	DefaultTimeout = 5 * time.Second
	// DefaultMaxRestarts is the number of consecutive failed attempts
	// allowed before the supervisor gives up on its worker.
	DefaultMaxRestarts = 3
	// shutdownGrace is how long Shutdown waits for a clean exit before
	// killing the child.
	shutdownGrace = 2 * time.Second
)

// ErrFailed is returned by Send once the restart budget is exhausted.
// The supervisor will not spawn further processes after this.
var ErrFailed = errors.New("worker: restart budget exhausted, worker failed")

// CrashError reports that the child died or stalled during a request.
// The frame that triggered it is lost; the supervisor restarts the
// child for subsequent requests while budget remains.
type CrashError struct {
	Restarts int
	Err      error
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("worker: child crashed (restart %d): %v", e.Restarts, e.Err)
}

func (e *CrashError) Unwrap() error { return e.Err }

// Config holds supervisor settings.
type Config struct {
	// Command is the worker executable path.
	Command string
	// Args are passed to the executable.
	Args []string
	// Dir is the working directory for the child (usually the plugin dir).
	Dir string
	// InitConfig is the settings map sent in the init message.
	InitConfig json.RawMessage
	// Timeout bounds each request/response round trip. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxRestarts bounds consecutive failures. Zero means DefaultMaxRestarts.
	MaxRestarts int
	// OnFailure, if set, is called exactly once when the budget is exhausted.
	OnFailure func()
}

// Supervisor owns one child worker process. All methods are safe for
// concurrent use; Send serializes callers so the child never sees more
// than one in-flight request.
type Supervisor struct {
	cfg      Config
	mu       sync.Mutex
	proc     *process
	restarts int
	failed   bool
	failOnce sync.Once
}

// process is one incarnation of the child.
type process struct {
	cmd   *exec.Cmd
	ch    *ipc.Channel
	stdin io.WriteCloser
	inbox chan *ipc.Message
	done  chan struct{}
}

// New creates a Supervisor. The child is not spawned until Start.
func New(cfg Config) *Supervisor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = DefaultMaxRestarts
	}
	return &Supervisor{cfg: cfg}
}

// Start spawns the child and completes the init/ready handshake.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return ErrFailed
	}
	if s.proc != nil {
		return nil
	}

	p, err := s.spawn()
	if err != nil {
		return err
	}
	s.proc = p
	return nil
}

// IsAlive reports whether the child process is currently running.
func (s *Supervisor) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return false
	}
	select {
	case <-s.proc.done:
		return false
	default:
		return true
	}
}

// Failed reports whether the restart budget has been exhausted.
func (s *Supervisor) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Restarts returns the current consecutive-failure count.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Send delivers one process request and blocks for its result, up to
// the configured timeout. On child death or timeout the child is
// killed, the restart counter is incremented, and a fresh child is
// spawned while the budget allows; the failed request itself is not
// retried. A successful round trip resets the counter.
func (s *Supervisor) Send(data json.RawMessage) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return nil, ErrFailed
	}
	if err := s.ensureProcess(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	req := &ipc.Message{Type: ipc.TypeProcess, ID: id, Data: data}
	if err := s.proc.ch.Write(req); err != nil {
		return nil, s.handleCrash(fmt.Errorf("write request: %w", err))
	}

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-s.proc.inbox:
			if msg.ID != id {
				// Stale response from a previous incarnation or request.
				continue
			}
			switch msg.Type {
			case ipc.TypeResult:
				s.restarts = 0
				return msg.Data, nil
			case ipc.TypeError:
				// Worker-reported errors are application failures, not
				// crashes; the child stays up and the budget is untouched.
				s.restarts = 0
				return nil, fmt.Errorf("worker: %s", msg.Error)
			default:
				continue
			}
		case <-s.proc.done:
			return nil, s.handleCrash(errors.New("child exited during request"))
		case <-timer.C:
			return nil, s.handleCrash(fmt.Errorf("no response within %v", s.cfg.Timeout))
		}
	}
}

// Restart kills the current child (if any) and spawns a fresh one,
// resetting the failure counter. Used by plugin hot reload; it does not
// clear the failed state.
func (s *Supervisor) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return ErrFailed
	}
	if s.proc != nil {
		s.proc.kill()
		s.proc = nil
	}
	p, err := s.spawn()
	if err != nil {
		return err
	}
	s.proc = p
	s.restarts = 0
	return nil
}

// Shutdown asks the child to exit cleanly and kills it if it does not
// comply within the grace period. In-flight requests have completed by
// the time Shutdown acquires the lock, so the child is never killed
// mid-request by this path.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return
	}
	p := s.proc
	s.proc = nil

	if err := p.ch.Write(&ipc.Message{Type: ipc.TypeShutdown}); err == nil {
		select {
		case <-p.done:
			return
		case <-time.After(shutdownGrace):
		}
	}
	p.kill()
}

// ensureProcess spawns a child if none is running. Called with s.mu held.
func (s *Supervisor) ensureProcess() error {
	if s.proc != nil {
		select {
		case <-s.proc.done:
			// Died between requests; treat like an in-request crash.
			return s.handleCrash(errors.New("child exited between requests"))
		default:
			return nil
		}
	}
	p, err := s.spawn()
	if err != nil {
		return err
	}
	s.proc = p
	return nil
}

// handleCrash reaps the current child, advances the failure counter,
// and respawns while the budget allows. Called with s.mu held; the
// returned error is what Send reports to its caller.
func (s *Supervisor) handleCrash(cause error) error {
	if s.proc != nil {
		s.proc.kill()
		s.proc = nil
	}
	s.restarts++
	crash := &CrashError{Restarts: s.restarts, Err: cause}

	if s.restarts >= s.cfg.MaxRestarts {
		s.markFailed()
		return crash
	}

	p, err := s.spawn()
	if err != nil {
		log.Printf("worker %s: respawn after crash failed: %v", s.cfg.Command, err)
		s.markFailed()
		return crash
	}
	s.proc = p
	return crash
}

// markFailed flips the supervisor to its terminal failed state,
// notifying at most once no matter how many paths reach it.
func (s *Supervisor) markFailed() {
	s.failed = true
	s.failOnce.Do(func() {
		log.Printf("worker %s: marked failed after %d consecutive failures", s.cfg.Command, s.restarts)
		if s.cfg.OnFailure != nil {
			s.cfg.OnFailure()
		}
	})
}

// spawn starts a child process and completes the init/ready handshake.
// Called with s.mu held.
func (s *Supervisor) spawn() (*process, error) {
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("worker: start %s: %w", s.cfg.Command, err)
	}

	p := &process{
		cmd:   cmd,
		ch:    ipc.NewChannel(stdout, stdin),
		stdin: stdin,
		inbox: make(chan *ipc.Message, 4),
		done:  make(chan struct{}),
	}

	go forwardStderr(s.cfg.Command, stderr)
	go p.readLoop()

	if err := p.ch.Write(&ipc.Message{Type: ipc.TypeInit, Config: s.cfg.InitConfig}); err != nil {
		p.kill()
		return nil, fmt.Errorf("worker: send init: %w", err)
	}
	if err := p.awaitReady(s.cfg.Timeout); err != nil {
		p.kill()
		return nil, err
	}
	return p, nil
}

// readLoop pumps inbound records into the inbox until the stream ends,
// then reaps the child and signals done.
func (p *process) readLoop() {
	for {
		msg, err := p.ch.Read()
		if err != nil {
			p.cmd.Wait()
			close(p.done)
			return
		}
		select {
		case p.inbox <- msg:
		default:
			// Nobody is waiting for this response; it is stale.
		}
	}
}

// awaitReady blocks for the ready handshake message.
func (p *process) awaitReady(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-p.inbox:
			if msg.Type == ipc.TypeReady {
				return nil
			}
			if msg.Type == ipc.TypeError {
				return fmt.Errorf("worker: init rejected: %s", msg.Error)
			}
		case <-p.done:
			return errors.New("worker: child exited before ready")
		case <-timer.C:
			return fmt.Errorf("worker: no ready within %v", timeout)
		}
	}
}

// kill terminates the child and waits for the reader to reap it.
func (p *process) kill() {
	p.ch.Close()
	p.stdin.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
	case <-time.After(shutdownGrace):
	}
}

// forwardStderr relays the child's stderr lines to the host log.
func forwardStderr(name string, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log.Printf("worker %s: %s", name, sc.Text())
	}
}
