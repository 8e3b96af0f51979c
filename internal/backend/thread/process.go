package thread

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/seantiz/crucible/internal/backend"
)

// processWorker is a child process running a worker runtime. Tasks go to the
// child's stdin and events come back from its stdout, both as framed messages.
// Each processWorker is driven by a single pool event pump.
type processWorker struct {
	id     string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
	logger *slog.Logger

	inbox  chan json.RawMessage
	events chan backend.Event
	busy   atomic.Bool

	quit      chan struct{}
	quitOnce  sync.Once
	closed    atomic.Bool
	writeDone chan struct{}
	done      chan struct{}
}

// startProcess launches the boot executable and starts its I/O loops.
func startProcess(id string, boot backend.BootSpec, opts Options, logger *slog.Logger) (*processWorker, error) {
	// Not bound to the spawn context: the process outlives Create.
	cmd := exec.Command(boot.Path, boot.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", boot.Path, err)
	}
	processesActive.Inc()

	w := &processWorker{
		id:        id,
		cmd:       cmd,
		stdin:     stdin,
		stdout:    bufio.NewReader(stdout),
		stderr:    stderr,
		logger:    logger.With("worker_id", id, "pid", cmd.Process.Pid),
		inbox:     make(chan json.RawMessage, 1),
		events:    make(chan backend.Event, eventBuffer),
		quit:      make(chan struct{}),
		writeDone: make(chan struct{}),
		done:      make(chan struct{}),
	}

	w.logger.Debug("worker process started", "path", boot.Path)

	go w.writeLoop()
	go w.supervise()

	return w, nil
}

func (w *processWorker) ID() string { return w.id }

func (w *processWorker) Events() <-chan backend.Event { return w.events }

// Send hands payload to the write loop.
func (w *processWorker) Send(payload json.RawMessage) error {
	if w.closed.Load() {
		return backend.ErrWorkerClosed
	}
	if !w.busy.CompareAndSwap(false, true) {
		return backend.ErrWorkerBusy
	}
	w.inbox <- payload
	return nil
}

// Terminate closes the child's stdin so the worker runtime exits on EOF, and
// kills the process if it has not exited when ctx ends.
func (w *processWorker) Terminate(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
	}

	if err := w.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		w.logger.Warn("kill worker process", "error", err)
	}
	<-w.done
	return fmt.Errorf("terminate worker %s: %w", w.id, ctx.Err())
}

func (w *processWorker) stop() {
	w.quitOnce.Do(func() {
		w.closed.Store(true)
		close(w.quit)
	})
}

// writeLoop forwards payloads from inbox to the child's stdin.
func (w *processWorker) writeLoop() {
	defer close(w.writeDone)
	defer w.stdin.Close()

	for {
		select {
		case <-w.quit:
			return
		case payload := <-w.inbox:
			err := WriteMessage(w.stdin, Message{Type: MsgTypeTask, Payload: payload})
			if err != nil {
				w.logger.Warn("write task frame", "error", err)
				w.busy.Store(false)
				w.events <- backend.Event{Kind: backend.EventFault, Err: fmt.Errorf("send task: %w", err)}
				continue
			}
			framesTotal.WithLabelValues(dirOut, MsgTypeTask).Inc()
		}
	}
}

// supervise reads stdout and stderr to EOF, reaps the process, then emits
// EventExit and closes the event stream. It is the only closer of events.
func (w *processWorker) supervise() {
	var readers sync.WaitGroup
	readers.Go(w.readLoop)
	readers.Go(w.logStderr)
	readers.Wait()

	waitErr := w.cmd.Wait()
	processesActive.Dec()

	w.stop()
	<-w.writeDone

	if waitErr != nil {
		w.logger.Info("worker process exited", "error", waitErr)
	} else {
		w.logger.Debug("worker process exited")
	}

	w.events <- backend.Event{Kind: backend.EventExit, Err: waitErr}
	close(w.events)
	close(w.done)
}

// readLoop decodes frames from stdout until EOF or a malformed frame.
func (w *processWorker) readLoop() {
	for {
		var msg Message
		if err := ReadMessage(w.stdout, &msg); err != nil {
			if !errors.Is(err, io.EOF) {
				w.logger.Debug("read worker frame", "error", err)
			}
			return
		}

		switch msg.Type {
		case MsgTypeReady, MsgTypeLog, MsgTypeResult, MsgTypeFault:
			framesTotal.WithLabelValues(dirIn, msg.Type).Inc()
		default:
			w.logger.Warn("unknown frame type from worker", "type", msg.Type)
			continue
		}

		switch msg.Type {
		case MsgTypeReady:
			w.events <- backend.Event{Kind: backend.EventReady}
		case MsgTypeLog:
			w.events <- backend.Event{Kind: backend.EventLog, Line: msg.Line}
		case MsgTypeResult:
			w.busy.Store(false)
			w.events <- backend.Event{Kind: backend.EventResult, Result: msg.Payload}
		case MsgTypeFault:
			w.busy.Store(false)
			w.events <- backend.Event{Kind: backend.EventFault, Err: faultError(msg.Error)}
		}
	}
}

// faultError turns a fault frame's message into an error. Workers may send an
// empty message; the error still has to say something.
func faultError(msg string) error {
	if msg == "" {
		return errors.New("worker reported a fault with no message")
	}
	return errors.New(msg)
}

// logStderr forwards the child's stderr to the logger line by line.
func (w *processWorker) logStderr() {
	scanner := bufio.NewScanner(w.stderr)
	for scanner.Scan() {
		w.logger.Debug("worker stderr", "line", scanner.Text())
	}
}
