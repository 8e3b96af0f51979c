// Package worker is the runtime that runs inside a child worker process. It
// speaks the framed protocol of the native-thread strategy over a reader/writer
// pair (normally stdin/stdout): it announces readiness, then executes tasks one
// at a time with a backend.HandlerFunc and streams log lines and results back.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/backend/thread"
)

// Agent serves tasks from the pool host.
type Agent struct {
	handler backend.HandlerFunc
	logger  *slog.Logger

	// writeMu serializes frames written by the agent and by handler log calls.
	writeMu sync.Mutex
	out     io.Writer
}

// New creates an agent that runs h for every task. A nil logger discards output.
func New(h backend.HandlerFunc, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Agent{handler: h, logger: logger}
}

// Serve sends the ready frame, then reads task frames from r and answers each
// on w until r reaches EOF (a clean shutdown) or ctx is done.
func (a *Agent) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	a.out = w

	if err := a.write(thread.Message{Type: thread.MsgTypeReady}); err != nil {
		return fmt.Errorf("send ready: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var msg thread.Message
		if err := thread.ReadMessage(r, &msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read task: %w", err)
		}

		if msg.Type != thread.MsgTypeTask {
			a.logger.Warn("ignoring unexpected frame", "type", msg.Type)
			continue
		}

		if err := a.handle(ctx, msg.Payload); err != nil {
			return err
		}
	}
}

// handle runs one task and writes its terminal frame.
func (a *Agent) handle(ctx context.Context, payload json.RawMessage) error {
	result, err := a.run(ctx, payload)
	if err != nil {
		if werr := a.write(thread.Message{Type: thread.MsgTypeFault, Error: err.Error()}); werr != nil {
			return fmt.Errorf("send fault: %w", werr)
		}
		return nil
	}

	if werr := a.write(thread.Message{Type: thread.MsgTypeResult, Payload: result}); werr != nil {
		return fmt.Errorf("send result: %w", werr)
	}
	return nil
}

func (a *Agent) run(ctx context.Context, payload json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	req := backend.Request{
		Payload: payload,
		Log: func(line string) {
			if err := a.write(thread.Message{Type: thread.MsgTypeLog, Line: line}); err != nil {
				a.logger.Warn("write log line", "error", err)
			}
		},
	}

	result, err = a.handler(ctx, req)
	if err == nil && !json.Valid(result) {
		// An empty or invalid result still needs a well-formed frame.
		if len(result) == 0 {
			result = json.RawMessage("null")
		} else {
			return nil, errors.New("handler returned invalid JSON result")
		}
	}
	return result, err
}

func (a *Agent) write(msg thread.Message) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return thread.WriteMessage(a.out, &msg)
}

// Serve runs h over r and w with a discarding logger. It is shorthand for
// New(h, nil).Serve(ctx, r, w).
func Serve(ctx context.Context, r io.Reader, w io.Writer, h backend.HandlerFunc) error {
	return New(h, nil).Serve(ctx, r, w)
}
