package worker

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/seantiz/crucible/internal/backend"
	"github.com/seantiz/crucible/internal/backend/thread"
)

const (
	// defaultExecTimeout bounds a snippet that does not set timeout_s.
	defaultExecTimeout = 30 * time.Second

	// execWaitDelay is how long output is still collected after the snippet
	// exits or is killed.
	execWaitDelay = 2 * time.Second

	// maxLineSize caps a single output line.
	maxLineSize = thread.MaxMessageSize
)

// defaultEntrypoints maps each runtime to its default entrypoint filename.
var defaultEntrypoints = map[string]string{
	"go":     "main.go",
	"node":   "index.js",
	"python": "main.py",
	"sh":     "main.sh",
}

// runtimeCommands maps each runtime to the command used to execute code.
var runtimeCommands = map[string]struct {
	bin  string
	args func(entrypoint string) []string
}{
	"go":     {bin: "go", args: func(ep string) []string { return []string{"run", ep} }},
	"node":   {bin: "node", args: func(ep string) []string { return []string{ep} }},
	"python": {bin: "python3", args: func(ep string) []string { return []string{ep} }},
	"sh":     {bin: "sh", args: func(ep string) []string { return []string{ep} }},
}

// ExecRequest is the payload understood by ExecHandler.
type ExecRequest struct {
	Runtime    string            `json:"runtime"`
	Code       string            `json:"code"`
	Input      string            `json:"input,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Entrypoint string            `json:"entrypoint,omitempty"`
	TimeoutS   int               `json:"timeout_s,omitempty"`
}

// ExecResult is the result produced by ExecHandler. A snippet that runs and
// exits non-zero is still a result; only setup failures are faults.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
}

// ExecHandler returns a handler that runs code snippets with a local runtime
// inside workDir. The directory is cleaned before every task.
func ExecHandler(workDir string) backend.HandlerFunc {
	return func(ctx context.Context, req backend.Request) (json.RawMessage, error) {
		var er ExecRequest
		if err := json.Unmarshal(req.Payload, &er); err != nil {
			return nil, fmt.Errorf("decode exec request: %w", err)
		}

		res, err := execute(ctx, workDir, &er, req.Log)
		if err != nil {
			return nil, err
		}

		out, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("encode exec result: %w", err)
		}
		return out, nil
	}
}

// execute runs the snippet described by er, streaming output lines to logLine.
func execute(ctx context.Context, workDir string, er *ExecRequest, logLine func(string)) (ExecResult, error) {
	rtCmd, ok := runtimeCommands[er.Runtime]
	if !ok {
		return ExecResult{}, fmt.Errorf("unsupported runtime: %q", er.Runtime)
	}

	entrypoint := er.Entrypoint
	if entrypoint == "" {
		entrypoint = defaultEntrypoints[er.Runtime]
	}

	// Path traversal guard.
	if err := validatePath(workDir, entrypoint); err != nil {
		return ExecResult{}, fmt.Errorf("invalid entrypoint: %w", err)
	}

	if err := extractCode(workDir, er.Code, entrypoint); err != nil {
		return ExecResult{}, fmt.Errorf("extract code: %w", err)
	}

	timeout := time.Duration(er.TimeoutS) * time.Second
	if timeout == 0 {
		timeout = defaultExecTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, rtCmd.bin, rtCmd.args(filepath.Join(workDir, entrypoint))...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()
	for k, v := range er.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if er.Input != "" {
		cmd.Stdin = strings.NewReader(er.Input)
	}

	// Output flows through in-memory pipes so cmd.Wait owns the copying and
	// WaitDelay bounds it when a grandchild keeps the descriptors open.
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.WaitDelay = execWaitDelay
	setProcessGroup(cmd)

	// Both streams share one log sink.
	var logMu sync.Mutex
	emit := func(line string) {
		logMu.Lock()
		defer logMu.Unlock()
		logLine(line)
	}

	var stdout, stderr strings.Builder
	var stdoutErr, stderrErr error
	var streams sync.WaitGroup
	streams.Go(func() { stdoutErr = streamLines(stdoutR, &stdout, emit) })
	streams.Go(func() { stderrErr = streamLines(stderrR, &stderr, emit) })

	closeStreams := func() {
		stdoutW.Close()
		stderrW.Close()
		streams.Wait()
	}

	if err := cmd.Start(); err != nil {
		closeStreams()
		return ExecResult{}, fmt.Errorf("start command: %w", err)
	}

	waitErr := cmd.Wait()
	killProcessGroup(cmd)
	closeStreams()

	res := ExecResult{Output: stdout.String() + stderr.String()}
	if waitErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Error = fmt.Sprintf("timeout after %s", timeout)
		} else {
			res.Error = waitErr.Error()
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0 {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = 1
		}
	}
	if scanErr := errors.Join(stdoutErr, stderrErr); scanErr != nil && res.Error == "" {
		res.Error = scanErr.Error()
	}
	return res, nil
}

// streamLines reads lines from r, emits each one, and appends it to output.
// A line longer than maxLineSize ends the scan; the rest of r is discarded so
// the writer never blocks.
func streamLines(r io.Reader, output *strings.Builder, emit func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		output.WriteString(line + "\n")
		emit(line)
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("output line exceeds %d bytes", maxLineSize)
		}
		return fmt.Errorf("read output: %w", err)
	}
	return nil
}

// validatePath checks that joining baseDir with relPath stays within baseDir.
func validatePath(baseDir, relPath string) error {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("resolve base dir: %w", err)
	}
	cleaned := filepath.Clean(filepath.Join(absBase, relPath))
	if !strings.HasPrefix(cleaned, absBase+string(filepath.Separator)) && cleaned != absBase {
		return fmt.Errorf("path %q escapes work directory", relPath)
	}
	return nil
}

// extractCode writes code to workDir. If the code looks like a base64-encoded
// tar.gz archive it is decoded and extracted, otherwise it becomes the
// entrypoint file.
func extractCode(workDir, code, entrypoint string) error {
	if err := os.RemoveAll(workDir); err != nil {
		return fmt.Errorf("clean work dir: %w", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	if isBase64Archive(code) {
		return extractArchive(workDir, code)
	}

	return os.WriteFile(filepath.Join(workDir, entrypoint), []byte(code), 0o644)
}

// isBase64Archive checks if the string looks like a base64-encoded tar.gz.
// tar.gz files start with the gzip magic bytes (1f 8b).
func isBase64Archive(s string) bool {
	if len(s) < 4 {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(s[:4])
	if err != nil {
		return false
	}
	return len(decoded) >= 2 && decoded[0] == 0x1f && decoded[1] == 0x8b
}

// extractArchive decodes a base64-encoded tar.gz and extracts it to dir.
// Each entry is validated to prevent zip-slip.
func extractArchive(dir, encoded string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve dir: %w", err)
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		target := filepath.Join(absDir, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, absDir+string(filepath.Separator)) && target != absDir {
			return fmt.Errorf("archive entry %q escapes extraction directory", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, os.FileMode(hdr.Mode)&0o755); err != nil {
				return err
			}
		}
	}

	return nil
}

func writeEntry(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(r, thread.MaxMessageSize)); err != nil {
		return fmt.Errorf("write file %s: %w", target, err)
	}
	return nil
}
