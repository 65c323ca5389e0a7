package popup

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// process is an external program fed through stdin.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer

	writeMu sync.Mutex
	done    chan struct{}
	waitErr error

	stopOnce sync.Once
}

func startProcess(name string, args []string) (*process, error) {
	cmd := exec.Command(name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin for %s: %w", name, err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = &lockedWriter{w: stderr}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &process{cmd: cmd, stdin: stdin, stderr: stderr, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// awaitReady returns nil if the process is still alive after grace.
func (p *process) awaitReady(grace time.Duration, cancel <-chan struct{}) error {
	select {
	case <-p.done:
		return fmt.Errorf("%s exited during startup: %v: %s", p.cmd.Path, p.waitErr, strings.TrimSpace(p.stderrTail()))
	case <-cancel:
		p.stop(0)
		return fmt.Errorf("startup cancelled")
	case <-time.After(grace):
		return nil
	}
}

func (p *process) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	select {
	case <-p.done:
		return fmt.Errorf("process exited")
	default:
	}
	_, err := p.stdin.Write(data)
	return err
}

// closeInput signals EOF to the program without stopping it.
func (p *process) closeInput() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.stdin.Close()
}

// stop closes stdin, waits up to grace for a clean exit, then kills.
func (p *process) stop(grace time.Duration) error {
	p.stopOnce.Do(func() {
		p.closeInput()
		select {
		case <-p.done:
			return
		case <-time.After(grace):
		}
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		<-p.done
	})
	return nil
}

func (p *process) stderrTail() string {
	lw := p.cmd.Stderr.(*lockedWriter)
	lw.mu.Lock()
	defer lw.mu.Unlock()
	s := p.stderr.String()
	if len(s) > 512 {
		s = s[len(s)-512:]
	}
	return s
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}
