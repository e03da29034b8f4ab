package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// defaultQuietPeriod is how long a response is allowed to go silent
// before it is considered complete.
const defaultQuietPeriod = time.Second

// backendProcess wraps a spawned agent CLI with line-oriented stdio.
type backendProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
}

// spawnProcess starts the executable with a minimal, explicitly
// reconstructed environment. The caller supplies flags and any extra
// environment entries; the inherited environment is never passed through.
func spawnProcess(executable string, args, extraEnv []string, dir string) (*backendProcess, error) {
	cmd := exec.Command(executable, args...)
	cmd.Dir = dir
	cmd.Env = append([]string{"PATH=" + os.Getenv("PATH")}, extraEnv...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", executable, err)
	}

	p := &backendProcess{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, 64),
	}
	go p.pump(stdout)
	return p, nil
}

// pump forwards stdout lines to the lines channel until the process
// closes its output.
func (p *backendProcess) pump(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	close(p.lines)
}

// send writes one line to the process stdin.
func (p *backendProcess) send(text string) error {
	_, err := io.WriteString(p.stdin, text+"\n")
	return err
}

// collect gathers response lines. It blocks until the first line arrives,
// then keeps reading until output goes quiet for the given period or the
// process closes its output. No overall deadline is applied beyond ctx.
func (p *backendProcess) collect(ctx context.Context, quiet time.Duration) (string, error) {
	var b strings.Builder

	select {
	case line, ok := <-p.lines:
		if !ok {
			return "", fmt.Errorf("agent process closed its output")
		}
		b.WriteString(line)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	timer := time.NewTimer(quiet)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return b.String(), nil
			}
			b.WriteString("\n")
			b.WriteString(line)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(quiet)
		case <-timer.C:
			return b.String(), nil
		case <-ctx.Done():
			return b.String(), nil
		}
	}
}

// terminate kills the process and reaps it. The lines channel is drained
// until the pump closes it, so a pump blocked on a full channel can exit.
func (p *backendProcess) terminate() error {
	_ = p.stdin.Close()
	err := p.cmd.Process.Kill()
	_, waitErr := p.cmd.Process.Wait()

	go func() {
		for range p.lines {
		}
	}()

	if err != nil {
		return err
	}
	return waitErr
}
