package agent

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chattyBackend writes a script that floods stdout with far more lines
// than the pump channel buffers, then blocks.
func chattyBackend(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake backend script requires a POSIX shell")
	}
	script := "#!/bin/sh\ni=0\nwhile [ $i -lt 500 ]; do\n  echo \"line $i\"\n  i=$((i+1))\ndone\nsleep 60\n"
	path := filepath.Join(t.TempDir(), "chatty-agent")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestTerminateUnblocksPendingOutput(t *testing.T) {
	p, err := spawnProcess(chattyBackend(t), nil, nil, "")
	require.NoError(t, err)

	// Give the pump time to fill the channel buffer and block.
	time.Sleep(300 * time.Millisecond)

	_ = p.terminate()

	// Once the pump drains and observes EOF it closes the channel. A
	// blocked pump would leave it open and this receive loop hanging.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-p.lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("lines channel never closed after terminate")
		}
	}
}
