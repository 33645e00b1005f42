package transcode

import (
	"bytes"
	"math"
	"sync"

	"github.com/ixugo/goddd/pkg/queue"
)

// maxTailLines is the largest ring the queue package supports.
const maxTailLines = math.MaxUint8

// tailWriter keeps the last lines written to it.
type tailWriter struct {
	mu      sync.Mutex
	lines   *queue.CirQueue[string]
	partial []byte
}

func newTailWriter(n int) *tailWriter {
	if n < 1 {
		n = defaultTailLines
	}
	return &tailWriter{lines: queue.NewCirQueue[string](uint8(min(n, maxTailLines)))}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.push(w.partial[:i])
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

func (w *tailWriter) push(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	w.lines.Push(string(line))
}

// Lines returns the retained lines, oldest first, including an unterminated last line.
func (w *tailWriter) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.push(w.partial)
		w.partial = nil
	}
	return w.lines.Range()
}
