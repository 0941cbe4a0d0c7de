package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gosuri/uilive"
)

/*
progress keeps one line per running operation on the terminal and rewrites
them in place (using [uilive](https://github.com/gosuri/uilive)). Lines are
set from any goroutine; an empty line is hidden.
*/
type progress struct {
	mu     sync.Mutex
	lines  []string
	writer *uilive.Writer
}

func newProgress(out io.Writer, size int) *progress {
	writer := uilive.New()
	writer.Out = out
	writer.Start()
	return &progress{lines: make([]string, size), writer: writer}
}

func (p *progress) set(i int, line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.lines) {
		lines := make([]string, i+1)
		copy(lines, p.lines)
		p.lines = lines
	}
	p.lines[i] = line

	var visible []string
	for _, line := range p.lines {
		if len(line) > 0 {
			visible = append(visible, line)
		}
	}
	fmt.Fprintln(p.writer, strings.Join(visible, "\n"))
	_ = p.writer.Flush()
}

// sender returns a function that sets the i-th line
func (p *progress) sender(i int) func(string) {
	return func(line string) {
		p.set(i, line)
	}
}

func (p *progress) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer.Stop()
}
