package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Spinner shows activity during a long operation
type Spinner struct {
	out     io.Writer
	frames  []string
	current int
	message string
	started time.Time
	stop    chan struct{}
	done    chan struct{}
	mu      sync.Mutex
}

// NewSpinner creates a spinner writing to Output
func NewSpinner(message string) *Spinner {
	return &Spinner{
		out:     Output,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the animation
func (s *Spinner) Start() {
	s.started = time.Now()
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(s.out, "\r%s %s %s",
					ColorProgress(s.frames[s.current]),
					s.message,
					strings.Repeat(" ", 20),
				)
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			}
		}
	}()
}

// Stop ends the animation and prints the outcome with the elapsed time
func (s *Spinner) Stop(success bool, message string) {
	close(s.stop)
	<-s.done

	mark := ColorSuccess("✓")
	if !success {
		mark = ColorError("✗")
	}
	fmt.Fprintf(s.out, "\r\033[K%s %s (%s)\n", mark, message, FormatDuration(time.Since(s.started)))
}

// UpdateMessage changes the text next to the spinner
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}
