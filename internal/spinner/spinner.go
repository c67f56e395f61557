// Package spinner shows a one-line activity indicator while the CLI waits on
// the portal.
package spinner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const interval = 80 * time.Millisecond

// Start animates message on w until the returned stop is called. When w is
// not a terminal nothing is drawn and stop is a no-op.
func Start(w io.Writer, message string) (stop func()) {
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}
	return start(w, message, interval)
}

func start(w io.Writer, message string, every time.Duration) func() {
	done := make(chan struct{})
	cleared := make(chan struct{})
	blank := "\r" + strings.Repeat(" ", runewidth.StringWidth(message)+2) + "\r"

	go func() {
		defer close(cleared)
		tick := time.NewTicker(every)
		defer tick.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(w, "\r%s %s", frames[i%len(frames)], message) //nolint:errcheck
			select {
			case <-done:
				fmt.Fprint(w, blank) //nolint:errcheck
				return
			case <-tick.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-cleared
	}
}
