package msg

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

func tagRunning() string { return color.YellowString("[Running]") }
func tagFailed() string  { return color.RedString("[Failed!]") }
func tagDone() string    { return color.GreenString("[Done...]") }

// Status frames one stage on the console: a running line that turns into a
// done or failed line. On a terminal the line is rewritten in place.
type Status struct {
	label  string
	w      io.Writer
	inline bool
}

// Begin prints the running line for label
func Begin(label string) *Status {
	s := &Status{label: label, w: Output, inline: isTerminal(os.Stdout)}
	if s.inline {
		fmt.Fprintf(s.w, "%s %s", tagRunning(), label)
	} else {
		fmt.Fprintf(s.w, "%s %s\n", tagRunning(), label)
	}
	return s
}

// Break ends the running line so other output can follow it
func (s *Status) Break() {
	if s.inline {
		fmt.Fprintln(s.w)
		s.inline = false
	}
}

func (s *Status) Done() {
	s.finish(tagDone())
}

// Failed prints the failed line followed by the captured tool output
func (s *Status) Failed(output []byte) {
	s.finish(tagFailed())
	if len(output) == 0 {
		return
	}
	iw := &IndentWriter{Indent: "    ", W: s.w}
	iw.Write(output)
	if output[len(output)-1] != '\n' {
		fmt.Fprintln(s.w)
	}
}

func (s *Status) finish(tag string) {
	if s.inline {
		fmt.Fprintf(s.w, "\r%s %s\n", tag, s.label)
		return
	}
	fmt.Fprintf(s.w, "%s %s\n", tag, s.label)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
