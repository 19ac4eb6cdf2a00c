// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ProgressBar implements progress bar functionality that must be
// manually managed. The Display() function must be called whenever an
// updated progress bar should be printed to the screen.
//
// ProgressBar does not use concurrency. It is used to show the
// progress of long sequential phases such as filling a replay buffer
// before learning starts.
type ProgressBar struct {
	width           float64
	maxProgress     float64
	currentProgress float64
	bar             strings.Builder
	startTime       time.Time
	out             io.Writer
}

// New returns a new ProgressBar that is width characters wide and
// reaches 100% after max units of progress. Output is written to out.
func New(width, max int, out io.Writer) *ProgressBar {
	return &ProgressBar{
		width:           float64(width),
		maxProgress:     float64(max),
		currentProgress: 0,
		startTime:       time.Now(),
		out:             out,
	}
}

// IncrementBy advances the internal progress counter by n units.
func (p *ProgressBar) IncrementBy(n int) {
	p.currentProgress += float64(n)
	if p.currentProgress > p.maxProgress {
		p.currentProgress = p.maxProgress
	}
}

// Increment advances the internal progress counter by a single unit.
// Each time an iteration is performed, Increment should be called.
func (p *ProgressBar) Increment() {
	p.IncrementBy(1)
}

// Display prints the current state of the progress bar, overwriting
// the previously printed bar.
func (p *ProgressBar) Display() {
	p.bar.Reset()
	p.bar.Write([]byte("|"))

	currentProg := p.currentProgress / p.maxProgress * p.width
	for i := 0.0; i < currentProg; i++ {
		p.bar.Write([]byte("█"))
	}
	for i := currentProg; i < p.width; i++ {
		p.bar.Write([]byte(" "))
	}
	p.bar.Write([]byte(fmt.Sprintf("| [%.2f%v | elapsed: %v]",
		p.currentProgress/p.maxProgress*100, "%",
		time.Since(p.startTime).Truncate(time.Second))))

	fmt.Fprintf(p.out, "\n\033[1A\033[K%v", p.bar.String())
}

// Close finishes the progress bar display, jumping to the next line.
func (p *ProgressBar) Close() {
	fmt.Fprintln(p.out)
}
