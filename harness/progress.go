package harness

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Progress receives one Add per completed call and a Finish once the batch
// is done. Implementations must be safe for concurrent use.
type Progress interface {
	Add(n int) error
	Finish() error
}

// NewBar renders batch progress to w.
func NewBar(w io.Writer, n int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionOnCompletion(func() {
			_, _ = io.WriteString(w, "\n")
		}),
	)
}

type nopProgress struct{}

func (nopProgress) Add(int) error { return nil }
func (nopProgress) Finish() error { return nil }
