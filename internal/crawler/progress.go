package crawler

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// progressLine formats done/total with the share done and the count new
// this session
func progressLine(s Stats) string {
	done := s.Processed
	percent := 0.0
	if s.Universe > 0 {
		percent = float64(done) / float64(s.Universe) * 100
	}
	return fmt.Sprintf("%s/%s (%.1f%%) new %s, failed %s",
		humanize.Comma(done), humanize.Comma(s.Universe), percent,
		humanize.Comma(s.NewlyDone), humanize.Comma(s.Failed))
}

func (c *Crawler) renderProgress() {
	if c.progress == nil {
		return
	}
	_, _ = fmt.Fprintf(c.progress, "\r%s", progressLine(c.GetStats()))
}

func (c *Crawler) finishProgress() {
	if c.progress == nil {
		return
	}
	_, _ = fmt.Fprintf(c.progress, "\r%s\n", progressLine(c.GetStats()))
}
