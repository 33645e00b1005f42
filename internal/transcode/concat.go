package transcode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ConcatEntry is one image of a concat list and how long it stays on screen.
type ConcatEntry struct {
	File     string
	Duration time.Duration
}

// WriteConcatList writes entries in the concat demuxer format. The last file
// is listed a second time without a duration, otherwise the demuxer ignores
// the last duration.
func WriteConcatList(w io.Writer, entries []ConcatEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: empty concat list", ErrInvalidArgument)
	}
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, e := range entries {
		if err := checkPaths(e.File); err != nil {
			return err
		}
		if e.Duration < 0 {
			return fmt.Errorf("%w: negative duration for %q", ErrInvalidArgument, e.File)
		}
		fmt.Fprintf(&b, "file %s\n", quoteConcat(e.File))
		fmt.Fprintf(&b, "duration %s\n", strconv.FormatFloat(e.Duration.Seconds(), 'f', -1, 64))
	}
	fmt.Fprintf(&b, "file %s\n", quoteConcat(entries[len(entries)-1].File))

	_, err := io.WriteString(w, b.String())
	return err
}

func quoteConcat(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
