// Package progress carries progress reports from long-running media
// operations back to whoever started them.
package progress

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strconv"
)

// Stage names reported by the operations.
const (
	StageProbing     = "probing"
	StageCombining   = "combining"
	StageConverting  = "converting"
	StageDownloading = "downloading"
	StageWriting     = "writing"
	StageFinished    = "finished"
)

// Update is a single progress report.
type Update struct {
	Stage   string
	File    string
	Message string
	// Current and Total count discrete units (clips, chunks) when known.
	Current int
	Total   int
	// Percent is in [0, 100]. A negative value means indeterminate.
	Percent float64
}

// Func receives progress updates. A nil Func discards them.
type Func func(Update)

// Report calls f with u if f is non-nil.
func (f Func) Report(u Update) {
	if f != nil {
		f(u)
	}
}

// Percent returns done/total as a percentage clamped to [0, 100], or -1
// when total is not positive.
func Percent(done, total float64) float64 {
	if total <= 0 {
		return -1
	}
	p := done / total * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

var timeRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// ParseFFmpegTime extracts the "time=HH:MM:SS.xx" position from an ffmpeg
// status line, in seconds.
func ParseFFmpegTime(line string) (float64, bool) {
	m := timeRe.FindStringSubmatch(line)
	if len(m) < 4 {
		return 0, false
	}
	h, _ := strconv.ParseFloat(m[1], 64)
	mins, _ := strconv.ParseFloat(m[2], 64)
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return h*3600 + mins*60 + sec, true
}

// ScanLines calls fn for every line read from r. Lines end at '\n' or '\r'
// because ffmpeg and yt-dlp redraw status lines with carriage returns.
func ScanLines(r io.Reader, fn func(line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitLines)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			fn(line)
		}
	}
	return scanner.Err()
}

func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// TailBuffer is an io.Writer that keeps only the last n bytes written.
// It holds the end of a tool's stderr for error messages without keeping
// every progress line of a long run.
type TailBuffer struct {
	n   int
	buf []byte
}

// NewTailBuffer returns a TailBuffer keeping at most n bytes.
func NewTailBuffer(n int) *TailBuffer {
	return &TailBuffer{n: n, buf: make([]byte, 0, n)}
}

// Write implements io.Writer. It never fails.
func (t *TailBuffer) Write(p []byte) (int, error) {
	written := len(p)
	if len(p) >= t.n {
		t.buf = append(t.buf[:0], p[len(p)-t.n:]...)
		return written, nil
	}
	if over := len(t.buf) + len(p) - t.n; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return written, nil
}

// String returns the retained bytes.
func (t *TailBuffer) String() string {
	return string(t.buf)
}
