package robot

import (
	"bytes"
	"fmt"
	"strings"
)

// lineEnding terminates every command on the wire. The controller accepts
// bare "\n" on incoming lines as well, so decoding trims both.
const lineEnding = "\r\n"

// EncodeCommand formats a command line for the robot controller. Numeric
// arguments are fixed to 2 decimal places.
func EncodeCommand(name string, args ...float64) []byte {
	var b strings.Builder
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(' ')
		fmt.Fprintf(&b, "%.2f", a)
	}
	b.WriteString(lineEnding)
	return []byte(b.String())
}

// DecodeLine strips the terminator and surrounding whitespace from a raw
// wire line. Malformed lines are passed through for the caller to classify.
func DecodeLine(raw []byte) string {
	return strings.TrimSpace(string(raw))
}

// LineBuffer assembles complete lines from arbitrary read chunks. A line
// split across reads is held until its terminator arrives.
type LineBuffer struct {
	buf []byte
}

// Feed appends a chunk and returns every complete decoded line it closes.
func (lb *LineBuffer) Feed(chunk []byte) []string {
	lb.buf = append(lb.buf, chunk...)
	var lines []string
	for {
		i := bytes.IndexByte(lb.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, DecodeLine(lb.buf[:i]))
		lb.buf = lb.buf[i+1:]
	}
	if len(lb.buf) == 0 {
		lb.buf = nil
	}
	return lines
}

// Pending returns the number of buffered bytes awaiting a terminator.
func (lb *LineBuffer) Pending() int {
	return len(lb.buf)
}
