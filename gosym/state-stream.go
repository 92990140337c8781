package gosym

import (
	"fmt"
	"io"
	"strings"
)

// StateStream carries states from a producer goroutine to a consumer.
// Ownership of each State travels through the channel.
type StateStream struct {
	Outlet chan State
}

func NewStateStream() *StateStream {
	stream := &StateStream{
		Outlet: make(chan State, 1),
	}
	return stream
}

func (stream *StateStream) Close() {
	if stream.Outlet != nil {
		close(stream.Outlet)
	}
}

func (stream *StateStream) PushState(S State) {
	stream.Outlet <- S.Clone()
}

func (stream *StateStream) PullAll() int {
	count := int(0)
	for range stream.Outlet {
		count++
	}
	return count
}

// Print drains this stream, writing each State as a line to out, and returns the number of states written.
func (stream *StateStream) Print(out io.Writer, printer StatePrinter, opts PrintOpts) (int, error) {
	buf := strings.Builder{}
	buf.Grow(256)

	count := 0
	var err error
	for S := range stream.Outlet {
		if err != nil {
			continue
		}
		count++
		if len(opts.Label) > 0 {
			buf.WriteString(opts.Label)
			buf.WriteByte(' ')
		}
		if opts.Indices {
			fmt.Fprintf(&buf, "%06d  ", count)
		}
		if err = printer.WriteState(&buf, S); err == nil {
			buf.WriteByte('\n')
			_, err = io.WriteString(out, buf.String())
		}
		buf.Reset()
	}
	return count, err
}
