package gosym

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hexPrinter struct{}

func (hexPrinter) WriteState(out io.Writer, S State) error {
	if len(S) == 0 {
		return ErrBadState
	}
	_, err := fmt.Fprintf(out, "%x", []byte(S))
	return err
}

func pushAll(stream *StateStream, states ...State) {
	go func() {
		for _, S := range states {
			stream.PushState(S)
		}
		stream.Close()
	}()
}

func TestStatePrint(t *testing.T) {
	stream := NewStateStream()
	pushAll(stream, State{0, 1}, State{2, 3})

	var out strings.Builder
	count, err := stream.Print(&out, hexPrinter{}, PrintOpts{Label: "S", Indices: true})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, "S 000001  0001\nS 000002  0203\n", out.String())
}

func TestStatePrintError(t *testing.T) {
	stream := NewStateStream()
	pushAll(stream, State{1}, State{}, State{2})

	var out bytes.Buffer
	_, err := stream.Print(&out, hexPrinter{}, PrintOpts{})
	assert.ErrorIs(t, err, ErrBadState)
	assert.Equal(t, "01\n", out.String())
}

func TestPushClones(t *testing.T) {
	S := State{7, 7}
	stream := NewStateStream()
	stream.PushState(S)
	S[0] = 0
	got := <-stream.Outlet
	assert.Equal(t, State{7, 7}, got)

	pushAll(stream, S, S, S)
	assert.Equal(t, 3, stream.PullAll())
}

func TestStateOrder(t *testing.T) {
	A := State{0, 2, 1}
	B := State{0, 10, 0}
	assert.Negative(t, A.Compare(B))
	assert.True(t, A.IsEqual(A.Clone()))
	assert.False(t, A.IsEqual(B))
}
