package libsym

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/2x3systems/gosym/gosym"
	"github.com/pkg/errors"
)

var (
	comma     = []byte(", ")
	undefined = []byte("undefined")
)

// WriteState writes S as a state literal that ParseState accepts, listing variables in declaration order.
func (M *Model) WriteState(out io.Writer, S gosym.State) error {
	if len(S) != M.StateSize {
		return errors.Wrapf(gosym.ErrBadState, "state has %d bytes, model needs %d", len(S), M.StateSize)
	}
	buf := make([]byte, 0, 16*M.StateSize)
	buf = append(buf, '{', ' ')
	for i, v := range M.Decls {
		if i > 0 {
			buf = append(buf, comma...)
		}
		buf = append(buf, v.Name...)
		buf = append(buf, ':', ' ')
		buf = appendValue(buf, v.Root, S)
	}
	buf = append(buf, ' ', '}')
	_, err := out.Write(buf)
	return err
}

// StateString returns S as a state literal.
func (M *Model) StateString(S gosym.State) string {
	b := strings.Builder{}
	if err := M.WriteState(&b, S); err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return b.String()
}

func appendValue(buf []byte, n *Node, S []byte) []byte {
	T := n.Type
	if T.IsLeaf() {
		code := getCode(S, n)
		if code == 0 {
			return append(buf, undefined...)
		}
		idx := int(code - 1)
		switch T.Kind {
		case KindBool:
			return strconv.AppendBool(buf, idx == 1)
		case KindEnum:
			return append(buf, T.Values[idx]...)
		case KindRange:
			return strconv.AppendInt(buf, int64(T.Lo+idx), 10)
		case KindScalarset:
			return append(buf, T.Domain.ElementName(idx)...)
		}
	}

	switch T.Kind {
	case KindArray:
		buf = append(buf, '[')
		for i, kid := range n.Kids {
			if i > 0 {
				buf = append(buf, comma...)
			}
			buf = appendValue(buf, kid, S)
		}
		buf = append(buf, ']')
	case KindMultiset:
		buf = append(buf, '{', '|')
		first := true
		for _, kid := range n.Kids {
			if !slotPresent(S, kid) {
				continue
			}
			if !first {
				buf = append(buf, comma...)
			}
			first = false
			buf = appendValue(buf, kid, S)
		}
		buf = append(buf, '|', '}')
	case KindRecord:
		buf = append(buf, '{')
		for i, kid := range n.Kids {
			if i > 0 {
				buf = append(buf, comma...)
			}
			buf = append(buf, T.Fields[i].Name...)
			buf = append(buf, ':', ' ')
			buf = appendValue(buf, kid, S)
		}
		buf = append(buf, '}')
	}
	return buf
}
