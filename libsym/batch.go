package libsym

import (
	"context"

	"github.com/2x3systems/gosym/gosym"
	"github.com/plan-systems/klog"
	"golang.org/x/sync/errgroup"
)

// CanonicalizeAll canonicalizes states in parallel across workers, each with its own Canonicalizer, and returns
// the representatives in input order.  The inputs are not modified.
func (M *Model) CanonicalizeAll(ctx context.Context, states []gosym.State, workers int) ([]gosym.State, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(states) {
		workers = len(states)
	}
	out := make([]gosym.State, len(states))

	g, gCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			C := M.NewCanonicalizer()
			for i := w; i < len(states); i += workers {
				if err := gCtx.Err(); err != nil {
					return err
				}
				out[i] = C.Canonicalize(nil, states[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	klog.V(2).Infof("canonicalized %d states with %d workers", len(states), workers)
	return out, nil
}

// DropDupes canonicalizes each state pulled from src and forwards the first state of each orbit to the returned
// stream, which is closed once src is drained.
func (M *Model) DropDupes(src *gosym.StateStream) *gosym.StateStream {
	dst := gosym.NewStateStream()
	go func() {
		set := NewCanonicSet(M)
		defer set.Close()
		defer dst.Close()

		total := 0
		for S := range src.Outlet {
			total++
			if set.TryAdd(S) {
				dst.Outlet <- S
			}
		}
		klog.V(2).Infof("%d of %d states are distinct up to symmetry", set.Len(), total)
	}()
	return dst
}
