package smoothing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	apperrors "loadcell/internal/errors"
	"loadcell/pkg/contracts/domain"
)

// Result is the smoothed series plus per-index bookkeeping
type Result struct {
	Series domain.Series
	// Unresolved marks indices left missing because the window was too sparse
	Unresolved []bool
	// HalfWidths holds the half-width used at each index
	HalfWidths  []int
	Diagnostics domain.Diagnostics
}

// UnresolvedCount returns how many indices were left unresolved
func (r Result) UnresolvedCount() int {
	n := 0
	for _, u := range r.Unresolved {
		if u {
			n++
		}
	}
	return n
}

// Smoother applies the weighted moving average, optionally with a per-index
// half-width chosen by a Selector
type Smoother struct {
	cfg      domain.SmoothingConfig
	selector *Selector
	workers  int
}

// Option customizes a Smoother
type Option func(*Smoother)

// WithSelector enables adaptive half-width selection
func WithSelector(sel *Selector) Option {
	return func(s *Smoother) {
		s.selector = sel
	}
}

// WithWorkers sets the size of the worker pool
func WithWorkers(n int) Option {
	return func(s *Smoother) {
		if n > 0 {
			s.workers = n
		}
	}
}

// New creates a smoother for the given weights and cutoffs
func New(cfg domain.SmoothingConfig, opts ...Option) *Smoother {
	s := &Smoother{cfg: cfg, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether smoothing changes anything
func (s *Smoother) Enabled() bool {
	return s.selector != nil || s.cfg.HalfWidth > 0
}

// Smooth returns a new series; the input is never modified.
// The index range is split into one contiguous block per worker, so results
// do not depend on the worker count.
func (s *Smoother) Smooth(ctx context.Context, series domain.Series) (Result, error) {
	n := series.Len()
	values := series.Values()
	out := make([]float64, n)
	unresolved := make([]bool, n)
	widths := make([]int, n)

	var insufficient atomic.Int64
	lim := limitsOf(s.cfg)
	fixed := Weights(s.cfg.HalfWidth, s.cfg.CenterWeight, s.cfg.SideWeight)

	// cache of weight vectors keyed by half-width, read-only once the pool starts
	var cache map[int][]float64
	if s.selector != nil {
		cache = make(map[int][]float64, s.selector.max-s.selector.min+1)
		for h := s.selector.min; h <= s.selector.max; h++ {
			cache[h] = Weights(h, s.cfg.CenterWeight, s.cfg.SideWeight)
		}
	}

	smoothRange := func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			w := fixed
			h := s.cfg.HalfWidth
			if s.selector != nil {
				chosen, err := s.selector.Select(values, i)
				if err != nil {
					if !apperrors.IsType(err, apperrors.ErrTypeInsufficientData) {
						return err
					}
					insufficient.Add(1)
					out[i] = math.NaN()
					unresolved[i] = true
					continue
				}
				h, w = chosen, cache[chosen]
			}
			widths[i] = h

			if h == 0 {
				out[i] = values[i]
				continue
			}
			mean, ok := WeightedMean(values, i, w, lim)
			out[i] = mean
			unresolved[i] = !ok
		}
		return nil
	}

	workers := min(s.workers, max(n, 1))
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return smoothRange(lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var diag domain.Diagnostics
	if c := int(insufficient.Load()); c > 0 {
		diag.InsufficientData = c
		diag.Messages = append(diag.Messages,
			fmt.Sprintf("%d indices had too few samples for any adaptive window", c))
	}

	result := Result{
		Series:      series.WithValues(out),
		Unresolved:  unresolved,
		HalfWidths:  widths,
		Diagnostics: diag,
	}

	slog.InfoContext(ctx, "smoothing complete",
		slog.Int("samples", n),
		slog.Int("workers", workers),
		slog.Bool("adaptive", s.selector != nil),
		slog.Int("unresolved", result.UnresolvedCount()),
		slog.Int("insufficient_data", diag.InsufficientData))

	return result, nil
}
