package smoothing

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	apperrors "loadcell/internal/errors"
	"loadcell/pkg/contracts/domain"
)

// Criterion scores a least-squares fit; lower is better
type Criterion interface {
	Name() string
	// Score receives the log-likelihood, the observation count and the number
	// of estimated parameters
	Score(logLik float64, n, p int) float64
}

// AIC is the Akaike information criterion
type AIC struct{}

func (AIC) Name() string { return "aic" }

func (AIC) Score(logLik float64, n, p int) float64 {
	return 2*float64(p) - 2*logLik
}

// AICc adds the small-sample correction to AIC
type AICc struct{}

func (AICc) Name() string { return "aicc" }

func (AICc) Score(logLik float64, n, p int) float64 {
	if n-p-1 <= 0 {
		return math.Inf(1)
	}
	pf := float64(p)
	return AIC{}.Score(logLik, n, p) + 2*pf*(pf+1)/float64(n-p-1)
}

// CriterionByName resolves a configured criterion; empty selects AICc
func CriterionByName(name string) (Criterion, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "aicc":
		return AICc{}, nil
	case "aic":
		return AIC{}, nil
	default:
		return nil, apperrors.NewConfigError(fmt.Sprintf("unknown criterion %q", name), nil)
	}
}

// Selector chooses a smoothing half-width per index by fitting a local
// polynomial at every candidate width and keeping the best per-observation score
type Selector struct {
	min, max  int
	degree    int
	criterion Criterion
}

// NewSelector validates the adaptive settings and builds a selector
func NewSelector(cfg domain.AdaptiveConfig) (*Selector, error) {
	criterion, err := CriterionByName(cfg.Criterion)
	if err != nil {
		return nil, err
	}
	if cfg.HalfWidthMin < 1 || cfg.HalfWidthMax < cfg.HalfWidthMin {
		return nil, apperrors.NewConfigError(
			fmt.Sprintf("adaptive half-width range [%d, %d] is invalid", cfg.HalfWidthMin, cfg.HalfWidthMax), nil)
	}
	if cfg.PolynomialDegree < 0 {
		return nil, apperrors.NewConfigError("polynomial degree must not be negative", nil)
	}
	return &Selector{
		min:       cfg.HalfWidthMin,
		max:       cfg.HalfWidthMax,
		degree:    cfg.PolynomialDegree,
		criterion: criterion,
	}, nil
}

// Select returns the half-width with the lowest criterion per observation.
// It fails with an insufficient-data error when no candidate window holds
// enough present samples for the fit.
func (s *Selector) Select(values []float64, i int) (int, error) {
	best, bestScore := 0, math.Inf(1)
	for h := s.min; h <= s.max; h++ {
		score := s.score(values, i, h)
		if score < bestScore {
			best, bestScore = h, score
		}
	}
	if best == 0 {
		return 0, apperrors.NewInsufficientDataError(
			fmt.Sprintf("no window in [%d, %d] has enough samples for a degree %d fit", s.min, s.max, s.degree)).
			WithContext("index", i)
	}
	return best, nil
}

// score fits the window of half-width h around i and returns criterion/n
func (s *Selector) score(values []float64, i, h int) float64 {
	var xs, ys []float64
	for d := -h; d <= h; d++ {
		j := i + d
		if j < 0 || j >= len(values) || math.IsNaN(values[j]) {
			continue
		}
		xs = append(xs, float64(d)/float64(s.max))
		ys = append(ys, values[j])
	}

	n := len(xs)
	coeffs := s.degree + 1
	p := coeffs + 1 // plus the noise variance
	if n < p+1 {
		return math.Inf(1)
	}

	rss, ok := fitRSS(xs, ys, coeffs)
	if !ok {
		return math.Inf(1)
	}

	level := floats.Sum(ys) / float64(n)
	variance := math.Max(rss/float64(n), 1e-12*(1+level*level))
	logLik := -0.5 * float64(n) * (math.Log(2*math.Pi*variance) + 1)

	return s.criterion.Score(logLik, n, p) / float64(n)
}

// fitRSS solves the polynomial least-squares problem by QR and returns the
// residual sum of squares
func fitRSS(xs, ys []float64, coeffs int) (float64, bool) {
	n := len(xs)
	mean := floats.Sum(ys) / float64(n)

	design := mat.NewDense(n, coeffs, nil)
	y := mat.NewVecDense(n, nil)
	for r := 0; r < n; r++ {
		pow := 1.0
		for c := 0; c < coeffs; c++ {
			design.Set(r, c, pow)
			pow *= xs[r]
		}
		y.SetVec(r, ys[r]-mean)
	}

	var qr mat.QR
	qr.Factorize(design)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		return 0, false
	}

	var fitted mat.VecDense
	fitted.MulVec(design, &beta)
	var resid mat.VecDense
	resid.SubVec(y, &fitted)
	return mat.Dot(&resid, &resid), true
}
