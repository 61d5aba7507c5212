// Package metalog fits and samples metalog distributions, a family of
// quantile-parameterized distributions expressed as a linear combination of
// fixed basis functions of the cumulative probability.
package metalog

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidProbability is returned when a cumulative probability is not
// strictly inside (0, 1). The fit transform uses ln(y/(1-y)), so boundary
// values are fatal.
var ErrInvalidProbability = errors.New("probability outside (0, 1)")

// ErrDegenerateSystem is returned when the least-squares system has no
// usable solution.
var ErrDegenerateSystem = errors.New("degenerate least-squares system")

// svdRcond is the singular-value cutoff used when solving the fit.
const svdRcond = 1e-9

type boundKind int

const (
	unbounded boundKind = iota
	semiBoundedLower
	semiBoundedUpper
	bounded
)

// Bounds restricts the support of a distribution. The zero value is
// unbounded.
type Bounds struct {
	kind         boundKind
	lower, upper float64
}

// Unbounded returns bounds with full real support.
func Unbounded() Bounds {
	return Bounds{}
}

// SemiBoundedLower returns bounds with support [lower, +inf).
func SemiBoundedLower(lower float64) Bounds {
	return Bounds{kind: semiBoundedLower, lower: lower}
}

// SemiBoundedUpper returns bounds with support (-inf, upper].
func SemiBoundedUpper(upper float64) Bounds {
	return Bounds{kind: semiBoundedUpper, upper: upper}
}

// Bounded returns bounds with support [lower, upper].
func Bounded(lower, upper float64) Bounds {
	return Bounds{kind: bounded, lower: lower, upper: upper}
}

// transform maps a data value into the unbounded z-space in which the linear
// fit is performed.
func (b Bounds) transform(x float64) float64 {
	switch b.kind {
	case semiBoundedLower:
		return math.Log(x - b.lower)
	case semiBoundedUpper:
		return math.Log(b.upper - x)
	case bounded:
		return math.Log((x - b.lower) / (b.upper - x))
	default:
		return x
	}
}

// inverse maps an unbounded quantile back into the supported range. The link
// functions make bounds preservation automatic.
func (b Bounds) inverse(m float64) float64 {
	switch b.kind {
	case semiBoundedLower:
		return b.lower + math.Exp(m)
	case semiBoundedUpper:
		return b.upper - math.Exp(m)
	case bounded:
		e := math.Exp(m)
		return (b.lower + b.upper*e) / (1.0 + e)
	default:
		return m
	}
}

// A Distribution is a fitted metalog distribution. Coefficients are indexed
// 1-based against the fixed basis functions, so Coefficients[k-1] weighs
// basis term k.
type Distribution struct {
	Coefficients []float64
	Bounds       Bounds

	// MinY and MaxY delimit the feasibility range of the fit.
	MinY float64
	MaxY float64
}

// New creates a distribution directly from coefficients, skipping the fit.
func New(coefficients []float64, bounds Bounds) *Distribution {
	return &Distribution{
		Coefficients: coefficients,
		Bounds:       bounds,
		MinY:         0.001,
		MaxY:         0.999,
	}
}

// basisValue evaluates basis term k (1-based) at cumulative probability y.
// Terms 1-4 are 1, logit(y), (y-0.5)*logit(y), and (y-0.5). From term 5 on,
// odd terms are powers of (y-0.5) and even terms are the same powers scaled
// by logit(y), with the exponent increasing every two terms.
func basisValue(k int, y float64) float64 {
	yCen := y - 0.5
	logOdds := math.Log(y / (1.0 - y))

	switch {
	case k == 1:
		return 1.0
	case k == 2:
		return logOdds
	case k == 3:
		return yCen * logOdds
	case k == 4:
		return yCen
	case k%2 != 0:
		return math.Pow(yCen, float64((k-1)/2))
	default:
		return math.Pow(yCen, float64(k/2-1)) * logOdds
	}
}

// Fit solves for the coefficients of a metalog distribution with the given
// number of terms so that quantile(ys[i]) approximates xs[i], in the
// least-squares sense. The system is solved through a singular-value
// decomposition for numerical stability.
func Fit(xs, ys []float64, terms int, bounds Bounds) (*Distribution, error) {
	n := len(xs)

	if n != len(ys) {
		return nil, fmt.Errorf(
			"data lengths mismatch: %d x values, %d y values", n, len(ys))
	}

	if n < 1 {
		return nil, errors.New("fitting requires at least one data point")
	}

	if terms < 1 {
		return nil, fmt.Errorf("term count must be positive, got %d", terms)
	}

	z := mat.NewVecDense(n, nil)
	for i, x := range xs {
		z.SetVec(i, bounds.transform(x))
	}

	design := mat.NewDense(n, terms, nil)
	for row, y := range ys {
		if y <= 0.0 || y >= 1.0 {
			return nil, fmt.Errorf("%w: y=%v at index %d",
				ErrInvalidProbability, y, row)
		}

		for k := 1; k <= terms; k++ {
			design.Set(row, k-1, basisValue(k, y))
		}
	}

	coeffs, err := solveLeastSquares(design, z)
	if err != nil {
		return nil, err
	}

	dist := New(coeffs, bounds)

	return dist, nil
}

// solveLeastSquares computes the minimum-norm least-squares solution of
// a*x = b through a thin SVD, treating singular values below the relative
// cutoff as zero.
func solveLeastSquares(a *mat.Dense, b *mat.VecDense) ([]float64, error) {
	rows, cols := a.Dims()

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: SVD factorization failed",
			ErrDegenerateSystem)
	}

	s := svd.Values(nil)
	sMax := s[0]
	if sMax <= 0 {
		return nil, fmt.Errorf("%w: design matrix has rank zero",
			ErrDegenerateSystem)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// w = S^-1 * U^T * b, with small singular values dropped.
	rank := 0
	w := make([]float64, len(s))
	for i := range s {
		if s[i] <= svdRcond*sMax {
			continue
		}
		rank++

		dot := 0.0
		for j := 0; j < rows; j++ {
			dot += u.At(j, i) * b.AtVec(j)
		}
		w[i] = dot / s[i]
	}

	if rank == 0 {
		return nil, fmt.Errorf("%w: design matrix has rank zero",
			ErrDegenerateSystem)
	}

	// x = V * w
	x := make([]float64, cols)
	for k := 0; k < cols; k++ {
		dot := 0.0
		for i := range s {
			dot += v.At(k, i) * w[i]
		}
		x[k] = dot
	}

	return x, nil
}

// Quantile evaluates the fitted quantile function at cumulative probability
// y. It returns NaN when y is outside (0, 1).
func (d *Distribution) Quantile(y float64) float64 {
	if y <= 0.0 || y >= 1.0 {
		return math.NaN()
	}

	m := 0.0
	for i, coeff := range d.Coefficients {
		m += coeff * basisValue(i+1, y)
	}

	return d.Bounds.inverse(m)
}

// Sample draws one value from the distribution.
func (d *Distribution) Sample(rng *rand.Rand) float64 {
	y := rng.Float64()
	for y == 0.0 {
		y = rng.Float64()
	}

	return d.Quantile(y)
}
