package exclusivity

import (
	"math"
	"math/bits"

	"github.com/tokenme/probab/dst"
	"gonum.org/v1/gonum/mat"
)

const (
	saddlepointMaxIter = 200
	saddlepointTol     = 1e-10

	// Largest Newton step, in any coordinate, taken from one iterate.
	saddlepointMaxStep = 10

	// Below this signed root the Lugannani-Rice formula is numerically
	// unstable, and the exact tail is used instead.
	saddlepointMinRoot = 1e-4
)

var (
	stdNormalCDF = dst.NormalCDF(0, 1)
	stdNormalPDF = dst.NormalPDF(0, 1)
)

// cgf is the joint cumulant generating function of (X_1..X_k, T), summed
// over patients. The first k coordinates are gene alteration indicators and
// the last is the exclusivity indicator.
type cgf struct {
	k       int
	logProb [][]float64 // per patient, per alteration mask
	feature [][]float64 // per mask, the k+1 vector (b_1..b_k, [|b|==1])
}

func newCGF(w [][]float64) *cgf {
	k := len(w)
	N := len(w[0])
	masks := 1 << uint(k)

	c := &cgf{
		k:       k,
		logProb: make([][]float64, N),
		feature: make([][]float64, masks),
	}

	for b := 0; b < masks; b++ {
		f := make([]float64, k+1)
		for g := 0; g < k; g++ {
			if b&(1<<uint(g)) != 0 {
				f[g] = 1
			}
		}
		if bits.OnesCount(uint(b)) == 1 {
			f[k] = 1
		}
		c.feature[b] = f
	}

	pb := make([]float64, masks)
	for j := 0; j < N; j++ {
		maskProbabilities(w, j, pb)
		lp := make([]float64, masks)
		for b, p := range pb {
			lp[b] = math.Log(p)
		}
		c.logProb[j] = lp
	}

	return c
}

// eval returns K(v), its gradient and its Hessian. Only the first dim
// coordinates of v are free; the rest are held at zero, which lets the same
// code serve the gene-only equations.
func (c *cgf) eval(v []float64, dim int) (float64, []float64, *mat.SymDense) {
	masks := len(c.feature)
	grad := make([]float64, dim)
	hess := mat.NewSymDense(dim, nil)

	a := make([]float64, masks)
	q := make([]float64, masks)
	mu := make([]float64, dim)
	second := make([]float64, dim*dim)

	var K float64
	for _, lp := range c.logProb {
		// Tilted log weights, shifted by their max for a stable log-sum-exp.
		top := math.Inf(-1)
		for b := 0; b < masks; b++ {
			a[b] = lp[b]
			if math.IsInf(a[b], -1) {
				continue
			}
			for d := 0; d < dim; d++ {
				a[b] += v[d] * c.feature[b][d]
			}
			if a[b] > top {
				top = a[b]
			}
		}

		var z float64
		for b := 0; b < masks; b++ {
			q[b] = 0
			if math.IsInf(a[b], -1) {
				continue
			}
			q[b] = math.Exp(a[b] - top)
			z += q[b]
		}
		K += top + math.Log(z)

		for d := range mu {
			mu[d] = 0
		}
		for d := range second {
			second[d] = 0
		}
		for b := 0; b < masks; b++ {
			if q[b] == 0 {
				continue
			}
			p := q[b] / z
			f := c.feature[b]
			for d := 0; d < dim; d++ {
				mu[d] += p * f[d]
				for e := d; e < dim; e++ {
					second[d*dim+e] += p * f[d] * f[e]
				}
			}
		}

		for d := 0; d < dim; d++ {
			grad[d] += mu[d]
			for e := d; e < dim; e++ {
				hess.SetSym(d, e, hess.At(d, e)+second[d*dim+e]-mu[d]*mu[e])
			}
		}
	}

	return K, grad, hess
}

// minimize solves grad K(v) = target over the first len(target) coordinates
// by damped Newton steps on the convex function K(v) - v.target. It returns
// the minimum, the minimizer and the Cholesky factor of the Hessian there.
func (c *cgf) minimize(target []float64) (float64, []float64, *mat.Cholesky, bool) {
	dim := len(target)
	v := make([]float64, dim)

	objective := func(v []float64) (float64, []float64, *mat.SymDense) {
		K, grad, hess := c.eval(v, dim)
		for d := range v {
			K -= v[d] * target[d]
			grad[d] -= target[d]
		}
		return K, grad, hess
	}

	f, grad, hess := objective(v)
	step := mat.NewVecDense(dim, nil)
	gtol := saddlepointTol * (1 + maxAbs(target))

	converged := false
	for iter := 0; iter < saddlepointMaxIter; iter++ {
		if maxAbs(grad) < gtol {
			converged = true
			break
		}

		var chol mat.Cholesky
		if !factorizeRidge(&chol, hess) {
			return 0, nil, nil, false
		}
		if err := chol.SolveVecTo(step, mat.NewVecDense(dim, grad)); err != nil {
			return 0, nil, nil, false
		}
		if m := maxAbs(step.RawVector().Data); m > saddlepointMaxStep {
			step.ScaleVec(saddlepointMaxStep/m, step)
		}

		// Backtrack until the objective decreases.
		accepted := false
		for scale := 1.0; scale > 1e-12; scale /= 2 {
			trial := make([]float64, dim)
			for d := range trial {
				trial[d] = v[d] - scale*step.AtVec(d)
			}
			tf, tgrad, thess := objective(trial)
			if tf <= f {
				v, f, grad, hess = trial, tf, tgrad, thess
				accepted = true
				break
			}
		}
		if !accepted {
			// No descent is possible; accept the point if it is stationary.
			converged = maxAbs(grad) < math.Sqrt(gtol)
			break
		}
	}
	if !converged {
		return 0, nil, nil, false
	}

	var chol mat.Cholesky
	if !chol.Factorize(hess) {
		return 0, nil, nil, false
	}
	return f, v, &chol, true
}

// factorizeRidge factorizes h, adding a growing multiple of the identity
// when h is numerically singular. Far from the solution the tilted
// distribution can put almost all of its mass on one mask.
func factorizeRidge(chol *mat.Cholesky, h *mat.SymDense) bool {
	if chol.Factorize(h) {
		return true
	}

	n := h.Symmetric()
	scale := 0.0
	for i := 0; i < n; i++ {
		scale = math.Max(scale, math.Abs(h.At(i, i)))
	}
	if scale == 0 {
		scale = 1
	}

	damped := mat.NewSymDense(n, nil)
	for ridge := 1e-10 * scale; ridge < 1e8*scale; ridge *= 10 {
		damped.CopySym(h)
		for i := 0; i < n; i++ {
			damped.SetSym(i, i, h.At(i, i)+ridge)
		}
		if chol.Factorize(damped) {
			return true
		}
	}
	return false
}

func maxAbs(x []float64) float64 {
	var out float64
	for _, v := range x {
		if a := math.Abs(v); a > out {
			out = a
		}
	}
	return out
}

// exclusivityLattice describes the support of T near t. It returns the
// smallest attainable threshold at or above t and the spacing between it
// and the attainable value below. ok is false when the spacing near t is
// irregular and the exact tail should be used.
//
// With two genes T = x_1 + x_2 - 2*|both|, so T keeps the parity of
// x_1 + x_2 and moves in steps of 2. With three or more genes T moves in
// unit steps, except that x_1 + ... + x_k - 1 is never attained and the
// top of the range depends on N once the alterations can't all be
// disjoint. The last few values below the sum are left to the exact tail.
func exclusivityLattice(t int, x []int, N int) (threshold int, span int, ok bool) {
	var sum int
	for _, v := range x {
		sum += v
	}

	if len(x) == 2 {
		if (sum-t)%2 != 0 {
			t++
		}
		return t, 2, true
	}

	if sum > N || t >= sum-3 {
		return t, 1, false
	}
	return t, 1, true
}

// WeightedSaddlepointTail approximates P(T >= t | X = x) under the same model
// as WeightedExactTail with Skovgaard's double saddlepoint approximation.
// With lattice spacing s around t the continuity correction evaluates the
// tail at t-s/2 and uses (2/s) sinh(s*phi/2) in place of phi. Where the
// spacing is irregular, or the saddlepoint equations can't be solved, it
// returns the exact tail.
func WeightedSaddlepointTail(t int, x []int, w [][]float64) float64 {
	k := len(x)
	if k == 0 || len(w) != k || len(w[0]) == 0 {
		return nan
	}
	for _, row := range w {
		if len(row) != len(w[0]) {
			return nan
		}
	}
	if t <= 0 {
		return 1
	}

	threshold, span, regular := exclusivityLattice(t, x, len(w[0]))
	if !regular {
		return WeightedExactTail(t, x, w)
	}

	c := newCGF(w)

	// Conditioning equations: genes only, exclusivity tilt fixed at zero.
	geneTarget := make([]float64, k)
	for g, v := range x {
		geneTarget[g] = float64(v)
	}
	f0, _, chol0, ok := c.minimize(geneTarget)
	if !ok {
		return WeightedExactTail(t, x, w)
	}

	// Joint equations, with the continuity corrected exclusivity target.
	s := float64(span)
	jointTarget := append(append([]float64(nil), geneTarget...), float64(threshold)-s/2)
	f1, v1, chol1, ok := c.minimize(jointTarget)
	if !ok {
		return WeightedExactTail(t, x, w)
	}

	phi := v1[k]
	diff := 2 * (f0 - f1)
	if diff < 0 {
		diff = 0
	}
	root := math.Copysign(math.Sqrt(diff), phi)

	if math.Abs(root) < saddlepointMinRoot {
		return WeightedExactTail(t, x, w)
	}

	u := (2 / s) * math.Sinh(s*phi/2) * math.Exp(0.5*(chol1.LogDet()-chol0.LogDet()))

	p := stdNormalCDF(-root) - stdNormalPDF(root)*(1/root-1/u)
	if math.IsNaN(p) {
		return WeightedExactTail(t, x, w)
	}
	return p
}
