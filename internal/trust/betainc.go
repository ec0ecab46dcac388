package trust

import "math"

// logGamma approximates ln(Γ(x)) using the Lanczos approximation, the same
// numerical technique the teacher's store package uses for its similarity
// and scoring math where a stable log-space computation is required.
func logGamma(x float64) float64 {
	lanczosCoef := []float64{
		676.5203681218851,
		-1259.1392167224028,
		771.32342877765313,
		-176.61502916214059,
		12.507343278686905,
		-0.13857109526572012,
		9.9843695780195716e-6,
		1.5056327351493116e-7,
	}
	const g = 7

	if x < 0.5 {
		// Reflection formula: Γ(x)Γ(1-x) = π / sin(πx)
		return math.Log(math.Pi/math.Sin(math.Pi*x)) - logGamma(1-x)
	}

	x -= 1
	a := 0.99999999999980993
	t := x + g + 0.5
	for i, c := range lanczosCoef {
		a += c / (x + float64(i) + 1)
	}
	return 0.5*math.Log(2*math.Pi) + (x+0.5)*math.Log(t) - t + math.Log(a)
}

// regularizedIncompleteBeta computes I_x(a, b), the regularized incomplete
// beta function, using the continued fraction expansion (Numerical
// Recipes' betacf), which converges reliably for the a,b ranges a
// Beta-Bernoulli trust model produces (a,b >= 1).
func regularizedIncompleteBeta(x, a, b float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	lbeta := logGamma(a+b) - logGamma(a) - logGamma(b)
	front := math.Exp(lbeta + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(x, a, b) / a
	}
	return 1 - front*betaContinuedFraction(1-x, b, a)/b
}

func betaContinuedFraction(x, a, b float64) float64 {
	const maxIterations = 200
	const epsilon = 1e-12
	const fpMin = 1e-300

	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < fpMin {
		d = fpMin
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < fpMin {
			d = fpMin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpMin {
			c = fpMin
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < fpMin {
			d = fpMin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpMin {
			c = fpMin
		}
		d = 1 / d
		del := d * c
		h *= del

		if math.Abs(del-1) < epsilon {
			break
		}
	}
	return h
}

// invRegularizedIncompleteBeta inverts I_x(a,b) = p for x by bisection,
// per the spec's numerics requirement: tolerance <= 1e-6, <= 50 iterations.
func invRegularizedIncompleteBeta(p, a, b float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}

	lo, hi := 0.0, 1.0
	x := 0.5
	for i := 0; i < 50; i++ {
		x = (lo + hi) / 2
		v := regularizedIncompleteBeta(x, a, b)
		if math.Abs(v-p) <= 1e-6 {
			break
		}
		if v < p {
			lo = x
		} else {
			hi = x
		}
	}
	return x
}
