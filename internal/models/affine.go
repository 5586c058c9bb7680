package models

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Affine is a 4x4 voxel-to-world transform stored row by row.
// The last row is always [0 0 0 1].
type Affine [4][4]float64

// IdentityAffine returns the identity transform.
func IdentityAffine() Affine {
	return Affine{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Dense returns the transform as a gonum matrix.
func (a Affine) Dense() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m.Set(r, c, a[r][c])
		}
	}
	return m
}

// AffineFromDense copies the top 4x4 block of m into an Affine.
func AffineFromDense(m mat.Matrix) Affine {
	var a Affine
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			a[r][c] = m.At(r, c)
		}
	}
	return a
}

// Apply maps voxel index (i, j, k) to world coordinates.
func (a Affine) Apply(i, j, k float64) [3]float64 {
	var out mat.VecDense
	out.MulVec(a.Dense(), mat.NewVecDense(4, []float64{i, j, k, 1}))
	return [3]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

// Column returns the first three entries of column c.
func (a Affine) Column(c int) [3]float64 {
	return [3]float64{a[0][c], a[1][c], a[2][c]}
}

// ColumnNorm returns the Euclidean length of the spatial part of column c,
// the voxel size along that axis.
func (a Affine) ColumnNorm(c int) float64 {
	col := a.Column(c)
	return floats.Norm(col[:], 2)
}

// EqualApprox reports whether every entry of a and b differs by at most tol.
func (a Affine) EqualApprox(b Affine, tol float64) bool {
	return mat.EqualApprox(a.Dense(), b.Dense(), tol)
}
