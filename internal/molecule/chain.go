// Package molecule models a peptide chain's 3D backbone geometry and
// exposes the torsion-rotation primitive the folding runtime drives.
//
// Chain length is immutable after construction and residue indices are
// stable for the chain's lifetime, per spec.md §3's invariant.
package molecule

import "math"

// Chain is an ordered, fixed-length sequence of residues with backbone
// Cartesian coordinates.
type Chain struct {
	residues []Residue
}

// NewChain builds a helical backbone (φ=-60°, ψ=-45°, ω=180°) for
// sequence, one residue per character. Unknown residue codes are rejected by the caller
// (ruleset enforcement), not here — chain construction never fails on
// sequence content alone.
func NewChain(sequence string) *Chain {
	c := &Chain{residues: make([]Residue, len(sequence))}
	var prevN, prevCA, prevC Vec3

	for i := range sequence {
		code := string(sequence[i])
		r := Residue{Index: i, Code: code, Phi: -60, Psi: -45, Omega: 180}

		if i == 0 {
			r.N = Atom{Name: "N", Pos: Vec3{0, 0, 0}}
			r.CA = Atom{Name: "CA", Pos: Vec3{BondLenNCA, 0, 0}}
			r.C = Atom{Name: "C", Pos: placeLinear(r.N.Pos, r.CA.Pos, BondLenCAC, AngleNCAC)}
		} else {
			r.N = Atom{Name: "N", Pos: nerf(prevN, prevCA, prevC, BondLenCN, AngleCACN, c.residues[i-1].Psi)}
			r.CA = Atom{Name: "CA", Pos: nerf(prevCA, prevC, r.N.Pos, BondLenNCA, AngleCNCA, r.Omega)}
			r.C = Atom{Name: "C", Pos: nerf(prevC, r.N.Pos, r.CA.Pos, BondLenCAC, AngleNCAC, r.Phi)}
		}
		r.O = Atom{Name: "O", Pos: placeLinear(r.CA.Pos, r.C.Pos, BondLenCO, AngleCACO)}

		c.residues[i] = r
		prevN, prevCA, prevC = r.N.Pos, r.CA.Pos, r.C.Pos
	}
	return c
}

// placeLinear places a point p at distance bondLen from b such that the
// angle a-b-p equals angleDeg, using an arbitrary perpendicular to fix the
// remaining rotational degree of freedom. Used for the first residue's C
// atom and for every residue's carbonyl O, neither of which has a
// downstream atom depending on its own dihedral.
func placeLinear(a, b Vec3, bondLen, angleDeg float64) Vec3 {
	dir := b.Sub(a).Normalize()
	perp := Vec3{0, 1, 0}
	if math.Abs(dir.Y) > 0.9 {
		perp = Vec3{1, 0, 0}
	}
	perp = dir.Cross(perp).Normalize()

	theta := angleDeg * math.Pi / 180.0
	v := dir.Mul(-math.Cos(theta)).Add(perp.Mul(math.Sin(theta)))
	return b.Add(v.Mul(bondLen))
}

// nerf places atom D given the three preceding backbone atoms (A, B, C),
// the D bond length from C, the bond angle B-C-D, and the dihedral
// A-B-C-D, following the Natural Extension Reference Frame construction
// (grounded on the teacher's geometry/coordinate_builder.go header, which
// names NeRF as the standard alternative to its own quaternion approach).
func nerf(a, b, c Vec3, bondLen, angleDeg, dihedralDeg float64) Vec3 {
	theta := angleDeg * math.Pi / 180.0
	phi := dihedralDeg * math.Pi / 180.0

	d2 := Vec3{
		X: -bondLen * math.Cos(theta),
		Y: bondLen * math.Sin(theta) * math.Cos(phi),
		Z: bondLen * math.Sin(theta) * math.Sin(phi),
	}

	bc := c.Sub(b).Normalize()
	ab := b.Sub(a)
	n := ab.Cross(bc).Normalize()
	m2 := n.Cross(bc)

	offset := Vec3{
		X: bc.X*d2.X + m2.X*d2.Y + n.X*d2.Z,
		Y: bc.Y*d2.X + m2.Y*d2.Y + n.Y*d2.Z,
		Z: bc.Z*d2.X + m2.Z*d2.Y + n.Z*d2.Z,
	}
	return c.Add(offset)
}

// Len returns the number of residues in the chain.
func (c *Chain) Len() int { return len(c.residues) }

// Residue returns a copy of the residue at index i.
func (c *Chain) Residue(i int) (Residue, bool) {
	if i < 0 || i >= len(c.residues) {
		return Residue{}, false
	}
	return c.residues[i], true
}

// Residues returns a read-only view of all residues.
func (c *Chain) Residues() []Residue {
	out := make([]Residue, len(c.residues))
	copy(out, c.residues)
	return out
}

// Atoms returns every backbone atom across the chain, in residue order, as
// a flat coordinate view for energy/enforcement passes.
func (c *Chain) Atoms() []Atom {
	out := make([]Atom, 0, len(c.residues)*4)
	for _, r := range c.residues {
		out = append(out, r.N, r.CA, r.C, r.O)
	}
	return out
}

// Rotate applies a right-handed rotation of deltaDeg around residueID's
// psi torsion axis (the Cα–C bond) to every atom belonging to residues with
// index strictly greater than residueID, per spec.md §4.A. It does not
// validate the rotation against any ruleset — that is the enforcement
// pass's job; Rotate always succeeds if residueID is in range.
func (c *Chain) Rotate(residueID int, deltaDeg float64) bool {
	if residueID < 0 || residueID >= len(c.residues) {
		return false
	}
	pivot := c.residues[residueID].CA.Pos
	axis := c.residues[residueID].C.Pos.Sub(pivot)

	for i := residueID + 1; i < len(c.residues); i++ {
		r := &c.residues[i]
		r.N.Pos = RotateAround(r.N.Pos, pivot, axis, deltaDeg)
		r.CA.Pos = RotateAround(r.CA.Pos, pivot, axis, deltaDeg)
		r.C.Pos = RotateAround(r.C.Pos, pivot, axis, deltaDeg)
		r.O.Pos = RotateAround(r.O.Pos, pivot, axis, deltaDeg)
	}
	c.residues[residueID].O.Pos = RotateAround(c.residues[residueID].O.Pos, pivot, axis, 0)
	c.residues[residueID].Psi = normalizeDeg(c.residues[residueID].Psi + deltaDeg)
	return true
}

func normalizeDeg(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg < -180 {
		deg += 360
	}
	return deg
}

// Snapshot returns an independent deep copy of the chain's current state,
// O(n) per spec.md §4.A.
func (c *Chain) Snapshot() *Chain {
	cp := &Chain{residues: make([]Residue, len(c.residues))}
	copy(cp.residues, c.residues)
	return cp
}

// Restore replaces this chain's state with snap's, in place. snap must have
// the same length as c (the runtime never restores across a length change,
// since length is immutable for a chain's lifetime).
func (c *Chain) Restore(snap *Chain) {
	copy(c.residues, snap.residues)
}

// Sequence reconstructs the one-letter amino acid sequence.
func (c *Chain) Sequence() string {
	b := make([]byte, len(c.residues))
	for i, r := range c.residues {
		b[i] = r.Code[0]
	}
	return string(b)
}
