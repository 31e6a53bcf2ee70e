// Package ruleset implements the bond/angle/clash/budget enforcement pass
// that runs after every tentative rotation, per spec.md §4.E. Clash
// detection is grounded on the teacher's
// backend/internal/physics/clash_detector.go (pairwise van-der-Waals-radius
// distance check); budget-style limits are grounded on the teacher's
// optimization/constraints.go table-driven configuration pattern.
package ruleset

import (
	"fmt"
	"math"

	"github.com/sarat-asymmetrica/foldctl/internal/ferr"
	"github.com/sarat-asymmetrica/foldctl/internal/molecule"
)

// BondConstraint bounds an inter-atomic distance to [Min, Max] Å.
type BondConstraint struct {
	Min, Max float64
}

// Settings is the enforcement configuration, per spec.md §4.E.
type Settings struct {
	MaxRotationDegrees float64
	MinBondDistance    float64
	BondConstraints    map[string]BondConstraint
	EntropyBudget      float64
	InfoBudget         float64
	Epsilon            float64 // bond-constraint tolerance, default 1e-9
}

// DefaultBondConstraints returns the backbone bond tolerances enforcement
// checks against, centered on the ideal lengths in internal/molecule and
// widened by ±0.15 Å.
func DefaultBondConstraints() map[string]BondConstraint {
	const tol = 0.15
	return map[string]BondConstraint{
		"N-CA": {Min: molecule.BondLenNCA - tol, Max: molecule.BondLenNCA + tol},
		"CA-C": {Min: molecule.BondLenCAC - tol, Max: molecule.BondLenCAC + tol},
		"C-O":  {Min: molecule.BondLenCO - tol, Max: molecule.BondLenCO + tol},
		"C-N":  {Min: molecule.BondLenCN - tol, Max: molecule.BondLenCN + tol},
	}
}

// CheckResidueIndex validates that idx names a real residue in chain.
func CheckResidueIndex(chain *molecule.Chain, idx int) *ferr.Error {
	if idx < 0 || idx >= chain.Len() {
		return ferr.New(ferr.UnknownResidue, fmt.Sprintf("residue %d is out of range [0,%d)", idx, chain.Len()))
	}
	return nil
}

// CheckDomainRange validates that [start, end] is an inclusive in-range
// residue span.
func CheckDomainRange(chain *molecule.Chain, start, end int) *ferr.Error {
	if start < 0 || end >= chain.Len() || start > end {
		return ferr.New(ferr.DomainOutOfRange, fmt.Sprintf("domain [%d,%d] out of range [0,%d)", start, end, chain.Len()))
	}
	return nil
}

// CheckRotationLimit enforces |Δθ| ≤ max_rotation_degrees.
func CheckRotationLimit(deltaDeg float64, s Settings) *ferr.Error {
	if math.Abs(deltaDeg) > s.MaxRotationDegrees {
		return ferr.New(ferr.RotationExceedsLimit, fmt.Sprintf("|Δθ|=%.3f exceeds limit %.3f", math.Abs(deltaDeg), s.MaxRotationDegrees))
	}
	return nil
}

// CheckClash reports whether any pair of non-adjacent-residue backbone
// atoms in chain are closer than s.MinBondDistance.
func CheckClash(chain *molecule.Chain, s Settings) *ferr.Error {
	type placed struct {
		resIdx int
		pos    molecule.Vec3
	}
	residues := chain.Residues()
	atoms := make([]placed, 0, len(residues)*4)
	for _, r := range residues {
		atoms = append(atoms,
			placed{r.Index, r.N.Pos}, placed{r.Index, r.CA.Pos},
			placed{r.Index, r.C.Pos}, placed{r.Index, r.O.Pos})
	}

	worst := math.Inf(1)
	clashed := false
	for i := 0; i < len(atoms); i++ {
		for j := i + 1; j < len(atoms); j++ {
			if abs(atoms[i].resIdx-atoms[j].resIdx) <= 1 {
				continue
			}
			d := atoms[i].pos.Distance(atoms[j].pos)
			if d < worst {
				worst = d
			}
			if d < s.MinBondDistance {
				clashed = true
			}
		}
	}
	if clashed {
		return ferr.New(ferr.Clash, fmt.Sprintf("closest non-bonded distance %.3f Å below minimum %.3f Å", worst, s.MinBondDistance))
	}
	return nil
}

// CheckBondConstraints verifies every backbone bond in chain is within
// ±epsilon of its configured [Min, Max] window.
func CheckBondConstraints(chain *molecule.Chain, s Settings) *ferr.Error {
	eps := s.Epsilon
	if eps == 0 {
		eps = 1e-9
	}
	residues := chain.Residues()
	check := func(label string, a, b molecule.Vec3) *ferr.Error {
		c, ok := s.BondConstraints[label]
		if !ok {
			return nil
		}
		d := a.Distance(b)
		if d < c.Min-eps || d > c.Max+eps {
			return ferr.New(ferr.BondViolation, fmt.Sprintf("bond %s length %.4f Å outside [%.4f, %.4f]", label, d, c.Min, c.Max))
		}
		return nil
	}
	for _, r := range residues {
		if e := check("N-CA", r.N.Pos, r.CA.Pos); e != nil {
			return e
		}
		if e := check("CA-C", r.CA.Pos, r.C.Pos); e != nil {
			return e
		}
		if e := check("C-O", r.C.Pos, r.O.Pos); e != nil {
			return e
		}
	}
	for i := 0; i+1 < len(residues); i++ {
		if e := check("C-N", residues[i].C.Pos, residues[i+1].N.Pos); e != nil {
			return e
		}
	}
	return nil
}

// CheckBudget reports BudgetExhausted when either cumulative total exceeds
// its configured budget.
func CheckBudget(cumulativeEntropy, cumulativeInfo float64, s Settings) *ferr.Error {
	if s.EntropyBudget > 0 && math.Abs(cumulativeEntropy) > s.EntropyBudget {
		return ferr.New(ferr.BudgetExhausted, fmt.Sprintf("cumulative entropy %.4f exceeds budget %.4f", cumulativeEntropy, s.EntropyBudget))
	}
	if s.InfoBudget > 0 && math.Abs(cumulativeInfo) > s.InfoBudget {
		return ferr.New(ferr.BudgetExhausted, fmt.Sprintf("cumulative info %.4f exceeds budget %.4f", cumulativeInfo, s.InfoBudget))
	}
	return nil
}

// Enforce runs every tentative-rotation check in spec.md §4.E's order and
// returns the first violation encountered, or nil if the rotation is
// legal. Budget checks are evaluated last since they halt the whole run
// rather than just rejecting one instruction.
func Enforce(chain *molecule.Chain, residueID int, deltaDeg float64, cumulativeEntropy, cumulativeInfo float64, s Settings) *ferr.Error {
	if e := CheckRotationLimit(deltaDeg, s); e != nil {
		return e
	}
	if e := CheckClash(chain, s); e != nil {
		return e
	}
	if e := CheckBondConstraints(chain, s); e != nil {
		return e
	}
	if e := CheckBudget(cumulativeEntropy, cumulativeInfo, s); e != nil {
		return e
	}
	return nil
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
