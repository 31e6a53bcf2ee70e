package molecule

// Atom is a single backbone atom. Only the four backbone atoms are modeled;
// side chains are out of scope for the toy kernel (spec.md's "schematic sum
// over bonded and non-bonded residue pairs" never mentions side-chain
// geometry, and the enforcement/energy terms this engine computes are all
// backbone quantities).
type Atom struct {
	Name string // "N", "CA", "C", "O"
	Pos  Vec3
}

// Residue is one amino acid position in the chain.
type Residue struct {
	Index int    // 0-based, stable for the lifetime of the chain
	Code  string // one-letter amino acid code, e.g. "A", "G"

	N, CA, C, O Atom

	// Phi/Psi/Omega are the backbone dihedral angles in degrees. Omega is
	// fixed at 180 (trans peptide bond) and is not driven by Rotate.
	Phi, Psi, Omega float64
}

// ThreeToOne maps standard PDB three-letter residue codes to one-letter
// codes, grounded on the teacher's threeToOne table in
// backend/internal/physics/solvation.go.
var ThreeToOne = map[string]byte{
	"ALA": 'A', "CYS": 'C', "ASP": 'D', "GLU": 'E',
	"PHE": 'F', "GLY": 'G', "HIS": 'H', "ILE": 'I',
	"LYS": 'K', "LEU": 'L', "MET": 'M', "ASN": 'N',
	"PRO": 'P', "GLN": 'Q', "ARG": 'R', "SER": 'S',
	"THR": 'T', "VAL": 'V', "TRP": 'W', "TYR": 'Y',
}

// OneToThree is the inverse of ThreeToOne.
var OneToThree = func() map[byte]string {
	m := make(map[byte]string, len(ThreeToOne))
	for three, one := range ThreeToOne {
		m[one] = three
	}
	return m
}()

// IsKnownResidue reports whether code is a recognized one-letter amino acid.
func IsKnownResidue(code byte) bool {
	_, ok := OneToThree[code]
	return ok
}

// Backbone ideal bond lengths (Å) and angles (degrees), AMBER ff14SB-style
// values, grounded on backend/internal/physics/force_field.go's
// backboneBondParams/backboneAngleParams tables.
const (
	BondLenNCA = 1.449
	BondLenCAC = 1.522
	BondLenCO  = 1.229
	BondLenCN  = 1.335

	AngleNCAC = 110.1
	AngleCACN = 116.6
	AngleCNCA = 121.9
	AngleCACO = 120.4
)
