package ruleset

import (
	"testing"

	"github.com/sarat-asymmetrica/foldctl/internal/ferr"
	"github.com/sarat-asymmetrica/foldctl/internal/molecule"
)

func defaultSettings() Settings {
	return Settings{
		MaxRotationDegrees: 60,
		MinBondDistance:    1.2,
		BondConstraints:    DefaultBondConstraints(),
		EntropyBudget:      50,
		InfoBudget:         50,
	}
}

func TestCheckRotationLimit(t *testing.T) {
	s := defaultSettings()
	if e := CheckRotationLimit(45, s); e != nil {
		t.Errorf("expected 45deg to be within limit, got %v", e)
	}
	e := CheckRotationLimit(180, s)
	if e == nil || e.Kind != ferr.RotationExceedsLimit {
		t.Errorf("expected RotationExceedsLimit for 180deg, got %v", e)
	}
}

func TestCheckClashFreshChainClearRotatedChainClassified(t *testing.T) {
	c := molecule.NewChain("NLYIQWLKDGGPSSGRPPPS")
	s := defaultSettings()
	if e := CheckClash(c, s); e != nil {
		t.Fatalf("freshly built chain should not clash: %v", e)
	}

	c.Rotate(0, 180)
	// A large rotation of an early residue commonly folds the chain back
	// on itself; this is not guaranteed for every sequence/seed but is the
	// scenario spec.md's S2 exercises, so we assert the detector at least
	// runs without panicking and returns a classified result either way.
	e := CheckClash(c, s)
	if e != nil && e.Kind != ferr.Clash {
		t.Errorf("expected Clash kind or nil, got %v", e)
	}
}

func TestCheckResidueIndexBounds(t *testing.T) {
	c := molecule.NewChain("NLYI")
	if e := CheckResidueIndex(c, 2); e != nil {
		t.Errorf("residue 2 should be valid: %v", e)
	}
	e := CheckResidueIndex(c, 99)
	if e == nil || e.Kind != ferr.UnknownResidue {
		t.Errorf("expected UnknownResidue for out-of-range index, got %v", e)
	}
}

func TestCheckDomainRange(t *testing.T) {
	c := molecule.NewChain("NLYIQWLKDG")
	if e := CheckDomainRange(c, 2, 5); e != nil {
		t.Errorf("domain [2,5] should be valid: %v", e)
	}
	e := CheckDomainRange(c, 2, 50)
	if e == nil || e.Kind != ferr.DomainOutOfRange {
		t.Errorf("expected DomainOutOfRange, got %v", e)
	}
}

func TestCheckBudgetExhausted(t *testing.T) {
	s := defaultSettings()
	s.EntropyBudget = 0.01
	e := CheckBudget(1.0, 0, s)
	if e == nil || e.Kind != ferr.BudgetExhausted {
		t.Errorf("expected BudgetExhausted, got %v", e)
	}
	if e := CheckBudget(0.001, 0, s); e != nil {
		t.Errorf("expected no violation within budget, got %v", e)
	}
}
