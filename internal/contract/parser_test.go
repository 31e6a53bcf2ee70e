package contract

import (
	"strings"
	"testing"

	"github.com/sarat-asymmetrica/foldctl/internal/ferr"
)

func TestParseTrpCageProgram(t *testing.T) {
	program := `
# fold the trp-cage miniprotein
rotate 5 -12 5
rotate 9 6 5
commit
`
	insts, err := ParseString(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(insts) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(insts))
	}
	r0, ok := insts[0].(Rotate)
	if !ok {
		t.Fatalf("expected Rotate, got %T", insts[0])
	}
	if r0.Residue != 5 || r0.Degrees != -12 || r0.DurationMS != 5 {
		t.Errorf("unexpected rotate fields: %+v", r0)
	}
	if _, ok := insts[2].(Commit); !ok {
		t.Errorf("expected Commit, got %T", insts[2])
	}
}

func TestParseGhostProbeProgram(t *testing.T) {
	program := `
ghost on
rotate 3 10 1
rotate 4 -8 1
ghost off
rotate 5 2 1
commit
`
	insts, err := ParseString(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(insts) != 6 {
		t.Fatalf("expected 6 instructions, got %d", len(insts))
	}
	g0, ok := insts[0].(GhostMode)
	if !ok || !g0.On {
		t.Errorf("expected GhostMode{On:true}, got %+v", insts[0])
	}
	g3, ok := insts[3].(GhostMode)
	if !ok || g3.On {
		t.Errorf("expected GhostMode{On:false}, got %+v", insts[3])
	}
}

func TestParseKeywordRotate(t *testing.T) {
	insts, err := ParseString("rotate residue=2 angle=15.5 duration=3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, ok := insts[0].(Rotate)
	if !ok {
		t.Fatalf("expected Rotate, got %T", insts[0])
	}
	if r.Residue != 2 || r.Degrees != 15.5 || r.DurationMS != 3 {
		t.Errorf("unexpected keyword rotate fields: %+v", r)
	}
}

func TestParseCommentsAndBlankLinesSkipped(t *testing.T) {
	insts, err := ParseString("\n# just a comment\n\ncommit # trailing comment\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(insts) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(insts))
	}
}

func TestParseUnknownInstruction(t *testing.T) {
	_, err := ParseString("frobnicate 1 2 3")
	if err == nil {
		t.Fatal("expected error for unknown instruction")
	}
	var fe *ferr.Error
	if !asFerr(err, &fe) || fe.Kind != ferr.ParseError {
		t.Errorf("expected ParseError, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Errorf("expected line number in error, got %v", err)
	}
}

func TestParseMalformedRotateMissingArgs(t *testing.T) {
	_, err := ParseString("rotate 5")
	if err == nil {
		t.Fatal("expected error for rotate missing angle")
	}
}

func TestParseDefineDomainWithAndWithoutName(t *testing.T) {
	insts, err := ParseString("define_domain 2 8\ndefine_domain core 3 9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d0 := insts[0].(DefineDomain)
	if d0.Name != "" || d0.Start != 2 || d0.End != 8 {
		t.Errorf("unexpected unnamed domain: %+v", d0)
	}
	d1 := insts[1].(DefineDomain)
	if d1.Name != "core" || d1.Start != 3 || d1.End != 9 {
		t.Errorf("unexpected named domain: %+v", d1)
	}
}

func TestParseRequireChaperoneAndAddModification(t *testing.T) {
	insts, err := ParseString("require_chaperone hsp70 span-a\nadd_modification phosphorylation 4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rc := insts[0].(RequireChaperone)
	if rc.Name != "hsp70" || rc.SpanLabel != "span-a" {
		t.Errorf("unexpected require_chaperone: %+v", rc)
	}
	am := insts[1].(AddModification)
	if am.Kind != "phosphorylation" || am.ResidueRef != 4 {
		t.Errorf("unexpected add_modification: %+v", am)
	}
}

func TestParseSetPhysicsLevelAndSpan(t *testing.T) {
	insts, err := ParseString("set_physics_level GB\nphysics_span on\nphysics_span off")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lvl := insts[0].(SetPhysicsLevel)
	if lvl.Level != "gb" {
		t.Errorf("expected normalized level 'gb', got %q", lvl.Level)
	}
	if !insts[1].(PhysicsSpan).On {
		t.Errorf("expected physics_span on")
	}
	if insts[2].(PhysicsSpan).On {
		t.Errorf("expected physics_span off")
	}
}

func TestParseUnknownPhysicsLevelRejected(t *testing.T) {
	_, err := ParseString("set_physics_level quantum")
	if err == nil {
		t.Fatal("expected error for unknown physics level")
	}
}

// asFerr is a small errors.As helper kept local to the test file to avoid
// importing the errors package solely for one call site.
func asFerr(err error, target **ferr.Error) bool {
	fe, ok := err.(*ferr.Error)
	if !ok {
		return false
	}
	*target = fe
	return true
}
