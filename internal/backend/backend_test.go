package backend

import (
	"context"
	"os"
	"testing"
)

func TestEvaluateFallsBackWithoutBridgeScript(t *testing.T) {
	os.Unsetenv("OPENMM_BRIDGE_SCRIPT")
	d := NewDispatcher(nil)
	if d.Available() {
		t.Fatal("expected no bridge script configured")
	}
	req := RotationRequest{Residue: 3, AngleDegrees: 10, Model: LevelFull, ResidueSequence: "NLYIQWLKDG"}
	_, ok := d.Evaluate(context.Background(), req)
	if ok {
		t.Fatal("expected fallback to toy kernel")
	}
}

func TestEvaluateToyLevelNeverCallsExternal(t *testing.T) {
	os.Setenv("OPENMM_BRIDGE_SCRIPT", "/nonexistent/bridge.py")
	defer os.Unsetenv("OPENMM_BRIDGE_SCRIPT")
	d := NewDispatcher(nil)
	req := RotationRequest{Residue: 3, AngleDegrees: 10, Model: LevelToy, ResidueSequence: "NLYIQWLKDG"}
	_, ok := d.Evaluate(context.Background(), req)
	if ok {
		t.Fatal("LevelToy must never dispatch externally")
	}
}

func TestEvaluateFallsBackOnUnreachableBridge(t *testing.T) {
	os.Setenv("OPENMM_BRIDGE_SCRIPT", "/nonexistent/bridge.py")
	defer os.Unsetenv("OPENMM_BRIDGE_SCRIPT")
	d := NewDispatcher(nil)
	req := RotationRequest{Residue: 3, AngleDegrees: 10, Model: LevelFull, ResidueSequence: "NLYIQWLKDG"}
	_, ok := d.Evaluate(context.Background(), req)
	if ok {
		t.Fatal("expected fallback when bridge script does not exist")
	}
}

func TestHealthReportsUnavailableWithNoBridge(t *testing.T) {
	os.Unsetenv("OPENMM_BRIDGE_SCRIPT")
	d := NewDispatcher(nil)
	if err := d.Health(context.Background()); err == nil {
		t.Fatal("expected health check error with no bridge configured")
	}
}
