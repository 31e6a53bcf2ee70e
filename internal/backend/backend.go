// Package backend dispatches a tentative rotation's energy evaluation to
// an external physics process over a line-delimited JSON protocol, per
// spec.md §4.C and §6. The subprocess lifecycle — exec.CommandContext, a
// piped stdout scanned line-by-line, and a context-based timeout — is
// grounded on the teacher's process-orchestration style in
// backend/cmd/full_pipeline/main.go and the staged external-call pattern
// in backend/internal/pipeline/unified_v2.go. The toy kernel path
// (internal/energy) is evaluated directly by the folding runtime; this
// package is consulted only when a contract has raised the physics level
// above "toy" and switched physics spans on.
package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarat-asymmetrica/foldctl/internal/ferr"
)

// Level names a physics fidelity tier selectable from a contract's
// set_physics_level instruction.
type Level string

const (
	LevelToy    Level = "toy"
	LevelCoarse Level = "coarse"
	LevelGB     Level = "gb"
	LevelFull   Level = "full"
)

// DefaultTimeout bounds a single external evaluation round-trip.
const DefaultTimeout = 30 * time.Second

// Constraint summarizes one active ruleset constraint for the external
// backend's awareness, per §6's request schema.
type Constraint struct {
	Type  string   `json:"type"`
	Atoms []string `json:"atoms,omitempty"`
}

// RotationRequest describes one tentative rotation for external
// evaluation.
type RotationRequest struct {
	Residue         int          `json:"residue"`
	AngleDegrees    float64      `json:"angle"`
	DurationMS      int          `json:"duration"`
	Temperature     float64      `json:"temperature"`
	Solvent         string       `json:"solvent"`
	Model           Level        `json:"model"`
	ResidueSequence string       `json:"residue_sequence"`
	ChainStateHash  string       `json:"chain_state_hash"`
	Constraints     []Constraint `json:"constraints,omitempty"`
}

// wireResponse is the external process's one-line stdout reply, per §6.
type wireResponse struct {
	DeltaE           float64 `json:"delta_E"`
	DeltaS           float64 `json:"delta_S"`
	RMSD             float64 `json:"rmsd"`
	RadiusOfGyration float64 `json:"radius_of_gyration"`
	PotentialEnergy  float64 `json:"potential_energy"`
	KineticEnergy    float64 `json:"kinetic_energy"`
	SimulationTimePs float64 `json:"simulation_time_ps"`
	TrajectoryPath   string  `json:"trajectory_path,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// Metrics is the physics_metrics payload a span carries when produced by
// the external backend.
type Metrics struct {
	RMSD             float64 `json:"rmsd"`
	RadiusOfGyration float64 `json:"radius_of_gyration"`
	PotentialEnergy  float64 `json:"potential_energy"`
	KineticEnergy    float64 `json:"kinetic_energy"`
	SimulationTimePs float64 `json:"simulation_time_ps"`
	TrajectoryPath   string  `json:"trajectory_path,omitempty"`
}

// Result is a successful external evaluation's ΔE/ΔS plus its reported
// physics metrics.
type Result struct {
	DeltaE  float64
	DeltaS  float64
	Metrics Metrics
}

// Dispatcher spawns one subprocess per rotation rather than keeping a
// long-lived bridge process; at the rotation cadence spec.md's scenarios
// exercise, process-per-call keeps the protocol stateless and trivially
// restartable, at the cost of per-call interpreter startup latency a
// caller with a persistent OpenMM context would want to amortize.
type Dispatcher struct {
	log          *logrus.Logger
	bridgeScript string
	pythonBin    string
	timeout      time.Duration
}

// NewDispatcher reads OPENMM_BRIDGE_SCRIPT and PYTHON_OPENMM_BIN from the
// environment, per spec.md §6. An empty bridge script means the external
// path is never attempted and every rotation evaluates on the toy kernel.
func NewDispatcher(log *logrus.Logger) *Dispatcher {
	pythonBin := os.Getenv("PYTHON_OPENMM_BIN")
	if pythonBin == "" {
		pythonBin = "python3"
	}
	return &Dispatcher{
		log:          log,
		bridgeScript: os.Getenv("OPENMM_BRIDGE_SCRIPT"),
		pythonBin:    pythonBin,
		timeout:      DefaultTimeout,
	}
}

// Available reports whether an external bridge script is configured.
func (d *Dispatcher) Available() bool {
	return d.bridgeScript != ""
}

// Evaluate sends req to the external physics process and returns its
// reported ΔE/ΔS/metrics. ok is false whenever the call should fall back
// to the toy kernel: level is "toy", no bridge script is configured, the
// process is missing, times out, exits non-zero, declines with an
// {"error": ...} reply, or returns a malformed line — spec.md §4.C's
// silent-fallback contract. The caller never sees the underlying error;
// it is logged here for operators.
func (d *Dispatcher) Evaluate(ctx context.Context, req RotationRequest) (result Result, ok bool) {
	if req.Model == LevelToy || req.Model == "" || !d.Available() {
		return Result{}, false
	}

	resp, err := d.callExternal(ctx, req)
	if err != nil {
		if d.log != nil {
			d.log.WithError(err).WithField("level", req.Model).Warn("physics backend unavailable, falling back to toy kernel")
		}
		return Result{}, false
	}
	if resp.Error != "" {
		if d.log != nil {
			d.log.WithField("reason", resp.Error).Warn("physics backend declined, falling back to toy kernel")
		}
		return Result{}, false
	}
	return Result{
		DeltaE: resp.DeltaE,
		DeltaS: resp.DeltaS,
		Metrics: Metrics{
			RMSD:             resp.RMSD,
			RadiusOfGyration: resp.RadiusOfGyration,
			PotentialEnergy:  resp.PotentialEnergy,
			KineticEnergy:    resp.KineticEnergy,
			SimulationTimePs: resp.SimulationTimePs,
			TrajectoryPath:   resp.TrajectoryPath,
		},
	}, true
}

func (d *Dispatcher) callExternal(ctx context.Context, req RotationRequest) (*wireResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, d.pythonBin, d.bridgeScript)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, ferr.Wrap(ferr.BackendError, "open stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, ferr.Wrap(ferr.BackendError, "open stdout pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, ferr.Wrap(ferr.BackendError, "start physics bridge process", err)
	}

	enc := json.NewEncoder(stdin)
	if err := enc.Encode(req); err != nil {
		stdin.Close()
		_ = cmd.Wait()
		return nil, ferr.Wrap(ferr.BackendError, "encode request", err)
	}
	stdin.Close()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var resp wireResponse
	var parseErr error
	found := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &resp); err != nil {
			parseErr = err
			continue
		}
		found = true
		break
	}

	waitErr := cmd.Wait()

	if callCtx.Err() == context.DeadlineExceeded {
		return nil, ferr.Wrap(ferr.BackendTimeout, "physics bridge exceeded timeout", callCtx.Err())
	}
	if waitErr != nil {
		return nil, ferr.Wrap(ferr.BackendError, "physics bridge exited with error", waitErr)
	}
	if !found {
		if parseErr != nil {
			return nil, ferr.Wrap(ferr.BackendError, "physics bridge returned malformed reply", parseErr)
		}
		return nil, ferr.New(ferr.BackendError, "physics bridge produced no reply")
	}
	return &resp, nil
}

// Health runs a cheap availability probe against the configured python
// interpreter, mirroring the teacher's Claude.Health check-before-use
// pattern. It does not invoke the bridge script itself.
func (d *Dispatcher) Health(ctx context.Context) error {
	if !d.Available() {
		return ferr.New(ferr.BackendError, "no OPENMM_BRIDGE_SCRIPT configured")
	}
	cmd := exec.CommandContext(ctx, d.pythonBin, "--version")
	if err := cmd.Run(); err != nil {
		return ferr.Wrap(ferr.BackendError, fmt.Sprintf("python interpreter %q health check failed", d.pythonBin), err)
	}
	return nil
}
