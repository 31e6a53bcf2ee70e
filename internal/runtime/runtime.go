// Package runtime implements the folding engine's central instruction
// execution state machine, per spec.md §4.F. It owns the chain, the
// checkpoint stack, the seeded RNG, cumulative counters, annotation
// tables, and the ledger writer, and threads them through a single
// sequential step loop — the "runtime is a single owned value" design
// note in spec.md §9, grounded on the teacher's folding/pipeline.go,
// which likewise centralizes a Pipeline struct rather than scattering
// fold state across globals.
package runtime

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sarat-asymmetrica/foldctl/internal/backend"
	"github.com/sarat-asymmetrica/foldctl/internal/config"
	"github.com/sarat-asymmetrica/foldctl/internal/contract"
	"github.com/sarat-asymmetrica/foldctl/internal/energy"
	"github.com/sarat-asymmetrica/foldctl/internal/ferr"
	"github.com/sarat-asymmetrica/foldctl/internal/ledger"
	"github.com/sarat-asymmetrica/foldctl/internal/molecule"
	"github.com/sarat-asymmetrica/foldctl/internal/ruleset"
)

// BoltzmannK is k_B in kcal/(mol·K); reused from energy.RGas since both
// are the molar gas constant expressed on the same per-mole energy basis.
const BoltzmannK = energy.RGas

// hsp70ProbabilityFactor is the builtin Hsp70 acceptance-probability multiplier,
// and groelConfinementEnergy is the builtin GroEL additive confinement
// penalty (kcal/mol) applied to ΔE before Metropolis, per spec.md §9's
// resolved Open Question. Both are schematic constants, not measured
// thermodynamic parameters.
const (
	hsp70ProbabilityFactor = 1.25
	groelConfinementEnergy = 0.75
)

// Config is the runtime's construction-time configuration; nothing below
// is mutated by the step loop itself (the "configuration is passed at
// construction" design note).
type Config struct {
	ContractID         string
	Sequence           string
	Seed               int64
	Environment        string
	DtMS               int
	Coefficients       energy.Coefficients
	Ruleset            ruleset.Settings
	Annealing          config.Annealing
	PhysicsLevel       backend.Level
	ConvergenceWindow  int
	ConvergenceEpsilon float64
	Integrator         string
	Ensemble           string

	// RequirePhysics makes a physics-span rotation that cannot reach the
	// external backend fatal instead of silently falling back to the toy
	// kernel, for the command surface's --require-physics flag.
	RequirePhysics bool

	// PhysicsFeatureEnabled gates whether a PhysicsSpan{On:true} instruction
	// can ever turn physics spans on, for the command surface's
	// --features openmm flag.
	PhysicsFeatureEnabled bool
}

type domain struct {
	name       string
	start, end int
}

type chaperoneScope struct {
	name      string
	spanLabel string
}

type checkpoint struct {
	chain          *molecule.Chain
	reservoir      *energy.Reservoir
	cumulativeE    float64
	cumulativeS    float64
	cumulativeInfo float64
	rngDraws       int64
	domains        []domain
	chaperones     []chaperoneScope
	alias          string
	ghostMode      bool
	physicsOn      bool
	physicsLvl     backend.Level
}

// Runtime is the single owned value the command surface constructs once
// per run and threads through every instruction.
type Runtime struct {
	cfg Config
	log *logrus.Logger

	chain      *molecule.Chain
	reservoir  *energy.Reservoir
	dispatcher *backend.Dispatcher
	writer     *ledger.Writer

	rngSeed  int64
	rng      *rand.Rand
	rngDraws int64

	checkpoints  []checkpoint
	domains      []domain
	chaperones   []chaperoneScope
	currentAlias string

	ghostMode    bool
	physicsOn    bool
	physicsLevel backend.Level

	cumulativeE    float64
	cumulativeS    float64
	cumulativeInfo float64

	step              int
	totalSpanRecords  int
	appliedSpans      int
	ghostSpans        int
	physicsSpanCount  int
	metropolisTrials  int
	metropolisAccepts int
	commitCount       int
	violations        []string
	haltedReason      string
	fatalErr          *ferr.Error

	deltaEWindow    []float64
	convergenceTick int
	converged       bool
}

// New constructs a Runtime and opens its ledger at path.
func New(cfg Config, ledgerPath string, log *logrus.Logger) (*Runtime, error) {
	chain := molecule.NewChain(cfg.Sequence)
	header := ledger.Header{
		ContractName: cfg.ContractID,
		Environment:  cfg.Environment,
		Temperature:  cfg.Annealing.Start,
		DtMS:         cfg.DtMS,
		Seed:         cfg.Seed,
		Integrator:   orDefault(cfg.Integrator, "metropolis-monte-carlo"),
		Ensemble:     orDefault(cfg.Ensemble, "NVT"),
		Annealing: ledger.Annealing{
			Start: cfg.Annealing.Start,
			End:   cfg.Annealing.End,
			Steps: cfg.Annealing.Steps,
		},
		PhysicsLevel: string(cfg.PhysicsLevel),
		Version:      "1",
	}
	w, err := ledger.New(ledgerPath, header)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		cfg:          cfg,
		log:          log,
		chain:        chain,
		reservoir:    energy.NewReservoir(),
		dispatcher:   backend.NewDispatcher(log),
		writer:       w,
		rngSeed:      cfg.Seed,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		physicsLevel: cfg.PhysicsLevel,
	}
	return rt, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Chain exposes the current chain for callers (e.g. the diamond catalogue
// observer or a --recompute replay pass) that need read access alongside
// the ledger.
func (rt *Runtime) Chain() *molecule.Chain { return rt.chain }

func (rt *Runtime) drawUniform() float64 {
	rt.rngDraws++
	return rt.rng.Float64()
}

func (rt *Runtime) temperature() float64 {
	return rt.cfg.Annealing.TemperatureAt(rt.step)
}

// Run executes every instruction in program in order, honoring a
// cooperative cancellation check before each dispatch, and finalizes the
// ledger before returning. cancel may be nil.
func (rt *Runtime) Run(ctx context.Context, program []contract.Instruction, cancel func() bool) error {
	for _, inst := range program {
		if cancel != nil && cancel() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if rt.haltedReason != "" {
			break
		}
		rt.step++
		rt.dispatch(ctx, inst)
	}
	if err := rt.finalize(); err != nil {
		return err
	}
	if rt.fatalErr != nil {
		return rt.fatalErr
	}
	return nil
}

func (rt *Runtime) dispatch(ctx context.Context, inst contract.Instruction) {
	switch v := inst.(type) {
	case contract.Rotate:
		rt.executeRotate(ctx, v)
	case contract.ClashCheck:
		rt.executeClashCheck()
	case contract.Commit:
		rt.executeCommit()
	case contract.Rollback:
		rt.executeRollback()
	case contract.SpanAlias:
		rt.currentAlias = v.Name
	case contract.GhostMode:
		rt.ghostMode = v.On
	case contract.DefineDomain:
		rt.executeDefineDomain(v)
	case contract.RequireChaperone:
		rt.chaperones = append(rt.chaperones, chaperoneScope{name: v.Name, spanLabel: v.SpanLabel})
	case contract.AddModification:
		rt.executeAddModification(v)
	case contract.SetPhysicsLevel:
		rt.physicsLevel = backend.Level(v.Level)
	case contract.PhysicsSpan:
		rt.physicsOn = v.On && rt.cfg.PhysicsFeatureEnabled
	}
}

func (rt *Runtime) executeDefineDomain(v contract.DefineDomain) {
	if e := ruleset.CheckDomainRange(rt.chain, v.Start, v.End); e != nil {
		rt.recordViolation(e)
		return
	}
	rt.domains = append(rt.domains, domain{name: v.Name, start: v.Start, end: v.End})
}

func (rt *Runtime) executeAddModification(v contract.AddModification) {
	if e := ruleset.CheckResidueIndex(rt.chain, v.ResidueRef); e != nil {
		rt.recordViolation(e)
		return
	}
	// Annotation only, per spec.md §9's resolved Open Question: no residue
	// parameter is mutated here.
}

func (rt *Runtime) executeClashCheck() {
	if e := ruleset.CheckClash(rt.chain, rt.cfg.Ruleset); e != nil {
		rt.recordViolation(e)
	}
}

func (rt *Runtime) executeCommit() {
	rt.checkpoints = append(rt.checkpoints, rt.snapshot())
	rt.commitCount++
	rt.writeSpan(ledger.SpanRecord{
		RecordType: ledger.RecordKindCommit,
		SpanUUID:   uuid.NewString(),
		ContractID: rt.cfg.ContractID,
		SpanLabel:  rt.currentAlias,
		Timestamp:  rt.timestamp(),
		G:          rt.currentG(),
	})
	rt.writer.Flush()
}

func (rt *Runtime) executeRollback() {
	if len(rt.checkpoints) == 0 {
		rt.recordViolation(ferr.New(ferr.LedgerIOError, "rollback with no prior commit"))
		return
	}
	top := rt.checkpoints[len(rt.checkpoints)-1]
	rt.checkpoints = rt.checkpoints[:len(rt.checkpoints)-1]
	rt.restore(top)
	rt.writeSpan(ledger.SpanRecord{
		RecordType: ledger.RecordKindRollback,
		ContractID: rt.cfg.ContractID,
		SpanLabel:  rt.currentAlias,
		Timestamp:  rt.timestamp(),
		G:          rt.currentG(),
	})
}

// executeRotate implements spec.md §4.F's Rotate instruction: propose,
// evaluate, enforce, then accept/reject via Metropolis (or force-ghost).
func (rt *Runtime) executeRotate(ctx context.Context, v contract.Rotate) {
	if e := ruleset.CheckResidueIndex(rt.chain, v.Residue); e != nil {
		rt.recordViolation(e)
		return
	}

	chainSnap := rt.chain.Snapshot()
	reservoirSnap := rt.reservoir.Snapshot()

	deltaE, deltaS, metrics, usedPhysics := rt.evaluateRotation(ctx, v)

	if rt.cfg.RequirePhysics && rt.physicsOn && rt.physicsLevel != backend.LevelToy && rt.physicsLevel != "" && !usedPhysics {
		rt.chain.Restore(chainSnap)
		rt.reservoir.Restore(reservoirSnap)
		e := ferr.New(ferr.BackendError, "physics backend required but unavailable for residue "+strconv.Itoa(v.Residue))
		rt.recordViolation(e)
		rt.haltedReason = "backend_fatal"
		rt.fatalErr = e
		return
	}

	if e := ruleset.Enforce(rt.chain, v.Residue, v.Degrees, rt.cumulativeS, rt.cumulativeInfo, rt.cfg.Ruleset); e != nil {
		rt.chain.Restore(chainSnap)
		rt.reservoir.Restore(reservoirSnap)
		rt.recordViolation(e)
		return
	}

	deltaE = rt.applyChaperoneBias(deltaE)

	ghost := rt.ghostMode
	if !ghost {
		rt.metropolisTrials++
		p := acceptanceProbability(deltaE, rt.temperature())
		p = rt.applyChaperoneProbability(p)
		if rt.drawUniform() < p {
			rt.metropolisAccepts++
		} else {
			ghost = true
		}
	}

	// G reports the Gibbs free energy the fold would reach were this span
	// applied, whether or not it ultimately is, so ghost spans record it
	// too; the diamond catalogue itself ignores ghost spans.
	g := (rt.cumulativeE + deltaE) - rt.temperature()*(rt.cumulativeS+deltaS)

	span := ledger.SpanRecord{
		ContractID: rt.cfg.ContractID,
		SpanLabel:  rt.currentAlias,
		Timestamp:  rt.timestamp(),
		DeltaTheta: v.Degrees,
		DeltaE:     deltaE,
		DeltaS:     deltaS,
		G:          g,
		GhostFlag:  ghost,
		Physics:    usedPhysics,
	}
	if usedPhysics {
		span.PhysicsMetrics = &ledger.PhysicsMetrics{
			RMSD:             metrics.RMSD,
			RadiusOfGyration: metrics.RadiusOfGyration,
			PotentialEnergy:  metrics.PotentialEnergy,
			KineticEnergy:    metrics.KineticEnergy,
			SimulationTimePs: metrics.SimulationTimePs,
			TrajectoryPath:   metrics.TrajectoryPath,
		}
		rt.physicsSpanCount++
	}

	if ghost {
		rt.chain.Restore(chainSnap)
		rt.reservoir.Restore(reservoirSnap)
		rt.ghostSpans++
	} else {
		rt.cumulativeE += deltaE
		rt.cumulativeS += deltaS
		rt.cumulativeInfo += math.Abs(deltaS)
		rt.appliedSpans++
		rt.recordConvergence(deltaE)
	}

	rt.writeSpan(span)

	if e := ruleset.CheckBudget(rt.cumulativeS, rt.cumulativeInfo, rt.cfg.Ruleset); e != nil {
		rt.recordViolation(e)
		rt.haltedReason = "budget"
	}
}

// evaluateRotation computes ΔE/ΔS for the tentative rotation described by
// v, applying it to the chain so the ruleset's post-rotation checks see
// the proposed state. When physics mode is active and the external
// backend accepts the call, its reported deltas are used in place of the
// toy kernel's.
func (rt *Runtime) evaluateRotation(ctx context.Context, v contract.Rotate) (deltaE, deltaS float64, metrics backend.Metrics, usedPhysics bool) {
	before := energy.Calculate(rt.chain, rt.cfg.Coefficients)
	rt.chain.Rotate(v.Residue, v.Degrees)

	if rt.physicsOn && rt.physicsLevel != backend.LevelToy && rt.physicsLevel != "" {
		req := backend.RotationRequest{
			Residue:         v.Residue,
			AngleDegrees:    v.Degrees,
			DurationMS:      v.DurationMS,
			Temperature:     rt.temperature(),
			Solvent:         rt.cfg.Environment,
			Model:           rt.physicsLevel,
			ResidueSequence: rt.chain.Sequence(),
			ChainStateHash:  chainHash(rt.chain),
		}
		if result, ok := rt.dispatcher.Evaluate(ctx, req); ok {
			r, _ := rt.chain.Residue(v.Residue)
			_ = rt.reservoir.Record(v.Residue, r.Psi)
			return result.DeltaE, result.DeltaS, result.Metrics, true
		}
	}

	after := energy.Calculate(rt.chain, rt.cfg.Coefficients)
	r, _ := rt.chain.Residue(v.Residue)
	entropyDelta := rt.reservoir.Record(v.Residue, r.Psi)
	return after.Total - before.Total, entropyDelta, backend.Metrics{}, false
}

// acceptanceProbability is the Metropolis criterion of spec.md §4.F.
func acceptanceProbability(deltaE, temperature float64) float64 {
	if deltaE <= 0 {
		return 1
	}
	if temperature <= 0 {
		return 0
	}
	return math.Exp(-deltaE / (BoltzmannK * temperature))
}

// applyChaperoneBias adds GroEL's additive confinement penalty to ΔE when
// an active chaperone scope names "groel" and its span_label (if any)
// matches the currently aliased span.
func (rt *Runtime) applyChaperoneBias(deltaE float64) float64 {
	for _, c := range rt.chaperones {
		if isGroEL(c.name) && (c.spanLabel == "" || c.spanLabel == rt.currentAlias) {
			deltaE += groelConfinementEnergy
		}
	}
	return deltaE
}

// applyChaperoneProbability multiplies the Metropolis acceptance
// probability when an active chaperone scope names "hsp70" and its
// span_label (if any) matches the currently aliased span, clamped to
// [0,1].
func (rt *Runtime) applyChaperoneProbability(p float64) float64 {
	for _, c := range rt.chaperones {
		if isHsp70(c.name) && (c.spanLabel == "" || c.spanLabel == rt.currentAlias) {
			p *= hsp70ProbabilityFactor
		}
	}
	if p > 1 {
		p = 1
	}
	if p < 0 {
		p = 0
	}
	return p
}

func isHsp70(name string) bool { return equalFold(name, "hsp70") }
func isGroEL(name string) bool { return equalFold(name, "groel") }

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (rt *Runtime) recordConvergence(deltaE float64) {
	window := rt.cfg.ConvergenceWindow
	if window <= 0 {
		window = 10
	}
	rt.deltaEWindow = append(rt.deltaEWindow, math.Abs(deltaE))
	if len(rt.deltaEWindow) > window {
		rt.deltaEWindow = rt.deltaEWindow[len(rt.deltaEWindow)-window:]
	}
	if len(rt.deltaEWindow) < window {
		return
	}
	eps := rt.cfg.ConvergenceEpsilon
	if eps <= 0 {
		eps = 1e-9
	}
	max := 0.0
	for _, d := range rt.deltaEWindow {
		if d > max {
			max = d
		}
	}
	if max < eps {
		rt.convergenceTick = rt.step
		rt.converged = true
	}
}

func (rt *Runtime) currentG() float64 {
	return rt.cumulativeE - rt.temperature()*rt.cumulativeS
}

func (rt *Runtime) recordViolation(e *ferr.Error) {
	rt.violations = append(rt.violations, e.Error())
	rt.writer.WriteViolation(ledger.ViolationRecord{
		Kind:      string(e.Kind),
		Detail:    e.Detail,
		Timestamp: rt.timestamp(),
	})
}

// writeSpan appends rec to the ledger and counts it toward the header's
// total_spans, covering applied/ghost rotation spans as well as commit
// and rollback markers. The span_uuid is a name-based UUID derived from
// the run's inputs and the record's position, so two runs with identical
// inputs write identical span_uuids.
func (rt *Runtime) writeSpan(rec ledger.SpanRecord) {
	a := rt.cfg.Annealing
	name := rt.cfg.ContractID + "/" + strconv.FormatInt(rt.cfg.Seed, 10) + "/" + rt.cfg.Environment +
		"/" + strconv.FormatFloat(a.Start, 'g', -1, 64) + ":" + strconv.FormatFloat(a.End, 'g', -1, 64) +
		":" + strconv.Itoa(a.Steps) + "/" + strconv.Itoa(rt.totalSpanRecords)
	rec.SpanUUID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
	rt.writer.WriteSpan(rec)
	rt.totalSpanRecords++
}

func (rt *Runtime) timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (rt *Runtime) snapshot() checkpoint {
	return checkpoint{
		chain:          rt.chain.Snapshot(),
		reservoir:      rt.reservoir.Snapshot(),
		cumulativeE:    rt.cumulativeE,
		cumulativeS:    rt.cumulativeS,
		cumulativeInfo: rt.cumulativeInfo,
		rngDraws:       rt.rngDraws,
		domains:        append([]domain(nil), rt.domains...),
		chaperones:     append([]chaperoneScope(nil), rt.chaperones...),
		alias:          rt.currentAlias,
		ghostMode:      rt.ghostMode,
		physicsOn:      rt.physicsOn,
		physicsLvl:     rt.physicsLevel,
	}
}

// restore reverts all of {chain, counters, RNG} atomically, per spec.md
// §5's ordering guarantee.
func (rt *Runtime) restore(cp checkpoint) {
	rt.chain.Restore(cp.chain)
	rt.reservoir.Restore(cp.reservoir)
	rt.cumulativeE = cp.cumulativeE
	rt.cumulativeS = cp.cumulativeS
	rt.cumulativeInfo = cp.cumulativeInfo
	rt.domains = cp.domains
	rt.chaperones = cp.chaperones
	rt.currentAlias = cp.alias
	rt.ghostMode = cp.ghostMode
	rt.physicsOn = cp.physicsOn
	rt.physicsLevel = cp.physicsLvl

	rt.rng = rand.New(rand.NewSource(rt.rngSeed))
	rt.rngDraws = 0
	for rt.rngDraws < cp.rngDraws {
		rt.drawUniform()
	}
}

func (rt *Runtime) finalize() error {
	acceptance := 0.0
	if rt.metropolisTrials > 0 {
		acceptance = float64(rt.metropolisAccepts) / float64(rt.metropolisTrials)
	}
	final := energy.Calculate(rt.chain, rt.cfg.Coefficients)
	header := ledger.Header{
		ContractName: rt.cfg.ContractID,
		Environment:  rt.cfg.Environment,
		Temperature:  rt.temperature(),
		DtMS:         rt.cfg.DtMS,
		Seed:         rt.cfg.Seed,
		Integrator:   orDefault(rt.cfg.Integrator, "metropolis-monte-carlo"),
		Ensemble:     orDefault(rt.cfg.Ensemble, "NVT"),
		Annealing: ledger.Annealing{
			Start: rt.cfg.Annealing.Start,
			End:   rt.cfg.Annealing.End,
			Steps: rt.cfg.Annealing.Steps,
		},
		PhysicsLevel:     string(rt.physicsLevel),
		Version:          "1",
		TotalSpans:       rt.totalSpanRecords,
		GhostSpans:       rt.ghostSpans,
		AcceptanceRate:   acceptance,
		FinalG:           rt.currentG(),
		FinalPE:          final.Total,
		FinalKE:          0,
		ConvergenceTick:  rt.convergenceTick,
		Converged:        rt.converged,
		PhysicsSpanCount: rt.physicsSpanCount,
		HaltedReason:     rt.haltedReason,
		Violations:       rt.violations,
	}
	return rt.writer.Finalize(header)
}

// chainHash derives a short deterministic fingerprint of the chain's
// current coordinates for the external backend's "current chain state
// hash" field, per spec.md §4.C. It is not cryptographic; it only needs
// to change whenever the chain's geometry does.
func chainHash(c *molecule.Chain) string {
	var acc uint64 = 1469598103934665603 // FNV-1a offset basis
	const prime uint64 = 1099511628211
	for _, a := range c.Atoms() {
		for _, f := range []float64{a.Pos.X, a.Pos.Y, a.Pos.Z} {
			bits := math.Float64bits(f)
			for i := 0; i < 8; i++ {
				acc ^= (bits >> (8 * i)) & 0xff
				acc *= prime
			}
		}
	}
	return uintToHex(acc)
}

func uintToHex(v uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
