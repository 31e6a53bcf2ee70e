package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarat-asymmetrica/foldctl/internal/config"
	"github.com/sarat-asymmetrica/foldctl/internal/contract"
	"github.com/sarat-asymmetrica/foldctl/internal/diamond"
	"github.com/sarat-asymmetrica/foldctl/internal/energy"
	"github.com/sarat-asymmetrica/foldctl/internal/ferr"
	"github.com/sarat-asymmetrica/foldctl/internal/ledger"
	"github.com/sarat-asymmetrica/foldctl/internal/obslog"
	"github.com/sarat-asymmetrica/foldctl/internal/ruleset"
	"github.com/sarat-asymmetrica/foldctl/internal/runtime"
)

// Exit codes, per spec.md §6.
const (
	exitOK             = 0
	exitParseError     = 1
	exitViolationCount = 2
	exitIOError        = 3
	exitBackendFatal   = 4
)

type rootFlags struct {
	preset           string
	contractPath     string
	temp             float64
	dt               int
	seed             int64
	env              string
	anneal           string
	diamondThreshold float64
	logPath          string
	replayPath       string
	ghosts           bool
	recompute        bool
	features         string
	requirePhysics   bool
	strict           bool
}

func run() int {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "foldctl",
		Short: "computable protein-folding engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRun(flags)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.Flags().StringVar(&flags.preset, "preset", "", "built-in contract name")
	root.Flags().StringVar(&flags.contractPath, "contract", "", "path to a .lll contract file")
	root.Flags().Float64Var(&flags.temp, "temp", 0, "temperature in K (0 selects 305 K)")
	root.Flags().IntVar(&flags.dt, "dt", 1, "integration step size in ms")
	root.Flags().Int64Var(&flags.seed, "seed", 1, "RNG seed")
	root.Flags().StringVar(&flags.env, "env", "aqueous", "environment preset: aqueous|vacuum|membrane")
	root.Flags().StringVar(&flags.anneal, "anneal", "", "START:END:STEPS linear temperature schedule")
	root.Flags().Float64Var(&flags.diamondThreshold, "diamond-threshold", -5.0, "G threshold below which a committed span becomes a diamond")
	root.Flags().StringVar(&flags.logPath, "log", "", "ledger output path (defaults to <contract-id>.jsonl)")
	root.Flags().StringVar(&flags.replayPath, "replay", "", "replay an existing ledger instead of running a contract")
	root.Flags().BoolVar(&flags.ghosts, "ghosts", false, "show ghost span detail during replay")
	root.Flags().BoolVar(&flags.recompute, "recompute", false, "re-derive coordinates/energy from delta_theta instead of trusting the ledger's stored deltas (needs --preset for the sequence; a --contract file carries none)")
	root.Flags().StringVar(&flags.features, "features", "", "comma-separated feature flags, e.g. openmm (lets physics_span on take effect)")
	root.Flags().BoolVar(&flags.requirePhysics, "require-physics", false, "fail fatally instead of falling back when a physics span can't reach the backend")
	root.Flags().BoolVar(&flags.strict, "strict", false, "exit nonzero if any violation was recorded")

	root.AddCommand(replayCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	return lastExitCode
}

// lastExitCode carries the exit code a RunE determined beyond plain
// success/failure (e.g. "ran fine but --strict found violations"). cobra's
// Execute only distinguishes error/no-error, so doRun stashes the richer
// outcome here before returning.
var lastExitCode = exitOK

func doRun(flags *rootFlags) error {
	if flags.replayPath != "" {
		return doReplay(replayRequest{
			path:         flags.replayPath,
			ghosts:       flags.ghosts,
			strict:       flags.strict,
			recompute:    flags.recompute,
			contractPath: flags.contractPath,
			preset:       flags.preset,
			env:          flags.env,
		})
	}

	log := obslog.Default()
	hints := config.EnvHints{LogsDir: os.Getenv("LOGS_DIR"), GenomePath: os.Getenv("GENOME_PATH")}
	log.WithField("logs_dir", hints.LogsDir).WithField("genome_path", hints.GenomePath).Debug("dashboard hints observed, not consumed by core")

	doc, err := config.Load()
	if err != nil {
		lastExitCode = exitIOError
		return err
	}

	sequence, program, contractID, err := resolveContract(doc, flags.contractPath, flags.preset)
	if err != nil {
		lastExitCode = exitParseError
		return err
	}

	preset, err := doc.Environment(flags.env)
	if err != nil {
		lastExitCode = exitParseError
		return err
	}

	annealing, err := resolveAnnealing(flags.anneal, flags.temp)
	if err != nil {
		lastExitCode = exitParseError
		return err
	}

	rulesetSettings := rulesetFromDefaults(doc.Ruleset)

	instructions, err := contract.ParseString(program)
	if err != nil {
		lastExitCode = exitParseError
		return err
	}

	ledgerPath := flags.logPath
	if ledgerPath == "" {
		ledgerPath = contractID + ".jsonl"
	}

	cfg := runtime.Config{
		ContractID:            contractID,
		Sequence:              sequence,
		Seed:                  flags.seed,
		Environment:           flags.env,
		DtMS:                  flags.dt,
		Coefficients:          preset.Coefficients(),
		Ruleset:               rulesetSettings,
		Annealing:             annealing,
		PhysicsLevel:          "toy",
		ConvergenceWindow:     10,
		ConvergenceEpsilon:    1e-9,
		RequirePhysics:        flags.requirePhysics,
		PhysicsFeatureEnabled: hasFeature(flags.features, "openmm"),
	}

	rt, err := runtime.New(cfg, ledgerPath, log)
	if err != nil {
		lastExitCode = exitIOError
		return err
	}

	runErr := rt.Run(context.Background(), instructions, nil)
	if runErr != nil {
		if isBackendFatal(runErr) {
			lastExitCode = exitBackendFatal
			return runErr
		}
		lastExitCode = exitIOError
		return runErr
	}

	cat := diamond.NewCatalogue(contractID, flags.diamondThreshold)
	collectDiamonds(cat, ledgerPath, flags.env)
	if err := cat.Save(contractID + ".diamonds.json"); err != nil {
		log.WithError(err).Warn("failed to save diamond catalogue")
	}

	if flags.strict {
		violated, err := ledgerHasViolations(ledgerPath)
		if err != nil {
			lastExitCode = exitIOError
			return err
		}
		if violated {
			lastExitCode = exitViolationCount
			return fmt.Errorf("run completed with violations under --strict")
		}
	}

	log.WithField("ledger", ledgerPath).Info("run complete")
	lastExitCode = exitOK
	return nil
}

func resolveContract(doc *config.Document, contractPath, preset string) (sequence, program, contractID string, err error) {
	switch {
	case contractPath != "":
		b, readErr := os.ReadFile(contractPath)
		if readErr != nil {
			return "", "", "", fmt.Errorf("read contract file: %w", readErr)
		}
		id := strings.TrimSuffix(fileBase(contractPath), ".lll")
		return "", string(b), id, nil
	case preset != "":
		p, presetErr := doc.Contract(preset)
		if presetErr != nil {
			return "", "", "", presetErr
		}
		return p.Sequence, p.Program, preset, nil
	default:
		return "", "", "", fmt.Errorf("one of --preset or --contract is required")
	}
}

// resolveRecomputeInputs looks up the sequence and environment coefficients
// a --recompute replay pass needs, the same way doRun resolves them for a
// live run. A .lll file given via --contract carries no sequence, so
// recompute falls back to reporting the ledger's own recorded deltas in
// that case (internal/replay.Run treats an empty Options.Sequence as "skip
// recomputation"), exactly as it does when --recompute isn't set at all.
func resolveRecomputeInputs(contractPath, preset, env string) (string, energy.Coefficients, error) {
	if contractPath == "" && preset == "" {
		return "", energy.Coefficients{}, nil
	}
	doc, err := config.Load()
	if err != nil {
		return "", energy.Coefficients{}, err
	}
	sequence, _, _, err := resolveContract(doc, contractPath, preset)
	if err != nil {
		return "", energy.Coefficients{}, err
	}
	if sequence == "" {
		return "", energy.Coefficients{}, nil
	}
	if env == "" {
		env = "aqueous"
	}
	envPreset, err := doc.Environment(env)
	if err != nil {
		return "", energy.Coefficients{}, err
	}
	return sequence, envPreset.Coefficients(), nil
}

func fileBase(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}
	return path[i+1:]
}

func resolveAnnealing(spec string, temp float64) (config.Annealing, error) {
	if spec == "" {
		t := temp
		if t == 0 {
			t = 305
		}
		return config.Annealing{Start: t, End: t, Steps: 1}, nil
	}
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return config.Annealing{}, fmt.Errorf("--anneal must be START:END:STEPS, got %q", spec)
	}
	start, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return config.Annealing{}, fmt.Errorf("--anneal start: %w", err)
	}
	end, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return config.Annealing{}, fmt.Errorf("--anneal end: %w", err)
	}
	steps, err := strconv.Atoi(parts[2])
	if err != nil {
		return config.Annealing{}, fmt.Errorf("--anneal steps: %w", err)
	}
	return config.Annealing{Start: start, End: end, Steps: steps}, nil
}

func rulesetFromDefaults(d config.RulesetDefaults) ruleset.Settings {
	return ruleset.Settings{
		MaxRotationDegrees: d.MaxRotationDegrees,
		MinBondDistance:    d.MinBondDistance,
		BondConstraints:    ruleset.DefaultBondConstraints(),
		EntropyBudget:      d.EntropyBudget,
		InfoBudget:         d.InfoBudget,
	}
}

// collectDiamonds replays ledgerPath's committed spans into cat. Errors are
// non-fatal: a run that completed successfully should not fail merely
// because the diamond catalogue couldn't be rebuilt.
func collectDiamonds(cat *diamond.Catalogue, ledgerPath, environment string) {
	header, scanner, f, err := ledger.Open(ledgerPath)
	if err != nil {
		return
	}
	defer f.Close()
	for scanner.Scan() {
		rec, err := ledger.DecodeRecord(scanner.Bytes())
		if err != nil {
			continue
		}
		span, ok := rec.(*ledger.SpanRecord)
		if !ok || span.RecordType != ledger.RecordKindSpan {
			continue
		}
		pe, ke := 0.0, 0.0
		if span.PhysicsMetrics != nil {
			pe = span.PhysicsMetrics.PotentialEnergy
			ke = span.PhysicsMetrics.KineticEnergy
		}
		cat.Observe(*span, environment, header.Temperature, pe, ke)
	}
}

// ledgerHasViolations reports whether any violation record was written, for
// the --strict exit-code decision.
func ledgerHasViolations(ledgerPath string) (bool, error) {
	_, scanner, f, err := ledger.Open(ledgerPath)
	if err != nil {
		return false, err
	}
	defer f.Close()
	for scanner.Scan() {
		rec, err := ledger.DecodeRecord(scanner.Bytes())
		if err != nil {
			return false, err
		}
		if _, ok := rec.(*ledger.ViolationRecord); ok {
			return true, nil
		}
	}
	return false, scanner.Err()
}

func hasFeature(features, name string) bool {
	for _, f := range strings.Split(features, ",") {
		if strings.TrimSpace(f) == name {
			return true
		}
	}
	return false
}

func isBackendFatal(err error) bool {
	var fe *ferr.Error
	return errors.As(err, &fe) && fe.Kind == ferr.BackendError
}

func exitCodeFor(err error) int {
	if lastExitCode != exitOK {
		return lastExitCode
	}
	return 1
}
