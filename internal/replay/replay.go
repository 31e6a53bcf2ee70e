// Package replay reads a finished ledger and reconstructs the aggregate
// statistics its header claims, per spec.md §4.I. The read-only pass over
// ledger.Open's scanner, accumulating into a small report struct, is
// grounded on the same teacher pattern internal/ledger itself follows for
// the writer side (backend/cmd/full_pipeline/main.go's single forward pass
// over a results stream).
package replay

import (
	"github.com/sarat-asymmetrica/foldctl/internal/energy"
	"github.com/sarat-asymmetrica/foldctl/internal/ferr"
	"github.com/sarat-asymmetrica/foldctl/internal/ledger"
	"github.com/sarat-asymmetrica/foldctl/internal/molecule"
)

// Report is the statistics replay reconstructs from a ledger, per spec.md
// §4.I.
type Report struct {
	ContractName string

	AppliedSpans  int
	GhostSpans    int
	CommitSpans   int
	RollbackSpans int

	// Every ghost span counts as a rejected Metropolis trial: the ledger
	// does not distinguish ghost-mode spans from Metropolis rejections, so
	// AcceptanceRate is lower than the header's acceptance_rate whenever
	// ghost mode produced spans.
	MetropolisTrials  int
	MetropolisAccepts int
	AcceptanceRate    float64

	CumulativeE float64
	CumulativeS float64
	FinalG      float64

	TotalWork               float64 // Σ|ΔE|·Δt over applied spans, Δt being the header's dt_ms
	InformationalEfficiency float64 // ΣΔS / total_rotations

	HeaderFinalG  float64
	HeaderFinalPE float64
	HeaderFinalKE float64

	ViolationCount int
	Violations     []ledger.ViolationRecord

	HaltedReason string
	Converged    bool

	GhostDetail []ledger.SpanRecord // populated only when Options.GhostDetail is set
}

// Options configures a replay pass.
type Options struct {
	// Recompute re-derives coordinates via internal/molecule and
	// re-evaluates energy via internal/energy from each applied span's
	// recorded delta_theta, rather than trusting the ledger's own delta_E
	// (delta_S is still taken from the ledger).
	// Requires the original sequence and environment coefficients, since
	// the ledger does not carry the full sequence.
	Recompute bool
	Sequence  string
	Coeff     energy.Coefficients

	// GhostDetail retains every ghost span in Report.GhostDetail, per the
	// command surface's --ghosts flag.
	GhostDetail bool
}

// Run reads the ledger at path and reconstructs a Report.
func Run(path string, opts Options) (Report, error) {
	header, scanner, f, err := ledger.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer f.Close()

	var chain *molecule.Chain
	if opts.Recompute && opts.Sequence != "" {
		chain = molecule.NewChain(opts.Sequence)
	}

	rep := Report{
		ContractName:  header.ContractName,
		HeaderFinalG:  header.FinalG,
		HeaderFinalPE: header.FinalPE,
		HeaderFinalKE: header.FinalKE,
		HaltedReason:  header.HaltedReason,
		Converged:     header.Converged,
	}

	totalRotations := 0
	for scanner.Scan() {
		rec, err := ledger.DecodeRecord(scanner.Bytes())
		if err != nil {
			return Report{}, ferr.Wrap(ferr.LedgerIOError, "decode ledger record during replay", err)
		}

		switch v := rec.(type) {
		case *ledger.ViolationRecord:
			rep.ViolationCount++
			rep.Violations = append(rep.Violations, *v)

		case *ledger.SpanRecord:
			switch v.RecordType {
			case ledger.RecordKindCommit:
				rep.CommitSpans++
				continue
			case ledger.RecordKindRollback:
				rep.RollbackSpans++
				continue
			}

			totalRotations++
			deltaE, deltaS := v.DeltaE, v.DeltaS

			if chain != nil {
				chain.Rotate(residueFromLabel(v), v.DeltaTheta)
				if opts.Recompute {
					after := energy.Calculate(chain, opts.Coeff)
					deltaE = after.Total
				}
			}

			if v.GhostFlag {
				rep.GhostSpans++
				rep.MetropolisTrials++
				if opts.GhostDetail {
					rep.GhostDetail = append(rep.GhostDetail, *v)
				}
				continue
			}

			// Ghost spans left the live chain unchanged, so only applied
			// spans are re-applied here.
			if chain != nil {
				before := energy.Calculate(chain, opts.Coeff)
				chain.Rotate(residueFromLabel(v), v.DeltaTheta)
				deltaE = energy.Calculate(chain, opts.Coeff).Total - before.Total
			}

			rep.AppliedSpans++
			rep.MetropolisTrials++
			rep.MetropolisAccepts++
			rep.CumulativeE += deltaE
			rep.CumulativeS += deltaS
			rep.TotalWork += absFloat(deltaE) * float64(header.DtMS)
		}
	}
	if err := scanner.Err(); err != nil {
		return Report{}, ferr.Wrap(ferr.LedgerIOError, "scan ledger during replay", err)
	}

	if rep.MetropolisTrials > 0 {
		rep.AcceptanceRate = float64(rep.MetropolisAccepts) / float64(rep.MetropolisTrials)
	}
	if totalRotations > 0 {
		rep.InformationalEfficiency = rep.CumulativeS / float64(totalRotations)
	}
	rep.FinalG = rep.CumulativeE - header.Temperature*rep.CumulativeS

	return rep, nil
}

// residueFromLabel always returns residue 0: the ledger does not record
// which residue a span rotated (only delta_theta), so a --recompute pass
// applies every recorded delta_theta to residue 0. The recomputed
// geometry and energies therefore do not reproduce the original run's
// per-residue chain state, whether or not the contract is available.
func residueFromLabel(v *ledger.SpanRecord) int {
	return 0
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Strict reports whether opts/replay semantics demand a nonzero exit: any
// violation present in a strict replay, per spec.md §4.I.
func (r Report) Strict() bool {
	return r.ViolationCount > 0
}
