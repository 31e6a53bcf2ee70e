package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarat-asymmetrica/foldctl/internal/replay"
)

// replayRequest carries a replay invocation's inputs, whether it arrived via
// the root command's `--replay PATH` flag or the `replay` subcommand.
type replayRequest struct {
	path         string
	ghosts       bool
	strict       bool
	recompute    bool
	contractPath string
	preset       string
	env          string
}

// replayCmd lets the ledger be replayed as `foldctl replay PATH`, in
// addition to the root command's `--replay PATH` flag.
func replayCmd() *cobra.Command {
	req := replayRequest{}
	cmd := &cobra.Command{
		Use:   "replay [ledger path]",
		Short: "reconstruct a ledger's aggregate statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.path = args[0]
			return doReplay(req)
		},
		SilenceUsage: true,
	}
	cmd.Flags().BoolVar(&req.ghosts, "ghosts", false, "show ghost span detail")
	cmd.Flags().BoolVar(&req.strict, "strict", false, "exit nonzero if any violation was recorded")
	cmd.Flags().BoolVar(&req.recompute, "recompute", false, "re-derive coordinates/energy from delta_theta instead of trusting the ledger's stored deltas (needs --preset for the sequence; a --contract file carries none)")
	cmd.Flags().StringVar(&req.contractPath, "contract", "", "path to the .lll contract the ledger ran; it carries no sequence, so --recompute then reports the stored deltas")
	cmd.Flags().StringVar(&req.preset, "preset", "", "built-in contract name the ledger ran, for --recompute")
	cmd.Flags().StringVar(&req.env, "env", "", "environment preset the ledger ran under, for --recompute (defaults to aqueous)")
	return cmd
}

func doReplay(req replayRequest) error {
	opts := replay.Options{GhostDetail: req.ghosts}
	if req.recompute {
		sequence, coeff, err := resolveRecomputeInputs(req.contractPath, req.preset, req.env)
		if err != nil {
			lastExitCode = exitParseError
			return err
		}
		opts.Recompute = true
		opts.Sequence = sequence
		opts.Coeff = coeff
	}

	rep, err := replay.Run(req.path, opts)
	if err != nil {
		lastExitCode = exitIOError
		return err
	}

	fmt.Printf("contract:            %s\n", rep.ContractName)
	fmt.Printf("applied:             %d\n", rep.AppliedSpans)
	fmt.Printf("ghosts:              %d\n", rep.GhostSpans)
	fmt.Printf("commits:             %d\n", rep.CommitSpans)
	fmt.Printf("rollbacks:           %d\n", rep.RollbackSpans)
	fmt.Printf("acceptance:          %.4f\n", rep.AcceptanceRate)
	fmt.Printf("cumulative_E:        %.6f\n", rep.CumulativeE)
	fmt.Printf("cumulative_S:        %.6f\n", rep.CumulativeS)
	fmt.Printf("final_G:             %.6f\n", rep.FinalG)
	fmt.Printf("total_work:          %.6f\n", rep.TotalWork)
	fmt.Printf("info_efficiency:     %.6f\n", rep.InformationalEfficiency)
	fmt.Printf("violations:          %d\n", rep.ViolationCount)
	fmt.Printf("halted_reason:       %s\n", rep.HaltedReason)
	fmt.Printf("converged:           %t\n", rep.Converged)

	if req.ghosts {
		for _, g := range rep.GhostDetail {
			fmt.Printf("  ghost span %s: delta_theta=%.3f delta_E=%.4f\n", g.SpanUUID, g.DeltaTheta, g.DeltaE)
		}
	}

	if req.strict && rep.Strict() {
		lastExitCode = exitViolationCount
		return fmt.Errorf("replay found %d violation(s) under --strict", rep.ViolationCount)
	}
	lastExitCode = exitOK
	return nil
}
