// Command foldctl is the engine's command surface, per spec.md §4.J: it
// wires preset/contract selection, environment/seed/annealing flags, and
// the diamond/replay entry points onto the folding runtime. Subcommand
// composition via cobra.Command is grounded on the teacher's sibling pack
// repo's cmd/synnergy/main.go, which builds the same
// rootCmd-plus-AddCommand shape the teacher itself never needed since its
// cmd/ programs are single-purpose demos.
package main

import "os"

func main() {
	os.Exit(run())
}
