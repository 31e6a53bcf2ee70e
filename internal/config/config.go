// Package config loads environment presets, ruleset defaults, and built-in
// named contracts from an embedded YAML document, the configuration
// pattern grounded on ehrlich-b-wingthing/internal/config/wing.go and
// orbas1-Synnergy/synnergy-network/cmd/cli/devnet.go, both of which
// unmarshal gopkg.in/yaml.v3 documents into plain structs. cmd/foldctl
// selects environment and contract presets by name; no CLI flag overrides
// an individual preset field.
package config

import (
	_ "embed"
	"fmt"

	"github.com/sarat-asymmetrica/foldctl/internal/energy"
	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// EnvironmentPreset names an energy.Coefficients set.
type EnvironmentPreset struct {
	BondScale       float64 `yaml:"bond_scale"`
	AngleScale      float64 `yaml:"angle_scale"`
	DihedralV1      float64 `yaml:"dihedral_v1"`
	DihedralV3      float64 `yaml:"dihedral_v3"`
	VdwScale        float64 `yaml:"vdw_scale"`
	VdwCutoff       float64 `yaml:"vdw_cutoff"`
	DielectricScale float64 `yaml:"dielectric_scale"`
	ElecCutoff      float64 `yaml:"elec_cutoff"`
	HBondWellDepth  float64 `yaml:"hbond_well_depth"`
	HBondSigma      float64 `yaml:"hbond_sigma"`
}

// Coefficients converts the preset to the energy package's input type.
func (p EnvironmentPreset) Coefficients() energy.Coefficients {
	return energy.Coefficients{
		BondScale:       p.BondScale,
		AngleScale:      p.AngleScale,
		DihedralV1:      p.DihedralV1,
		DihedralV3:      p.DihedralV3,
		VdwScale:        p.VdwScale,
		VdwCutoff:       p.VdwCutoff,
		DielectricScale: p.DielectricScale,
		ElecCutoff:      p.ElecCutoff,
		HBondWellDepth:  p.HBondWellDepth,
		HBondSigma:      p.HBondSigma,
	}
}

// RulesetDefaults mirrors internal/ruleset.Settings' YAML shape without
// importing that package, avoiding a config<->ruleset import cycle.
type RulesetDefaults struct {
	MaxRotationDegrees float64 `yaml:"max_rotation_degrees"`
	MinBondDistance    float64 `yaml:"min_bond_distance"`
	EntropyBudget      float64 `yaml:"entropy_budget"`
	InfoBudget         float64 `yaml:"info_budget"`
}

// ContractPreset is a built-in named contract.
type ContractPreset struct {
	Sequence string `yaml:"sequence"`
	Program  string `yaml:"program"`
}

// Document is the root of presets.yaml.
type Document struct {
	Environments map[string]EnvironmentPreset `yaml:"environments"`
	Ruleset      RulesetDefaults              `yaml:"ruleset"`
	Contracts    map[string]ContractPreset    `yaml:"contracts"`
}

// Load parses the embedded presets document.
func Load() (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(presetsYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse embedded presets: %w", err)
	}
	return &doc, nil
}

// Environment looks up an environment preset by name.
func (d *Document) Environment(name string) (EnvironmentPreset, error) {
	p, ok := d.Environments[name]
	if !ok {
		return EnvironmentPreset{}, fmt.Errorf("unknown environment preset %q", name)
	}
	return p, nil
}

// Contract looks up a built-in contract by name.
func (d *Document) Contract(name string) (ContractPreset, error) {
	c, ok := d.Contracts[name]
	if !ok {
		return ContractPreset{}, fmt.Errorf("unknown contract preset %q", name)
	}
	return c, nil
}

// Annealing is a linear temperature schedule T_start → T_end over Steps
// steps, per spec.md §4.F.
type Annealing struct {
	Start float64
	End   float64
	Steps int
}

// TemperatureAt returns T_effective at the given step, per spec.md §4.F:
// T_effective = T_start + (T_end - T_start) * min(step/N, 1).
func (a Annealing) TemperatureAt(step int) float64 {
	if a.Steps <= 0 {
		return a.Start
	}
	frac := float64(step) / float64(a.Steps)
	if frac > 1 {
		frac = 1
	}
	return a.Start + (a.End-a.Start)*frac
}

// EnvHints carries the dashboard-facing environment variables spec.md §6
// names as "external UI hints — not consumed by core". foldctl reads them
// only to pass them through to tooling that wants them; the runtime never
// inspects their values.
type EnvHints struct {
	LogsDir    string
	GenomePath string
}
