package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const initConfig = `# pwtgen project configuration
sources_dir: sources
rules_file: rules.yaml
output_file: panel.csv
state_path: .pwtgen/state.db

# All monetary series are converted to the base currency and deflated to
# reference-year prices.
reference_year: 2017
base_currency: USD

# Series consumed by normalization rather than emitted into the panel.
reserved:
  exchange_rate: xr
  deflator: pl
`

const initRules = `# Derivation rules, executed in dependency order. Declaration order breaks
# ties between independent rules.
#
# Normalization has already converted monetary series to reference-year USD,
# so gdp_nominal below is real USD by the time rules see it.
rules:
  - output: rgdp_usd
    inputs: [gdp_nominal]
    transform: scale
    params:
      factor: 1.0  # rename the normalized series into the output namespace

  - output: rgdp_pc
    inputs: [rgdp_usd, pop]
    transform: ratio

  - output: capital_output_ratio
    inputs: [rkna, rgdp_usd]
    transform: ratio

  - output: tfp_residual
    inputs: [rgdp_usd, rkna, emp, labsh]
    transform: expr
    params:
      formula: rgdp_usd / (math.pow(rkna, 1 - labsh) * math.pow(emp, labsh))
`

const initSources = `country_code,year,variable_code,value,unit
USA,2017,gdp_nominal,19485,bil_lcu
USA,2017,pop,325,mil_persons
USA,2017,rkna,65000,bil_lcu
USA,2017,emp,153,mil_persons
USA,2017,labsh,0.60,share
USA,2017,xr,1.0,rate
USA,2017,pl,1.0,index
KOR,2017,gdp_nominal,1835698,bil_lcu
KOR,2017,pop,51,mil_persons
KOR,2017,xr,1130.5,rate
KOR,2017,pl,0.65,index
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new pwtgen project",
		Long: `Initialize a new pwtgen project with default structure and configuration.

This creates:
  - sources/ directory with an example observation file
  - rules.yaml with example derivation rules
  - pwtgen.yaml configuration file`,
		Example: `  # Initialize in current directory
  pwtgen init

  # Initialize in a new directory
  pwtgen init my-dataset

  # Force overwrite existing config
  pwtgen init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	out := cmd.OutOrStdout()

	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "pwtgen.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("pwtgen.yaml already exists. Use --force to overwrite")
	}

	if err := os.MkdirAll(filepath.Join(dir, "sources"), 0o750); err != nil {
		return fmt.Errorf("failed to create sources directory: %w", err)
	}

	files := []struct {
		path    string
		content string
	}{
		{configPath, initConfig},
		{filepath.Join(dir, "rules.yaml"), initRules},
		{filepath.Join(dir, "sources", "example.csv"), initSources},
	}

	for _, f := range files {
		if f.path != configPath {
			if _, err := os.Stat(f.path); err == nil && !force {
				continue
			}
		}
		if err := os.WriteFile(f.path, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		fmt.Fprintf(out, "  created %s\n", f.path)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "pwtgen project initialized!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Add raw observation files to sources/")
	fmt.Fprintln(out, "  2. Declare derivations in rules.yaml")
	fmt.Fprintln(out, "  3. Run 'pwtgen run' to build the panel")
	fmt.Fprintln(out, "  4. Run 'pwtgen graph' to inspect the derivation graph")

	return nil
}
