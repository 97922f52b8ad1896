// Package commands provides CLI command implementations.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blackms/claimflow/internal/config"
	"github.com/blackms/claimflow/pkg/claimflow"
)

// Output formats accepted by --output.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// app carries the global flags shared by every subcommand.
type app struct {
	version  string
	cfgFile  string
	output   string
	logLevel string
	v        *viper.Viper
}

// NewRootCmd builds the claimflow command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{version: version}

	root := &cobra.Command{
		Use:   "claimflow",
		Short: "Claims scheduler for humans and agents",
		Long: `claimflow coordinates ownership of issues between humans and agents.

It provides:
  - Exclusive claims with handoffs and reviews
  - Work stealing of stale, blocked or overloaded work with contests
  - Load balancing across agents
  - An append-only event log with board projections`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.output {
			case OutputText, OutputJSON, OutputYAML:
			default:
				return fmt.Errorf("invalid --output %q: must be one of text, json, yaml", a.output)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is $HOME/.config/claimflow/config.yaml)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", OutputText, "Output format: text, json or yaml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override logging.level")

	root.AddCommand(
		newIssueCmd(a),
		newClaimantCmd(a),
		newImportCmd(a),
		newClaimCmd(a),
		newReleaseCmd(a),
		newStatusCmd(a),
		newProgressCmd(a),
		newNoteCmd(a),
		newHandoffCmd(a),
		newReviewCmd(a),
		newStealCmd(a),
		newAssignCmd(a),
		newRebalanceCmd(a),
		newMaintainCmd(a),
		newBoardCmd(a),
		newEventsCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// loadConfig reads the config file, CLAIMFLOW_ environment and flag overrides.
func (a *app) loadConfig() (*config.Config, error) {
	v, err := config.NewViper(a.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if a.logLevel != "" {
		v.Set("logging.level", strings.ToLower(a.logLevel))
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	a.v = v
	return cfg, nil
}

// open loads the configuration and opens a coordinator on it.
func (a *app) open(ctx context.Context) (*claimflow.Coordinator, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	coord, err := claimflow.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open coordinator: %w", err)
	}
	return coord, nil
}

// withCoordinator opens a coordinator for the duration of fn.
func (a *app) withCoordinator(cmd *cobra.Command, fn func(ctx context.Context, coord *claimflow.Coordinator) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	coord, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer coord.Close()
	return fn(ctx, coord)
}

// lookupClaimant returns the registered claimant with id, or a bare agent
// whose type is inferred from id when none is registered.
func lookupClaimant(ctx context.Context, coord *claimflow.Coordinator, id string) (*claimflow.Claimant, error) {
	all, err := coord.Claims().GetClaimants(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.ID == id {
			return c, nil
		}
	}
	return &claimflow.Claimant{ID: id, Name: id}, nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.print(cmd, map[string]string{"version": a.version}, func(p *printer) {
				p.line("claimflow %s", a.version)
			})
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if a.output == OutputJSON {
				return a.print(cmd, cfg, nil)
			}
			return writeYAML(cmd.OutOrStdout(), cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the default config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.ConfigFile())
			return nil
		},
	})
	return cmd
}
