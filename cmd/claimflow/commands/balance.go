package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/blackms/claimflow/internal/config"
	"github.com/blackms/claimflow/pkg/claimflow"
)

func newRebalanceCmd(a *app) *cobra.Command {
	var (
		swarm   string
		members []string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Move claims from overloaded to underloaded agents",
		Long: `Move low-progress claims from overloaded agents to underloaded ones.
By default every registered agent takes part; --members limits the run to
an ad-hoc swarm. --dry-run prints the current loads only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				swarmID := ""
				if len(members) > 0 {
					swarmID = swarm
					if _, err := coord.Balancer().CreateSwarm(swarmID, swarmID, members); err != nil {
						return err
					}
					defer coord.Balancer().DeleteSwarm(swarmID)
				}

				if dryRun {
					load, err := coord.Balancer().GetSwarmLoad(ctx, swarmID)
					if err != nil {
						return err
					}
					return a.print(cmd, load, func(p *printer) {
						printSwarmLoad(p, load)
					})
				}

				result, err := coord.Balancer().Rebalance(ctx, swarmID)
				if err != nil {
					return err
				}
				return a.print(cmd, result, func(p *printer) {
					if !result.Triggered {
						p.line("Loads are balanced; nothing moved")
						return
					}
					p.line("Moved %d claims (%d failed)", len(result.Moves), result.MovesFailed)
					for _, m := range result.Moves {
						p.row("  "+m.IssueID, m.FromClaimantID+" -> "+m.ToClaimantID)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&swarm, "swarm", "cli", "Name of the ad-hoc swarm")
	cmd.Flags().StringSliceVar(&members, "members", nil, "Claimant IDs forming the swarm")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report loads")
	return cmd
}

func printSwarmLoad(p *printer, load *claimflow.SwarmLoad) {
	p.line("Agents: %d  average load: %.1f%%  gini: %.2f  needs rebalancing: %t",
		load.AgentCount, load.AverageLoad, load.Gini, load.NeedsRebalancing)
	p.row("CLAIMANT", "ACTIVE", "MAX", "LOAD")
	for _, l := range load.Loads {
		p.row(l.ClaimantID, l.ActiveClaims, l.MaxClaims, fmt.Sprintf("%.0f%%", l.Load))
	}
}

// SweepReport summarizes one maintenance pass.
type SweepReport struct {
	At        time.Time                  `json:"at"`
	Expired   []string                   `json:"expired"`
	Marked    *claimflow.AutoMarkResult  `json:"marked,omitempty"`
	Rebalance *claimflow.RebalanceResult `json:"rebalance,omitempty"`
	Errors    []string                   `json:"errors,omitempty"`
}

// sweep expires idle claims and marks stale work concurrently, then
// rebalances when enabled.
func sweep(ctx context.Context, coord *claimflow.Coordinator) SweepReport {
	cfg := coord.Config().Maintenance
	report := SweepReport{At: time.Now()}

	var (
		expireErr error
		markErr   error
	)
	var wg conc.WaitGroup
	if cfg.ExpireAfter() > 0 {
		wg.Go(func() {
			expired, err := coord.Claims().ExpireStale(ctx, cfg.ExpireAfter())
			if err != nil {
				expireErr = err
				return
			}
			for _, c := range expired {
				report.Expired = append(report.Expired, c.IssueID)
			}
		})
	}
	wg.Go(func() {
		report.Marked, markErr = coord.Stealing().AutoMarkStealable(ctx)
	})
	wg.Wait()

	for _, err := range []error{expireErr, markErr} {
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	if cfg.Rebalance {
		result, err := coord.Balancer().Rebalance(ctx, "")
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		} else {
			report.Rebalance = result
		}
	}
	return report
}

func newMaintainCmd(a *app) *cobra.Command {
	var (
		once     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run periodic expiry, stale-work marking and rebalancing",
		Long: `Run maintenance sweeps on a ticker until interrupted. Each sweep expires
idle claims, marks stale work stealable and, when maintenance.rebalance is
set, rebalances agent load. Edits to the config file are applied to the
running sweeps.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coord, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer coord.Close()
			logger := coord.Logger().WithComponent("maintain")

			report := func() error {
				r := sweep(ctx, coord)
				for _, e := range r.Errors {
					logger.Warn("maintenance sweep failed", "error", e)
				}
				return a.print(cmd, r, func(p *printer) {
					marked := 0
					if r.Marked != nil {
						marked = len(r.Marked.Marked)
					}
					moved := 0
					if r.Rebalance != nil {
						moved = len(r.Rebalance.Moves)
					}
					p.line("[%s] expired %d, marked %d stealable, moved %d", formatTime(r.At), len(r.Expired), marked, moved)
				})
			}

			if once {
				return report()
			}

			if a.v != nil && a.v.ConfigFileUsed() != "" {
				config.Watch(a.v, func(cfg *config.Config, err error) {
					if err != nil {
						logger.Warn("ignoring invalid config change", "error", err)
						return
					}
					coord.Apply(cfg)
					logger.Info("config reloaded")
				})
			}

			every := interval
			if every <= 0 {
				every = coord.Config().Maintenance.Interval()
			}
			ticker := time.NewTicker(every)
			defer ticker.Stop()

			logger.Info("maintenance started", "interval", every.String())
			if err := report(); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					logger.Info("maintenance stopped")
					return nil
				case <-ticker.C:
					if err := report(); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single sweep and exit")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Override maintenance.intervalSeconds")
	return cmd
}
