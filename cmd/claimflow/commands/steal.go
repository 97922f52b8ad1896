package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
	"github.com/blackms/claimflow/pkg/claimflow"
)

func newStealCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steal",
		Short: "Work-stealing operations",
		Long: `Commands for moving stale, blocked or overloaded work between claimants.

A claim is first marked stealable, then taken by another claimant. The
previous owner may contest the steal inside the contest window; a
coordinator or human then resolves the contest.`,
	}
	cmd.AddCommand(
		newStealMarkCmd(a),
		newStealTakeCmd(a),
		newStealContestCmd(a),
		newStealResolveCmd(a),
		newStealListCmd(a),
		newStealStatsCmd(a),
	)
	return cmd
}

func newStealMarkCmd(a *app) *cobra.Command {
	var (
		reason  string
		allowed []string
	)
	cmd := &cobra.Command{
		Use:   "mark <issue-id>",
		Short: "Mark a claim as stealable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domainClaims.StealReason(reason)
			if !domainClaims.IsValidStealReason(r) {
				return fmt.Errorf("invalid reason %q: must be one of stale, blocked, overloaded, manual, timeout", reason)
			}
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if err := coord.Stealing().MarkStealable(ctx, args[0], r, allowed); err != nil {
					return err
				}
				claim, err := coord.Claims().GetClaim(ctx, args[0])
				if err != nil {
					return err
				}
				return a.print(cmd, claim, func(p *printer) {
					p.line("%s is stealable (%s)", claim.IssueID, r)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", string(domainClaims.StealReasonManual), "Steal reason")
	cmd.Flags().StringSliceVar(&allowed, "allow", nil, "Agent types allowed to steal (default any)")
	return cmd
}

func newStealTakeCmd(a *app) *cobra.Command {
	var stealerID string
	cmd := &cobra.Command{
		Use:   "take <issue-id>",
		Short: "Steal a stealable claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				stealer, err := lookupClaimant(ctx, coord, stealerID)
				if err != nil {
					return err
				}
				result, err := coord.Stealing().Steal(ctx, args[0], stealer)
				if err != nil {
					return err
				}
				return a.print(cmd, result, func(p *printer) {
					p.line("%s stole %s from %s", stealer.ID, result.IssueID, result.PreviousClaimant.ID)
					if result.ContestRequired {
						p.line("Contest window ends %s", formatTime(result.ContestWindowEndsAt))
					}
				})
			})
		},
	}
	cmd.Flags().StringVarP(&stealerID, "claimant", "a", "", "Stealing claimant (required)")
	_ = cmd.MarkFlagRequired("claimant")
	return cmd
}

func newStealContestCmd(a *app) *cobra.Command {
	var (
		claimantID string
		reason     string
	)
	cmd := &cobra.Command{
		Use:   "contest <issue-id>",
		Short: "Object to a steal as the previous owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if err := coord.Stealing().ContestSteal(ctx, args[0], claimantID, reason); err != nil {
					return err
				}
				claim, err := coord.Claims().GetClaim(ctx, args[0])
				if err != nil {
					return err
				}
				return a.print(cmd, claim, func(p *printer) {
					p.line("Steal of %s contested by %s", claim.IssueID, claimantID)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&claimantID, "claimant", "a", "", "Previous owner (required)")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Objection")
	_ = cmd.MarkFlagRequired("claimant")
	return cmd
}

func newStealResolveCmd(a *app) *cobra.Command {
	var (
		winner string
		reason string
	)
	cmd := &cobra.Command{
		Use:   "resolve <issue-id>",
		Short: "Settle a steal contest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				resolution, err := coord.Stealing().ResolveContest(ctx, args[0], winner, reason)
				if err != nil {
					return err
				}
				return a.print(cmd, resolution, func(p *printer) {
					p.line("Contest on %s resolved for %s by %s", args[0], resolution.Winner.ID, resolution.ResolvedBy)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&winner, "winner", "w", "", "Winning claimant (required)")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Resolution reason")
	_ = cmd.MarkFlagRequired("winner")
	return cmd
}

func newStealListCmd(a *app) *cobra.Command {
	var (
		agentType string
		detect    bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stealable claims",
		Long: `List claims currently marked stealable. With --detect, list claims the
stale-work detector would mark instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if detect {
					candidates, err := coord.Stealing().DetectStaleWork(ctx)
					if err != nil {
						return err
					}
					return a.print(cmd, candidates, func(p *printer) {
						if len(candidates) == 0 {
							p.line("No stale work detected")
							return
						}
						p.row("ISSUE", "CLAIMANT", "STATUS", "PROGRESS", "REASON")
						for _, c := range candidates {
							p.row(c.Claim.IssueID, c.Claim.Claimant.ID, c.Claim.Status, c.Claim.Progress, c.Reason)
						}
					})
				}

				claims, err := coord.Stealing().GetStealable(ctx, agentType)
				if err != nil {
					return err
				}
				return a.print(cmd, claims, func(p *printer) {
					if len(claims) == 0 {
						p.line("No stealable claims")
						return
					}
					p.row("ISSUE", "CLAIMANT", "REASON", "PROGRESS", "ALLOWED", "SINCE")
					for _, c := range claims {
						var reason domainClaims.StealReason
						var allowed []string
						if c.StealInfo != nil {
							reason = c.StealInfo.Reason
							allowed = c.StealInfo.AllowedStealerTypes
						}
						since := "-"
						if c.StealableAt != nil {
							since = formatTime(*c.StealableAt)
						}
						p.row(c.IssueID, c.Claimant.ID, orDash(string(reason)), c.Progress, orDash(strings.Join(allowed, ",")), since)
					}
				})
			})
		},
	}
	cmd.Flags().StringVarP(&agentType, "type", "t", "", "Only claims this agent type may steal")
	cmd.Flags().BoolVar(&detect, "detect", false, "Show stale-work candidates instead")
	return cmd
}

func newStealStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show stealing statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				stats, err := coord.Stealing().Stats(ctx)
				if err != nil {
					return err
				}
				return a.print(cmd, stats, func(p *printer) {
					p.row("Stealable:", stats.Stealable)
					p.row("Open contests:", stats.OpenContests)
				})
			})
		},
	}
}
