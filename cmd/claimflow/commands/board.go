package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
	"github.com/blackms/claimflow/pkg/claimflow"
)

func newBoardCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the claim board",
		Long: `Show open claims, per-claimant statistics and system totals, rebuilt
from the event log. --all includes finished claims.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				board := coord.Board()
				if !all {
					open := board.Claims[:0]
					for _, c := range board.Claims {
						if c.Status.IsOpen() {
							open = append(open, c)
						}
					}
					board.Claims = open
				}
				sort.Slice(board.Claims, func(i, j int) bool {
					return board.Claims[i].ClaimedAt.Before(board.Claims[j].ClaimedAt)
				})
				sort.Slice(board.Claimants, func(i, j int) bool {
					return board.Claimants[i].ClaimantID < board.Claimants[j].ClaimantID
				})

				return a.print(cmd, board, func(p *printer) {
					s := board.System
					p.line("Claims: %d total, %d active, %d completed, %d stealable, %d contested",
						s.TotalClaims, s.ActiveClaims, s.CompletedClaims, s.StealableClaims, s.OpenContests)
					p.line("Handoffs: %d  Steals: %d  Events: %d", s.TotalHandoffs, s.TotalSteals, s.TotalEvents)
					p.line("")

					if len(board.Claims) == 0 {
						p.line("No open claims")
					} else {
						p.row("ISSUE", "CLAIMANT", "STATUS", "PROGRESS", "FLAGS", "LAST ACTIVITY")
						for _, c := range board.Claims {
							p.row(c.IssueID, c.ClaimantID, c.Status, fmt.Sprintf("%d%%", c.Progress), orDash(claimFlags(c)), formatTime(c.LastActivityAt))
						}
					}

					if len(board.Claimants) > 0 {
						p.line("")
						p.row("CLAIMANT", "ACTIVE", "COMPLETED", "RELEASED", "EXPIRED", "HANDOFFS IN", "STEALS +/-")
						for _, c := range board.Claimants {
							p.row(c.ClaimantID, c.ActiveClaims, c.CompletedClaims, c.ReleasedClaims, c.ExpiredClaims, c.HandoffsReceived,
								fmt.Sprintf("%d/%d", c.StealsGained, c.StealsLost))
						}
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include finished claims")
	return cmd
}

func claimFlags(c *claimflow.ClaimSummary) string {
	var flags []string
	if c.Stealable {
		flags = append(flags, "stealable")
	}
	if c.Contested {
		flags = append(flags, "contested")
	}
	if c.HandoffCount > 0 {
		flags = append(flags, fmt.Sprintf("handoffs=%d", c.HandoffCount))
	}
	if c.StealCount > 0 {
		flags = append(flags, fmt.Sprintf("steals=%d", c.StealCount))
	}
	return strings.Join(flags, ",")
}

func newEventsCmd(a *app) *cobra.Command {
	var (
		issueID string
		types   []string
		since   time.Duration
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the claim event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domainClaims.EventFilter{IssueID: issueID, Limit: limit}
			for _, t := range types {
				filter.EventTypes = append(filter.EventTypes, domainClaims.ClaimEventType(t))
			}
			if since > 0 {
				from := time.Now().Add(-since)
				filter.FromTimestamp = &from
			}

			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				var (
					evts []*claimflow.ClaimEvent
					err  error
				)
				if issueID != "" && len(types) == 0 && since == 0 {
					evts, err = coord.Claims().GetEventHistory(ctx, issueID, limit)
				} else {
					evts, err = coord.EventStore().Query(ctx, filter)
				}
				if err != nil {
					return err
				}
				return a.print(cmd, evts, func(p *printer) {
					if len(evts) == 0 {
						p.line("No events")
						return
					}
					p.row("TIME", "ISSUE", "TYPE", "SOURCE")
					for _, e := range evts {
						p.row(formatTime(e.Timestamp), e.IssueID, e.Type, orDash(e.Source))
					}
				})
			})
		},
	}
	cmd.Flags().StringVarP(&issueID, "issue", "i", "", "Only events for this issue")
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "Only these event types, e.g. claim:created")
	cmd.Flags().DurationVar(&since, "since", 0, "Only events newer than this age")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum events (0 for all)")
	return cmd
}
