package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackms/claimflow/pkg/claimflow"
)

func newClaimCmd(a *app) *cobra.Command {
	var claimantID string
	cmd := &cobra.Command{
		Use:   "claim <issue-id>",
		Short: "Claim an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				claimant, err := lookupClaimant(ctx, coord, claimantID)
				if err != nil {
					return err
				}
				claim, err := coord.Claims().Claim(ctx, args[0], claimant)
				if err != nil {
					return err
				}
				return a.print(cmd, claim, func(p *printer) {
					p.line("%s claimed %s (claim %s)", claim.Claimant.ID, claim.IssueID, claim.ID)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&claimantID, "claimant", "a", "", "Claimant ID (required)")
	_ = cmd.MarkFlagRequired("claimant")
	return cmd
}

func newReleaseCmd(a *app) *cobra.Command {
	var claimantID string
	cmd := &cobra.Command{
		Use:   "release <issue-id>",
		Short: "Release a claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if err := coord.Claims().Release(ctx, args[0], claimantID); err != nil {
					return err
				}
				return a.print(cmd, map[string]string{"issueId": args[0], "status": string(claimflow.StatusReleased)}, func(p *printer) {
					p.line("Released %s", args[0])
				})
			})
		},
	}
	cmd.Flags().StringVarP(&claimantID, "claimant", "a", "", "Claimant ID (required)")
	_ = cmd.MarkFlagRequired("claimant")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "status <issue-id> [new-status]",
		Short: "Show or change the status of a claim",
		Long: `Without a new status, print the claim on the issue. With one, move the
claim to it. Valid statuses: active, paused, blocked, in_review, completed,
released, expired, stealable.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if len(args) == 2 {
					status, ok := claimflow.ParseStatus(args[1])
					if !ok {
						return fmt.Errorf("unknown status %q", args[1])
					}
					if err := coord.Claims().UpdateStatus(ctx, args[0], status, note); err != nil {
						return err
					}
				}
				claim, err := coord.Claims().GetClaim(ctx, args[0])
				if err != nil {
					return err
				}
				return a.print(cmd, claim, func(p *printer) {
					printClaim(p, claim)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&note, "note", "m", "", "Reason recorded with the change")
	return cmd
}

func printClaim(p *printer, claim *claimflow.Claim) {
	p.row("Issue:", claim.IssueID)
	p.row("Claim:", claim.ID)
	p.row("Claimant:", fmt.Sprintf("%s (%s)", claim.Claimant.ID, claim.Claimant.Type))
	p.row("Status:", claim.Status)
	p.row("Progress:", fmt.Sprintf("%d%%", claim.Progress))
	p.row("Claimed:", formatTime(claim.ClaimedAt))
	p.row("Last activity:", formatTime(claim.LastActivityAt))
	if claim.BlockedReason != "" {
		p.row("Blocked:", claim.BlockedReason)
	}
	if len(claim.Reviewers) > 0 {
		ids := make([]string, len(claim.Reviewers))
		for i, r := range claim.Reviewers {
			ids[i] = r.ID
		}
		p.row("Reviewers:", strings.Join(ids, ", "))
	}
	for _, h := range claim.HandoffChain {
		p.row("Handoff:", fmt.Sprintf("%s -> %s (%s)", h.From.ID, h.To.ID, h.Status))
	}
	for _, n := range claim.Notes {
		p.row("Note:", fmt.Sprintf("[%s] %s: %s", formatTime(n.At), orDash(n.AuthorID), n.Text))
	}
}

func newProgressCmd(a *app) *cobra.Command {
	var claimantID string
	cmd := &cobra.Command{
		Use:   "progress <issue-id> <percent>",
		Short: "Report progress on a claim",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var percent int
			if _, err := fmt.Sscanf(args[1], "%d", &percent); err != nil {
				return fmt.Errorf("invalid progress %q: %w", args[1], err)
			}
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if err := coord.Claims().UpdateProgress(ctx, args[0], claimantID, percent); err != nil {
					return err
				}
				claim, err := coord.Claims().GetClaim(ctx, args[0])
				if err != nil {
					return err
				}
				return a.print(cmd, claim, func(p *printer) {
					p.line("%s is %d%% done", claim.IssueID, claim.Progress)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&claimantID, "claimant", "a", "", "Claimant ID (required)")
	_ = cmd.MarkFlagRequired("claimant")
	return cmd
}

func newNoteCmd(a *app) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "note <issue-id> <text>",
		Short: "Attach a note to a claim",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if err := coord.Claims().AddNote(ctx, args[0], author, text); err != nil {
					return err
				}
				return a.print(cmd, map[string]string{"issueId": args[0], "authorId": author, "text": text}, func(p *printer) {
					p.line("Note added to %s", args[0])
				})
			})
		},
	}
	cmd.Flags().StringVarP(&author, "author", "a", "", "Author ID")
	return cmd
}

func newHandoffCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handoff",
		Short: "Hand a claim over to another claimant",
	}

	var from, to, reason string
	request := &cobra.Command{
		Use:   "request <issue-id>",
		Short: "Offer a claim to another claimant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				record, err := coord.Claims().RequestHandoff(ctx, args[0], from, to, reason)
				if err != nil {
					return err
				}
				return a.print(cmd, record, func(p *printer) {
					p.line("Handoff of %s from %s to %s is pending", args[0], record.From.ID, record.To.ID)
				})
			})
		},
	}
	request.Flags().StringVar(&from, "from", "", "Current owner (required)")
	request.Flags().StringVar(&to, "to", "", "Receiving claimant (required)")
	request.Flags().StringVarP(&reason, "reason", "r", "", "Why the work is handed off")
	_ = request.MarkFlagRequired("from")
	_ = request.MarkFlagRequired("to")

	var acceptor string
	accept := &cobra.Command{
		Use:   "accept <issue-id>",
		Short: "Accept a pending handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if err := coord.Claims().AcceptHandoff(ctx, args[0], acceptor); err != nil {
					return err
				}
				claim, err := coord.Claims().GetClaim(ctx, args[0])
				if err != nil {
					return err
				}
				return a.print(cmd, claim, func(p *printer) {
					p.line("%s now owns %s", claim.Claimant.ID, claim.IssueID)
				})
			})
		},
	}
	accept.Flags().StringVarP(&acceptor, "claimant", "a", "", "Receiving claimant (required)")
	_ = accept.MarkFlagRequired("claimant")

	var rejector, rejectReason string
	reject := &cobra.Command{
		Use:   "reject <issue-id>",
		Short: "Reject a pending handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if err := coord.Claims().RejectHandoff(ctx, args[0], rejector, rejectReason); err != nil {
					return err
				}
				claim, err := coord.Claims().GetClaim(ctx, args[0])
				if err != nil {
					return err
				}
				return a.print(cmd, claim, func(p *printer) {
					p.line("Handoff of %s rejected; %s keeps it", claim.IssueID, claim.Claimant.ID)
				})
			})
		},
	}
	reject.Flags().StringVarP(&rejector, "claimant", "a", "", "Receiving claimant (required)")
	reject.Flags().StringVarP(&rejectReason, "reason", "r", "", "Why the handoff is rejected")
	_ = reject.MarkFlagRequired("claimant")

	cmd.AddCommand(request, accept, reject)
	return cmd
}

func newReviewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Request and complete reviews",
	}

	var reviewers []string
	request := &cobra.Command{
		Use:   "request <issue-id>",
		Short: "Move a claim into review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if err := coord.Claims().RequestReview(ctx, args[0], reviewers); err != nil {
					return err
				}
				return a.print(cmd, map[string]any{"issueId": args[0], "reviewers": reviewers}, func(p *printer) {
					p.line("Review of %s requested from %s", args[0], strings.Join(reviewers, ", "))
				})
			})
		},
	}
	request.Flags().StringSliceVarP(&reviewers, "reviewers", "r", nil, "Reviewer IDs (required)")
	_ = request.MarkFlagRequired("reviewers")

	var (
		reviewer string
		approve  bool
		comment  string
	)
	complete := &cobra.Command{
		Use:   "complete <issue-id>",
		Short: "Approve or reject a review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if err := coord.Claims().CompleteReview(ctx, args[0], reviewer, approve, comment); err != nil {
					return err
				}
				claim, err := coord.Claims().GetClaim(ctx, args[0])
				if err != nil {
					return err
				}
				return a.print(cmd, claim, func(p *printer) {
					p.line("Review of %s completed; status %s", claim.IssueID, claim.Status)
				})
			})
		},
	}
	complete.Flags().StringVarP(&reviewer, "reviewer", "a", "", "Reviewer ID (required)")
	complete.Flags().BoolVar(&approve, "approve", false, "Approve the work")
	complete.Flags().StringVarP(&comment, "comment", "m", "", "Review comment")
	_ = complete.MarkFlagRequired("reviewer")

	cmd.AddCommand(request, complete)
	return cmd
}

func newAssignCmd(a *app) *cobra.Command {
	var (
		claim  bool
		scores bool
	)
	cmd := &cobra.Command{
		Use:   "assign <issue-id>",
		Short: "Pick the best claimant for an issue",
		Long: `Score every available claimant for the issue and print the best one.
With --claim the issue is claimed for that claimant.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				issue, err := coord.Claims().GetIssue(ctx, args[0])
				if err != nil {
					return err
				}
				if scores {
					candidates, err := coord.Claims().ScoreCandidates(ctx, issue)
					if err != nil {
						return err
					}
					return a.print(cmd, candidates, func(p *printer) {
						p.row("CLAIMANT", "SCORE", "ACTIVE", "QUALIFIED")
						for _, c := range candidates {
							p.row(c.Claimant.ID, fmt.Sprintf("%.0f", c.Score), c.ActiveClaims, c.Qualified)
						}
					})
				}

				best, err := coord.Claims().AutoAssign(ctx, issue)
				if err != nil {
					return err
				}
				if best == nil {
					return fmt.Errorf("no available claimant can take %s", issue.ID)
				}
				if !claim {
					return a.print(cmd, best, func(p *printer) {
						p.line("Best claimant for %s: %s", issue.ID, best.ID)
					})
				}
				c, err := coord.Claims().Claim(ctx, issue.ID, best)
				if err != nil {
					return err
				}
				return a.print(cmd, c, func(p *printer) {
					p.line("%s claimed %s (claim %s)", c.Claimant.ID, c.IssueID, c.ID)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&claim, "claim", false, "Claim the issue for the chosen claimant")
	cmd.Flags().BoolVar(&scores, "scores", false, "Print every candidate's score")
	return cmd
}
