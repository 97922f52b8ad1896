package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	domainClaims "github.com/blackms/claimflow/internal/domain/claims"
	"github.com/blackms/claimflow/pkg/claimflow"
)

// ImportFile is the YAML layout accepted by `claimflow import`.
type ImportFile struct {
	Claimants []*domainClaims.Claimant `yaml:"claimants"`
	Issues    []*domainClaims.Issue    `yaml:"issues"`
}

// ImportResult reports how many records an import stored.
type ImportResult struct {
	Claimants int `json:"claimants"`
	Issues    int `json:"issues"`
}

func newIssueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Register and list issues",
	}

	var (
		title      string
		desc       string
		priority   string
		complexity string
		labels     []string
		caps       []string
	)
	add := &cobra.Command{
		Use:   "add <issue-id>",
		Short: "Register or replace an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				issue := claimflow.NewIssue(args[0], title)
				issue.Description = desc
				issue.Priority = domainClaims.Priority(priority)
				issue.Complexity = domainClaims.Complexity(complexity)
				issue.Labels = labels
				issue.RequiredCapabilities = caps
				if err := coord.Claims().RegisterIssue(ctx, issue); err != nil {
					return err
				}
				return a.print(cmd, issue, func(p *printer) {
					p.line("Registered issue %s", issue.ID)
				})
			})
		},
	}
	add.Flags().StringVarP(&title, "title", "t", "", "Issue title")
	add.Flags().StringVarP(&desc, "description", "d", "", "Issue description")
	add.Flags().StringVarP(&priority, "priority", "p", string(domainClaims.PriorityMedium), "Priority: critical, high, medium or low")
	add.Flags().StringVar(&complexity, "complexity", string(domainClaims.ComplexityModerate), "Complexity: trivial, simple, moderate, complex or epic")
	add.Flags().StringSliceVarP(&labels, "labels", "l", nil, "Labels")
	add.Flags().StringSliceVar(&caps, "requires", nil, "Required capabilities")

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered issues",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				issues, err := coord.Claims().GetIssues(ctx)
				if err != nil {
					return err
				}
				return a.print(cmd, issues, func(p *printer) {
					if len(issues) == 0 {
						p.line("No issues registered")
						return
					}
					p.row("ID", "TITLE", "PRIORITY", "COMPLEXITY", "REQUIRES")
					for _, i := range issues {
						p.row(i.ID, orDash(i.Title), i.Priority, i.Complexity, orDash(strings.Join(i.RequiredCapabilities, ",")))
					}
				})
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newClaimantCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "claimant",
		Aliases: []string{"agent"},
		Short:   "Register and list claimants",
	}

	var (
		name      string
		human     bool
		agentType string
		caps      []string
		specs     []string
		maxClaims int
		workload  int
	)
	add := &cobra.Command{
		Use:   "add <claimant-id>",
		Short: "Register or replace a claimant",
		Long: `Register a human or agent claimant. When --type is omitted for an agent
the type is inferred from its name, capabilities and specializations.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				if name == "" {
					name = args[0]
				}
				var c *claimflow.Claimant
				if human {
					c = claimflow.NewHuman(args[0], name, caps...)
				} else {
					c = claimflow.NewAgent(args[0], name, domainClaims.AgentType(agentType), caps...)
				}
				c.Specializations = specs
				c.MaxConcurrent = maxClaims
				c.CurrentWorkload = workload
				if err := coord.Claims().RegisterClaimant(ctx, c); err != nil {
					return err
				}
				c.Normalize()
				return a.print(cmd, c, func(p *printer) {
					if c.IsAgent() {
						p.line("Registered %s agent %s", c.AgentType, c.ID)
					} else {
						p.line("Registered human %s", c.ID)
					}
				})
			})
		},
	}
	add.Flags().StringVarP(&name, "name", "n", "", "Display name (defaults to the id)")
	add.Flags().BoolVar(&human, "human", false, "Register a human instead of an agent")
	add.Flags().StringVarP(&agentType, "type", "t", "", "Agent type (inferred when empty)")
	add.Flags().StringSliceVar(&caps, "capabilities", nil, "Capabilities")
	add.Flags().StringSliceVar(&specs, "specializations", nil, "Specializations")
	add.Flags().IntVar(&maxClaims, "max-claims", domainClaims.DefaultMaxConcurrentClaims, "Maximum concurrent claims")
	add.Flags().IntVar(&workload, "workload", 0, "Self-reported workload (0-100)")

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered claimants",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				claimants, err := coord.Claims().GetClaimants(ctx)
				if err != nil {
					return err
				}
				return a.print(cmd, claimants, func(p *printer) {
					if len(claimants) == 0 {
						p.line("No claimants registered")
						return
					}
					p.row("ID", "TYPE", "AGENT TYPE", "MAX", "WORKLOAD", "CAPABILITIES")
					for _, c := range claimants {
						p.row(c.ID, c.Type, orDash(string(c.AgentType)), c.MaxClaims(), c.CurrentWorkload, orDash(strings.Join(c.Capabilities, ",")))
					}
				})
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Register claimants and issues from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read import file: %w", err)
			}
			var file ImportFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse import file: %w", err)
			}

			return a.withCoordinator(cmd, func(ctx context.Context, coord *claimflow.Coordinator) error {
				var result ImportResult
				for _, c := range file.Claimants {
					if err := coord.Claims().RegisterClaimant(ctx, c); err != nil {
						return fmt.Errorf("claimant %q: %w", c.ID, err)
					}
					result.Claimants++
				}
				for _, i := range file.Issues {
					if err := coord.Claims().RegisterIssue(ctx, i); err != nil {
						return fmt.Errorf("issue %q: %w", i.ID, err)
					}
					result.Issues++
				}
				return a.print(cmd, result, func(p *printer) {
					p.line("Imported %d claimants and %d issues", result.Claimants, result.Issues)
				})
			})
		},
	}
}
