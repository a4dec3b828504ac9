package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/engine"
	"github.com/flemzord/writenow/internal/mcp"
	"github.com/spf13/cobra"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// projectOrDefault picks the only configured project when none is named.
func projectOrDefault(eng *engine.Engine, project string) (string, error) {
	if project != "" {
		return project, nil
	}
	ids := eng.Projects()
	if len(ids) != 1 {
		return "", fmt.Errorf("--project is required when %d projects are configured", len(ids))
	}
	return ids[0], nil
}

func assembleCmd(g *globalFlags) *cobra.Command {
	var (
		project     string
		input       string
		skillID     string
		instruction string
		paragraph   string
		selected    string
		totalLimit  int
		asText      bool
	)
	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble the prompt context for one skill run",
		Long: `Assemble reads an AssembleInput as JSON from --input (or "-" for stdin),
then applies the flags on top of it, and prints the assembled context.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in engine.AssembleInput
			if input != "" {
				if err := readInput(cmd, input, &in); err != nil {
					return err
				}
			}
			if skillID != "" {
				in.SkillID, in.Skill = skillID, nil
			}
			if instruction != "" {
				in.UserInstruction = instruction
			}
			if paragraph != "" {
				in.EditorContext.CurrentParagraph = paragraph
			}
			if selected != "" {
				in.EditorContext.SelectedText = selected
			}
			if totalLimit > 0 {
				b := ctxengine.DefaultBudget()
				if in.Budget != nil {
					b = *in.Budget
				}
				b.TotalLimit = totalLimit
				in.Budget = &b
			}

			_, eng, closeFn, err := g.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if in.ProjectID, err = projectOrDefault(eng, firstNonEmpty(project, in.ProjectID)); err != nil {
				return err
			}
			out, err := eng.AssembleContext(cmd.Context(), in)
			if err != nil {
				return err
			}
			if asText {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n---\n\n%s\n", out.SystemPrompt, out.UserContent)
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&project, "project", "p", "", "Project id (default: the only configured project)")
	f.StringVarP(&input, "input", "i", "", `JSON request file, "-" for stdin`)
	f.StringVarP(&skillID, "skill", "s", "", "Skill id under .writenow/skills/")
	f.StringVar(&instruction, "instruction", "", "User instruction")
	f.StringVar(&paragraph, "paragraph", "", "Current paragraph")
	f.StringVar(&selected, "selected", "", "Selected text")
	f.IntVar(&totalLimit, "budget", 0, "Total token limit (default from config)")
	f.BoolVar(&asText, "text", false, "Print the system prompt and user content instead of JSON")
	return cmd
}

func readInput(cmd *cobra.Command, path string, v any) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func rulesCmd(g *globalFlags) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the project's writing rules and per-file errors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, eng, closeFn, err := g.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if project, err = projectOrDefault(eng, project); err != nil {
				return err
			}
			res, err := eng.Rules(cmd.Context(), project, true)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project id (default: the only configured project)")
	return cmd
}

func conversationsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Inspect saved conversations",
	}

	var (
		project string
		article string
		limit   int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List indexed conversations, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, eng, closeFn, err := g.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if project, err = projectOrDefault(eng, project); err != nil {
				return err
			}
			items, err := eng.ListConversations(cmd.Context(), project, article, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tARTICLE\tQUALITY\tCREATED\tSUMMARY")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					it.ID, it.ArticleID, it.SummaryQuality, it.CreatedAt.Format("2006-01-02 15:04"), it.Summary)
			}
			return tw.Flush()
		},
	}
	f := list.Flags()
	f.StringVarP(&project, "project", "p", "", "Project id (default: the only configured project)")
	f.StringVar(&article, "article", "", "Only conversations about this article")
	f.IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	cmd.AddCommand(list)
	return cmd
}

func mcpCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the engine as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, eng, closeFn, err := g.openEngine(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			srv := mcp.New(eng, version, rt.Logger)
			return srv.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
