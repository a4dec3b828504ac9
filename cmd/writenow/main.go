// Package main is the entry point for the writenow CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/flemzord/writenow/internal/config"
	"github.com/flemzord/writenow/internal/core"
	"github.com/flemzord/writenow/internal/engine"
	"github.com/flemzord/writenow/pkg/app"
	"github.com/spf13/cobra"

	// Compiled modules.
	_ "github.com/flemzord/writenow/internal/gateway"
	_ "github.com/flemzord/writenow/modules/memory/sqlite"
	_ "github.com/flemzord/writenow/modules/provider/openai_compatible"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command that opens the runtime.
type globalFlags struct {
	config    string
	dataDir   string
	workspace string
	logLevel  string
}

func (g *globalFlags) params(defaultLevel string) app.RunParams {
	level := g.logLevel
	if level == "" {
		level = defaultLevel
	}
	return app.RunParams{
		ConfigPath: g.config,
		Version:    version,
		Commit:     commit,
		Date:       date,
		DataDir:    g.dataDir,
		Workspace:  g.workspace,
		LogLevel:   level,
	}
}

// openEngine provisions the configured modules without starting them.
// The returned close func stops them again.
func (g *globalFlags) openEngine(ctx context.Context) (*app.Runtime, *engine.Engine, func(), error) {
	rt, err := app.Open(ctx, g.params("warn"))
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() { _ = rt.Close(context.Background()) }
	eng, err := rt.Engine()
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return rt, eng, closeFn, nil
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "writenow",
		Short:         "Context assembly engine for AI writing skills",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.config, "config", "c", "", "Path to configuration file")
	pf.StringVar(&g.dataDir, "data-dir", "", "Data directory (default $XDG_DATA_HOME/writenow)")
	pf.StringVar(&g.workspace, "workspace", "", "Workspace relative project roots resolve against (default cwd)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	root.AddCommand(
		versionCmd(),
		serveCmd(g),
		assembleCmd(g),
		rulesCmd(g),
		conversationsCmd(g),
		configCmd(g),
		mcpCmd(g),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "writenow %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start writenow with all configured modules",
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Run(g.params(""))
		},
	}
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				g.config = args[0]
			}
			rt, err := app.Open(cmd.Context(), g.params("warn"))
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			ids := config.Resolve(rt.Config)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}
