package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keshon/himera/internal/app"
	"github.com/keshon/himera/internal/commands"
	"github.com/keshon/himera/internal/config"
	"github.com/keshon/himera/internal/docs"
	"github.com/keshon/himera/internal/logging"
	"github.com/keshon/himera/pkg/cmd"
)

var (
	asUser   int64
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:          "himera-cli",
	Short:        "himera admin CLI",
	Long:         `Run himera's commands against the configured database without starting the chat loop.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run <command> [args...]",
	Short: "Run one command, e.g. run stats or run cleanup",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCommand,
}

var (
	docsTemplate string
	docsOut      string
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Regenerate README.md from README.md.tmpl and the command registry",
	Args:  cobra.NoArgs,
	RunE:  runDocs,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available commands",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(docsCmd)

	docsCmd.Flags().StringVar(&docsTemplate, "template", "README.md.tmpl", "template path")
	docsCmd.Flags().StringVar(&docsOut, "out", "README.md", "output path")

	rootCmd.PersistentFlags().Int64Var(&asUser, "as", 0, "user id to run as (default: first ADMIN_USERS entry)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
}

func Execute() error {
	return rootCmd.Execute()
}

func open() (*app.App, int64, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, 0, err
	}
	log := logging.New(logLevel, cfg.LogFormat)
	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		return nil, 0, err
	}
	user := asUser
	if user == 0 && len(cfg.AdminUsers) > 0 {
		user = cfg.AdminUsers[0]
	}
	return a, user, nil
}

func runCommand(c *cobra.Command, args []string) error {
	a, user, err := open()
	if err != nil {
		return err
	}
	defer a.Close()

	name := strings.TrimPrefix(strings.ToLower(args[0]), "/")
	command := a.Commands.Get(name)
	if command == nil {
		return fmt.Errorf("unknown command %q, see himera-cli list", name)
	}
	err = command.Run(c.Context(), &cmd.Invocation{UserID: user, Args: args[1:], Out: c.OutOrStdout()})
	if errors.Is(err, cmd.ErrForbidden) {
		return fmt.Errorf("%s: user %d is not in ADMIN_USERS", name, user)
	}
	return err
}

func runList(c *cobra.Command, _ []string) error {
	a, _, err := open()
	if err != nil {
		return err
	}
	defer a.Close()
	fmt.Fprintln(c.OutOrStdout(), commands.BuildHelp(a.Commands.GetAll(), true))
	return nil
}

func runDocs(c *cobra.Command, _ []string) error {
	a, _, err := open()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := docs.UpdateReadme(a.Commands, docsTemplate, docsOut); err != nil {
		return err
	}
	fmt.Fprintf(c.OutOrStdout(), "%s updated\n", docsOut)
	return nil
}
