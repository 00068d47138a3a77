// cmd/staleguard/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/staleguard/internal/browser"
	"github.com/valpere/staleguard/internal/errors"
	"github.com/valpere/staleguard/internal/utils"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// globalState carries everything a command touches outside its flags, so
// tests can run the CLI in-process.
type globalState struct {
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)
	verbose   bool

	// newOpener builds the browser opener for a run.
	newOpener func(*browser.Config, browser.Credentials, utils.Logger) browser.Opener
}

func newGlobalState(stdout, stderr io.Writer) *globalState {
	return &globalState{
		stdout:    stdout,
		stderr:    stderr,
		lookupEnv: os.LookupEnv,
		newOpener: browser.NewOpener,
	}
}

// logger writes to stderr so stdout stays clean for reports and templates.
func (gs *globalState) logger(level string) utils.Logger {
	if gs.verbose {
		level = "debug"
	}
	return utils.NewLoggerWithOutput(utils.ParseLevel(level), gs.stderr)
}

func newRootCommand(gs *globalState) *cobra.Command {
	root := &cobra.Command{
		Use:   "staleguard",
		Short: "Stale element retry scenarios for browser automation",
		Long: `staleguard drives a browser through the table filter playground and
shows how element handles go stale across navigations, and how re-resolving
them through a retrying wait avoids it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&gs.verbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(
		getCmdRun(gs),
		getCmdValidate(gs),
		getCmdTemplate(gs),
		getCmdServe(gs),
		getCmdScenarios(gs),
		getCmdVersion(gs),
	)
	return root
}

func execute(ctx context.Context, gs *globalState, args []string) int {
	root := newRootCommand(gs)
	root.SetArgs(args)
	root.SetOut(gs.stdout)
	root.SetErr(gs.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return errors.ExitOK
	}

	errorService := errors.NewService().WithVerbose(gs.verbose)
	fmt.Fprint(gs.stderr, errorService.FormatErrorForCLI(err))
	return errorService.GetExitCode(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newGlobalState(os.Stdout, os.Stderr), os.Args[1:])
	stop()
	os.Exit(code)
}
