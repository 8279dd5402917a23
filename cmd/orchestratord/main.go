// Command orchestratord is the Notebook App Orchestrator's daemon and
// CLI, grounded on the teacher's cmd/provisr: a cobra root command whose
// subcommands either run the daemon in the foreground (serve) or act as
// a thin REST client against a running one (install/start/stop/
// uninstall/status/list), the same split the teacher draws between its
// own "serve" and its remote "--api-url" commands.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/loykin/orchestrator/internal/logger"
)

func main() {
	slog.SetDefault(slog.New(newBaseHandler(os.Stderr)))

	root, _ := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newBaseHandler picks the daemon/CLI's own log formatting: colored text
// when stderr is an interactive terminal, plain JSON otherwise — the shape
// a supervising process manager or log collector expects, never ANSI codes
// mixed into a captured log file.
func newBaseHandler(w *os.File) slog.Handler {
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		return logger.NewColorTextHandler(w, nil, true)
	}
	return slog.NewJSONHandler(w, nil)
}

// GlobalFlags holds flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() (*cobra.Command, func()) {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "orchestratord",
		Short: "Notebook App Orchestrator daemon and control CLI",
		Long: `orchestratord installs, starts, stops, and exposes third-party AI
apps on ephemeral GPU notebook hosts.

Examples:
  orchestratord serve --config orchestratord.toml
  orchestratord install --app-id sd-webui --source https://github.com/example/sd-webui
  orchestratord start --app-id sd-webui
  orchestratord status --app-id sd-webui
  orchestratord list --api-url http://127.0.0.1:8080/api`,
	}
	root.PersistentFlags().StringVar(&globalFlags.APIUrl, "api-url", "", "orchestratord API base URL (default http://127.0.0.1:8080/api)")
	root.PersistentFlags().DurationVar(&globalFlags.APITimeout, "api-timeout", 30*time.Second, "API request timeout")

	root.AddCommand(
		createServeCommand(),
		createInstallCommand(globalFlags),
		createStartCommand(globalFlags),
		createStopCommand(globalFlags),
		createUninstallCommand(globalFlags),
		createStatusCommand(globalFlags),
		createListCommand(globalFlags),
	)

	return root, func() {}
}
