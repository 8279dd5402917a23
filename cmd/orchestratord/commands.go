package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/orchestrator/internal/registry"
)

type installFlags struct {
	AppID           string
	Source          string
	Category        string
	InstallerHint   string
	ReadinessHint   string
	DefaultPortHint int
	GPURequirement  string
}

func createInstallCommand(g *GlobalFlags) *cobra.Command {
	f := &installFlags{}
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install an app from a repository or local path",
		Long: `Install fetches the app's source, resolves the third-party package
manager it declares, and runs its install script, blocking until the
app reaches the installed state.

Examples:
  orchestratord install --app-id sd-webui --source https://github.com/example/sd-webui
  orchestratord install --app-id local-app --source /opt/apps/local-app`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g.APIUrl, g.APITimeout)
			desc := registry.AppDescriptor{
				AppID:           f.AppID,
				SourceLocator:   f.Source,
				Category:        f.Category,
				InstallerHint:   f.InstallerHint,
				ReadinessHint:   f.ReadinessHint,
				DefaultPortHint: f.DefaultPortHint,
				GPURequirement:  f.GPURequirement,
			}
			var out struct {
				App *registry.AppRecord `json:"app"`
			}
			if err := c.post("/install", desc, &out); err != nil {
				return fmt.Errorf("install: %w", err)
			}
			return printJSON(out.App)
		},
	}
	cmd.Flags().StringVar(&f.AppID, "app-id", "", "app identifier (required)")
	cmd.Flags().StringVar(&f.Source, "source", "", "repository URL or local path (required)")
	cmd.Flags().StringVar(&f.Category, "category", "", "app category hint")
	cmd.Flags().StringVar(&f.InstallerHint, "installer-hint", "", "expected installer script filename")
	cmd.Flags().StringVar(&f.ReadinessHint, "readiness-hint", "", "expected readiness regex")
	cmd.Flags().IntVar(&f.DefaultPortHint, "port-hint", 0, "expected default port")
	cmd.Flags().StringVar(&f.GPURequirement, "gpu", "", "gpu requirement tier: none, any, high-vram")
	_ = cmd.MarkFlagRequired("app-id")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func createStartCommand(g *GlobalFlags) *cobra.Command {
	var appID string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an installed app",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g.APIUrl, g.APITimeout)
			var out struct {
				App *registry.AppRecord `json:"app"`
			}
			if err := c.post("/start", map[string]string{"appId": appID}, &out); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			return printJSON(out.App)
		},
	}
	cmd.Flags().StringVar(&appID, "app-id", "", "app identifier (required)")
	_ = cmd.MarkFlagRequired("app-id")
	return cmd
}

func createStopCommand(g *GlobalFlags) *cobra.Command {
	var appID string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running app",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g.APIUrl, g.APITimeout)
			if err := c.post("/stop", map[string]string{"appId": appID}, nil); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			fmt.Println("stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&appID, "app-id", "", "app identifier (required)")
	_ = cmd.MarkFlagRequired("app-id")
	return cmd
}

func createUninstallCommand(g *GlobalFlags) *cobra.Command {
	var appID string
	var purge bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove an installed app's files and registry entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g.APIUrl, g.APITimeout)
			body := map[string]any{"appId": appID, "purge": purge}
			if err := c.post("/uninstall", body, nil); err != nil {
				return fmt.Errorf("uninstall: %w", err)
			}
			fmt.Println("uninstalled")
			return nil
		},
	}
	cmd.Flags().StringVar(&appID, "app-id", "", "app identifier (required)")
	cmd.Flags().BoolVar(&purge, "purge", false, "also remove the shared-root resources this app linked with fs.link")
	_ = cmd.MarkFlagRequired("app-id")
	return cmd
}

func createStatusCommand(g *GlobalFlags) *cobra.Command {
	var appID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show one app's current record",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g.APIUrl, g.APITimeout)
			var out struct {
				App *registry.AppRecord `json:"app"`
			}
			if err := c.get("/status?appId="+appID, &out); err != nil {
				return fmt.Errorf("status: %w", err)
			}
			return printJSON(out.App)
		},
	}
	cmd.Flags().StringVar(&appID, "app-id", "", "app identifier (required)")
	_ = cmd.MarkFlagRequired("app-id")
	return cmd
}

func createListCommand(g *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every app the registry knows about",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(g.APIUrl, g.APITimeout)
			var out struct {
				Apps []*registry.AppRecord `json:"apps"`
			}
			if err := c.get("/list", &out); err != nil {
				return fmt.Errorf("list: %w", err)
			}
			return printJSON(out.Apps)
		},
	}
	return cmd
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
