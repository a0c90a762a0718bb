package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/loom/config"
	"github.com/teranos/loom/errors"
	"github.com/teranos/loom/supervisor"
	"github.com/teranos/loom/sym"
	"github.com/teranos/loom/version"
)

// VersionCmd shows build info and checks supervisor compatibility.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: sym.Net + " Show version and supervisor compatibility",
	Long: `Display version, build time, commit hash, and platform information for
the loom binary, then check the supervisor's API version against the
supported range.`,
	RunE: runVersion,
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "output version info as JSON")
	VersionCmd.Flags().Bool("skip-supervisor", false, "skip the supervisor compatibility check")
}

func runVersion(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	skipSupervisor, _ := cmd.Flags().GetBool("skip-supervisor")

	info := version.Get()

	if jsonOutput {
		output, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to format version JSON")
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(info.String())
	fmt.Printf("Platform: %s\n", info.Platform)
	fmt.Printf("Go: %s\n", info.GoVersion)

	if skipSupervisor {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), daemonTimeout)
	defer cancel()

	client := supervisor.NewClient(supervisorConfig(cfg))
	raw, err := client.Version(ctx)
	if err != nil {
		pterm.Warning.Printf("Supervisor unreachable: %v\n", err)
		return nil
	}
	if err := client.CheckVersion(ctx); err != nil {
		pterm.Warning.Printf("Supervisor %s incompatible: %v\n", raw, err)
		return nil
	}

	pterm.Success.Printf("Supervisor %s compatible (supported: %s)\n", raw, supervisor.VersionConstraint)
	return nil
}
