// Package cli implements the barterdeck command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/barterdeck/barterdeck/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "barterdeck",
	Short: "P2P collectible marketplace negotiation daemon",
	Long: `BarterDeck runs the negotiation core of a peer-to-peer collectible
marketplace: bounded buy-offer negotiation with item holds, and a
barter trade-proposal state machine with an optional cash term.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// ─── serve ──────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the BarterDeck daemon",
	Long:  `Start the HTTP API and the negotiation engine, blocking until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := daemon.LoadConfig()
		if err != nil {
			return err
		}
		return daemon.Run(cfg)
	},
}

// ─── init ───────────────────────────────────────────────────────────────────

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	Long:  `Create ~/.barterdeck/config.toml with default settings. Refuses to overwrite an existing file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := daemon.ConfigPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := daemon.SaveConfig(daemon.DefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "wrote %s\n", path)
		return nil
	},
}

// ─── version ────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stdout, "barterdeck 0.1.0")
	},
}
