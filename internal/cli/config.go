package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/zlx-network/swarmd/internal/daemon"
)

func init() {
	configCmd.Flags().BoolVar(&configWrite, "write", false, "Write the effective config to config.toml")
	rootCmd.AddCommand(configCmd)
}

var configWrite bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	if configWrite {
		if err := daemon.SaveConfig(cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Printf("Wrote %s\n", daemon.ConfigPath())
		return nil
	}

	if cfg.TLS.Passphrase != "" {
		cfg.TLS.Passphrase = "********"
	}
	fmt.Printf("# %s\n", daemon.ConfigPath())
	return toml.NewEncoder(os.Stdout).Encode(cfg)
}
