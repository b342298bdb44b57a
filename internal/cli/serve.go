package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zlx-network/swarmd/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveCert, "cert", "", "TLS certificate PEM file (overrides config)")
	serveCmd.Flags().StringVar(&serveKey, "key", "", "TLS private key PEM file (overrides config)")
	serveCmd.Flags().StringVar(&servePassphrase, "passphrase", "", "Passphrase for an encrypted private key")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost       string
	servePort       int
	serveCert       string
	serveKey        string
	servePassphrase string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the signaling server",
	Long: `Start the signaling server on 0.0.0.0:8443.

The certificate and key may come from config.toml or the flags. Without
them the server speaks plain HTTP and must sit behind a TLS proxy.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(&cfg)

	d, err := daemon.NewWithConfig(cfg, version)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(context.Background())
}

// applyServeFlags overrides config from flags.
func applyServeFlags(cfg *daemon.Config) {
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveCert != "" {
		cfg.TLS.CertFile = serveCert
	}
	if serveKey != "" {
		cfg.TLS.KeyFile = serveKey
	}
	if servePassphrase != "" {
		cfg.TLS.Passphrase = servePassphrase
	}
}
