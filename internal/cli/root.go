// Package cli implements the swarmd command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swarmd",
	Short: "swarmd — WebRTC signaling for peer-to-peer swarms",
	Long: `swarmd introduces browsers that want the same file to each other.
Peers connect over a secure WebSocket, join the swarm for a file path,
and exchange WebRTC offers, answers and ICE candidates through the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// version is set by Execute and reported by serve.
var version = "dev"

// Execute runs the root command. Called from main.go.
func Execute(v string) {
	version = v
	rootCmd.Version = v

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
