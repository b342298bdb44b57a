package cli

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zlx-network/swarmd/internal/api"
)

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "https://127.0.0.1:8443", "Base URL of the running server")
	statusCmd.Flags().BoolVar(&statusInsecure, "insecure", false, "Skip TLS certificate verification")
	rootCmd.AddCommand(statusCmd)
}

var (
	statusAddr     string
	statusInsecure bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show live counts from a running server",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	if statusInsecure {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	status, err := fetchStatus(client, statusAddr)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "STATUS\t%s\n", status.Status)
	fmt.Fprintf(w, "VERSION\t%s\n", status.Version)
	fmt.Fprintf(w, "UPTIME\t%s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
	fmt.Fprintf(w, "HEALTHY\t%t\n", status.Healthy)
	fmt.Fprintf(w, "SESSIONS\t%d\n", status.Stats.Sessions)
	fmt.Fprintf(w, "DOMAINS\t%d\n", status.Stats.Domains)
	fmt.Fprintf(w, "SWARMS\t%d\n", status.Stats.Swarms)
	fmt.Fprintf(w, "MEMBERSHIPS\t%d\n", status.Stats.Memberships)
	return w.Flush()
}

func fetchStatus(client *http.Client, addr string) (*api.StatusResponse, error) {
	url := strings.TrimSuffix(addr, "/") + "/api/status"
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("server not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	var status api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}
