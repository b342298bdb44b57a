package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zlx-network/swarmd/internal/daemon"
	"github.com/zlx-network/swarmd/internal/domain"
	"github.com/zlx-network/swarmd/internal/infra/sqlite"
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of sessions to show")
	historyCmd.Flags().StringVar(&historyDomain, "domain", "", "Only show sessions for this access key")
	rootCmd.AddCommand(historyCmd)
}

var (
	historyLimit  int
	historyDomain string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sessions from the local ledger",
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := sqlite.Open(daemon.SwarmdHome())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	sessions, err := db.RecentSessions(historyDomain, historyLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}
	return printSessions(os.Stdout, sessions)
}

func printSessions(out io.Writer, sessions []domain.SessionInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PEER\tDOMAIN\tCONNECTED\tDURATION\tCAUSE\tSWARMS")
	for _, s := range sessions {
		duration, cause := "-", string(s.Cause)
		if !s.DisconnectedAt.IsZero() {
			duration = s.Duration().Round(time.Second).String()
		}
		if cause == "" {
			cause = "active"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.PeerID,
			s.Domain,
			s.ConnectedAt.Format("2006-01-02 15:04:05"),
			duration,
			cause,
			strings.Join(s.Swarms, ","),
		)
	}
	return w.Flush()
}
