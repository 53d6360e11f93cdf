package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"sentry/config"
	"sentry/internal/adapter/sink"
	"sentry/internal/domain"
)

var (
	statusTail int
	statusJSON bool
	statusPath string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the result stream is live and its latest rows",
	Long: `Report ACTIVE when the result stream was modified within the idle window
(sink.idle_window), IDLE otherwise, together with row and threat counts and the
most recent rows.

Examples:
  sentry status
  sentry status --tail 10 --json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVarP(&statusTail, "tail", "n", 50, "number of recent rows to show")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	statusCmd.Flags().StringVarP(&statusPath, "output", "o", "", "result stream path (default from config)")
}

type streamStatus struct {
	Path      string             `json:"path"`
	State     string             `json:"state"`
	LastWrite time.Time          `json:"last_write"`
	Rows      int                `json:"rows"`
	Threats   int                `json:"threats"`
	Recent    []domain.ResultRow `json:"recent"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	path := config.ResolvePath(GetRootDir(), cfg.Sink.Path)
	if statusPath != "" {
		path = statusPath
	}

	live, err := sink.Liveness(path, cfg.Sink.IdleWindow, time.Now())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no result stream at %s. Run 'sentry replay' first", path)
		}
		return err
	}

	rows, err := sink.ReadRows(path, 0)
	if err != nil {
		return err
	}

	st := streamStatus{
		Path:      path,
		State:     live.String(),
		LastWrite: live.LastWrite,
		Rows:      len(rows),
	}
	for _, r := range rows {
		if r.IsThreat {
			st.Threats++
		}
	}
	if statusTail > 0 && len(rows) > statusTail {
		rows = rows[len(rows)-statusTail:]
	}
	st.Recent = rows

	if statusJSON {
		output, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	icon := "🟢"
	if !live.Active {
		icon = "⚪"
	}
	fmt.Printf("%s %s  (last write %s ago)\n", icon, st.State, formatDuration(live.Age))
	fmt.Printf("Stream:  %s\n", path)
	fmt.Printf("Rows:    %d\n", st.Rows)
	fmt.Printf("Threats: %d\n\n", st.Threats)

	for _, r := range st.Recent {
		mark := "🟢"
		if r.IsThreat {
			mark = "🔴"
		}
		fmt.Printf("%s %s  %.4f  %s\n", mark, r.Timestamp.Format(sink.TimeLayout), r.Score, r.Log)
		if r.Analysis != "" {
			fmt.Printf("            🤖 %s\n", r.Analysis)
		}
	}
	return nil
}
