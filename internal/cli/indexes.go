package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	indexesDelete string
	indexesJSON   bool
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "List or delete stored baseline indexes",
	Long: `List every baseline index in .sentry/index.db with the model, metric and
threshold it was built with.

Examples:
  sentry indexes
  sentry indexes --delete old_patterns`,
	Args: cobra.NoArgs,
	RunE: runIndexes,
}

func init() {
	rootCmd.AddCommand(indexesCmd)
	indexesCmd.Flags().StringVar(&indexesDelete, "delete", "", "delete the named index")
	indexesCmd.Flags().BoolVar(&indexesJSON, "json", false, "output as JSON")
}

func runIndexes(cmd *cobra.Command, args []string) error {
	st, _, err := openStore(false)
	if err != nil {
		return err
	}
	defer st.Close()

	if indexesDelete != "" {
		if err := st.DeleteIndex(indexesDelete); err != nil {
			return err
		}
		fmt.Printf("Deleted index %s\n", indexesDelete)
		return nil
	}

	metas, err := st.ListIndexes()
	if err != nil {
		return err
	}

	if indexesJSON {
		output, _ := json.MarshalIndent(metas, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(metas) == 0 {
		fmt.Println("No indexes found.")
		return nil
	}

	active := GetConfig().Index.Name
	for _, m := range metas {
		marker := " "
		if m.Name == active {
			marker = "*"
		}
		fmt.Printf("%s %-20s %6d entries  %s/%s dim=%d metric=%s threshold=%.4f built=%s\n",
			marker, m.Name, m.Entries, m.Provider, m.Model, m.Dimension, m.Metric, m.Threshold,
			m.BuiltAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
