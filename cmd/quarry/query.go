package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarrydev/quarry/types"
)

var (
	criteriaJSON string
	properties   []string
	queryLimit   int
	querySkip    int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a criteria query against the configured store",
	Long:  "Run a JSON criteria query against the configured store and print matching documents as JSON lines.",
	Args:  cobra.NoArgs,
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&criteriaJSON, "criteria", "q", "", "criteria as a JSON object")
	queryCmd.Flags().StringSliceVarP(&properties, "properties", "p", nil, "fields to project")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "maximum number of documents (0 = all)")
	queryCmd.Flags().IntVar(&querySkip, "skip", 0, "number of documents to skip")
}

func runQuery(cmd *cobra.Command, args []string) error {
	var criteria types.Criteria
	if criteriaJSON != "" {
		if err := json.Unmarshal([]byte(criteriaJSON), &criteria); err != nil {
			return fmt.Errorf("invalid criteria: %w", err)
		}
	}

	s, err := loadStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	c, err := s.Query(types.QueryOptions{
		Criteria:   criteria,
		Properties: properties,
		Skip:       querySkip,
		Limit:      queryLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", s.Name(), err)
	}
	defer func() { _ = c.Close() }()

	enc := json.NewEncoder(os.Stdout)
	for c.Next() {
		if err := enc.Encode(c.Doc()); err != nil {
			return err
		}
	}
	return c.Err()
}
