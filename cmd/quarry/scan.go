package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrydev/quarry/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Connect a store and report its contents",
	Long:  "Connect the configured store, count its documents, and report any orphaned file metadata.",
	Args:  cobra.NoArgs,
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	s, err := loadStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	docs, err := readAll(s, types.QueryOptions{})
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", s.Name(), err)
	}
	orphans := 0
	for _, doc := range docs {
		if v, ok := doc["orphan"].(bool); ok && v {
			orphans++
		}
	}

	fmt.Printf("%s: %d documents", s.Name(), len(docs))
	if orphans > 0 {
		fmt.Printf(" (%d orphaned)", orphans)
	}
	fmt.Println()

	if lu, err := s.LastUpdated(); err == nil && !lu.IsZero() {
		fmt.Printf("last updated: %s\n", lu.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}

func readAll(s types.Store, opts types.QueryOptions) ([]types.Document, error) {
	c, err := s.Query(opts)
	if err != nil {
		return nil, err
	}
	return types.ReadAll(c)
}
