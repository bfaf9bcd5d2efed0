package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrydev/quarry/stores"
	"github.com/quarrydev/quarry/types"
)

var (
	tagFileID string
	tagPath   string
	tagsJSON  string
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Attach metadata to a file document",
	Long:  "Attach user metadata to one file document, selected by file_id or by relative path; the store must be writable.",
	Args:  cobra.NoArgs,
	RunE:  runTag,
}

func init() {
	tagCmd.Flags().StringVar(&tagFileID, "file-id", "", "file_id of the document to tag")
	tagCmd.Flags().StringVar(&tagPath, "path", "", "relative path of the file to tag")
	tagCmd.Flags().StringVarP(&tagsJSON, "tags", "t", "", "metadata to attach, as a JSON object (required)")
	_ = tagCmd.MarkFlagRequired("tags")
	tagCmd.MarkFlagsOneRequired("file-id", "path")
	tagCmd.MarkFlagsMutuallyExclusive("file-id", "path")
}

func runTag(cmd *cobra.Command, args []string) error {
	var tags map[string]interface{}
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return fmt.Errorf("invalid tags: %w", err)
	}

	s, err := loadStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	criteria := types.Criteria{stores.FileKey: tagFileID}
	if tagPath != "" {
		criteria = types.Criteria{"path": tagPath}
	}
	doc, err := s.QueryOne(types.QueryOptions{Criteria: criteria})
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", s.Name(), err)
	}
	if doc == nil {
		return fmt.Errorf("no document matches %v in %s", criteria, s.Name())
	}

	update := types.Document{stores.FileKey: doc[stores.FileKey]}
	for k, v := range tags {
		update[k] = v
	}
	if err := s.Update([]types.Document{update}); err != nil {
		return fmt.Errorf("failed to update %s: %w", s.Name(), err)
	}

	fmt.Printf("tagged %v with %d field(s)\n", doc[stores.FileKey], len(tags))
	return nil
}
