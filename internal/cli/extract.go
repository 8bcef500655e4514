package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"studygen/internal/config"
	"studygen/internal/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>...",
	Short: "Print the text extracted from local documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		text, err := a.extractor.ExtractAll(cmd.Context(), localDocuments(args))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

// localDocuments describes files on disk in argument order.
func localDocuments(paths []string) []*models.Document {
	docs := make([]*models.Document, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		docs = append(docs, &models.Document{
			ID:           name,
			OriginalName: name,
			StoredPath:   p,
			Format:       models.FormatFromPath(p),
		})
	}
	return docs
}
