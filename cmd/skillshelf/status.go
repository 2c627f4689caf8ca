package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/skillshelf/internal/progress"
	"github.com/jackzampolin/skillshelf/internal/render"
)

var statusPhase string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted progress snapshot",
	Long: `Status renders the progress snapshot of a phase without modifying it.

Phases:
  download   the download session snapshot (default)
  discovery  the discovery session snapshot
  catalog    the catalog walk state

Examples:
  skillshelf status
  skillshelf status --phase discovery -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeLog, err := services(cmd)
		if err != nil {
			return err
		}
		defer closeLog()

		switch statusPhase {
		case "download", "discovery":
			path := svc.Home.ProgressPath()
			if statusPhase == "discovery" {
				path = svc.Home.DiscoveryProgressPath()
			}
			tracker, err := progress.Open(path, statusPhase, svc.Logger)
			if err != nil {
				return err
			}
			return outputDocument(tracker.Snapshot())
		case "catalog":
			data, err := os.ReadFile(svc.Home.CatalogWalkPath())
			if errors.Is(err, os.ErrNotExist) {
				return errors.New("no catalog walk state yet, run catalog first")
			}
			if err != nil {
				return err
			}
			var doc map[string]any
			if err := json.Unmarshal(data, &doc); err != nil {
				return err
			}
			return render.Document(doc)
		default:
			return fmt.Errorf("unknown phase %q (expected download, discovery, or catalog)", statusPhase)
		}
	},
}

// outputDocument renders v through its JSON form so key names match the
// on-disk snapshot in both yaml and json output.
func outputDocument(v any) error {
	doc, err := render.JSONKeys(v)
	if err != nil {
		return err
	}
	return render.Document(doc)
}

func init() {
	statusCmd.Flags().StringVar(&statusPhase, "phase", "download", "which snapshot to show: download, discovery, or catalog")

	rootCmd.AddCommand(statusCmd)
}
