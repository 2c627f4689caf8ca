package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/skillshelf/internal/download"
	"github.com/jackzampolin/skillshelf/internal/oreilly"
	"github.com/jackzampolin/skillshelf/internal/progress"
)

var (
	downloadSkills    []string
	downloadMaxBooks  int
	downloadFormat    string
	downloadTokenSave int
	downloadForce     bool
	downloadDryRun    bool
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Build EPUBs for every discovered book",
	Long: `Download runs phase two: it walks the per-skill book id files written by
discover and packages every book as an EPUB under the books directory, one
subdirectory per skill.

Books already marked completed, or whose archive already exists on disk,
are skipped unless --force is set. Progress persists after every book, so
an interrupted run picks up where it stopped. Live counters are mirrored
to the live-stats file for tailing.

Examples:
  skillshelf download                        # everything discovered
  skillshelf download --skills go            # matching skills only
  skillshelf download --format dual          # enhanced + kindle variants
  skillshelf download --max-books 5 --force  # rebuild a small sample`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, closeLog, err := services(cmd)
		if err != nil {
			return err
		}
		defer closeLog()
		if err := connect(svc, downloadDryRun); err != nil {
			return err
		}

		cfg := svc.Config
		if downloadTokenSave > 0 {
			cfg.Download.TokenSaveInterval = downloadTokenSave
		}

		if !downloadDryRun {
			if err := svc.Session.CheckAuth(ctx); err != nil {
				return err
			}
		}

		live := progress.NewLiveWriter(svc.Home.LiveStatsPath())
		tracker, err := progress.Open(svc.Home.ProgressPath(), "download", svc.Logger,
			progress.WithLiveWriter(live))
		if err != nil {
			return err
		}
		svc.Tracker = tracker

		ctrl := download.New(download.Config{
			Client:    oreilly.New(svc.Session, svc.Logger, oreilly.APIv1),
			Home:      svc.Home,
			Store:     svc.Cookies,
			Tracker:   tracker,
			Logger:    svc.Logger,
			Download:  cfg.Download,
			Discovery: cfg.Discovery,
		})

		_, err = ctrl.Run(ctx, download.Options{
			Skills:   downloadSkills,
			MaxBooks: downloadMaxBooks,
			Format:   downloadFormat,
			Force:    downloadForce,
			DryRun:   downloadDryRun,
		})
		return err
	},
}

func init() {
	downloadCmd.Flags().StringSliceVar(&downloadSkills, "skills", nil, "only skills whose name contains one of these")
	downloadCmd.Flags().IntVar(&downloadMaxBooks, "max-books", 0, "per-skill book cap (default from config, 0 = unlimited)")
	downloadCmd.Flags().StringVar(&downloadFormat, "format", "", "epub variant: legacy, enhanced, kindle, or dual (default from config)")
	downloadCmd.Flags().IntVar(&downloadTokenSave, "token-save-interval", 0, "persist cookies every N completed books (default from config)")
	downloadCmd.Flags().BoolVar(&downloadForce, "force", false, "rebuild books already completed or on disk")
	downloadCmd.Flags().BoolVar(&downloadDryRun, "dry-run", false, "list the plan without downloading")

	rootCmd.AddCommand(downloadCmd)
}
