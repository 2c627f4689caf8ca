package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/skillshelf/internal/catalog"
	"github.com/jackzampolin/skillshelf/internal/oreilly"
)

var (
	catalogStartPage int
	catalogEndPage   int
	catalogDelay     time.Duration
	catalogResume    bool
	catalogUpdate    bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Walk the whole catalog and bucket books by topic",
	Long: `Catalog walks the v1 wildcard search across the configured page range,
filters each page's results, and buckets every kept book into per-topic
result files of the same shape discover writes. A global duplicate set
spans walks, so pages and runs never re-add a book.

Walk progress persists every few pages. --resume continues an interrupted
walk after its last completed page; --update rewalks the range while
keeping the duplicate set. A plain-text summary of the largest topics is
written at the end.

Examples:
  skillshelf catalog --end-page 50     # the first fifty pages
  skillshelf catalog --resume          # continue the previous walk
  skillshelf catalog --update          # rewalk for newly published books`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, closeLog, err := services(cmd)
		if err != nil {
			return err
		}
		defer closeLog()
		if err := connect(svc, false); err != nil {
			return err
		}

		cfg := svc.Config
		if catalogDelay > 0 {
			cfg.Catalog.Delay = catalogDelay
		}

		if err := svc.Session.CheckAuth(ctx); err != nil {
			return err
		}

		walker := catalog.New(catalog.Config{
			Client:  oreilly.New(svc.Session, svc.Logger, oreilly.APIv1),
			Home:    svc.Home,
			Logger:  svc.Logger,
			Catalog: cfg.Catalog,
			Filter:  cfg.Filter,
		})

		_, err = walker.Run(ctx, catalog.Options{
			StartPage: catalogStartPage,
			EndPage:   catalogEndPage,
			Resume:    catalogResume,
			Update:    catalogUpdate,
		})
		return err
	},
}

func init() {
	catalogCmd.Flags().IntVar(&catalogStartPage, "start-page", 0, "first page of the walk (default from config)")
	catalogCmd.Flags().IntVar(&catalogEndPage, "end-page", 0, "last page of the walk (default from config)")
	catalogCmd.Flags().DurationVar(&catalogDelay, "delay", 0, "pause between pages (default from config)")
	catalogCmd.Flags().BoolVar(&catalogResume, "resume", false, "continue after the last completed page")
	catalogCmd.Flags().BoolVar(&catalogUpdate, "update", false, "rewalk the page range keeping the duplicate set")

	rootCmd.AddCommand(catalogCmd)
}
