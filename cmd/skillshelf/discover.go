package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/skillshelf/internal/discovery"
	"github.com/jackzampolin/skillshelf/internal/oreilly"
	"github.com/jackzampolin/skillshelf/internal/progress"
)

var (
	discoverSkillsFile string
	discoverSkills     []string
	discoverWorkers    int
	discoverMaxPages   int
	discoverAPI        string
	discoverStrict     bool
	discoverUpdate     bool
	discoverDryRun     bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search every skill and write per-skill book id files",
	Long: `Discover runs phase one: it searches the platform for every skill in the
skills list, passes each result through the filter pipeline, and writes one
book id file per skill under the home directory.

Skills that already have a result file are skipped unless --update is set.
Skills whose expected book count exceeds the too-broad limit are skipped
and listed in the run summary.

Examples:
  skillshelf discover                           # every skill in the list
  skillshelf discover --skills go,rust          # names matching a filter
  skillshelf discover --update --skills go      # refresh one skill's file
  skillshelf discover --dry-run                 # report the plan only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		svc, closeLog, err := services(cmd)
		if err != nil {
			return err
		}
		defer closeLog()
		if err := connect(svc, discoverDryRun); err != nil {
			return err
		}

		cfg := svc.Config
		if discoverWorkers > 0 {
			cfg.Discovery.Workers = discoverWorkers
		}
		if discoverMaxPages > 0 {
			cfg.Discovery.MaxPages = discoverMaxPages
		}
		if discoverAPI != "" {
			cfg.Discovery.API = discoverAPI
		}
		if cmd.Flags().Changed("strict") {
			cfg.Discovery.Strict = discoverStrict
		}

		if !discoverDryRun {
			if err := svc.Session.CheckAuth(ctx); err != nil {
				return err
			}
		}

		tracker, err := progress.Open(svc.Home.DiscoveryProgressPath(), "discovery", svc.Logger)
		if err != nil {
			return err
		}
		svc.Tracker = tracker

		ctrl := discovery.New(discovery.Config{
			Client:    oreilly.New(svc.Session, svc.Logger, cfg.Discovery.API),
			Home:      svc.Home,
			Tracker:   tracker,
			Logger:    svc.Logger,
			Discovery: cfg.Discovery,
			Filter:    cfg.Filter,
		})

		skillsFile := discoverSkillsFile
		if skillsFile == "" {
			skillsFile = filepath.Join(svc.Home.SkillsDir(), "skills.json")
		}

		_, err = ctrl.Run(ctx, discovery.Options{
			SkillsFile: skillsFile,
			Skills:     discoverSkills,
			Update:     discoverUpdate,
			DryRun:     discoverDryRun,
		})
		return err
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverSkillsFile, "skills-file", "", "skills list path (default: <home>/skills/skills.json)")
	discoverCmd.Flags().StringSliceVar(&discoverSkills, "skills", nil, "only skills whose name contains one of these")
	discoverCmd.Flags().IntVar(&discoverWorkers, "workers", 0, "concurrent skill workers (default from config)")
	discoverCmd.Flags().IntVar(&discoverMaxPages, "max-pages", 0, "absolute page cap per topic (default from config)")
	discoverCmd.Flags().StringVar(&discoverAPI, "api", "", "search API generation: v1 or v2 (default from config)")
	discoverCmd.Flags().BoolVar(&discoverStrict, "strict", false, "require every kept book to mention the skill")
	discoverCmd.Flags().BoolVar(&discoverUpdate, "update", false, "re-discover skills whose result file already exists")
	discoverCmd.Flags().BoolVar(&discoverDryRun, "dry-run", false, "evaluate skip rules without network traffic or writes")

	rootCmd.AddCommand(discoverCmd)
}
