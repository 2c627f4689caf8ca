package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/skillshelf/internal/config"
	"github.com/jackzampolin/skillshelf/internal/cookies"
	"github.com/jackzampolin/skillshelf/internal/home"
	"github.com/jackzampolin/skillshelf/internal/logger"
	"github.com/jackzampolin/skillshelf/internal/render"
	"github.com/jackzampolin/skillshelf/internal/session"
	"github.com/jackzampolin/skillshelf/internal/svcctx"
	"github.com/jackzampolin/skillshelf/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "skillshelf",
	Short: "Build a personal EPUB library from an O'Reilly subscription",
	Long: `Skillshelf builds a personal EPUB library from an O'Reilly subscription,
organized by skill.

It runs in two phases:
  - discover: search the platform for every skill in a list, filter the
    results, and write one book id file per skill
  - download: walk those files and package every book as an EPUB

Both phases are resumable. Discovery skips skills that already have a
result file, download skips books that are already on disk, and progress
persists after every unit of work.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.skillshelf/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "skillshelf home directory (default: ~/.skillshelf)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		render.SetFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// services builds what every command starts from: resolved configuration,
// the home directory skeleton, and the log sink. The bundle is also attached
// to the command context for anything downstream that extracts services from
// ctx. The caller must invoke the returned closer.
func services(cmd *cobra.Command) (*svcctx.Services, func() error, error) {
	manager, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	cfg := manager.Get()

	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, nil, err
	}

	log, closeLog, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		FilePath:   h.LogPath(cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, nil, err
	}

	manager.OnChange(func(*config.Config) {
		log.Info("configuration reloaded")
	})
	manager.WatchConfig()

	svc := &svcctx.Services{
		Logger: log,
		Home:   h,
		Config: cfg,
	}
	cmd.SetContext(svcctx.WithServices(cmd.Context(), svc))
	return svc, closeLog, nil
}

// connect loads the cookie bundle and opens the shared session, filling in
// svc.Cookies and svc.Session. With allowEmpty (dry runs), a missing bundle
// yields an empty store instead of an error.
func connect(svc *svcctx.Services, allowEmpty bool) error {
	store, err := cookies.Load(svc.Home.CookiesPath())
	if err != nil {
		if !allowEmpty || !errors.Is(err, cookies.ErrNoCredentials) {
			return fmt.Errorf("%w (copy your browser cookie export to %s)", err, svc.Home.CookiesPath())
		}
		store = cookies.New(svc.Home.CookiesPath())
	}

	sess, err := session.New(svc.Config.HTTP, svc.Config.BaseURL, store, svc.Logger)
	if err != nil {
		return err
	}
	sess.OnCookieUpdate(func(applied int) {
		svc.Logger.Debug("session cookies refreshed", "applied", applied)
	})

	svc.Cookies = store
	svc.Session = sess
	return nil
}
