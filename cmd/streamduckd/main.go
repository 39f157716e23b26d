// Command streamduckd is a daemon that drives multi-button display devices:
// it renders per-key imagery, reads button events, and runs the configured
// automation actions.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/streamduck/streamduckd/internal/actions"
	"github.com/streamduck/streamduckd/internal/dispatch"
	"github.com/streamduck/streamduckd/internal/events"
	"github.com/streamduck/streamduckd/internal/input"
	"github.com/streamduck/streamduckd/internal/model"
	"github.com/streamduck/streamduckd/internal/profile"
	"github.com/streamduck/streamduckd/internal/registry"
	"github.com/streamduck/streamduckd/internal/render"
	"github.com/streamduck/streamduckd/internal/transport"
)

var (
	flagProfile   string
	flagRefresh   time.Duration
	flagCacheSize int
	flagQueueSize int
	flagWorkers   int
	flagDebug     bool
)

var rootCmd = &cobra.Command{
	Use:          "streamduckd",
	Short:        "Daemon for programmable button deck devices",
	SilenceUsage: true,
	RunE:         runDaemon,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "verbose logging")
	rootCmd.Flags().StringVar(&flagProfile, "profile", "", "path to profile file (default ~/.config/streamduckd/profile.yaml)")
	rootCmd.Flags().DurationVar(&flagRefresh, "refresh", registry.DefaultRefreshInterval, "device enumeration interval")
	rootCmd.Flags().IntVar(&flagCacheSize, "cache-size", render.DefaultCacheSize, "encoded image cache capacity")
	rootCmd.Flags().IntVar(&flagQueueSize, "queue-size", dispatch.DefaultQueueSize, "action queue capacity")
	rootCmd.Flags().IntVar(&flagWorkers, "workers", dispatch.DefaultWorkers, "action worker count")
	rootCmd.AddCommand(listCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if flagDebug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// profilePath resolves the profile location: flag, then environment, then
// the default config directory.
func profilePath() string {
	if flagProfile != "" {
		return flagProfile
	}
	if p := os.Getenv("STREAMDUCKD_PROFILE"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "streamduckd", "profile.yaml")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	path := profilePath()
	prof, err := profile.Load(path)
	if err != nil {
		return fmt.Errorf("loading profile: %w", err)
	}
	log.Info("profile loaded", zap.String("path", path), zap.Int("pages", len(prof.Pages)))

	bus := events.NewBus(log)
	renderer, err := render.New(flagCacheSize)
	if err != nil {
		return err
	}

	disp := dispatch.New(log, bus, flagQueueSize, flagWorkers)
	disp.SetProfile(prof)

	var inj input.Injector
	if u, err := input.NewUinput(); err != nil {
		log.Warn("input injection unavailable", zap.Error(err))
		inj = input.Noop{}
	} else {
		inj = u
	}
	defer inj.Close()
	actions.Register(disp, inj, log)

	reg := registry.New(transport.NewHID(model.VendorElgato), renderer, disp, bus, log, 0)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	disp.Start(ctx)
	defer disp.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reg.Run(ctx, flagRefresh)
	})
	g.Go(func() error {
		return profile.Watch(ctx, path, log, reg.LoadProfile)
	})

	log.Info("streamduckd running", zap.Duration("refresh", flagRefresh))
	return g.Wait()
}
