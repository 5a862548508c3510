// Package main provides the CLI entrypoint for ember.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/ember/internal/api"
	"github.com/verte-zerg/ember/internal/config"
	"github.com/verte-zerg/ember/internal/gamedata"
	"github.com/verte-zerg/ember/internal/live"
	"github.com/verte-zerg/ember/internal/model"
	"github.com/verte-zerg/ember/internal/monitor"
	"github.com/verte-zerg/ember/internal/presence"
	"github.com/verte-zerg/ember/internal/stats"
	"github.com/verte-zerg/ember/internal/store"
	"github.com/verte-zerg/ember/internal/watchui"
	"github.com/verte-zerg/ember/internal/winctl"
)

const (
	defaultCurveWindow = 5
	defaultTopZones    = 10
	defaultStatsLast   = 20
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	dbPath string

	serveAddr        string
	serveOrigin      string
	monitorInterval  time.Duration
	presenceInterval time.Duration
	presenceResync   int

	statsCharacter   int64
	statsLast        int
	statsCurveWindow int
	statsTopZones    int
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ember",
		Short:         "Dark Souls III session and death tracker",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServeCmd,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath(), "path to the SQLite database")
	addServeFlags(rootCmd)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serveAddr, "addr", api.DefaultAddr, "HTTP listen address")
	cmd.Flags().StringVar(&serveOrigin, "allowed-origin", api.DefaultAllowedOrigin, "origin allowed by CORS")
	cmd.Flags().DurationVar(&monitorInterval, "monitor-interval", monitor.DefaultInterval, "session monitor poll interval")
	addPresenceFlags(cmd)
}

func addPresenceFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&presenceInterval, "presence-interval", presence.DefaultInterval, "presence refresh interval")
	cmd.Flags().IntVar(&presenceResync, "death-resync-ticks", presence.DefaultResyncTicks, "presence ticks between death count reads")
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor, presence loop and HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	addServeFlags(cmd)
	return cmd
}

// loadLayeredConfig applies config file then environment values to every
// flag the user did not set.
func loadLayeredConfig(cmd *cobra.Command) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	envCfg, err := config.LoadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}

	applyStringConfig(cmd, "db", &dbPath, fileCfg.Storage.DB)
	applyStringConfig(cmd, "db", &dbPath, envCfg.DB)
	applyStringConfig(cmd, "addr", &serveAddr, fileCfg.Server.Addr)
	applyStringConfig(cmd, "addr", &serveAddr, envCfg.Addr)
	applyStringConfig(cmd, "allowed-origin", &serveOrigin, fileCfg.Server.AllowedOrigin)
	applyStringConfig(cmd, "allowed-origin", &serveOrigin, envCfg.AllowedOrigin)
	applyDurationConfig(cmd, "monitor-interval", &monitorInterval, fileCfg.Monitor.Interval)
	applyDurationConfig(cmd, "monitor-interval", &monitorInterval, envCfg.MonitorInterval)
	applyDurationConfig(cmd, "presence-interval", &presenceInterval, fileCfg.Presence.Interval)
	applyDurationConfig(cmd, "presence-interval", &presenceInterval, envCfg.PresenceInterval)
	applyIntConfig(cmd, "death-resync-ticks", &presenceResync, fileCfg.Presence.DeathResyncTicks)
	return validateIntervals()
}

func validateIntervals() error {
	if monitorInterval <= 0 {
		return fmt.Errorf("--monitor-interval must be > 0")
	}
	if presenceInterval <= 0 {
		return fmt.Errorf("--presence-interval must be > 0")
	}
	if presenceResync <= 0 {
		return fmt.Errorf("--death-resync-ticks must be > 0")
	}
	return nil
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	if err := loadLayeredConfig(cmd); err != nil {
		return err
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	settings, err := config.LoadSettings(config.DefaultSettingsPath())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	borderless := winctl.NewBorderless(winctl.GameWindowTitle)
	autoStart := winctl.NewAutoStart(winctl.AppName)
	applyStartupToggles(logger, settings.Get(), borderless, autoStart)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	state := &live.State{}
	mon := monitor.New(gamedata.New(), st, state, monitor.Options{
		Interval: monitorInterval,
		Logger:   logger,
	})
	loop := presence.NewLoop(gamedata.New(), &presence.LogSink{Logger: logger}, presence.Options{
		Interval:    presenceInterval,
		ResyncTicks: presenceResync,
		Enabled:     settings.PresenceEnabled,
		Logger:      logger,
	})
	srv, err := api.NewServer(api.Config{
		Addr:          serveAddr,
		AllowedOrigin: serveOrigin,
		Version:       version,
		Store:         st,
		Settings:      settings,
		Live:          state,
		NewReader:     func() api.StatsReader { return gamedata.New() },
		Borderless:    borderless,
		AutoStart:     autoStart,
		Presence:      loop,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := mon.Run(ctx); err != nil {
			logger.Printf("warn: monitor stopped err=%v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil {
			logger.Printf("warn: presence stopped err=%v", err)
		}
	}()

	serveErr := srv.ListenAndServe(ctx)
	cancel()
	wg.Wait()
	if serveErr != nil {
		return fmt.Errorf("failed to serve: %w", serveErr)
	}
	return nil
}

// applyStartupToggles brings OS state in line with the saved settings.
// Unsupported platforms are skipped quietly.
func applyStartupToggles(logger *log.Logger, s config.Settings, borderless, autoStart winctl.Toggler) {
	if s.BorderlessFullscreen {
		if err := winctl.Set(borderless, true); err != nil && !errors.Is(err, winctl.ErrUnsupported) {
			logger.Printf("warn: borderless not applied err=%v", err)
		}
	}
	if err := winctl.Set(autoStart, s.AutoStart); err != nil && !errors.Is(err, winctl.ErrUnsupported) {
		logger.Printf("warn: autostart not applied enabled=%t err=%v", s.AutoStart, err)
	}
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show live presence in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runWatchCmd,
	}
	addPresenceFlags(cmd)
	return cmd
}

func runWatchCmd(cmd *cobra.Command, _ []string) error {
	if err := loadLayeredConfig(cmd); err != nil {
		return err
	}

	view := watchui.NewModel(winctl.GameWindowTitle)
	program := tea.NewProgram(view, tea.WithAltScreen())
	loop := presence.NewLoop(gamedata.New(), watchui.NewSink(program), presence.Options{
		Interval:    presenceInterval,
		ResyncTicks: presenceResync,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	_, err := program.Run()
	cancel()
	<-done
	if err != nil {
		return fmt.Errorf("failed to run watch TUI: %w", err)
	}
	return nil
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show session and death history",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().Int64Var(&statsCharacter, "character", 0, "limit to one character id")
	cmd.Flags().IntVar(&statsLast, "last", defaultStatsLast, "limit to last N sessions (0 for all)")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window and recent summary size")
	cmd.Flags().IntVar(&statsTopZones, "top", defaultTopZones, "zones listed (0 for all)")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	if err := loadStatsConfig(cmd); err != nil {
		return err
	}
	if statsLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	if statsCurveWindow < 1 {
		return fmt.Errorf("--curve-window must be >= 1")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	report, err := stats.BuildReport(cmd.Context(), st, model.ReportConfig{
		CharacterID: statsCharacter,
		Last:        statsLast,
		CurveWindow: statsCurveWindow,
		TopZones:    statsTopZones,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("character %d not found", statsCharacter)
		}
		return fmt.Errorf("failed to build report: %w", err)
	}
	return renderReport(cmd, report)
}

func loadStatsConfig(cmd *cobra.Command) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	envCfg, err := config.LoadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}
	applyStringConfig(cmd, "db", &dbPath, fileCfg.Storage.DB)
	applyStringConfig(cmd, "db", &dbPath, envCfg.DB)
	return nil
}

func renderReport(cmd *cobra.Command, report stats.Report) error {
	w := cmd.OutOrStdout()
	if err := stats.RenderSummary(w, report, time.Now()); err != nil {
		return err
	}
	if err := stats.RenderTrend(w, report.Sessions, statsCurveWindow, stats.TerminalWidth()); err != nil {
		return err
	}
	if err := stats.RenderSessionTable(w, report.Sessions); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	if err := stats.RenderZoneTable(w, report.Zones); err != nil {
		return err
	}
	if report.CharacterStats != nil {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if err := stats.RenderCharacterStats(w, *report.CharacterStats); err != nil {
			return err
		}
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target, value *time.Duration) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# ember configuration
# Uncomment a value to enable it. Environment variables (EMBER_*) override
# config values and CLI flags override both.

[server]
# addr = %q               # HTTP listen address
# allowed-origin = %q     # Origin allowed by CORS

[monitor]
# interval = %q                # Session monitor poll interval

[presence]
# interval = %q               # Presence refresh interval
# death-resync-ticks = %d       # Presence ticks between death count reads

[storage]
# db = %q
`,
		api.DefaultAddr,
		api.DefaultAllowedOrigin,
		monitor.DefaultInterval.String(),
		presence.DefaultInterval.String(),
		presence.DefaultResyncTicks,
		config.DefaultDBPath(),
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
