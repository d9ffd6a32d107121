// Package commands implements the CLI commands for cropcare.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/cropcare/internal/application"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/config"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
	"github.com/jbctechsolutions/cropcare/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config    *config.Config
	Formatter *output.Formatter
	Flags     *GlobalFlags
	Container *application.Container
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex // Protects appCtx for thread-safe access

	interruptMu sync.Mutex
	interruptFn func()
)

// skipInit lists commands that run without the application container.
var skipInit = map[string]bool{
	"help":       true,
	"version":    true,
	"completion": true,
	"init":       true,
}

// NewRootCmd creates the root command for the cropcare CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cropcare",
		Short: "CropCare - offline-first crop health assistant",
		Long: `CropCare diagnoses crop diseases from leaf photos, answers farming
questions and keeps working without a connection.

Everything you do offline is saved locally and sent to the backend
when connectivity returns:
  • Photo analysis with treatment recommendations
  • A streaming farming assistant
  • Weather forecasts for your fields
  • Replies and labels in your preferred language`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			tagInvocation(cmd)
			if skipInit[cmd.Name()] {
				return nil
			}
			return initializeApp(cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: ~/.cropcare/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewInitCmd())
	rootCmd.AddCommand(NewLoginCmd())
	rootCmd.AddCommand(NewLogoutCmd())
	rootCmd.AddCommand(NewWhoamiCmd())

	rootCmd.AddCommand(NewAnalyzeCmd())
	rootCmd.AddCommand(NewAnalysesCmd())
	rootCmd.AddCommand(NewChatCmd())
	rootCmd.AddCommand(NewTranslateCmd())
	rootCmd.AddCommand(NewPrefsCmd())
	rootCmd.AddCommand(NewWeatherCmd())

	// Offline state
	rootCmd.AddCommand(NewSyncCmd())
	rootCmd.AddCommand(NewCacheCmd())
	rootCmd.AddCommand(NewDaemonCmd())

	return rootCmd
}

// newFormatter builds a formatter for the --output flag writing to cmd's output.
// An invalid flag falls back to text; initializeApp reports it.
func newFormatter(cmd *cobra.Command) *output.Formatter {
	format, _ := output.ParseFormat(globalFlags.Output)
	return output.NewFormatter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON && output.IsColorSupported()),
	)
}

// tagInvocation gives the command's context a fresh correlation id so every
// log line written while it runs can be grouped.
func tagInvocation(cmd *cobra.Command) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.WithCorrelationID(ctx, ulid.Make().String()))
}

// initializeApp initializes the application context.
func initializeApp(cmd *cobra.Command) error {
	if _, err := output.ParseFormat(globalFlags.Output); err != nil {
		return domainerrors.Validation("%s", err.Error())
	}

	formatter := newFormatter(cmd)

	cfg, err := loadConfig(globalFlags.ConfigFile)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	container, err := application.NewContainer(cfg, globalFlags.Verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	appCtxMu.Lock()
	prev := appCtx
	appCtx = &AppContext{
		Config:    cfg,
		Formatter: formatter,
		Flags:     &globalFlags,
		Container: container,
	}
	appCtxMu.Unlock()

	if prev != nil && prev.Container != nil {
		_ = prev.Container.Close()
	}
	return nil
}

// loadConfig loads configuration from the specified file or default location.
func loadConfig(configPath string) (*config.Config, error) {
	loader, err := config.NewLoader("")
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}

	return loader.Load(configPath)
}

// GetAppContext returns the current application context.
// Returns nil if the app hasn't been initialized.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter.
// Creates a default formatter if app context is not initialized.
func GetFormatter() *output.Formatter {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Formatter
	}
	return output.NewFormatter()
}

// GetContainer returns the application container.
// Returns nil if the app hasn't been initialized.
func GetContainer() *application.Container {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Container
	}
	return nil
}

// mustApp returns the container and formatter for a command that needs both.
func mustApp() (*application.Container, *output.Formatter, error) {
	app := GetAppContext()
	if app == nil || app.Container == nil {
		return nil, nil, errors.New("application not initialized")
	}
	return app.Container, app.Formatter, nil
}

// onInterrupt routes the next Ctrl-C to fn instead of shutting down. A nil fn
// restores the default.
func onInterrupt(fn func()) {
	interruptMu.Lock()
	interruptFn = fn
	interruptMu.Unlock()
}

func takeInterrupt() func() {
	interruptMu.Lock()
	defer interruptMu.Unlock()
	return interruptFn
}

// Shutdown releases the application container.
func Shutdown() {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()

	if appCtx != nil && appCtx.Container != nil {
		_ = appCtx.Container.Close()
	}
	appCtx = nil
}

// Execute runs the root command with graceful shutdown support. The first
// SIGINT or SIGTERM cancels the command's context; Ctrl-C goes to the
// registered interrupt handler instead while one is set.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for sig := range sigChan {
			if fn := takeInterrupt(); fn != nil && sig == os.Interrupt {
				fn()
				continue
			}
			GetFormatter().Warning("Received signal %v, shutting down...", sig)
			cancel()
		}
	}()

	err := NewRootCmd().ExecuteContext(ctx)
	Shutdown()

	switch {
	case err == nil:
	case ctx.Err() != nil:
		os.Exit(130) // Standard exit code for SIGINT
	default:
		formatter := GetFormatter()
		formatter.Error("%s", err.Error())
		if code := domainerrors.CodeOf(err); code != "" && code != domainerrors.CodeValidation {
			formatter.Info("%s", domainerrors.UserMessage(err))
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeValidation:
		return 2
	case domainerrors.CodeAuth:
		return 3
	default:
		return 1
	}
}
