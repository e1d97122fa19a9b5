package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/safety-consultant/internal/core/ports/driving"
	"github.com/custodia-labs/safety-consultant/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Global flags.
var (
	verbose   bool
	logJSON   bool
	configDir string
)

// Runtime supplies the services behind the commands.
type Runtime interface {
	// Settings is always available.
	Settings() driving.SettingsService

	// Consultant wires the retrieval pipeline on first use.
	Consultant(ctx context.Context) (driving.Consultant, error)

	// Scheduler keeps the consultant's index current.
	Scheduler(ctx context.Context) (driving.Scheduler, error)

	// Close releases everything the runtime opened.
	Close() error
}

// RuntimeFactory builds a Runtime once global flags are parsed.
type RuntimeFactory func(configDir string) (Runtime, error)

var (
	newRuntime RuntimeFactory
	rt         Runtime
)

var rootCmd = &cobra.Command{
	Use:   "consultant",
	Short: "Answer workplace safety questions from your own documents",
	Long: `consultant indexes a directory of PDF, DOCX and TXT documents and answers
safety questions with a language model, citing the documents it used.

Start with 'consultant settings show', then 'consultant index' and
'consultant ask "What should I do in case of fire?"'.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupRuntime,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show detailed progress")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs to stderr as JSON")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.consultant)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the command line. factory is called once flags are parsed.
func Execute(ctx context.Context, factory RuntimeFactory) error {
	newRuntime = factory
	defer func() {
		newRuntime = nil
		if rt != nil {
			if err := rt.Close(); err != nil {
				logger.Warn("shutdown: %v", err)
			}
			rt = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func setupRuntime(_ *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	logger.SetJSON(logJSON)
	if rt != nil || newRuntime == nil {
		return nil
	}
	r, err := newRuntime(configDir)
	if err != nil {
		return err
	}
	rt = r
	return nil
}

func settingsService() (driving.SettingsService, error) {
	if rt == nil {
		return nil, errors.New("settings service not configured")
	}
	return rt.Settings(), nil
}

func consultantService(cmd *cobra.Command) (driving.Consultant, error) {
	if rt == nil {
		return nil, errors.New("consultant not configured")
	}
	return rt.Consultant(cmd.Context())
}
