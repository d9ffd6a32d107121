package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/cropcare/internal/infrastructure/config"
	"github.com/jbctechsolutions/cropcare/internal/presentation/cli/output"
)

// InitResult holds the result of the init command for JSON output.
type InitResult struct {
	ConfigDir   string `json:"config_dir"`
	ConfigFile  string `json:"config_file"`
	CaptureDir  string `json:"capture_dir"`
	Initialized bool   `json:"initialized"`
}

// initOptions holds values supplied on the command line.
type initOptions struct {
	force    bool
	url      string
	anonKey  string
	language string
	dir      string
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize cropcare configuration",
		Long: `Initialize cropcare configuration interactively.

This command creates the ~/.cropcare/ directory and writes config.yaml
with your backend settings and preferred language. Values given as flags
are not prompted for; with -o json nothing is prompted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "overwrite existing configuration")
	cmd.Flags().StringVar(&opts.url, "url", "", "backend URL")
	cmd.Flags().StringVar(&opts.anonKey, "anon-key", "", "backend anonymous key")
	cmd.Flags().StringVar(&opts.language, "language", "", "preferred language tag, e.g. hi")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "configuration directory (default: ~/.cropcare)")

	return cmd
}

// prompter handles interactive user input.
type prompter struct {
	reader    *bufio.Reader
	formatter *output.Formatter
}

// newPrompter creates a new prompter.
func newPrompter(in io.Reader, formatter *output.Formatter) *prompter {
	return &prompter{
		reader:    bufio.NewReader(in),
		formatter: formatter,
	}
}

// prompt asks a question and returns the answer (or default if empty).
func (p *prompter) prompt(question, defaultValue string) (string, error) {
	if defaultValue != "" {
		p.formatter.Print("%s [%s]: ", question, defaultValue)
	} else {
		p.formatter.Print("%s: ", question)
	}

	answer, err := p.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return defaultValue, nil
	}
	return answer, nil
}

// promptSecret asks for sensitive input. The answer is echoed.
func (p *prompter) promptSecret(question string) (string, error) {
	p.formatter.Print("%s: ", question)

	answer, err := p.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	return strings.TrimSpace(answer), nil
}

// promptYesNo asks a yes/no question and returns true for yes.
func (p *prompter) promptYesNo(question string, defaultYes bool) (bool, error) {
	defaultStr := "[y/N]"
	if defaultYes {
		defaultStr = "[Y/n]"
	}

	p.formatter.Print("%s %s: ", question, defaultStr)

	answer, err := p.reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read input: %w", err)
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "" {
		return defaultYes, nil
	}

	return answer == "y" || answer == "yes", nil
}

func runInit(cmd *cobra.Command, opts initOptions) error {
	formatter := newFormatter(cmd)

	loader, err := config.NewLoader(opts.dir)
	if err != nil {
		return err
	}
	configFile := loader.DefaultConfigPath()

	if _, err := os.Stat(configFile); err == nil && !opts.force {
		if formatter.IsJSON() {
			return formatter.JSON(InitResult{
				ConfigDir:   loader.ConfigDir(),
				ConfigFile:  configFile,
				Initialized: false,
			})
		}
		formatter.Warning("Configuration already exists at %s", configFile)
		formatter.Info("Use --force to overwrite existing configuration")
		return nil
	}

	cfg := config.NewDefaultConfig()
	cfg.Backend.URL = strings.TrimRight(opts.url, "/")
	cfg.Backend.AnonKey = opts.anonKey
	cfg.User.Language = opts.language

	if !formatter.IsJSON() {
		formatter.Header("CropCare Configuration")
		formatter.Println("")
		formatter.Info("This wizard will help you connect cropcare to your backend.")
		formatter.Println("")

		if err := promptConfig(newPrompter(cmd.InOrStdin(), formatter), cfg); err != nil {
			return err
		}
		formatter.Println("")
	}

	if cfg.User.Language == "" {
		cfg.User.Language = config.DefaultLanguage
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := loader.Save(cfg, configFile); err != nil {
		return err
	}

	// Save writes relative defaults; create the directories they resolve to.
	resolved, err := loader.Load(configFile)
	if err != nil {
		return err
	}
	for _, dir := range []string{resolved.Capture.Directory, resolved.Capture.SpoolDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	result := InitResult{
		ConfigDir:   loader.ConfigDir(),
		ConfigFile:  configFile,
		CaptureDir:  resolved.Capture.Directory,
		Initialized: true,
	}
	if formatter.IsJSON() {
		return formatter.JSON(result)
	}

	formatter.Success("Configuration initialized successfully!")
	formatter.Println("")
	formatter.Item("Config file", result.ConfigFile)
	formatter.Item("Capture directory", result.CaptureDir)
	formatter.Println("")
	if cfg.Backend.Configured() {
		formatter.Info("Run 'cropcare login' to sign in")
	} else {
		formatter.Info("No backend configured; set %s and %s or rerun with --force", config.EnvBackendURL, config.EnvAnonKey)
	}
	return nil
}

// promptConfig asks for every value not already set.
func promptConfig(p *prompter, cfg *config.Config) error {
	p.formatter.SubHeader("Backend")
	p.formatter.Println("")

	if cfg.Backend.URL == "" {
		url, err := p.prompt("Backend URL (blank to stay offline)", "")
		if err != nil {
			return err
		}
		cfg.Backend.URL = strings.TrimRight(url, "/")
	}
	if cfg.Backend.URL != "" && cfg.Backend.AnonKey == "" {
		key, err := p.promptSecret("Anonymous key")
		if err != nil {
			return err
		}
		cfg.Backend.AnonKey = key
	}

	if cfg.User.Language == "" {
		lang, err := p.prompt("Preferred language", config.DefaultLanguage)
		if err != nil {
			return err
		}
		cfg.User.Language = lang
	}

	enableRealtime, err := p.promptYesNo("Receive live updates when running 'cropcare daemon'", cfg.Sync.Realtime)
	if err != nil {
		return err
	}
	cfg.Sync.Realtime = enableRealtime
	return nil
}
