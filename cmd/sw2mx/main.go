package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"sonicwall-to-mx/internal/config"
	"sonicwall-to-mx/internal/dashboard"
	"sonicwall-to-mx/internal/engine"
	"sonicwall-to-mx/internal/output"
	"sonicwall-to-mx/internal/parser"
)

var version = "dev"

var (
	configFile     string
	rulesFile      string
	ruleProvider   string
	rulesDB        string
	zonesFile      string
	outDir         string
	mapping        bool
	defaultDeny    bool
	nonInteractive bool
	push           bool
	metricsFile    string
	logLevel       string
	logFile        string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sw2mx",
		Short: "Translate a SonicWall configuration into Meraki MX firewall rules",
		Long: `sw2mx reads a SonicWall show-run export (or the rule tables of a MariaDB
	database), resolves its objects and groups, and translates the access rules
	into Meraki MX policy objects and outbound, inbound and site-to-site rules.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVar(&configFile, "config", "sw2mx.yaml", "Run configuration file (YAML)")
	rootCmd.Flags().StringVar(&ruleProvider, "provider", "showrun", "Rule provider type: 'showrun' or 'mariadb'")
	rootCmd.Flags().StringVarP(&rulesFile, "rules", "r", "", "SonicWall show-run export (for 'showrun' provider)")
	rootCmd.Flags().StringVar(&rulesDB, "db", "", "Database connection string (for 'mariadb' provider)")
	rootCmd.Flags().StringVar(&zonesFile, "zones", "", "Zone to VLAN CSV file (overrides zones_file)")
	rootCmd.Flags().StringVarP(&outDir, "out-dir", "o", ".", "Directory for the output artifacts")
	rootCmd.Flags().BoolVar(&mapping, "mapping", false, "Map rules to outbound, inbound and site-to-site rule sets by zone")
	rootCmd.Flags().BoolVar(&defaultDeny, "default-deny", false, "Add default deny rules between local VLAN zones")
	rootCmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Never prompt; unset features are disabled")
	rootCmd.Flags().BoolVar(&push, "push", false, "Install objects and rules on the dashboard network")
	rootCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run counters to this Prometheus textfile")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (default: stderr)")

	rootCmd.AddCommand(newDiffCmd(), newVersionCmd())
	return rootCmd
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <old.json> <new.json>",
		Short: "Compare two translated rule plans",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := readDocument(args[0])
			if err != nil {
				return err
			}
			b, err := readDocument(args[1])
			if err != nil {
				return err
			}
			text, err := output.Diff(a, b, args[0], args[1])
			if err != nil {
				return err
			}
			if text == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No changes detected.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return errors.New("rule plans differ")
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sw2mx", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := setupLogger(logLevel, logFile)
	slog.SetDefault(logger)

	slog.Info("Starting sw2mx", "version", version)
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(configFile, cmd.Flags().Changed("config"))
	if err != nil {
		slog.Error("Failed to load configuration", "path", configFile, "error", err)
		return err
	}
	if zonesFile != "" {
		cfg.ZonesFile = zonesFile
	}
	if cmd.Flags().Changed("mapping") {
		cfg.IntelligentMapping = &mapping
	}
	if cmd.Flags().Changed("default-deny") {
		cfg.DefaultInterZoneDeny = &defaultDeny
	}
	if push {
		if err := cfg.CheckPush(); err != nil {
			return fmt.Errorf("cannot push: %w", err)
		}
	}

	zones, err := cfg.ResolveZones()
	if err != nil {
		slog.Error("Failed to load zones", "error", err)
		return err
	}
	useMapping, useDefaultDeny, err := cfg.Features(prompter())
	if err != nil {
		return err
	}

	slog.Info("Loading statements...", "provider", ruleProvider)
	source, closeSource, err := openSource(ruleProvider, rulesFile, rulesDB)
	if err != nil {
		slog.Error("Failed to open rule source", "error", err)
		return err
	}
	defer closeSource()

	res, err := engine.Run(ctx, engine.Input{
		Source:  source,
		Zones:   zones,
		Options: cfg.Options(useMapping, useDefaultDeny),
	})
	if err != nil {
		slog.Error("Translation failed", "error", err)
		return err
	}

	if err := output.NewSink(outDir).Write(res); err != nil {
		slog.Error("Failed to write artifacts", "dir", outDir, "error", err)
		return err
	}
	if metricsFile != "" {
		m := output.NewMetrics()
		m.Observe(res)
		if err := m.WriteFile(metricsFile); err != nil {
			slog.Error("Failed to write metrics", "path", metricsFile, "error", err)
			return err
		}
	}

	if push {
		client := dashboard.NewClient(cfg.BaseURL, cfg.APIKey)
		pusher, err := dashboard.NewPusher(ctx, client, cfg.OrgName, cfg.NetworkName)
		if err != nil {
			return err
		}
		if err := pusher.Push(ctx, res.Plan, res.Translation, useMapping); err != nil {
			slog.Error("Push failed", "error", err)
			return err
		}
	}

	slog.Info("Translation complete", "run", res.RunID, "duration", time.Since(startTime))
	return nil
}

// loadConfig falls back to defaults when the default config file is absent.
// A file named on the command line must exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrConfigMissing) && !explicit {
		slog.Info("No configuration file, using defaults", "path", path)
		return config.Default(), nil
	}
	return cfg, err
}

func prompter() config.Prompter {
	if nonInteractive || !isatty.IsTerminal(os.Stdin.Fd()) {
		return nil
	}
	return config.TerminalPrompter{}
}

func openSource(provider, rulesPath, dbConnStr string) (parser.Source, func(), error) {
	switch provider {
	case "showrun":
		if rulesPath == "" {
			return nil, nil, fmt.Errorf("rules file path must be provided for showrun provider")
		}
		file, err := os.Open(rulesPath)
		if err != nil {
			return nil, nil, err
		}
		return parser.NewSonicWallParser(file), func() { file.Close() }, nil
	case "mariadb":
		if dbConnStr == "" {
			return nil, nil, fmt.Errorf("database connection string must be provided for mariadb provider")
		}
		src, err := parser.NewMariaDBSource(dbConnStr)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown rule provider: %s", provider)
	}
}

func readDocument(path string) (*output.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := output.ReadDocument(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func setupLogger(level, logFilePath string) *slog.Logger {
	var logWriter io.Writer = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logWriter = f
		}
		// Falls back to stderr; the logger is not set up yet.
	}

	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: lvl}))
}
