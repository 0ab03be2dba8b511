package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/elscan/internal/config"
	"github.com/MeKo-Tech/elscan/internal/version"
)

// annotationSkipValidation marks commands that only display or write
// configuration and must work with an invalid one.
const annotationSkipValidation = "elscan/skip-validation"

// app holds state shared by the commands of one root command tree.
type app struct {
	v        *viper.Viper
	cfgFile  string
	envFile  string
	cfg      *config.Config
	logger   *slog.Logger
	bindings map[*cobra.Command]map[string]string
}

// bind maps flags of cmd to configuration keys. Bindings are applied just
// before cmd runs, so commands can share keys without overriding each other.
func (a *app) bind(cmd *cobra.Command, flagToKey map[string]string) {
	a.bindings[cmd] = flagToKey
}

func (a *app) applyBindings(cmd *cobra.Command) error {
	for _, c := range []*cobra.Command{cmd.Root(), cmd} {
		for name, key := range a.bindings[c] {
			f := c.Flags().Lookup(name)
			if f == nil {
				f = c.PersistentFlags().Lookup(name)
			}
			if f == nil {
				return fmt.Errorf("flag --%s is not defined on %s", name, c.Name())
			}
			if err := a.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// preRun resolves configuration from flags, environment, .env and config
// files, then installs the JSON logger.
func (a *app) preRun(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	if err := a.applyBindings(cmd); err != nil {
		return err
	}

	loader := config.NewLoaderWithViper(a.v)
	var err error
	if cmd.Annotations[annotationSkipValidation] != "" {
		a.cfg, err = loader.LoadWithoutValidation(a.cfgFile)
	} else {
		a.cfg, err = loader.LoadWithFile(a.cfgFile)
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	a.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: a.cfg.SlogLevel()}))
	slog.SetDefault(a.logger)
	if used := loader.ConfigFileUsed(); used != "" {
		a.logger.Debug("Configuration loaded", "file", used)
	}
	return nil
}

// NewRootCommand builds the elscan command tree with its own configuration state.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), bindings: make(map[*cobra.Command]map[string]string)}

	root := &cobra.Command{
		Use:   "elscan",
		Short: "Emergency lighting fixture extraction from architectural drawings",
		Long: `elscan finds emergency lighting fixtures on rasterized blueprints.

It detects candidate symbols with several binarization strategies, links
nearby text to each candidate, infers the fixture type and groups the
fixtures with an OpenAI-compatible model or a deterministic fallback.

Examples:
  elscan image page1.png page2.png --format text
  elscan pdf drawings.pdf --pages 1-3 --overlay-dir overlays
  elscan serve --port 8080
  elscan worker --redis-url redis://localhost:6379/0`,
		Version:           version.String(),
		SilenceUsage:      true,
		PersistentPreRunE: a.preRun,
	}
	root.SetVersionTemplate("elscan version {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $XDG_CONFIG_HOME/elscan, /etc/elscan)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	flags.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	a.bind(root, map[string]string{
		"verbose":   "verbose",
		"log-level": "log_level",
	})

	root.AddCommand(
		newImageCommand(a),
		newPDFCommand(a),
		newServeCommand(a),
		newWorkerCommand(a),
		newConfigCommand(a),
	)
	return root
}

// Execute runs the root command until it finishes or SIGINT/SIGTERM arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// addExtractionFlags registers the flags shared by the image and pdf commands.
func addExtractionFlags(fs *pflag.FlagSet) map[string]string {
	def := config.DefaultConfig()
	fs.StringP("format", "f", def.Output.Format, "output format: json, csv or text")
	fs.StringP("output", "o", "", "write the result to a file instead of stdout")
	fs.String("overlay-dir", "", "write per-page overlay PNGs with the detected fixtures")
	fs.Bool("overlay-labels", def.Output.OverlayLabels, "label overlay boxes with symbol or type")
	fs.String("ocr", def.OCR.Engine, "text source: tesseract, vector or none")
	fs.String("ocr-lang", def.OCR.Language, "tesseract language")
	fs.String("classifier", def.Classifier.Provider, "classifier provider: openai or fallback")
	fs.String("model", def.Classifier.Model, "chat completion model")
	fs.Float64("iou", def.Detector.IoUThreshold, "overlap at which candidates are merged")
	fs.Float64("distance", def.Association.Distance, "maximum center distance for associated text (px)")
	fs.Bool("include-ocr-symbols", false, "add symbols read directly from page text as fixtures")
	fs.Int("workers", 0, "pages processed concurrently (0 = number of CPUs)")
	return map[string]string{
		"format":              "output.format",
		"output":              "output.file",
		"overlay-dir":         "output.overlay_dir",
		"overlay-labels":      "output.overlay_labels",
		"ocr":                 "ocr.engine",
		"ocr-lang":            "ocr.language",
		"classifier":          "classifier.provider",
		"model":               "classifier.model",
		"iou":                 "detector.iou_threshold",
		"distance":            "association.distance",
		"include-ocr-symbols": "classifier.include_ocr_symbols",
		"workers":             "pipeline.max_workers",
	}
}
