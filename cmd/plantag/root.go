package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/conf"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/ocr"
	"plan-tagger/internal/store"
	"plan-tagger/internal/version"
)

// cli carries what every subcommand shares. The recognizer constructor is
// replaceable so tests run without Tesseract.
type cli struct {
	out        io.Writer
	configPath string
	dbPath     string
	logLevel   string

	settings *conf.Settings
	logger   *slog.Logger

	newRecognizer func(s *conf.Settings, logger *slog.Logger) (ocr.Recognizer, func(), error)
}

func newCLI(out io.Writer) *cli {
	return &cli{out: out, newRecognizer: tesseractRecognizer}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "plantag",
		Short:         "Tag-pattern matching and recognition for construction plans",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initialize()
		},
	}
	root.SetOut(c.out)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "configuration file (default: plantag.yaml)")
	flags.StringVar(&c.dbPath, "db", "", "annotation database (overrides store.path)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (overrides log.level)")

	root.AddCommand(
		c.matchCommand(),
		c.ocrCommand(),
		c.pagesCommand(),
		c.patternsCommand(),
		c.exportCommand(),
		c.importCommand(),
	)
	return root
}

func (c *cli) initialize() error {
	settings, err := conf.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.dbPath != "" {
		settings.Store.Path = c.dbPath
	}
	if c.logLevel != "" {
		settings.Log.Level = c.logLevel
	}
	c.settings = settings
	// Logs go to stderr so command output stays parseable.
	c.logger = logging.Init(settings.Log.Level, settings.Log.Format, nil)
	return nil
}

func (c *cli) openStore() (*store.SQLiteStore, error) {
	return store.OpenSQLite(c.settings.Store.Path, c.logger)
}

func tesseractRecognizer(s *conf.Settings, logger *slog.Logger) (ocr.Recognizer, func(), error) {
	tess, err := ocr.NewEngine(ocr.Options{
		Language:         s.OCR.Language,
		Whitelist:        s.OCR.Whitelist,
		UpscaleMinHeight: s.OCR.UpscaleMinHeight,
		MinConfidence:    s.OCR.MinConfidence,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return tess, func() { _ = tess.Close() }, nil
}

// parsePatterns reads "PREFIX" or "PREFIX=TABLE" flag values, in order.
func parsePatterns(values []string) ([]annotation.TagPattern, error) {
	patterns := make([]annotation.TagPattern, 0, len(values))
	for i, v := range values {
		prefix, table, _ := strings.Cut(v, "=")
		p := annotation.TagPattern{
			ID:            fmt.Sprintf("arg-%d", i+1),
			Prefix:        prefix,
			ScheduleTable: table,
		}.Normalize()
		if p.ScheduleTable == "" {
			p.ScheduleTable = p.Prefix
		}
		if err := p.Validate(patterns); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// parseRect reads "left,top,width,height".
func parseRect(s string) (annotation.Position, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return annotation.Position{}, fmt.Errorf("rect %q: want left,top,width,height", s)
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return annotation.Position{}, fmt.Errorf("rect %q: %w", s, err)
		}
		v[i] = f
	}
	pos := annotation.Position{Left: v[0], Top: v[1], Width: v[2], Height: v[3]}
	if err := pos.Validate(); err != nil {
		return pos, err
	}
	if pos.Width == 0 || pos.Height == 0 {
		return pos, fmt.Errorf("rect %q: empty region", s)
	}
	return pos, nil
}
