// Package main provides the entry point for the Plan Tagger desktop application.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"
	"github.com/spf13/cobra"

	"plan-tagger/internal/app"
	"plan-tagger/internal/conf"
	"plan-tagger/internal/engine"
	"plan-tagger/internal/logging"
	"plan-tagger/internal/metrics"
	"plan-tagger/internal/ocr"
	"plan-tagger/internal/store"
	"plan-tagger/internal/version"
	"plan-tagger/ui/canvas"
	"plan-tagger/ui/mainwindow"
)

const appID = "com.plantagger.desktop"

func main() {
	var (
		configPath string
		pageNumber int
	)
	cmd := &cobra.Command{
		Use:     "plantagger [plan.pdf|plan.png]",
		Short:   "Mark and link tag codes on construction plans",
		Version: version.String(),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := conf.Load(configPath)
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return run(cmd.Context(), settings, path, pageNumber)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file (default: plantag.yaml)")
	cmd.Flags().IntVarP(&pageNumber, "page", "p", 1, "page to open")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, settings *conf.Settings, path string, pageNumber int) error {
	logger := logging.Init(settings.Log.Level, settings.Log.Format, nil)
	logger.Info("starting", "version", version.String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := store.OpenSQLite(settings.Store.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open annotation store: %w", err)
	}
	defer st.Close()

	recognizer := newRecognizer(settings, logger)
	if closer, ok := recognizer.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	var engineMetrics *metrics.EngineMetrics
	if settings.Metrics.Enabled {
		m, err := metrics.NewMetrics()
		if err != nil {
			return err
		}
		engineMetrics = m.Engine
		if settings.Metrics.Listen != "" {
			if _, err := m.Serve(ctx, settings.Metrics.Listen, logging.OrModule(logger, "metrics")); err != nil {
				logger.Warn("metrics endpoint unavailable", "error", err)
			}
		}
	}

	fyneApp := fyneapp.NewWithID(appID)
	fyneApp.Settings().SetTheme(mainwindow.Theme{})

	ac := canvas.NewAnnotationCanvas(logger)
	session := app.NewSession(app.Deps{
		Store:      st,
		Recognizer: recognizer,
		Raster:     ac.RenderedPage,
		Metrics:    engineMetrics,
		Logger:     logger,
		Config:     engine.ConfigFromSettings(settings),
	}, ac)
	defer session.Close()

	win := mainwindow.New(fyneApp, session, ac, logger)
	if path != "" {
		if err := win.OpenDocument(path, pageNumber); err != nil {
			logger.Error("failed to open document", "path", path, "error", err)
			dialog.ShowError(err, win)
		}
	} else {
		win.RestoreLastDocument()
	}

	if settings.Debug {
		setupHotReload(ctx, win, session, logger)
	}

	win.ShowAndRun()
	return nil
}

// newRecognizer builds the cached Tesseract recognizer. Without Tesseract
// the application still runs; recognition requests then fail.
func newRecognizer(settings *conf.Settings, logger *slog.Logger) ocr.Recognizer {
	tess, err := ocr.NewEngine(ocr.Options{
		Language:         settings.OCR.Language,
		Whitelist:        settings.OCR.Whitelist,
		UpscaleMinHeight: settings.OCR.UpscaleMinHeight,
		MinConfidence:    settings.OCR.MinConfidence,
	}, logger)
	if err != nil {
		logger.Warn("text recognition unavailable", "error", err)
		return nil
	}
	return closingRecognizer{Recognizer: ocr.NewCachedRecognizer(tess, settings.OCR.CacheTTL), engine: tess}
}

// closingRecognizer releases the Tesseract client behind a cache.
type closingRecognizer struct {
	ocr.Recognizer
	engine *ocr.Engine
}

func (c closingRecognizer) Close() error { return c.engine.Close() }

// setupHotReload offers a restart when the binary is rebuilt.
func setupHotReload(ctx context.Context, win fyne.Window, session *app.Session, logger *slog.Logger) {
	watcher := app.NewBinaryWatcher(2 * time.Second)
	if watcher == nil {
		logger.Warn("hot reload: unable to determine executable path")
		return
	}
	logger.Info("hot reload: watching", "path", watcher.ExecPath(),
		"modified", watcher.Baseline().Format("15:04:05"))

	var onChange func()
	onChange = func() {
		logger.Info("hot reload: newer binary detected")
		dialog.ShowConfirm("New Version Available",
			"The application binary has been updated.\nRestart now?",
			func(restart bool) {
				if restart {
					logger.Info("hot reload: restarting")
					if err := session.Close(); err != nil {
						logger.Warn("hot reload: document did not close cleanly", "error", err)
					}
					if err := watcher.Restart(); err != nil {
						logger.Error("hot reload: restart failed", "error", err)
					}
					return
				}
				watcher.ResetBaseline()
				watcher.Watch(ctx, onChange)
			}, win)
	}
	watcher.Watch(ctx, onChange)
}
