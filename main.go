package main

import (
	"embed"
	"log/slog"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"voiceclick/internal/config"
	"voiceclick/internal/logging"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	level := slog.LevelInfo
	format := "text"
	if cfg, err := config.Load(); err == nil {
		if parsed, err := logging.ParseLevel(cfg.Log.Level); err == nil {
			level = parsed
		}
		format = cfg.Log.Format
	}
	logger := logging.New(os.Stderr, level, format, true)
	slog.SetDefault(logger)

	app := NewApp(logger)
	err := wails.Run(&options.App{
		Title:     "VoiceClick",
		Width:     420,
		Height:    560,
		MinWidth:  360,
		MinHeight: 420,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		logger.Error("application exited with error", "error", err)
		os.Exit(1)
	}
}
