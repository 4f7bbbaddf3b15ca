package main

import (
	"flag"
	"os"
	"time"

	"github.com/gonewx/gekmascot/pkg/app"
	"github.com/gonewx/gekmascot/pkg/embedded"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（为空时使用内置默认配置）")
	verbose := flag.Bool("verbose", false, "输出调试日志")
	status := flag.Bool("status", false, "显示播放状态叠加层")
	feedAddr := flag.String("feed", "", "websocket 交互入口监听地址，覆盖配置中的 feedAddr")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// dataFS 在 embed.go 中声明
	embedded.Init(dataFS)

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("config")
	}
	if *feedAddr != "" {
		cfg.FeedAddr = *feedAddr
	}

	ebiten.SetWindowSize(cfg.Window.Width, cfg.Window.Height)
	ebiten.SetWindowTitle(cfg.Window.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	mascotApp, err := app.NewApp(app.Options{Config: cfg, ShowStatus: *status})
	if err != nil {
		log.Fatal().Err(err).Msg("初始化失败")
	}
	defer mascotApp.Close()

	if err := ebiten.RunGame(mascotApp); err != nil {
		log.Error().Err(err).Msg("game loop exited")
	}
}
