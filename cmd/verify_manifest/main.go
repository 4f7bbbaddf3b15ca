// verify_manifest - manifest 与帧资源检查工具
//
// 按应用相同的来源顺序解析 manifest，打印每个序列的帧数、时长和加载策略；
// 使用 -probe 时逐帧拉取并解码，报告不可用的帧。
//
// 用法：
//
//	go run ./cmd/verify_manifest -config config.yaml -probe
//	go run ./cmd/verify_manifest -manifest https://example.com/animations/manifest.json
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/gonewx/gekmascot/pkg/app"
	"github.com/gonewx/gekmascot/pkg/embedded"
	"github.com/gonewx/gekmascot/pkg/loader"
	"github.com/gonewx/gekmascot/pkg/manifest"
	"github.com/gonewx/gekmascot/pkg/resource"
	"github.com/gonewx/gekmascot/pkg/texture"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

// probeDecoder 只检查帧能否解码，不创建 GPU 图像
type probeDecoder struct{}

func (probeDecoder) Decode(url string, data []byte) (*texture.Texture, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return texture.New(url, nil, cfg.Width, cfg.Height), nil
}

func main() {
	configPath := flag.String("config", "", "配置文件路径（为空时使用内置默认配置）")
	manifestURL := flag.String("manifest", "", "只检查这一个 manifest，忽略配置中的来源")
	probe := flag.Bool("probe", false, "逐帧拉取并解码")
	batch := flag.Int("batch", 8, "探测时的并发数")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	embedded.Init(os.DirFS("."))

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	router := resource.NewRouter(cfg.HTTPTimeout.Std(), cfg.Manifest.BaseURL)
	seqs := cfg.Behavior.Sequences
	sources, fallback := cfg.Manifest.Sources, cfg.Manifest.Fallback
	if *manifestURL != "" {
		sources, fallback = []string{*manifestURL}, ""
	}
	ml := manifest.NewLoader(router, sources, fallback, nil,
		seqs.Sleep, seqs.Wake, seqs.Idle, seqs.SleepTransition)

	ctx := context.Background()
	m, source, err := ml.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("manifest: %s (fps %.2f)\n", source, m.FPS)
	for _, key := range m.Keys() {
		spec, _ := m.Lookup(key)
		n := spec.FrameCount()
		fmt.Printf("  %-18s %4d frames  %6.2fs  loop=%-5v  %s\n",
			key, n, float64(n)/m.FPS, spec.Loop, spec.Strategy())
	}

	if !*probe {
		return
	}

	fl := loader.New(router, probeDecoder{}, 1, cfg.Player.LoadTimeout.Std())
	defer fl.Dispose()

	failedTotal := 0
	for _, key := range m.Keys() {
		spec, _ := m.Lookup(key)
		urls := spec.FrameURLs()
		start := time.Now()
		ok, failed := fl.Prefetch(ctx, urls, *batch, 0)
		status := "✓"
		if failed > 0 {
			status = "✗"
		}
		fmt.Printf("%s %-18s %d/%d frames in %s\n", status, key, ok, len(urls), time.Since(start).Round(time.Millisecond))
		failedTotal += failed
	}

	st := fl.Stats()
	fmt.Printf("loaded %d, failed %d, timed out %d\n", st.Loaded, st.Failed, st.TimedOut)
	if failedTotal > 0 {
		os.Exit(1)
	}
}
