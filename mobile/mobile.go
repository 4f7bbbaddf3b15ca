//go:build mobile

// Package mobile 提供 ebitenmobile 绑定入口
//
// 此包用于构建 Android (.aar) 和 iOS (.xcframework) 包。
// 使用 ebitenmobile 工具构建时会自动调用 init() 函数。
//
// 此文件仅在使用 -tags mobile 构建时编译。手动构建：
//
//	# Android
//	ebitenmobile bind -target android -tags mobile -androidapi 23 -javapkg com.gonewx.gekmascot -o build/android/gekmascot.aar -v ./mobile
//
//	# iOS (仅 macOS)
//	ebitenmobile bind -target ios -tags mobile -o build/ios/GekMascot.xcframework -v ./mobile
package mobile

import (
	"github.com/hajimehoshi/ebiten/v2/mobile"
	"github.com/rs/zerolog/log"

	"github.com/gonewx/gekmascot/pkg/app"
	"github.com/gonewx/gekmascot/pkg/embedded"
)

var mascotApp *app.App

func init() {
	// dataFS 在 embed.go 中声明
	embedded.Init(dataFS)

	a, err := app.NewApp(app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("初始化失败")
	}
	mascotApp = a

	// 注册到 ebitenmobile
	mobile.SetGame(mascotApp)
}

// Interact 供宿主平台转发原生手势
func Interact() {
	if mascotApp != nil {
		mascotApp.Interact()
	}
}

// Dummy 是一个空导出函数，确保包被 ebitenmobile 正确识别
func Dummy() {}
