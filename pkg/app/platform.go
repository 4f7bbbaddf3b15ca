//go:build !mobile

package app

import "os"

// IsMobile 桌面端编译时返回 false
// 设置环境变量 GEKMASCOT_MOBILE_EMULATE=1 可强制启用移动模式（本地调试用）
func IsMobile() bool {
	return os.Getenv("GEKMASCOT_MOBILE_EMULATE") == "1"
}
