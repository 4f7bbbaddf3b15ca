//go:build !android

package manifest

// ensureStorageDir 非 Android 平台上 gdata 会自行创建目录
func ensureStorageDir() error {
	return nil
}
