package embedded

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNotInitialized 测试未初始化时的行为
func TestNotInitialized(t *testing.T) {
	Init(nil)

	assert.False(t, IsInitialized())
	_, err := ReadFile("data/manifest-base.json")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, Exists("data/manifest-base.json"))
}

// TestReadFile 测试读取嵌入文件和路径标准化
func TestReadFile(t *testing.T) {
	Init(fstest.MapFS{
		"data/manifest-base.json": {Data: []byte(`{"fps":24}`)},
		"data/config.yaml":        {Data: []byte("player: {}")},
	})
	defer Init(nil)

	require.True(t, IsInitialized())

	data, err := ReadFile("./data/manifest-base.json")
	require.NoError(t, err)
	assert.Equal(t, `{"fps":24}`, string(data))

	assert.True(t, Exists("data/config.yaml"))
	assert.False(t, Exists("data/missing.yaml"))

	_, err = ReadFile("assets/frame.png")
	assert.Error(t, err, "paths outside data/ are rejected")

	matches, err := Glob("data/*.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"data/manifest-base.json"}, matches)
}
