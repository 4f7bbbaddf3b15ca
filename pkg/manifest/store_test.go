package manifest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGdataStoreRoundTrip 使用临时 HOME 打开 gdata 存储并读写快照
func TestGdataStoreRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", "")

	store, err := OpenGdataStore(fmt.Sprintf("gekmascot_test_%d", time.Now().UnixNano()))
	if err != nil {
		t.Skipf("gdata storage unavailable: %v", err)
	}

	_, err = store.LoadLastGood()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.SaveLastGood([]byte(sampleJSON)))
	data, err := store.LoadLastGood()
	require.NoError(t, err)
	assert.Equal(t, sampleJSON, string(data))
}
