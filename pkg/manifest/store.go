package manifest

import (
	"errors"
	"fmt"

	"github.com/quasilyte/gdata/v2"
)

// 存储路径常量
const (
	storeObject   = "manifest"
	storeProperty = "last_good"
)

// ErrNoSnapshot 存储中没有可用的 manifest
var ErrNoSnapshot = errors.New("no stored manifest")

// Store 保存最近一次成功加载的 manifest 原始字节
type Store interface {
	SaveLastGood(data []byte) error
	LoadLastGood() ([]byte, error)
}

// GdataStore 基于 gdata 的跨平台存储
//
// manager 可为 nil（降级模式）：保存静默忽略，读取返回 ErrNoSnapshot。
type GdataStore struct {
	manager *gdata.Manager
}

// NewGdataStore 创建存储
func NewGdataStore(manager *gdata.Manager) *GdataStore {
	return &GdataStore{manager: manager}
}

// OpenGdataStore 按应用名打开 gdata 存储；失败时返回降级存储和错误
func OpenGdataStore(appName string) (*GdataStore, error) {
	if err := ensureStorageDir(); err != nil {
		return NewGdataStore(nil), err
	}
	manager, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return NewGdataStore(nil), fmt.Errorf("failed to open gdata storage: %w", err)
	}
	return NewGdataStore(manager), nil
}

// SaveLastGood 实现 Store
func (s *GdataStore) SaveLastGood(data []byte) error {
	if s.manager == nil {
		return nil
	}
	if err := s.manager.SaveObjectProp(storeObject, storeProperty, data); err != nil {
		return fmt.Errorf("failed to save manifest snapshot: %w", err)
	}
	return nil
}

// LoadLastGood 实现 Store
func (s *GdataStore) LoadLastGood() ([]byte, error) {
	if s.manager == nil || !s.manager.ObjectPropExists(storeObject, storeProperty) {
		return nil, ErrNoSnapshot
	}
	data, err := s.manager.LoadObjectProp(storeObject, storeProperty)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest snapshot: %w", err)
	}
	return data, nil
}
