package config

import (
	"fmt"

	"github.com/dep2p/go-kaddht/pkg/types"
)

// IdentityConfig 身份配置
type IdentityConfig struct {
	// ID 节点标识符（40 位十六进制）
	// 为空时启动时随机生成
	ID string `json:"id,omitempty"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	if _, err := types.ParseID(c.ID); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	return nil
}

// NodeID 返回解析后的标识符，未配置时返回零值
func (c IdentityConfig) NodeID() types.ID {
	id, err := types.ParseID(c.ID)
	if err != nil {
		return types.ID{}
	}
	return id
}

// WithID 设置节点标识符
func (c IdentityConfig) WithID(id string) IdentityConfig {
	c.ID = id
	return c
}
