// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 文件加载、环境变量覆盖和保存。
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.DHT.BucketSize = 16
//
//	// 从 JSON 文件加载
//	cfg, err := config.LoadFile("kaddht.json")
//
//	// 应用 KADDHT_* 环境变量
//	err = cfg.ApplyEnv()
package config

// Config 是 go-kaddht 的完整配置结构
//
// 配置按照功能模块组织：
//   - Identity: 节点标识符
//   - Transport: UDP 监听地址
//   - DHT: Kademlia 参数与引导节点
//   - Log: 日志级别和格式
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// DHT DHT 配置
	DHT DHTConfig `json:"dht"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// NewConfig 创建默认配置
//
// 返回的配置使用所有组件的默认值，适用于大多数场景。
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Transport: DefaultTransportConfig(),
		DHT:       DefaultDHTConfig(),
		Log:       DefaultLogConfig(),
	}
}

// Validate 验证配置的有效性
//
// 检查所有子配置是否有效，发现无效配置时返回第一个错误。
func (c *Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.DHT.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}
