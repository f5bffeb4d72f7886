package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "KADDHT_"

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
//
// 示例 JSON:
//
//	{
//	  "identity": {"id": "5fbc..."},
//	  "transport": {"listen_addrs": ["0.0.0.0:27980"]},
//	  "dht": {"bucket_size": 20, "request_timeout": "2s", "bootstrap_peers": ["10.0.0.1"]}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return FromJSON(data)
}

// ToJSON 序列化配置
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ApplyEnv 用 KADDHT_* 环境变量覆盖配置
//
// 支持的变量：
//   - KADDHT_ID
//   - KADDHT_LISTEN（逗号分隔）
//   - KADDHT_BOOTSTRAP（逗号分隔）
//   - KADDHT_BUCKET_SIZE、KADDHT_CONCURRENCY
//   - KADDHT_REQUEST_TIMEOUT、KADDHT_REFRESH_INTERVAL
//   - KADDHT_LOG_LEVEL、KADDHT_LOG_FORMAT
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("ID"); ok {
		c.Identity.ID = v
	}
	if v, ok := get("LISTEN"); ok {
		c.Transport.ListenAddrs = splitList(v)
	}
	if v, ok := get("BOOTSTRAP"); ok {
		c.DHT.BootstrapPeers = splitList(v)
	}
	if v, ok := get("BUCKET_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBUCKET_SIZE: %w", EnvPrefix, err)
		}
		c.DHT.BucketSize = n
	}
	if v, ok := get("CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCONCURRENCY: %w", EnvPrefix, err)
		}
		c.DHT.Concurrency = n
	}
	if v, ok := get("REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREQUEST_TIMEOUT: %w", EnvPrefix, err)
		}
		c.DHT.RequestTimeout = Duration(d)
	}
	if v, ok := get("REFRESH_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREFRESH_INTERVAL: %w", EnvPrefix, err)
		}
		c.DHT.RefreshInterval = Duration(d)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
