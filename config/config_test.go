package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 测试创建默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.DHT.BucketSize)
	assert.Equal(t, 20, cfg.DHT.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.DHT.RequestTimeout.Duration())
	assert.Equal(t, time.Hour, cfg.DHT.RefreshInterval.Duration())
	assert.Len(t, cfg.Transport.ListenAddrs, 2)
	assert.True(t, cfg.Identity.NodeID().IsZero())

	t.Log("✅ NewConfig 测试通过")
}

// TestConfig_Validate 测试配置验证
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid id", func(c *Config) { c.Identity.ID = "abc" }},
		{"no listen addrs", func(c *Config) { c.Transport.ListenAddrs = nil }},
		{"bad listen addr", func(c *Config) { c.Transport.ListenAddrs = []string{"nowhere"} }},
		{"zero bucket size", func(c *Config) { c.DHT.BucketSize = 0 }},
		{"zero concurrency", func(c *Config) { c.DHT.Concurrency = 0 }},
		{"zero timeout", func(c *Config) { c.DHT.RequestTimeout = 0 }},
		{"negative refresh", func(c *Config) { c.DHT.RefreshInterval = Duration(-time.Second) }},
		{"negative ttl", func(c *Config) { c.DHT.ValueTTL = Duration(-time.Second) }},
		{"bad bootstrap", func(c *Config) { c.DHT.BootstrapPeers = []string{"x:y"} }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.Error(t, ValidateAll(nil))
	assert.Panics(t, func() { MustValidate(nil) })

	t.Log("✅ Config.Validate 测试通过")
}

// TestFromJSON 测试 JSON 加载
func TestFromJSON(t *testing.T) {
	data := []byte(`{
		"identity": {"id": "0123456789abcdef0123456789abcdef01234567"},
		"transport": {"listen_addrs": ["127.0.0.1:4000"]},
		"dht": {"bucket_size": 8, "request_timeout": "500ms", "bootstrap_peers": ["10.0.0.1"]}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", cfg.Identity.NodeID().String())
	assert.Equal(t, 8, cfg.DHT.BucketSize)
	assert.Equal(t, 500*time.Millisecond, cfg.DHT.RequestTimeout.Duration())
	// 未出现的字段保留默认值
	assert.Equal(t, 20, cfg.DHT.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)

	eps, err := cfg.Transport.Endpoints()
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, uint16(4000), eps[0].Port())

	_, err = FromJSON([]byte(`{"dht": {"request_timeout": "soon"}}`))
	assert.Error(t, err)

	t.Log("✅ FromJSON 测试通过")
}

// TestLoadFile 测试从文件加载与保存
func TestLoadFile(t *testing.T) {
	cfg := NewConfig()
	cfg.DHT = cfg.DHT.WithBucketSize(4).WithBootstrapPeers("127.0.0.1:5000")

	data, err := cfg.ToJSON()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "kaddht.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// TestApplyEnv 测试环境变量覆盖
func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"KADDHT_ID":               "ffffffffffffffffffffffffffffffffffffffff",
		"KADDHT_LISTEN":           "127.0.0.1:1, [::1]:2",
		"KADDHT_BOOTSTRAP":        "10.0.0.1:3,",
		"KADDHT_BUCKET_SIZE":      "16",
		"KADDHT_CONCURRENCY":      "4",
		"KADDHT_REQUEST_TIMEOUT":  "1s",
		"KADDHT_REFRESH_INTERVAL": "0s",
		"KADDHT_LOG_LEVEL":        "debug",
		"KADDHT_LOG_FORMAT":       "json",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := NewConfig()
	require.NoError(t, cfg.applyEnv(lookup))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, env["KADDHT_ID"], cfg.Identity.ID)
	assert.Equal(t, []string{"127.0.0.1:1", "[::1]:2"}, cfg.Transport.ListenAddrs)
	assert.Equal(t, []string{"10.0.0.1:3"}, cfg.DHT.BootstrapPeers)
	assert.Equal(t, 16, cfg.DHT.BucketSize)
	assert.Equal(t, 4, cfg.DHT.Concurrency)
	assert.Equal(t, time.Second, cfg.DHT.RequestTimeout.Duration())
	assert.Zero(t, cfg.DHT.RefreshInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	env = map[string]string{"KADDHT_BUCKET_SIZE": "many"}
	assert.Error(t, NewConfig().applyEnv(lookup))
}

// TestValidateAndFix 测试自动修复
func TestValidateAndFix(t *testing.T) {
	cfg := NewConfig()
	cfg.Transport.ListenAddrs = nil
	cfg.DHT.BucketSize = 0
	cfg.DHT.Concurrency = 0
	cfg.Log.Level = ""

	fixed, err := ValidateAndFix(cfg)
	require.NoError(t, err)
	assert.Len(t, fixed.Transport.ListenAddrs, 2)
	assert.Equal(t, 20, fixed.DHT.BucketSize)
	assert.Equal(t, 20, fixed.DHT.Concurrency)
	assert.Equal(t, "info", fixed.Log.Level)

	cfg = NewConfig()
	cfg.Identity.ID = "zz"
	_, err = ValidateAndFix(cfg)
	assert.Error(t, err, "无法修复的错误应返回")

	fixed, err = ValidateAndFix(nil)
	require.NoError(t, err)
	assert.NotNil(t, fixed)
}

// TestDuration 测试 Duration JSON 编解码
func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Duration())

	assert.Error(t, json.Unmarshal([]byte(`"later"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}
