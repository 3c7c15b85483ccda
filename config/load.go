package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile 读取配置文件，按扩展名选择 JSON 或 YAML
//
// 未出现在文件中的字段保留 NewConfig 的默认值。
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FromJSON(data)
	default:
		return FromYAML(data)
	}
}

// FromJSON 从 JSON 解析配置
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(cfg)
}

// FromYAML 从 YAML 解析配置
func FromYAML(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	// relay 模式下未显式指定端口时使用 3479
	if cfg.IsRelay() && cfg.Listen.Port == DefaultBindingPort {
		cfg.Listen.Port = DefaultRelayPort
	}
	if cfg.Credentials == nil {
		cfg.Credentials = make(map[string]string)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envVarRegex 匹配 ${VAR}、${VAR:-default} 与 $VAR
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if varName, def, ok := strings.Cut(name, ":-"); ok {
			if val, found := os.LookupEnv(varName); found {
				return val
			}
			return def
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// redactedValue 敏感值占位符
const redactedValue = "[REDACTED]"

// Redacted 返回隐藏凭据密钥后的副本，可安全输出到日志
func (c *Config) Redacted() *Config {
	out := *c
	out.Credentials = make(map[string]string, len(c.Credentials))
	for name := range c.Credentials {
		out.Credentials[name] = redactedValue
	}
	return &out
}

// String 返回隐藏敏感值后的 YAML 表示
func (c *Config) String() string {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
