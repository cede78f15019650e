package obfuscator

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadConfig 从 TOML 或 YAML 文件加载配置，按扩展名选择格式，未出现的键保留默认值
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.DecodeFile(path, config)
		if err != nil {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
		if unknown := md.Undecoded(); len(unknown) > 0 {
			keys := make([]string, 0, len(unknown))
			for _, key := range unknown {
				keys = append(keys, key.String())
			}
			return nil, fmt.Errorf("配置文件中有未知的键: %s", strings.Join(keys, ", "))
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s", path)
	}

	return config, nil
}
