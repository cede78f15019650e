package obfuscator

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"runtime"
	"strings"
)

const (
	defaultDecoderClass = "obf/runtime/StringDecoder"
	defaultGuardClass   = "obf/runtime/LicenseGuard"
)

// DefaultConfig 返回默认配置：重命名、字符串加密与控制流填充
func DefaultConfig() *Config {
	return &Config{
		Transforms:   []string{"rename", "strings", "flow"},
		Padding:      3,
		Workers:      runtime.NumCPU(),
		RenamePrefix: "C",
		Naming:       NamingSequential,
		DecoderClass: defaultDecoderClass,
		License: LicenseConfig{
			GuardClass: defaultGuardClass,
		},
	}
}

// New 创建新的混淆器实例，按配置构造变换列表
func New(config *Config) (*Obfuscator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	fillDefaults(config)

	seed := config.Seed
	if seed == 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
		if err != nil {
			return nil, fmt.Errorf("生成随机种子失败: %w", err)
		}
		seed = n.Int64()
	}

	o := &Obfuscator{
		Config: config,
		seed:   seed,
	}
	for _, name := range config.Transforms {
		t, err := o.newTransform(name)
		if err != nil {
			return nil, err
		}
		o.transforms = append(o.transforms, t)
	}

	return o, nil
}

// NewWithTransforms 使用调用方给定的变换列表创建实例，Config.Transforms 被忽略
func NewWithTransforms(config *Config, transforms ...Transform) (*Obfuscator, error) {
	cfg := *DefaultConfig()
	if config != nil {
		cfg = *config
	}
	cfg.Transforms = nil
	o, err := New(&cfg)
	if err != nil {
		return nil, err
	}
	o.transforms = transforms
	return o, nil
}

func fillDefaults(c *Config) {
	def := DefaultConfig()
	if c.Padding < 0 {
		c.Padding = 0
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.RenamePrefix == "" {
		c.RenamePrefix = def.RenamePrefix
	}
	if c.Naming == "" {
		c.Naming = def.Naming
	}
	if c.DecoderClass == "" {
		c.DecoderClass = def.DecoderClass
	}
	if c.License.GuardClass == "" {
		c.License.GuardClass = def.License.GuardClass
	}
}

func (o *Obfuscator) newTransform(name string) (Transform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rename":
		return NewRenamer(o.Config)
	case "strings":
		return NewStringProtector(o.Config), nil
	case "flow":
		return NewControlFlowPadder(o.Config.Padding), nil
	case "antidebug":
		return NewAntiDebugGuard(), nil
	case "license":
		return NewLicenseGuard(o.Config.License), nil
	case "noop":
		return NoOp{}, nil
	}
	return nil, fmt.Errorf("未知的变换: %q", name)
}

// Seed 返回本次运行使用的随机种子
func (o *Obfuscator) Seed() int64 {
	return o.seed
}

// Transforms 返回配置顺序的变换列表
func (o *Obfuscator) Transforms() []Transform {
	return o.transforms
}

// GetStatistics 返回混淆统计信息
func (o *Obfuscator) GetStatistics() *Statistics {
	return &Statistics{
		Classes:          int(o.stats.classes.Load()),
		RenamedClasses:   int(o.stats.renamedClasses.Load()),
		EncryptedStrings: int(o.stats.encryptedStrings.Load()),
		DeadBranches:     int(o.stats.deadBranches.Load()),
		GuardedMethods:   int(o.stats.guardedMethods.Load()),
		LicenseChecks:    int(o.stats.licenseChecks.Load()),
		SyntheticClasses: int(o.stats.syntheticClasses.Load()),
	}
}
