package obfuscator

import (
	"sync/atomic"
)

// Obfuscator 是混淆器的主结构体
type Obfuscator struct {
	// 配置选项
	Config *Config

	// 外部协作者，由调用方在 Run 之前设置，均可为空
	Fingerprinter Fingerprinter
	PasswordGate  PasswordGate

	// 按配置顺序排列的变换
	transforms []Transform

	seed  int64
	stats counters
}

// Config 存储混淆配置，可从 TOML 或 YAML 文件加载
type Config struct {
	Input  string `toml:"input" yaml:"input"`
	Output string `toml:"output" yaml:"output"`

	// 启用的变换及其相对顺序: rename, strings, flow, antidebug, license, noop
	Transforms []string `toml:"transforms" yaml:"transforms"`

	Seed    int64 `toml:"seed" yaml:"seed"`       // 0 表示随机生成
	Padding int   `toml:"padding" yaml:"padding"` // 每个方法插入的死分支数
	Workers int   `toml:"workers" yaml:"workers"` // 并行处理类的数量

	// 重命名选项
	RenamePrefix       string   `toml:"rename-prefix" yaml:"rename-prefix"`
	Naming             string   `toml:"naming" yaml:"naming"` // sequential 或 natural
	RenameSynthetic    bool     `toml:"rename-synthetic" yaml:"rename-synthetic"`
	ExcludePatterns    []string `toml:"exclude" yaml:"exclude"`
	PreserveReflection bool     `toml:"preserve-reflection" yaml:"preserve-reflection"`
	Mapping            string   `toml:"mapping" yaml:"mapping"`

	// 字符串加密选项
	StringKey    string `toml:"string-key" yaml:"string-key"` // base64 编码的 AES-128 密钥
	DecoderClass string `toml:"decoder-class" yaml:"decoder-class"`

	License LicenseConfig `toml:"license" yaml:"license"`
}

// LicenseConfig 是授权校验变换的配置
type LicenseConfig struct {
	GuardClass    string   `toml:"guard-class" yaml:"guard-class"`
	Templates     []string `toml:"templates" yaml:"templates"` // 校验类的 .class 文件
	ExpectedHash  string   `toml:"expected-hash" yaml:"expected-hash"`
	ExpectedPath  string   `toml:"expected-path" yaml:"expected-path"`
	CheckPassword bool     `toml:"check-password" yaml:"check-password"`
}

// Statistics 存储混淆统计信息
type Statistics struct {
	Classes          int
	RenamedClasses   int
	EncryptedStrings int
	DeadBranches     int
	GuardedMethods   int
	LicenseChecks    int
	SyntheticClasses int
}

// counters 在并行处理类时累加
type counters struct {
	classes          atomic.Int64
	renamedClasses   atomic.Int64
	encryptedStrings atomic.Int64
	deadBranches     atomic.Int64
	guardedMethods   atomic.Int64
	licenseChecks    atomic.Int64
	syntheticClasses atomic.Int64
}
