package obfuscator

import (
	"math/rand"

	"jvm-obfuscator/classfile"
)

// Kind 标识变换的具体类型
type Kind int

const (
	KindNoOp Kind = iota
	KindRenamer
	KindStringProtector
	KindControlFlowPadder
	KindAntiDebugGuard
	KindLicenseGuard
)

func (k Kind) String() string {
	switch k {
	case KindNoOp:
		return "noop"
	case KindRenamer:
		return "rename"
	case KindStringProtector:
		return "strings"
	case KindControlFlowPadder:
		return "flow"
	case KindAntiDebugGuard:
		return "antidebug"
	case KindLicenseGuard:
		return "license"
	}
	return "unknown"
}

// Transform 是对每个类执行的结构变换。
//
// Init 在所有类解码之后、任何 Apply 之前按配置顺序调用一次；
// Apply 可能在多个 goroutine 中对不同的类并行调用，只能读取 Init 中建立的状态；
// Finish 在所有类处理完后按配置顺序调用。
type Transform interface {
	Kind() Kind
	Init(ctx *Context) error
	Apply(rec *classfile.ClassRecord, env *ClassEnv) error
	Finish(ctx *Context) error
}

// ClassEnv 是处理单个类时的环境
type ClassEnv struct {
	// Index 是类在处理列表中的位置
	Index int
	// Rand 由运行种子与 Index 派生，只在当前类内使用
	Rand *rand.Rand
}

// Context 是一次运行的共享状态
type Context struct {
	Config        *Config
	Seed          int64
	Fingerprinter Fingerprinter
	PasswordGate  PasswordGate

	stats      *counters
	transforms []Transform
	records    []*classfile.ClassRecord
	synthetic  []*classfile.ClassRecord
	mainClass  string
}

// Records 返回从归档解码的类，保持归档顺序
func (c *Context) Records() []*classfile.ClassRecord {
	return c.records
}

// ClassNames 返回归档中类的内部名，保持归档顺序
func (c *Context) ClassNames() []string {
	names := make([]string, 0, len(c.records))
	for _, rec := range c.records {
		names = append(names, rec.Name)
	}
	return names
}

// MainClass 返回清单中入口类的原始内部名
func (c *Context) MainClass() string {
	return c.mainClass
}

// AddSynthetic 追加一个合成类，它会和归档中的类一起经过所有变换
func (c *Context) AddSynthetic(rec *classfile.ClassRecord) {
	c.synthetic = append(c.synthetic, rec)
	c.stats.syntheticClasses.Add(1)
}

// Synthetic 返回目前已登记的合成类
func (c *Context) Synthetic() []*classfile.ClassRecord {
	return c.synthetic
}

func (c *Context) find(k Kind) Transform {
	for _, t := range c.transforms {
		if t.Kind() == k {
			return t
		}
	}
	return nil
}

// Renamer 返回本次运行中的第一个重命名变换，没有时为 nil
func (c *Context) Renamer() *Renamer {
	r, _ := c.find(KindRenamer).(*Renamer)
	return r
}

// StringProtector 返回本次运行中的字符串加密变换，没有时为 nil
func (c *Context) StringProtector() *StringProtector {
	s, _ := c.find(KindStringProtector).(*StringProtector)
	return s
}

// LicenseGuard 返回本次运行中的授权校验变换，没有时为 nil
func (c *Context) LicenseGuard() *LicenseGuard {
	g, _ := c.find(KindLicenseGuard).(*LicenseGuard)
	return g
}

// currentName 返回类在重命名之后的名称，未重命名时原样返回
func currentName(r *Renamer, name string) string {
	if r == nil {
		return name
	}
	if mapped, ok := r.Lookup(name); ok {
		return mapped
	}
	return name
}
