package obfuscator

import (
	"fmt"
	"os"

	"jvm-obfuscator/classfile"
	"jvm-obfuscator/internal/cmdlogger"
)

// Fingerprinter 计算当前机器的指纹，用作授权绑定的期望值
type Fingerprinter interface {
	Compute() (string, error)
}

// PasswordGate 在混淆时保存口令，运行时由校验类验证
type PasswordGate interface {
	Setup() error
}

const (
	checkBindingName  = "checkBinding"
	checkBindingDesc  = "(Ljava/lang/String;Ljava/lang/String;)V"
	checkPasswordName = "checkPassword"
)

// LicenseGuard 把预编译的校验类加入输出，并在入口类的 main 方法开头调用它
type LicenseGuard struct {
	config LicenseConfig

	hash      string
	mainClass string
	classes   []string
	renamer   *Renamer
	stats     *counters
}

// NewLicenseGuard 按配置创建授权校验变换
func NewLicenseGuard(config LicenseConfig) *LicenseGuard {
	if config.GuardClass == "" {
		config.GuardClass = defaultGuardClass
	}
	return &LicenseGuard{config: config}
}

func (g *LicenseGuard) Kind() Kind { return KindLicenseGuard }

// GuardClass 返回校验类的原始内部名
func (g *LicenseGuard) GuardClass() string {
	return g.config.GuardClass
}

// Classes 返回从模板加载的类的原始内部名
func (g *LicenseGuard) Classes() []string {
	return g.classes
}

// Init 加载校验类模板，准备期望的指纹值
func (g *LicenseGuard) Init(ctx *Context) error {
	g.stats = ctx.stats
	g.renamer = ctx.Renamer()

	if len(g.config.Templates) == 0 {
		return fmt.Errorf("%w: 未配置校验类模板", ErrMissingResource)
	}
	found := false
	for _, path := range g.config.Templates {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: 读取模板 %s 失败: %v", ErrMissingResource, path, err)
		}
		rec, err := classfile.Decode(data)
		if err != nil {
			return fmt.Errorf("解析模板 %s 失败: %w", path, err)
		}
		if rec.Name == g.config.GuardClass {
			found = true
		}
		g.classes = append(g.classes, rec.Name)
		ctx.AddSynthetic(rec)
	}
	if !found {
		return fmt.Errorf("%w: 模板中没有校验类 %s", ErrMissingResource, g.config.GuardClass)
	}

	if g.config.CheckPassword && ctx.PasswordGate != nil {
		if err := ctx.PasswordGate.Setup(); err != nil {
			return fmt.Errorf("设置口令失败: %w", err)
		}
	}

	g.hash = g.config.ExpectedHash
	if g.hash == "" && ctx.Fingerprinter != nil {
		hash, err := ctx.Fingerprinter.Compute()
		if err != nil {
			return fmt.Errorf("计算机器指纹失败: %w", err)
		}
		g.hash = hash
	}
	if g.hash == "" {
		return fmt.Errorf("%w: 未配置 expected-hash，也没有可用的指纹计算", ErrMissingResource)
	}

	g.mainClass = ctx.MainClass()
	if g.mainClass == "" {
		cmdlogger.Warnf("授权校验: 清单中没有 Main-Class，不会插入校验调用")
	}
	cmdlogger.Infof("授权校验: 加载 %d 个模板类，入口类 %s", len(g.classes), g.mainClass)
	return nil
}

func (g *LicenseGuard) isMainClass(name string) bool {
	if g.mainClass == "" {
		return false
	}
	return name == g.mainClass || name == currentName(g.renamer, g.mainClass)
}

// Apply 在入口类的 main 方法开头插入校验调用
func (g *LicenseGuard) Apply(rec *classfile.ClassRecord, env *ClassEnv) error {
	if !g.isMainClass(rec.Name) {
		return nil
	}
	m := rec.FindMethod(mainMethodName, mainMethodDesc)
	if m == nil || !eligible(m) {
		cmdlogger.Warnf("授权校验: 入口类 %s 没有 main 方法", rec.Name)
		return nil
	}

	guard := currentName(g.renamer, g.config.GuardClass)
	insns := []classfile.Instruction{
		&classfile.LdcInsn{Value: g.hash},
		&classfile.LdcInsn{Value: g.config.ExpectedPath},
		&classfile.MethodInsn{Op: classfile.INVOKESTATIC, Owner: guard, Name: checkBindingName, Descriptor: checkBindingDesc},
	}
	if g.config.CheckPassword {
		insns = append(insns, &classfile.MethodInsn{
			Op: classfile.INVOKESTATIC, Owner: guard, Name: checkPasswordName, Descriptor: "()V",
		})
	}
	prepend(m, insns...)
	if g.stats != nil {
		g.stats.licenseChecks.Add(1)
	}
	return nil
}

func (g *LicenseGuard) Finish(ctx *Context) error {
	return nil
}
