package obfuscator

import (
	"fmt"
	"sync"

	"github.com/emirpasic/gods/sets/hashset"

	"jvm-obfuscator/classfile"
	"jvm-obfuscator/internal/cmdlogger"
)

const (
	debugAgentFlag    = "-agentlib:jdwp"
	debugDetectedText = "Debug detected"
)

// AntiDebugGuard 在每个方法开头检查 JVM 启动参数，发现调试代理时抛出异常
type AntiDebugGuard struct {
	protector *StringProtector
	renamer   *Renamer
	license   *LicenseGuard
	skip      *hashset.Set
	stats     *counters

	// 密钥、模板类与重命名结果都在所有 Init 之后才完整，首次 Apply 时解析
	once        sync.Once
	decoderName string
	flagText    string
	resolveErr  error
}

// NewAntiDebugGuard 创建反调试变换
func NewAntiDebugGuard() *AntiDebugGuard {
	return &AntiDebugGuard{}
}

func (a *AntiDebugGuard) Kind() Kind { return KindAntiDebugGuard }

// Init 记录本次运行中的字符串加密与重命名变换，以及不能插入检查的类
func (a *AntiDebugGuard) Init(ctx *Context) error {
	a.stats = ctx.stats
	a.protector = ctx.StringProtector()
	a.renamer = ctx.Renamer()
	a.license = ctx.LicenseGuard()

	if a.protector != nil {
		cmdlogger.Infof("反调试: 检测字符串经 %s 解密", a.protector.DecoderClass())
	} else {
		cmdlogger.Infof("反调试: 检测字符串以明文嵌入")
	}
	return nil
}

func (a *AntiDebugGuard) resolve() {
	a.skip = hashset.New()
	if a.protector != nil {
		a.skip.Add(a.protector.DecoderClass())
	}
	if a.license != nil {
		a.skip.Add(a.license.GuardClass())
		for _, name := range a.license.Classes() {
			a.skip.Add(name)
		}
	}

	a.flagText = debugAgentFlag
	if a.protector == nil {
		return
	}
	a.decoderName = currentName(a.renamer, a.protector.DecoderClass())
	enc, err := a.protector.Encrypt(debugAgentFlag)
	if err != nil {
		a.resolveErr = fmt.Errorf("加密反调试字符串失败: %w", err)
		return
	}
	a.flagText = enc
}

// skipped 判断类是否为解密类或授权校验类，名称可能已被重命名
func (a *AntiDebugGuard) skipped(name string) bool {
	if a.skip.Contains(name) {
		return true
	}
	for _, v := range a.skip.Values() {
		if currentName(a.renamer, v.(string)) == name {
			return true
		}
	}
	return false
}

// guardBlock 生成检查代码:
//
//	if (ManagementFactory.getRuntimeMXBean().getInputArguments().toString().contains("-agentlib:jdwp"))
//	    throw new RuntimeException("Debug detected");
func (a *AntiDebugGuard) guardBlock(frame *classfile.FrameInsn) *classfile.InsnList {
	ok := classfile.NewLabel()
	insns := []classfile.Instruction{
		&classfile.MethodInsn{
			Op:         classfile.INVOKESTATIC,
			Owner:      "java/lang/management/ManagementFactory",
			Name:       "getRuntimeMXBean",
			Descriptor: "()Ljava/lang/management/RuntimeMXBean;",
		},
		&classfile.MethodInsn{
			Op:         classfile.INVOKEINTERFACE,
			Owner:      "java/lang/management/RuntimeMXBean",
			Name:       "getInputArguments",
			Descriptor: "()Ljava/util/List;",
			Interface:  true,
		},
		&classfile.MethodInsn{
			Op:         classfile.INVOKEINTERFACE,
			Owner:      "java/util/List",
			Name:       "toString",
			Descriptor: "()Ljava/lang/String;",
			Interface:  true,
		},
		&classfile.LdcInsn{Value: a.flagText},
	}
	if a.decoderName != "" {
		insns = append(insns, decodeCall(a.decoderName))
	}
	insns = append(insns,
		&classfile.MethodInsn{
			Op:         classfile.INVOKEVIRTUAL,
			Owner:      "java/lang/String",
			Name:       "contains",
			Descriptor: "(Ljava/lang/CharSequence;)Z",
		},
		&classfile.JumpInsn{Op: classfile.IFEQ, Target: ok},
		&classfile.TypeInsn{Op: classfile.NEW, Type: "java/lang/RuntimeException"},
		&classfile.Insn{Op: classfile.DUP},
		&classfile.LdcInsn{Value: debugDetectedText},
		&classfile.MethodInsn{
			Op:         classfile.INVOKESPECIAL,
			Owner:      "java/lang/RuntimeException",
			Name:       "<init>",
			Descriptor: "(Ljava/lang/String;)V",
		},
		&classfile.Insn{Op: classfile.ATHROW},
		ok,
	)
	if frame != nil {
		insns = append(insns, frame)
	}
	return classfile.NewInsnList(insns...)
}

// Apply 在类的每个有方法体的方法开头插入检查
func (a *AntiDebugGuard) Apply(rec *classfile.ClassRecord, env *ClassEnv) error {
	a.once.Do(a.resolve)
	if a.resolveErr != nil {
		return a.resolveErr
	}
	if a.skipped(rec.Name) {
		return nil
	}

	for _, m := range rec.Methods {
		if !eligible(m) {
			continue
		}
		var frame *classfile.FrameInsn
		if rec.MajorVersion >= classfile.FramesVersion {
			frame = &classfile.FrameInsn{Locals: classfile.EntryFrame(rec.Name, m)}
		}
		m.Code.Instructions.Insert(a.guardBlock(frame))
		if a.stats != nil {
			a.stats.guardedMethods.Add(1)
		}
	}
	return nil
}

func (a *AntiDebugGuard) Finish(ctx *Context) error {
	if a.stats != nil {
		cmdlogger.Infof("反调试: 共保护 %d 个方法", a.stats.guardedMethods.Load())
	}
	return nil
}
