package obfuscator

import (
	"math/rand"

	"jvm-obfuscator/classfile"
	"jvm-obfuscator/internal/cmdlogger"
)

// ControlFlowPadder 在方法中插入由不透明谓词守护的死分支
type ControlFlowPadder struct {
	padding int
	stats   *counters
}

// NewControlFlowPadder 创建控制流填充变换，padding 为每个方法最多插入的死分支数
func NewControlFlowPadder(padding int) *ControlFlowPadder {
	return &ControlFlowPadder{padding: padding}
}

func (p *ControlFlowPadder) Kind() Kind { return KindControlFlowPadder }

func (p *ControlFlowPadder) Init(ctx *Context) error {
	p.stats = ctx.stats
	cmdlogger.Infof("控制流填充: 每个方法最多 %d 个死分支", p.padding)
	return nil
}

func (p *ControlFlowPadder) Apply(rec *classfile.ClassRecord, env *ClassEnv) error {
	if p.padding <= 0 {
		return nil
	}
	for _, m := range rec.Methods {
		if !eligible(m) {
			continue
		}
		n := padMethod(rec, m, p.padding, env.Rand)
		if p.stats != nil {
			p.stats.deadBranches.Add(int64(n))
		}
	}
	return nil
}

func (p *ControlFlowPadder) Finish(ctx *Context) error {
	return nil
}

// generateJunkBlock 生成不透明谓词块:
//
//	ICONST_0
//	IFNE end
//	ICONST_1
//	POP
//	end:
//
// 常量 0 使分支永不成立，块执行前后栈与局部变量不变。
// frame 非空时在 end 处放置栈映射帧。
func generateJunkBlock(frame *classfile.FrameInsn) *classfile.InsnList {
	end := classfile.NewLabel()
	block := classfile.NewInsnList(
		&classfile.Insn{Op: classfile.ICONST_0},
		&classfile.JumpInsn{Op: classfile.IFNE, Target: end},
		&classfile.Insn{Op: classfile.ICONST_1},
		&classfile.Insn{Op: classfile.POP},
		end,
	)
	if frame != nil {
		block.Add(frame)
	}
	return block
}

// padMethod 在随机选取的插入点之前放置死分支，返回插入的个数
func padMethod(rec *classfile.ClassRecord, m *classfile.MethodRecord, padding int, rnd *rand.Rand) int {
	needFrames := rec.MajorVersion >= classfile.FramesVersion

	var states map[*classfile.Node]*classfile.State
	if needFrames {
		states = classfile.AnalyzeStates(rec.Name, m)
	}

	// 先取快照，插入不会影响候选位置
	var candidates []*classfile.Node
	for _, n := range m.Code.Instructions.Nodes() {
		if classfile.IsPseudo(n.Insn) || classfile.IsControlTransfer(n.Insn) {
			continue
		}
		// NEW 之前的标签标记未初始化对象的位置，不能与 NEW 分开
		if n.Insn.Opcode() == classfile.NEW {
			continue
		}
		if needFrames {
			st, ok := states[n]
			if !ok || st.HasUninitialized() {
				continue
			}
		}
		candidates = append(candidates, n)
	}

	rnd.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > padding {
		candidates = candidates[:padding]
	}

	for _, n := range candidates {
		var frame *classfile.FrameInsn
		if needFrames {
			frame = states[n].Frame()
		}
		m.Code.Instructions.InsertBefore(n, generateJunkBlock(frame))
	}
	return len(candidates)
}
