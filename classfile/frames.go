package classfile

import (
	"strings"
)

// VerificationKind 是验证类型的标签，取值与 StackMapTable 编码一致
type VerificationKind uint8

const (
	VTop VerificationKind = iota
	VInteger
	VFloat
	VDouble
	VLong
	VNull
	VUninitializedThis
	VObject
	VUninitialized
)

// VerificationType 描述栈映射帧中的一个值
type VerificationType struct {
	Kind VerificationKind
	// Class 用于 VObject，内部名或数组描述符
	Class string
	// New 用于 VUninitialized，指向紧邻 NEW 指令之前的标签
	New *Label
}

var (
	Top               = VerificationType{Kind: VTop}
	Integer           = VerificationType{Kind: VInteger}
	Float             = VerificationType{Kind: VFloat}
	Long              = VerificationType{Kind: VLong}
	Double            = VerificationType{Kind: VDouble}
	Null              = VerificationType{Kind: VNull}
	UninitializedThis = VerificationType{Kind: VUninitializedThis}
)

// ObjectType 返回引用类型
func ObjectType(class string) VerificationType {
	return VerificationType{Kind: VObject, Class: class}
}

// IsWide 判断是否为 long 或 double
func (v VerificationType) IsWide() bool {
	return v.Kind == VLong || v.Kind == VDouble
}

func (v VerificationType) String() string {
	switch v.Kind {
	case VTop:
		return "T"
	case VInteger:
		return "I"
	case VFloat:
		return "F"
	case VDouble:
		return "D"
	case VLong:
		return "J"
	case VNull:
		return "null"
	case VUninitializedThis:
		return "uninit_this"
	case VObject:
		return v.Class
	case VUninitialized:
		return "uninit"
	}
	return "?"
}

// typeOfDescriptor 把字段描述符转换为帧格式的验证类型
func typeOfDescriptor(desc string) (VerificationType, bool) {
	if desc == "" || desc == "V" {
		return Top, false
	}
	switch desc[0] {
	case 'B', 'C', 'I', 'S', 'Z':
		return Integer, true
	case 'F':
		return Float, true
	case 'J':
		return Long, true
	case 'D':
		return Double, true
	case '[':
		return ObjectType(desc), true
	case 'L':
		return ObjectType(desc[1 : len(desc)-1]), true
	}
	return Top, false
}

// EntryFrame 返回方法入口处的局部变量（帧格式）
func EntryFrame(owner string, m *MethodRecord) []VerificationType {
	var locals []VerificationType
	if m.Access&AccStatic == 0 {
		if m.Name == "<init>" && owner != "java/lang/Object" {
			locals = append(locals, UninitializedThis)
		} else {
			locals = append(locals, ObjectType(owner))
		}
	}
	args, _, err := ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return locals
	}
	for _, a := range args {
		if vt, ok := typeOfDescriptor(a); ok {
			locals = append(locals, vt)
		}
	}
	return locals
}

// expandSlots 把帧格式转为槽位格式（long/double 后跟一个 Top）
func expandSlots(types []VerificationType) []VerificationType {
	out := make([]VerificationType, 0, len(types)+2)
	for _, t := range types {
		out = append(out, t)
		if t.IsWide() {
			out = append(out, Top)
		}
	}
	return out
}

// compactSlots 把槽位格式转回帧格式，trimTrailing 时去掉末尾的 Top
func compactSlots(slots []VerificationType, trimTrailing bool) []VerificationType {
	out := make([]VerificationType, 0, len(slots))
	for i := 0; i < len(slots); i++ {
		out = append(out, slots[i])
		if slots[i].IsWide() {
			i++
		}
	}
	if trimTrailing {
		for len(out) > 0 && out[len(out)-1].Kind == VTop {
			out = out[:len(out)-1]
		}
	}
	return out
}

// State 是某条指令执行前的类型状态（槽位格式）
type State struct {
	Locals []VerificationType
	Stack  []VerificationType
}

func (s *State) clone() *State {
	return &State{
		Locals: append([]VerificationType(nil), s.Locals...),
		Stack:  append([]VerificationType(nil), s.Stack...),
	}
}

// Frame 把状态转换为帧标记
func (s *State) Frame() *FrameInsn {
	return &FrameInsn{
		Locals: compactSlots(s.Locals, true),
		Stack:  compactSlots(s.Stack, false),
	}
}

// HasUninitialized 判断状态中是否含有未初始化对象
func (s *State) HasUninitialized() bool {
	for _, list := range [][]VerificationType{s.Locals, s.Stack} {
		for _, t := range list {
			if t.Kind == VUninitialized || t.Kind == VUninitializedThis {
				return true
			}
		}
	}
	return false
}

func stateFromFrame(f *FrameInsn) *State {
	return &State{Locals: expandSlots(f.Locals), Stack: expandSlots(f.Stack)}
}

// AnalyzeStates 沿指令序列线性推导每条真实指令执行前的类型状态。
// 每个帧标记处重置为帧内容；无条件转移之后、下一个帧之前的状态未知，结果中不出现。
// 遇到前面没有标签的 NEW 指令时会在其前插入标签，以便表示未初始化类型。
func AnalyzeStates(owner string, m *MethodRecord) map[*Node]*State {
	states := make(map[*Node]*State)
	if !m.HasBody() {
		return states
	}
	insns := m.Code.Instructions
	cur := &State{Locals: expandSlots(EntryFrame(owner, m))}
	for n := insns.Front(); n != nil; n = n.Next() {
		switch in := n.Insn.(type) {
		case *FrameInsn:
			cur = stateFromFrame(in)
			continue
		case *Label, *LineNumber:
			continue
		}
		if cur == nil {
			continue
		}
		states[n] = cur.clone()
		if n.Insn.Opcode() == NEW {
			ensureLabelBefore(insns, n)
		}
		next, ok := execute(owner, cur, n)
		if !ok || endsBlock(n.Insn.Opcode()) {
			cur = nil
			continue
		}
		cur = next
	}
	return states
}

// labelBefore 返回紧邻节点之前的标签（跳过行号与帧）
func labelBefore(n *Node) *Label {
	for p := n.Prev(); p != nil; p = p.Prev() {
		switch in := p.Insn.(type) {
		case *Label:
			return in
		case *LineNumber, *FrameInsn:
			continue
		}
		return nil
	}
	return nil
}

func ensureLabelBefore(l *InsnList, n *Node) *Label {
	if lbl := labelBefore(n); lbl != nil {
		return lbl
	}
	lbl := NewLabel()
	l.InsertBefore(n, NewInsnList(lbl))
	return lbl
}

type frameSim struct {
	s   *State
	bad bool
}

func (f *frameSim) push(types ...VerificationType) {
	for _, t := range types {
		f.s.Stack = append(f.s.Stack, t)
		if t.IsWide() {
			f.s.Stack = append(f.s.Stack, Top)
		}
	}
}

func (f *frameSim) pushDesc(desc string) {
	if vt, ok := typeOfDescriptor(desc); ok {
		f.push(vt)
	}
}

// pop 弹出 n 个槽位并返回最底下那个槽位的值
func (f *frameSim) pop(n int) VerificationType {
	if n == 0 {
		return Top
	}
	if len(f.s.Stack) < n {
		f.bad = true
		f.s.Stack = f.s.Stack[:0]
		return Top
	}
	v := f.s.Stack[len(f.s.Stack)-n]
	f.s.Stack = f.s.Stack[:len(f.s.Stack)-n]
	return v
}

func (f *frameSim) popWords(ws ...int) {
	for _, w := range ws {
		f.pop(w)
	}
}

func (f *frameSim) popDesc(desc string) {
	f.pop(TypeSize(desc))
}

func (f *frameSim) local(i int) VerificationType {
	if i < len(f.s.Locals) {
		return f.s.Locals[i]
	}
	return Top
}

func (f *frameSim) store(i int, t VerificationType) {
	size := 1
	if t.IsWide() {
		size = 2
	}
	for len(f.s.Locals) < i+size {
		f.s.Locals = append(f.s.Locals, Top)
	}
	if i > 0 && f.s.Locals[i-1].IsWide() {
		f.s.Locals[i-1] = Top
	}
	f.s.Locals[i] = t
	if size == 2 {
		f.s.Locals[i+1] = Top
	}
}

func (f *frameSim) replaceUninitialized(from VerificationType, to VerificationType) {
	for _, list := range [][]VerificationType{f.s.Locals, f.s.Stack} {
		for i, t := range list {
			if t.Kind == from.Kind && t.New == from.New {
				list[i] = to
			}
		}
	}
}

var primitiveArrays = map[int]string{
	TBoolean: "[Z", TChar: "[C", TFloat: "[F", TDouble: "[D",
	TByte: "[B", TShort: "[S", TInt: "[I", TLong: "[J",
}

func ldcType(v any) VerificationType {
	switch c := v.(type) {
	case int32:
		return Integer
	case float32:
		return Float
	case int64:
		return Long
	case float64:
		return Double
	case string:
		return ObjectType("java/lang/String")
	case ClassRef:
		return ObjectType("java/lang/Class")
	case MethodTypeRef:
		return ObjectType("java/lang/invoke/MethodType")
	case Handle:
		return ObjectType("java/lang/invoke/MethodHandle")
	case ConstantDynamic:
		if vt, ok := typeOfDescriptor(c.Descriptor); ok {
			return vt
		}
	}
	return Top
}

// execute 计算一条指令执行后的状态，无法推导时返回 false
func execute(owner string, in *State, n *Node) (*State, bool) {
	f := &frameSim{s: in.clone()}
	op := n.Insn.Opcode()
	switch insn := n.Insn.(type) {
	case *Insn:
		f.simple(op)
	case *IntInsn:
		if op == NEWARRAY {
			f.pop(1)
			f.push(ObjectType(primitiveArrays[insn.Operand]))
		} else {
			f.push(Integer)
		}
	case *VarInsn:
		switch op {
		case ILOAD:
			f.push(Integer)
		case LLOAD:
			f.push(Long)
		case FLOAD:
			f.push(Float)
		case DLOAD:
			f.push(Double)
		case ALOAD:
			f.push(f.local(insn.Var))
		case ISTORE:
			f.pop(1)
			f.store(insn.Var, Integer)
		case LSTORE:
			f.pop(2)
			f.store(insn.Var, Long)
		case FSTORE:
			f.pop(1)
			f.store(insn.Var, Float)
		case DSTORE:
			f.pop(2)
			f.store(insn.Var, Double)
		case ASTORE:
			f.store(insn.Var, f.pop(1))
		case RET:
			return nil, false
		}
	case *IincInsn:
	case *TypeInsn:
		switch op {
		case NEW:
			lbl := labelBefore(n)
			if lbl == nil {
				return nil, false
			}
			f.push(VerificationType{Kind: VUninitialized, New: lbl})
		case ANEWARRAY:
			f.pop(1)
			f.push(ObjectType("[" + ObjectDescriptor(insn.Type)))
		case CHECKCAST:
			f.pop(1)
			f.push(ObjectType(insn.Type))
		case INSTANCEOF:
			f.pop(1)
			f.push(Integer)
		}
	case *FieldInsn:
		switch op {
		case GETSTATIC:
			f.pushDesc(insn.Descriptor)
		case PUTSTATIC:
			f.popDesc(insn.Descriptor)
		case GETFIELD:
			f.pop(1)
			f.pushDesc(insn.Descriptor)
		case PUTFIELD:
			f.popDesc(insn.Descriptor)
			f.pop(1)
		}
	case *MethodInsn:
		f.pop(ArgumentsSize(insn.Descriptor))
		if op != INVOKESTATIC {
			recv := f.pop(1)
			if op == INVOKESPECIAL && insn.Name == "<init>" {
				switch recv.Kind {
				case VUninitializedThis:
					f.replaceUninitialized(recv, ObjectType(owner))
				case VUninitialized:
					f.replaceUninitialized(recv, ObjectType(insn.Owner))
				}
			}
		}
		f.pushDesc(insn.Descriptor[strings.LastIndexByte(insn.Descriptor, ')')+1:])
	case *InvokeDynamicInsn:
		f.pop(ArgumentsSize(insn.Descriptor))
		f.pushDesc(insn.Descriptor[strings.LastIndexByte(insn.Descriptor, ')')+1:])
	case *JumpInsn:
		switch {
		case op >= IFEQ && op <= IFLE, op == IFNULL, op == IFNONNULL:
			f.pop(1)
		case op >= IF_ICMPEQ && op <= IF_ACMPNE:
			f.pop(2)
		case op == JSR:
			return nil, false
		}
	case *LdcInsn:
		f.push(ldcType(insn.Value))
	case *TableSwitchInsn, *LookupSwitchInsn:
		f.pop(1)
	case *MultiANewArrayInsn:
		f.pop(insn.Dims)
		f.push(ObjectType(insn.Descriptor))
	default:
		return nil, false
	}
	if f.bad {
		return nil, false
	}
	return f.s, true
}

// simple 处理无操作数指令
func (f *frameSim) simple(op int) {
	switch {
	case op == NOP:
	case op == ACONST_NULL:
		f.push(Null)
	case op >= ICONST_M1 && op <= ICONST_5:
		f.push(Integer)
	case op == LCONST_0 || op == LCONST_1:
		f.push(Long)
	case op >= FCONST_0 && op <= FCONST_2:
		f.push(Float)
	case op == DCONST_0 || op == DCONST_1:
		f.push(Double)
	case op == IALOAD || op == BALOAD || op == CALOAD || op == SALOAD:
		f.popWords(1, 1)
		f.push(Integer)
	case op == LALOAD:
		f.popWords(1, 1)
		f.push(Long)
	case op == FALOAD:
		f.popWords(1, 1)
		f.push(Float)
	case op == DALOAD:
		f.popWords(1, 1)
		f.push(Double)
	case op == AALOAD:
		f.pop(1)
		arr := f.pop(1)
		switch {
		case arr.Kind == VObject && strings.HasPrefix(arr.Class, "["):
			vt, ok := typeOfDescriptor(arr.Class[1:])
			if !ok {
				vt = ObjectType("java/lang/Object")
			}
			f.push(vt)
		case arr.Kind == VNull:
			f.push(Null)
		default:
			f.push(ObjectType("java/lang/Object"))
		}
	case op == IASTORE || op == FASTORE || op == AASTORE || op == BASTORE || op == CASTORE || op == SASTORE:
		f.popWords(1, 1, 1)
	case op == LASTORE || op == DASTORE:
		f.popWords(2, 1, 1)
	case op == POP:
		f.pop(1)
	case op == POP2:
		f.pop(2)
	case op >= DUP && op <= SWAP:
		f.stackOp(op)
	case op >= IADD && op <= DREM:
		switch (op - IADD) % 4 {
		case 0:
			f.popWords(1, 1)
			f.push(Integer)
		case 1:
			f.popWords(2, 2)
			f.push(Long)
		case 2:
			f.popWords(1, 1)
			f.push(Float)
		case 3:
			f.popWords(2, 2)
			f.push(Double)
		}
	case op == INEG:
		f.pop(1)
		f.push(Integer)
	case op == LNEG:
		f.pop(2)
		f.push(Long)
	case op == FNEG:
		f.pop(1)
		f.push(Float)
	case op == DNEG:
		f.pop(2)
		f.push(Double)
	case op == ISHL || op == ISHR || op == IUSHR:
		f.popWords(1, 1)
		f.push(Integer)
	case op == LSHL || op == LSHR || op == LUSHR:
		f.popWords(1, 2)
		f.push(Long)
	case op == IAND || op == IOR || op == IXOR:
		f.popWords(1, 1)
		f.push(Integer)
	case op == LAND || op == LOR || op == LXOR:
		f.popWords(2, 2)
		f.push(Long)
	case op >= I2L && op <= I2S:
		f.convert(op)
	case op == LCMP || op == DCMPL || op == DCMPG:
		f.popWords(2, 2)
		f.push(Integer)
	case op == FCMPL || op == FCMPG:
		f.popWords(1, 1)
		f.push(Integer)
	case op == ARRAYLENGTH:
		f.pop(1)
		f.push(Integer)
	case op == MONITORENTER || op == MONITOREXIT:
		f.pop(1)
	case IsReturn(op) || op == ATHROW:
	default:
		f.bad = true
	}
}

func (f *frameSim) convert(op int) {
	from := map[int]int{
		I2L: 1, I2F: 1, I2D: 1, L2I: 2, L2F: 2, L2D: 2, F2I: 1, F2L: 1,
		F2D: 1, D2I: 2, D2L: 2, D2F: 2, I2B: 1, I2C: 1, I2S: 1,
	}[op]
	f.pop(from)
	switch op {
	case I2L, F2L, D2L:
		f.push(Long)
	case I2F, L2F, D2F:
		f.push(Float)
	case I2D, L2D, F2D:
		f.push(Double)
	default:
		f.push(Integer)
	}
}

// stackOp 按槽位处理 DUP 系列与 SWAP
func (f *frameSim) stackOp(op int) {
	st := f.s.Stack
	need := map[int]int{DUP: 1, DUP_X1: 2, DUP_X2: 3, DUP2: 2, DUP2_X1: 3, DUP2_X2: 4, SWAP: 2}[op]
	if len(st) < need {
		f.bad = true
		return
	}
	top := func(i int) VerificationType { return st[len(st)-1-i] }
	base := st[:len(st)-need]
	var out []VerificationType
	switch op {
	case DUP:
		out = []VerificationType{top(0), top(0)}
	case DUP_X1:
		out = []VerificationType{top(0), top(1), top(0)}
	case DUP_X2:
		out = []VerificationType{top(0), top(2), top(1), top(0)}
	case DUP2:
		out = []VerificationType{top(1), top(0), top(1), top(0)}
	case DUP2_X1:
		out = []VerificationType{top(1), top(0), top(2), top(1), top(0)}
	case DUP2_X2:
		out = []VerificationType{top(1), top(0), top(3), top(2), top(1), top(0)}
	case SWAP:
		out = []VerificationType{top(0), top(1)}
	}
	f.s.Stack = append(append([]VerificationType(nil), base...), out...)
}
