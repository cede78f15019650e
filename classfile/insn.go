package classfile

// Instruction 是指令序列中的一个节点载荷。
// 伪指令（标签、行号、帧）的 Opcode 返回 -1。
type Instruction interface {
	Opcode() int
}

// Insn 是没有操作数的指令
type Insn struct {
	Op int
}

// IntInsn 对应 BIPUSH、SIPUSH、NEWARRAY
type IntInsn struct {
	Op      int
	Operand int
}

// VarInsn 对应局部变量的加载、存储与 RET
type VarInsn struct {
	Op  int
	Var int
}

type IincInsn struct {
	Var  int
	Incr int
}

// TypeInsn 对应 NEW、ANEWARRAY、CHECKCAST、INSTANCEOF，Type 为内部名或数组描述符
type TypeInsn struct {
	Op   int
	Type string
}

type FieldInsn struct {
	Op         int
	Owner      string
	Name       string
	Descriptor string
}

type MethodInsn struct {
	Op         int
	Owner      string
	Name       string
	Descriptor string
	Interface  bool
}

type InvokeDynamicInsn struct {
	Name       string
	Descriptor string
	Bootstrap  Handle
	Args       []any
}

// JumpInsn 的目标总是一个标签
type JumpInsn struct {
	Op     int
	Target *Label
}

// LdcInsn 的 Value 可为 int32、float32、int64、float64、string、ClassRef、MethodTypeRef、Handle、ConstantDynamic
type LdcInsn struct {
	Value any
}

type TableSwitchInsn struct {
	Low, High int32
	Default   *Label
	Targets   []*Label
}

type LookupSwitchInsn struct {
	Default *Label
	Keys    []int32
	Targets []*Label
}

type MultiANewArrayInsn struct {
	Descriptor string
	Dims       int
}

// Label 标记指令序列中的一个逻辑位置
type Label struct {
	// 解码时的原始偏移，新建标签为 -1
	origin int
}

// NewLabel 创建一个新标签
func NewLabel() *Label {
	return &Label{origin: -1}
}

// LineNumber 是行号标记
type LineNumber struct {
	Line  int
	Start *Label
}

// FrameInsn 是栈映射帧标记，Locals 与 Stack 使用帧格式（long/double 各占一项）
type FrameInsn struct {
	Locals []VerificationType
	Stack  []VerificationType
}

func (i *Insn) Opcode() int               { return i.Op }
func (i *IntInsn) Opcode() int            { return i.Op }
func (i *VarInsn) Opcode() int            { return i.Op }
func (i *IincInsn) Opcode() int           { return IINC }
func (i *TypeInsn) Opcode() int           { return i.Op }
func (i *FieldInsn) Opcode() int          { return i.Op }
func (i *MethodInsn) Opcode() int         { return i.Op }
func (i *InvokeDynamicInsn) Opcode() int  { return INVOKEDYNAMIC }
func (i *JumpInsn) Opcode() int           { return i.Op }
func (i *LdcInsn) Opcode() int            { return LDC }
func (i *TableSwitchInsn) Opcode() int    { return TABLESWITCH }
func (i *LookupSwitchInsn) Opcode() int   { return LOOKUPSWITCH }
func (i *MultiANewArrayInsn) Opcode() int { return MULTIANEWARRAY }
func (l *Label) Opcode() int              { return -1 }
func (l *LineNumber) Opcode() int         { return -1 }
func (f *FrameInsn) Opcode() int          { return -1 }

// IsPseudo 判断是否为不占字节码的伪指令
func IsPseudo(in Instruction) bool {
	return in.Opcode() < 0
}

// IsControlTransfer 判断指令是否为返回、跳转或多路分派
func IsControlTransfer(in Instruction) bool {
	switch in.(type) {
	case *JumpInsn, *TableSwitchInsn, *LookupSwitchInsn:
		return true
	}
	op := in.Opcode()
	return IsReturn(op) || op == RET
}
