package classfile

// ClassRecord 是一个已编译类的内存结构模型
type ClassRecord struct {
	MinorVersion uint16
	MajorVersion uint16
	Access       uint16
	Name         string
	SuperName    string
	Interfaces   []string
	Signature    string
	SourceFile   string
	Deprecated   bool

	Fields  []*FieldRecord
	Methods []*MethodRecord

	VisibleAnnotations   []*Annotation
	InvisibleAnnotations []*Annotation

	InnerClasses        []*InnerClass
	EnclosingMethod     *EnclosingMethod
	NestHost            string
	NestMembers         []string
	PermittedSubclasses []string
}

// FieldRecord 描述一个字段
type FieldRecord struct {
	Access     uint16
	Name       string
	Descriptor string
	Signature  string
	// Value 是 ConstantValue 属性：int32、float32、int64、float64 或 string
	Value      any
	Deprecated bool

	VisibleAnnotations   []*Annotation
	InvisibleAnnotations []*Annotation
}

// MethodRecord 描述一个方法或构造器
type MethodRecord struct {
	Access     uint16
	Name       string
	Descriptor string
	Signature  string
	Exceptions []string
	Deprecated bool

	VisibleAnnotations            []*Annotation
	InvisibleAnnotations          []*Annotation
	VisibleParameterAnnotations   [][]*Annotation
	InvisibleParameterAnnotations [][]*Annotation
	AnnotationDefault             *ElementValue
	Parameters                    []*MethodParameter

	// Code 为 nil 表示抽象或本地方法
	Code *Code
}

// Code 是方法体
type Code struct {
	MaxStack       int
	MaxLocals      int
	Instructions   *InsnList
	TryCatch       []*TryCatchBlock
	LocalVariables []*LocalVariable
}

// TryCatchBlock 是异常表中的一项，Type 为空表示捕获所有异常
type TryCatchBlock struct {
	Start, End, Handler *Label
	Type                string
}

// LocalVariable 合并了 LocalVariableTable 与 LocalVariableTypeTable 的条目
type LocalVariable struct {
	Name       string
	Descriptor string
	Signature  string
	Start, End *Label
	Index      int
}

// MethodParameter 对应 MethodParameters 属性
type MethodParameter struct {
	Name   string
	Access uint16
}

// InnerClass 是 InnerClasses 表的一项
type InnerClass struct {
	Name      string
	OuterName string
	InnerName string
	Access    uint16
}

// EnclosingMethod 对应 EnclosingMethod 属性，Name 可为空
type EnclosingMethod struct {
	Owner      string
	Name       string
	Descriptor string
}

// Annotation 的 Type 是字段描述符形式，例如 Lcom/foo/Ann;
type Annotation struct {
	Type   string
	Values []*ElementPair
}

type ElementPair struct {
	Name  string
	Value *ElementValue
}

// ElementValue 按 Tag 取值：
// B C D F I J S Z s 使用 Const，e 使用 EnumType/EnumName，c 使用 Class，@ 使用 Annotation，[ 使用 Array
type ElementValue struct {
	Tag        byte
	Const      any
	EnumType   string
	EnumName   string
	Class      string
	Annotation *Annotation
	Array      []*ElementValue
}

// ClassRef 是类常量，Name 为内部名或数组描述符
type ClassRef struct {
	Name string
}

// MethodTypeRef 是 CONSTANT_MethodType 常量
type MethodTypeRef struct {
	Descriptor string
}

// Handle 是方法句柄常量
type Handle struct {
	Kind       uint8
	Owner      string
	Name       string
	Descriptor string
	Interface  bool
}

// ConstantDynamic 是 CONSTANT_Dynamic 常量
type ConstantDynamic struct {
	Name       string
	Descriptor string
	Bootstrap  Handle
	Args       []any
}

// FindMethod 按名称与描述符查找方法
func (c *ClassRecord) FindMethod(name, desc string) *MethodRecord {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// FindField 按名称查找字段
func (c *ClassRecord) FindField(name string) *FieldRecord {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// IsAbstractOrNative 判断方法是否没有可改写的方法体
func (m *MethodRecord) IsAbstractOrNative() bool {
	return m.Access&(AccAbstract|AccNative) != 0
}

// HasBody 判断方法是否有非空指令序列
func (m *MethodRecord) HasBody() bool {
	return m.Code != nil && m.Code.Instructions != nil && m.Code.Instructions.Len() > 0
}
