package classfile

import (
	"strings"
)

// MapFunc 把内部类名映射为新名称，未映射时原样返回
type MapFunc func(internalName string) string

// ParseMethodDescriptor 拆分方法描述符的参数类型与返回类型
func ParseMethodDescriptor(desc string) ([]string, string, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", structuralf("invalid method descriptor %q", desc)
	}
	var args []string
	pos := 1
	for pos < len(desc) && desc[pos] != ')' {
		end, err := fieldTypeEnd(desc, pos)
		if err != nil {
			return nil, "", err
		}
		args = append(args, desc[pos:end])
		pos = end
	}
	if pos >= len(desc) {
		return nil, "", structuralf("unterminated method descriptor %q", desc)
	}
	ret := desc[pos+1:]
	if ret != "V" {
		end, err := fieldTypeEnd(ret, 0)
		if err != nil || end != len(ret) {
			return nil, "", structuralf("invalid return type in %q", desc)
		}
	}
	return args, ret, nil
}

func fieldTypeEnd(desc string, pos int) (int, error) {
	start := pos
	for pos < len(desc) && desc[pos] == '[' {
		pos++
	}
	if pos >= len(desc) {
		return 0, structuralf("truncated type in %q", desc)
	}
	switch desc[pos] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return pos + 1, nil
	case 'L':
		semi := strings.IndexByte(desc[pos:], ';')
		if semi <= 1 {
			return 0, structuralf("invalid class type at %d in %q", start, desc)
		}
		return pos + semi + 1, nil
	}
	return 0, structuralf("invalid type %q at %d in %q", desc[pos], pos, desc)
}

// TypeSize 返回字段描述符类型占用的槽位数
func TypeSize(desc string) int {
	switch desc {
	case "J", "D":
		return 2
	case "V", "":
		return 0
	}
	return 1
}

// ArgumentsSize 返回参数占用的槽位数（不含 this）
func ArgumentsSize(desc string) int {
	args, _, err := ParseMethodDescriptor(desc)
	if err != nil {
		return 0
	}
	size := 0
	for _, a := range args {
		size += TypeSize(a)
	}
	return size
}

// ReturnSize 返回返回值占用的槽位数
func ReturnSize(desc string) int {
	i := strings.LastIndexByte(desc, ')')
	if i < 0 {
		return 0
	}
	return TypeSize(desc[i+1:])
}

// RemapDescriptor 结构化地改写描述符中的类名
func RemapDescriptor(desc string, m MapFunc) (string, error) {
	return RemapSignature(desc, m)
}

// RemapType 改写内部名或数组描述符
func RemapType(name string, m MapFunc) (string, error) {
	if strings.HasPrefix(name, "[") {
		return RemapDescriptor(name, m)
	}
	return m(name), nil
}

// RemapSignature 解析类、方法或字段的泛型签名并逐个改写其中的类名。
// 普通描述符是签名语法的子集，同样适用。
func RemapSignature(sig string, m MapFunc) (string, error) {
	if sig == "" {
		return "", nil
	}
	p := &sigParser{s: sig, m: m}
	if err := p.signature(); err != nil {
		return "", err
	}
	return p.out.String(), nil
}

type sigParser struct {
	s   string
	pos int
	out strings.Builder
	m   MapFunc
}

func (p *sigParser) fail(msg string) error {
	return structuralf("%s at %d in signature %q", msg, p.pos, p.s)
}

func (p *sigParser) peek() byte {
	if p.pos < len(p.s) {
		return p.s[p.pos]
	}
	return 0
}

func (p *sigParser) emit() {
	p.out.WriteByte(p.s[p.pos])
	p.pos++
}

func (p *sigParser) signature() error {
	if p.peek() == '<' {
		if err := p.typeParameters(); err != nil {
			return err
		}
	}
	if p.peek() == '(' {
		p.emit()
		for p.peek() != ')' {
			if p.pos >= len(p.s) {
				return p.fail("unterminated parameter list")
			}
			if err := p.javaType(); err != nil {
				return err
			}
		}
		p.emit()
		if p.peek() == 'V' {
			p.emit()
		} else if err := p.javaType(); err != nil {
			return err
		}
		for p.peek() == '^' {
			p.emit()
			if err := p.referenceType(); err != nil {
				return err
			}
		}
	} else {
		if p.pos >= len(p.s) {
			return p.fail("empty type")
		}
		for p.pos < len(p.s) {
			if err := p.javaType(); err != nil {
				return err
			}
		}
	}
	if p.pos != len(p.s) {
		return p.fail("trailing characters")
	}
	return nil
}

func (p *sigParser) typeParameters() error {
	p.emit()
	for p.peek() != '>' {
		colon := strings.IndexByte(p.s[p.pos:], ':')
		if colon <= 0 {
			return p.fail("invalid type parameter")
		}
		p.out.WriteString(p.s[p.pos : p.pos+colon])
		p.pos += colon
		for p.peek() == ':' {
			p.emit()
			switch p.peek() {
			case 'L', '[', 'T':
				if err := p.referenceType(); err != nil {
					return err
				}
			}
		}
		if p.pos >= len(p.s) {
			return p.fail("unterminated type parameters")
		}
	}
	p.emit()
	return nil
}

func (p *sigParser) javaType() error {
	switch p.peek() {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		p.emit()
		return nil
	}
	return p.referenceType()
}

func (p *sigParser) referenceType() error {
	switch p.peek() {
	case 'L':
		return p.classType()
	case 'T':
		semi := strings.IndexByte(p.s[p.pos:], ';')
		if semi < 2 {
			return p.fail("invalid type variable")
		}
		p.out.WriteString(p.s[p.pos : p.pos+semi+1])
		p.pos += semi + 1
		return nil
	case '[':
		p.emit()
		return p.javaType()
	}
	return p.fail("expected reference type")
}

func (p *sigParser) identifier() string {
	start := p.pos
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case '<', '.', ';':
			return p.s[start:p.pos]
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *sigParser) classType() error {
	p.emit()
	name := p.identifier()
	if name == "" {
		return p.fail("empty class name")
	}
	mapped := p.m(name)
	p.out.WriteString(mapped)
	for {
		switch p.peek() {
		case '<':
			if err := p.typeArguments(); err != nil {
				return err
			}
		case '.':
			p.pos++
			inner := p.identifier()
			if inner == "" {
				return p.fail("empty inner class name")
			}
			name = name + "$" + inner
			mappedInner := p.m(name)
			// 内部类后缀只能写出简单名，取映射结果中外部类前缀之后的部分
			simple := mappedInner
			if strings.HasPrefix(mappedInner, mapped+"$") {
				simple = mappedInner[len(mapped)+1:]
			} else if i := strings.LastIndexByte(mappedInner, '$'); i >= 0 {
				simple = mappedInner[i+1:]
			}
			p.out.WriteByte('.')
			p.out.WriteString(simple)
			mapped = mappedInner
		case ';':
			p.emit()
			return nil
		default:
			return p.fail("unterminated class type")
		}
	}
}

func (p *sigParser) typeArguments() error {
	p.emit()
	for p.peek() != '>' {
		switch p.peek() {
		case '*':
			p.emit()
			continue
		case '+', '-':
			p.emit()
		case 0:
			return p.fail("unterminated type arguments")
		}
		if err := p.referenceType(); err != nil {
			return err
		}
	}
	p.emit()
	return nil
}

// ArgumentCount 返回方法描述符的参数个数
func ArgumentCount(desc string) (int, error) {
	args, _, err := ParseMethodDescriptor(desc)
	if err != nil {
		return 0, err
	}
	return len(args), nil
}

// ObjectDescriptor 把内部名或数组描述符转为字段描述符
func ObjectDescriptor(name string) string {
	if strings.HasPrefix(name, "[") {
		return name
	}
	return "L" + name + ";"
}

// InternalName 从 L...; 形式的描述符取内部名，数组描述符原样返回
func InternalName(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	return desc
}
