package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ConstantKind 是常量池项的标签
type ConstantKind uint8

const (
	ConstantKindUtf8               ConstantKind = 1
	ConstantKindInteger            ConstantKind = 3
	ConstantKindFloat              ConstantKind = 4
	ConstantKindLong               ConstantKind = 5
	ConstantKindDouble             ConstantKind = 6
	ConstantKindClass              ConstantKind = 7
	ConstantKindString             ConstantKind = 8
	ConstantKindFieldref           ConstantKind = 9
	ConstantKindMethodref          ConstantKind = 10
	ConstantKindInterfaceMethodref ConstantKind = 11
	ConstantKindNameAndType        ConstantKind = 12
	ConstantKindMethodHandle       ConstantKind = 15
	ConstantKindMethodType         ConstantKind = 16
	ConstantKindDynamic            ConstantKind = 17
	ConstantKindInvokeDynamic      ConstantKind = 18
	ConstantKindModule             ConstantKind = 19
	ConstantKindPackage            ConstantKind = 20
)

type cpEntry struct {
	kind ConstantKind
	// 引用型常量的两个索引；MethodHandle 时 a 为引用类型
	a, b uint16
	str  string
	i32  int32
	f32  float32
	i64  int64
	f64  float64
}

// poolBuilder 在编码时按需追加并去重常量池项
type poolBuilder struct {
	buf     bytes.Buffer
	next    int
	index   map[string]uint16
	bsm     [][]uint16
	bsmKeys map[string]uint16
}

func newPoolBuilder() *poolBuilder {
	return &poolBuilder{next: 1, index: make(map[string]uint16), bsmKeys: make(map[string]uint16)}
}

func (p *poolBuilder) add(key string, slots int, write func(*bytes.Buffer)) (uint16, error) {
	if idx, ok := p.index[key]; ok {
		return idx, nil
	}
	if p.next+slots > 0xffff {
		return 0, structuralf("constant pool overflow")
	}
	idx := uint16(p.next)
	write(&p.buf)
	p.next += slots
	p.index[key] = idx
	return idx, nil
}

func u2(b *bytes.Buffer, v uint16) {
	_ = binary.Write(b, binary.BigEndian, v)
}

func (p *poolBuilder) utf8(s string) (uint16, error) {
	data := encodeMUTF8(s)
	if len(data) > 0xffff {
		return 0, structuralf("string constant too long (%d bytes)", len(data))
	}
	return p.add("U"+s, 1, func(b *bytes.Buffer) {
		b.WriteByte(byte(ConstantKindUtf8))
		u2(b, uint16(len(data)))
		b.Write(data)
	})
}

func (p *poolBuilder) ref(kind ConstantKind, key string, idx ...uint16) (uint16, error) {
	return p.add(fmt.Sprintf("%d:%s", kind, key), 1, func(b *bytes.Buffer) {
		b.WriteByte(byte(kind))
		for _, i := range idx {
			u2(b, i)
		}
	})
}

func (p *poolBuilder) class(name string) (uint16, error) {
	n, err := p.utf8(name)
	if err != nil {
		return 0, err
	}
	return p.ref(ConstantKindClass, name, n)
}

func (p *poolBuilder) str(s string) (uint16, error) {
	n, err := p.utf8(s)
	if err != nil {
		return 0, err
	}
	return p.ref(ConstantKindString, s, n)
}

func (p *poolBuilder) methodType(desc string) (uint16, error) {
	n, err := p.utf8(desc)
	if err != nil {
		return 0, err
	}
	return p.ref(ConstantKindMethodType, desc, n)
}

func (p *poolBuilder) nameAndType(name, desc string) (uint16, error) {
	n, err := p.utf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.utf8(desc)
	if err != nil {
		return 0, err
	}
	return p.ref(ConstantKindNameAndType, name+"\x00"+desc, n, d)
}

func (p *poolBuilder) member(kind ConstantKind, owner, name, desc string) (uint16, error) {
	c, err := p.class(owner)
	if err != nil {
		return 0, err
	}
	nt, err := p.nameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	return p.ref(kind, owner+"\x00"+name+"\x00"+desc, c, nt)
}

func (p *poolBuilder) field(owner, name, desc string) (uint16, error) {
	return p.member(ConstantKindFieldref, owner, name, desc)
}

func (p *poolBuilder) method(owner, name, desc string, itf bool) (uint16, error) {
	if itf {
		return p.member(ConstantKindInterfaceMethodref, owner, name, desc)
	}
	return p.member(ConstantKindMethodref, owner, name, desc)
}

func (p *poolBuilder) handle(h Handle) (uint16, error) {
	var ref uint16
	var err error
	if h.Kind <= RefPutStatic {
		ref, err = p.field(h.Owner, h.Name, h.Descriptor)
	} else {
		ref, err = p.method(h.Owner, h.Name, h.Descriptor, h.Interface)
	}
	if err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%d:%d", h.Kind, ref)
	return p.add(fmt.Sprintf("%d:%s", ConstantKindMethodHandle, key), 1, func(b *bytes.Buffer) {
		b.WriteByte(byte(ConstantKindMethodHandle))
		b.WriteByte(h.Kind)
		u2(b, ref)
	})
}

func (p *poolBuilder) bootstrap(h Handle, args []any) (uint16, error) {
	entry := make([]uint16, 0, len(args)+1)
	hi, err := p.handle(h)
	if err != nil {
		return 0, err
	}
	entry = append(entry, hi)
	for _, a := range args {
		ai, err := p.constant(a)
		if err != nil {
			return 0, err
		}
		entry = append(entry, ai)
	}
	key := fmt.Sprint(entry)
	if idx, ok := p.bsmKeys[key]; ok {
		return idx, nil
	}
	idx := uint16(len(p.bsm))
	p.bsm = append(p.bsm, entry)
	p.bsmKeys[key] = idx
	return idx, nil
}

func (p *poolBuilder) dynamic(kind ConstantKind, name, desc string, h Handle, args []any) (uint16, error) {
	bi, err := p.bootstrap(h, args)
	if err != nil {
		return 0, err
	}
	nt, err := p.nameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	return p.ref(kind, fmt.Sprintf("%d:%d", bi, nt), bi, nt)
}

// constant 为 ldc、ConstantValue 或引导参数写入常量
func (p *poolBuilder) constant(v any) (uint16, error) {
	switch c := v.(type) {
	case int32:
		return p.add(fmt.Sprintf("I%d", c), 1, func(b *bytes.Buffer) {
			b.WriteByte(byte(ConstantKindInteger))
			_ = binary.Write(b, binary.BigEndian, c)
		})
	case float32:
		bits := math.Float32bits(c)
		return p.add(fmt.Sprintf("F%d", bits), 1, func(b *bytes.Buffer) {
			b.WriteByte(byte(ConstantKindFloat))
			_ = binary.Write(b, binary.BigEndian, bits)
		})
	case int64:
		return p.add(fmt.Sprintf("J%d", c), 2, func(b *bytes.Buffer) {
			b.WriteByte(byte(ConstantKindLong))
			_ = binary.Write(b, binary.BigEndian, c)
		})
	case float64:
		bits := math.Float64bits(c)
		return p.add(fmt.Sprintf("D%d", bits), 2, func(b *bytes.Buffer) {
			b.WriteByte(byte(ConstantKindDouble))
			_ = binary.Write(b, binary.BigEndian, bits)
		})
	case string:
		return p.str(c)
	case ClassRef:
		return p.class(c.Name)
	case MethodTypeRef:
		return p.methodType(c.Descriptor)
	case Handle:
		return p.handle(c)
	case ConstantDynamic:
		return p.dynamic(ConstantKindDynamic, c.Name, c.Descriptor, c.Bootstrap, c.Args)
	}
	return 0, structuralf("unsupported constant %T", v)
}

// readPool 解析常量池，索引 0 与 long/double 的第二个槽位为空
func readPool(r *reader) ([]cpEntry, error) {
	count := int(r.u2())
	pool := make([]cpEntry, count)
	for i := 1; i < count; i++ {
		kind := ConstantKind(r.u1())
		e := cpEntry{kind: kind}
		switch kind {
		case ConstantKindUtf8:
			n := int(r.u2())
			e.str = decodeMUTF8(r.bytes(n))
		case ConstantKindInteger:
			e.i32 = int32(r.u4())
		case ConstantKindFloat:
			e.f32 = math.Float32frombits(r.u4())
		case ConstantKindLong:
			e.i64 = int64(r.u8())
		case ConstantKindDouble:
			e.f64 = math.Float64frombits(r.u8())
		case ConstantKindClass, ConstantKindString, ConstantKindMethodType, ConstantKindModule, ConstantKindPackage:
			e.a = r.u2()
		case ConstantKindFieldref, ConstantKindMethodref, ConstantKindInterfaceMethodref,
			ConstantKindNameAndType, ConstantKindDynamic, ConstantKindInvokeDynamic:
			e.a = r.u2()
			e.b = r.u2()
		case ConstantKindMethodHandle:
			e.a = uint16(r.u1())
			e.b = r.u2()
		default:
			return nil, r.failf("unknown constant pool tag %d at index %d", kind, i)
		}
		if r.err != nil {
			return nil, r.err
		}
		pool[i] = e
		if kind == ConstantKindLong || kind == ConstantKindDouble {
			i++
		}
	}
	return pool, nil
}
