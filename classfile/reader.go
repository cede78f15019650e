package classfile

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// reader 是带越界检查的大端字节读取器，出错后后续读取均返回零值
type reader struct {
	buf  []byte
	pos  int
	base int
	err  error
}

func (r *reader) failf(format string, args ...any) error {
	if r.err == nil {
		r.err = &DecodeError{Offset: r.base + r.pos, Msg: fmt.Sprintf(format, args...)}
	}
	return r.err
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.failf("unexpected end of data (need %d bytes)", n)
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) u8() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v
}

// sub 返回一个读取接下来 n 字节的子读取器
func (r *reader) sub(n int) *reader {
	base := r.base + r.pos
	return &reader{buf: r.bytes(n), base: base, err: r.err}
}

type rawAttribute struct {
	name   string
	data   []byte
	offset int
}

type rawMember struct {
	access uint16
	name   string
	desc   string
	attrs  []rawAttribute
}

type decoder struct {
	r     *reader
	pool  []cpEntry
	bsm   []rawBootstrap
	class *ClassRecord
}

type rawBootstrap struct {
	handle uint16
	args   []uint16
}

// Decode 把类文件字节解码为 ClassRecord
func Decode(data []byte) (*ClassRecord, error) {
	d := &decoder{r: &reader{buf: data}}
	rec, err := d.decode()
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (d *decoder) decode() (*ClassRecord, error) {
	r := d.r
	if magic := r.u4(); magic != 0xCAFEBABE {
		return nil, r.failf("bad magic 0x%08X", magic)
	}
	rec := &ClassRecord{}
	d.class = rec
	rec.MinorVersion = r.u2()
	rec.MajorVersion = r.u2()
	pool, err := readPool(r)
	if err != nil {
		return nil, err
	}
	d.pool = pool
	rec.Access = r.u2()
	if rec.Name, err = d.className(r.u2()); err != nil {
		return nil, err
	}
	if super := r.u2(); super != 0 {
		if rec.SuperName, err = d.className(super); err != nil {
			return nil, err
		}
	}
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		iface, err := d.className(r.u2())
		if err != nil {
			return nil, err
		}
		rec.Interfaces = append(rec.Interfaces, iface)
	}
	fields, err := d.members()
	if err != nil {
		return nil, err
	}
	methods, err := d.members()
	if err != nil {
		return nil, err
	}
	attrs, err := d.attributes(r)
	if err != nil {
		return nil, err
	}
	// BootstrapMethods 位于类属性中，先解析它再解码方法体
	for _, a := range attrs {
		if a.name == "BootstrapMethods" {
			if err := d.bootstrapMethods(a); err != nil {
				return nil, err
			}
		}
	}
	if err := d.classAttributes(attrs); err != nil {
		return nil, err
	}
	for _, f := range fields {
		fr, err := d.field(f)
		if err != nil {
			return nil, err
		}
		rec.Fields = append(rec.Fields, fr)
	}
	for _, m := range methods {
		mr, err := d.method(m)
		if err != nil {
			return nil, err
		}
		rec.Methods = append(rec.Methods, mr)
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

func (d *decoder) entry(idx uint16, kinds ...ConstantKind) (*cpEntry, error) {
	if int(idx) <= 0 || int(idx) >= len(d.pool) {
		return nil, d.r.failf("constant pool index %d out of range", idx)
	}
	e := &d.pool[idx]
	for _, k := range kinds {
		if e.kind == k {
			return e, nil
		}
	}
	return nil, d.r.failf("constant pool index %d has tag %d, want %v", idx, e.kind, kinds)
}

func (d *decoder) utf8(idx uint16) (string, error) {
	e, err := d.entry(idx, ConstantKindUtf8)
	if err != nil {
		return "", err
	}
	return e.str, nil
}

func (d *decoder) className(idx uint16) (string, error) {
	e, err := d.entry(idx, ConstantKindClass)
	if err != nil {
		return "", err
	}
	return d.utf8(e.a)
}

func (d *decoder) nameAndType(idx uint16) (string, string, error) {
	e, err := d.entry(idx, ConstantKindNameAndType)
	if err != nil {
		return "", "", err
	}
	name, err := d.utf8(e.a)
	if err != nil {
		return "", "", err
	}
	desc, err := d.utf8(e.b)
	return name, desc, err
}

func (d *decoder) memberRef(idx uint16) (owner, name, desc string, itf bool, err error) {
	e, err := d.entry(idx, ConstantKindFieldref, ConstantKindMethodref, ConstantKindInterfaceMethodref)
	if err != nil {
		return
	}
	if owner, err = d.className(e.a); err != nil {
		return
	}
	name, desc, err = d.nameAndType(e.b)
	itf = e.kind == ConstantKindInterfaceMethodref
	return
}

func (d *decoder) handle(idx uint16) (Handle, error) {
	e, err := d.entry(idx, ConstantKindMethodHandle)
	if err != nil {
		return Handle{}, err
	}
	owner, name, desc, itf, err := d.memberRef(e.b)
	if err != nil {
		return Handle{}, err
	}
	return Handle{Kind: uint8(e.a), Owner: owner, Name: name, Descriptor: desc, Interface: itf}, nil
}

// constant 把可加载常量转为 IR 值
func (d *decoder) constant(idx uint16) (any, error) {
	return d.constantDepth(idx, 0)
}

func (d *decoder) constantDepth(idx uint16, depth int) (any, error) {
	if depth > 32 {
		return nil, d.r.failf("constant dynamic nesting too deep at index %d", idx)
	}
	e, err := d.entry(idx, ConstantKindInteger, ConstantKindFloat, ConstantKindLong, ConstantKindDouble,
		ConstantKindString, ConstantKindClass, ConstantKindMethodType, ConstantKindMethodHandle, ConstantKindDynamic)
	if err != nil {
		return nil, err
	}
	switch e.kind {
	case ConstantKindInteger:
		return e.i32, nil
	case ConstantKindFloat:
		return e.f32, nil
	case ConstantKindLong:
		return e.i64, nil
	case ConstantKindDouble:
		return e.f64, nil
	case ConstantKindString:
		return d.utf8(e.a)
	case ConstantKindClass:
		name, err := d.utf8(e.a)
		return ClassRef{Name: name}, err
	case ConstantKindMethodType:
		desc, err := d.utf8(e.a)
		return MethodTypeRef{Descriptor: desc}, err
	case ConstantKindMethodHandle:
		return d.handle(idx)
	}
	name, desc, err := d.nameAndType(e.b)
	if err != nil {
		return nil, err
	}
	h, args, err := d.bootstrapAt(e.a, depth)
	if err != nil {
		return nil, err
	}
	return ConstantDynamic{Name: name, Descriptor: desc, Bootstrap: h, Args: args}, nil
}

func (d *decoder) bootstrapAt(i uint16, depth int) (Handle, []any, error) {
	if int(i) >= len(d.bsm) {
		return Handle{}, nil, d.r.failf("bootstrap method index %d out of range", i)
	}
	b := d.bsm[i]
	h, err := d.handle(b.handle)
	if err != nil {
		return Handle{}, nil, err
	}
	args := make([]any, 0, len(b.args))
	for _, a := range b.args {
		v, err := d.constantDepth(a, depth+1)
		if err != nil {
			return Handle{}, nil, err
		}
		args = append(args, v)
	}
	return h, args, nil
}

func (d *decoder) members() ([]rawMember, error) {
	r := d.r
	n := int(r.u2())
	out := make([]rawMember, 0, n)
	for ; n > 0; n-- {
		m := rawMember{access: r.u2()}
		var err error
		if m.name, err = d.utf8(r.u2()); err != nil {
			return nil, err
		}
		if m.desc, err = d.utf8(r.u2()); err != nil {
			return nil, err
		}
		if m.attrs, err = d.attributes(r); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, r.err
}

func (d *decoder) attributes(r *reader) ([]rawAttribute, error) {
	n := int(r.u2())
	out := make([]rawAttribute, 0, n)
	for ; n > 0 && r.err == nil; n-- {
		nameIdx := r.u2()
		length := int(r.u4())
		offset := r.base + r.pos
		data := r.bytes(length)
		if r.err != nil {
			return nil, r.err
		}
		name, err := d.utf8(nameIdx)
		if err != nil {
			return nil, err
		}
		out = append(out, rawAttribute{name: name, data: data, offset: offset})
	}
	return out, r.err
}

func (d *decoder) attrReader(a rawAttribute) *reader {
	return &reader{buf: a.data, base: a.offset}
}

func (d *decoder) bootstrapMethods(a rawAttribute) error {
	r := d.attrReader(a)
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		b := rawBootstrap{handle: r.u2()}
		for k := int(r.u2()); k > 0 && r.err == nil; k-- {
			b.args = append(b.args, r.u2())
		}
		d.bsm = append(d.bsm, b)
	}
	return r.err
}

// withReader 在属性读取器上执行解析，并把错误回传到主读取器
func (d *decoder) withReader(r *reader, fn func() error) error {
	saved := d.r
	d.r = r
	err := fn()
	d.r = saved
	if err == nil {
		err = r.err
	}
	return err
}

func (d *decoder) classNames(r *reader) ([]string, error) {
	var out []string
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		name, err := d.className(r.u2())
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, r.err
}

func (d *decoder) classAttributes(attrs []rawAttribute) error {
	rec := d.class
	for _, a := range attrs {
		r := d.attrReader(a)
		err := d.withReader(r, func() error {
			var err error
			switch a.name {
			case "SourceFile":
				rec.SourceFile, err = d.utf8(r.u2())
			case "Signature":
				rec.Signature, err = d.utf8(r.u2())
			case "Deprecated":
				rec.Deprecated = true
			case "Synthetic":
				rec.Access |= AccSynthetic
			case "InnerClasses":
				for n := int(r.u2()); n > 0 && r.err == nil; n-- {
					ic := &InnerClass{}
					inner, outer, simple := r.u2(), r.u2(), r.u2()
					ic.Access = r.u2()
					if ic.Name, err = d.className(inner); err != nil {
						return err
					}
					if outer != 0 {
						if ic.OuterName, err = d.className(outer); err != nil {
							return err
						}
					}
					if simple != 0 {
						if ic.InnerName, err = d.utf8(simple); err != nil {
							return err
						}
					}
					rec.InnerClasses = append(rec.InnerClasses, ic)
				}
			case "EnclosingMethod":
				em := &EnclosingMethod{}
				owner, method := r.u2(), r.u2()
				if em.Owner, err = d.className(owner); err != nil {
					return err
				}
				if method != 0 {
					if em.Name, em.Descriptor, err = d.nameAndType(method); err != nil {
						return err
					}
				}
				rec.EnclosingMethod = em
			case "NestHost":
				rec.NestHost, err = d.className(r.u2())
			case "NestMembers":
				rec.NestMembers, err = d.classNames(r)
			case "PermittedSubclasses":
				rec.PermittedSubclasses, err = d.classNames(r)
			case "RuntimeVisibleAnnotations":
				rec.VisibleAnnotations, err = d.annotations(r)
			case "RuntimeInvisibleAnnotations":
				rec.InvisibleAnnotations, err = d.annotations(r)
			case "BootstrapMethods":
			default:
				slog.Debug(fmt.Sprintf("dropping class attribute %s of %s", a.name, rec.Name))
			}
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) field(m rawMember) (*FieldRecord, error) {
	f := &FieldRecord{Access: m.access, Name: m.name, Descriptor: m.desc}
	for _, a := range m.attrs {
		r := d.attrReader(a)
		err := d.withReader(r, func() error {
			var err error
			switch a.name {
			case "ConstantValue":
				f.Value, err = d.constant(r.u2())
			case "Signature":
				f.Signature, err = d.utf8(r.u2())
			case "Deprecated":
				f.Deprecated = true
			case "Synthetic":
				f.Access |= AccSynthetic
			case "RuntimeVisibleAnnotations":
				f.VisibleAnnotations, err = d.annotations(r)
			case "RuntimeInvisibleAnnotations":
				f.InvisibleAnnotations, err = d.annotations(r)
			default:
				slog.Debug(fmt.Sprintf("dropping field attribute %s of %s.%s", a.name, d.class.Name, f.Name))
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (d *decoder) method(m rawMember) (*MethodRecord, error) {
	mr := &MethodRecord{Access: m.access, Name: m.name, Descriptor: m.desc}
	var code *rawAttribute
	for i, a := range m.attrs {
		r := d.attrReader(a)
		err := d.withReader(r, func() error {
			var err error
			switch a.name {
			case "Code":
				code = &m.attrs[i]
			case "Exceptions":
				mr.Exceptions, err = d.classNames(r)
			case "Signature":
				mr.Signature, err = d.utf8(r.u2())
			case "Deprecated":
				mr.Deprecated = true
			case "Synthetic":
				mr.Access |= AccSynthetic
			case "RuntimeVisibleAnnotations":
				mr.VisibleAnnotations, err = d.annotations(r)
			case "RuntimeInvisibleAnnotations":
				mr.InvisibleAnnotations, err = d.annotations(r)
			case "RuntimeVisibleParameterAnnotations":
				mr.VisibleParameterAnnotations, err = d.parameterAnnotations(r)
			case "RuntimeInvisibleParameterAnnotations":
				mr.InvisibleParameterAnnotations, err = d.parameterAnnotations(r)
			case "AnnotationDefault":
				mr.AnnotationDefault, err = d.elementValue(r, 0)
			case "MethodParameters":
				for n := int(r.u1()); n > 0 && r.err == nil; n-- {
					p := &MethodParameter{}
					nameIdx := r.u2()
					p.Access = r.u2()
					if nameIdx != 0 {
						if p.Name, err = d.utf8(nameIdx); err != nil {
							return err
						}
					}
					mr.Parameters = append(mr.Parameters, p)
				}
			default:
				slog.Debug(fmt.Sprintf("dropping method attribute %s of %s.%s", a.name, d.class.Name, mr.Name))
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if code != nil {
		r := d.attrReader(*code)
		err := d.withReader(r, func() error {
			var err error
			mr.Code, err = d.code(r, mr)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("method %s.%s%s: %w", d.class.Name, mr.Name, mr.Descriptor, err)
		}
	}
	return mr, nil
}

func (d *decoder) annotations(r *reader) ([]*Annotation, error) {
	var out []*Annotation
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		a, err := d.annotation(r, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, r.err
}

func (d *decoder) parameterAnnotations(r *reader) ([][]*Annotation, error) {
	n := int(r.u1())
	out := make([][]*Annotation, 0, n)
	for ; n > 0 && r.err == nil; n-- {
		anns, err := d.annotations(r)
		if err != nil {
			return nil, err
		}
		out = append(out, anns)
	}
	return out, r.err
}

func (d *decoder) annotation(r *reader, depth int) (*Annotation, error) {
	if depth > 64 {
		return nil, r.failf("annotation nesting too deep")
	}
	t, err := d.utf8(r.u2())
	if err != nil {
		return nil, err
	}
	a := &Annotation{Type: t}
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		name, err := d.utf8(r.u2())
		if err != nil {
			return nil, err
		}
		v, err := d.elementValue(r, depth+1)
		if err != nil {
			return nil, err
		}
		a.Values = append(a.Values, &ElementPair{Name: name, Value: v})
	}
	return a, r.err
}

func (d *decoder) elementValue(r *reader, depth int) (*ElementValue, error) {
	if depth > 64 {
		return nil, r.failf("element value nesting too deep")
	}
	ev := &ElementValue{Tag: r.u1()}
	var err error
	switch ev.Tag {
	case 'B', 'C', 'I', 'S', 'Z':
		var e *cpEntry
		if e, err = d.entry(r.u2(), ConstantKindInteger); err == nil {
			ev.Const = e.i32
		}
	case 'D':
		var e *cpEntry
		if e, err = d.entry(r.u2(), ConstantKindDouble); err == nil {
			ev.Const = e.f64
		}
	case 'F':
		var e *cpEntry
		if e, err = d.entry(r.u2(), ConstantKindFloat); err == nil {
			ev.Const = e.f32
		}
	case 'J':
		var e *cpEntry
		if e, err = d.entry(r.u2(), ConstantKindLong); err == nil {
			ev.Const = e.i64
		}
	case 's':
		var s string
		s, err = d.utf8(r.u2())
		ev.Const = s
	case 'e':
		if ev.EnumType, err = d.utf8(r.u2()); err == nil {
			ev.EnumName, err = d.utf8(r.u2())
		}
	case 'c':
		ev.Class, err = d.utf8(r.u2())
	case '@':
		ev.Annotation, err = d.annotation(r, depth+1)
	case '[':
		for n := int(r.u2()); n > 0 && r.err == nil; n-- {
			v, err := d.elementValue(r, depth+1)
			if err != nil {
				return nil, err
			}
			ev.Array = append(ev.Array, v)
		}
	default:
		return nil, r.failf("unknown element value tag %q", ev.Tag)
	}
	if err != nil {
		return nil, err
	}
	return ev, r.err
}
