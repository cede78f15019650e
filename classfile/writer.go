package classfile

import (
	"encoding/binary"
	"math"
)

func appendU2(b []byte, v int) []byte {
	return binary.BigEndian.AppendUint16(b, uint16(v))
}

func appendU4(b []byte, v int) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(v))
}

// classWriter 在写出成员与属性的同时构建常量池，最后拼接文件头
type classWriter struct {
	p   *poolBuilder
	rec *ClassRecord
}

type attribute struct {
	name string
	body []byte
}

// Encode 把 ClassRecord 编码为类文件字节
func Encode(rec *ClassRecord) ([]byte, error) {
	w := &classWriter{p: newPoolBuilder(), rec: rec}
	return w.encode()
}

func (w *classWriter) encode() ([]byte, error) {
	rec := w.rec
	if rec.Name == "" {
		return nil, structuralf("class has no name")
	}
	this, err := w.p.class(rec.Name)
	if err != nil {
		return nil, err
	}
	var super uint16
	if rec.SuperName != "" {
		if super, err = w.p.class(rec.SuperName); err != nil {
			return nil, err
		}
	}
	ifaces := make([]uint16, 0, len(rec.Interfaces))
	for _, name := range rec.Interfaces {
		idx, err := w.p.class(name)
		if err != nil {
			return nil, err
		}
		ifaces = append(ifaces, idx)
	}

	var body []byte
	if len(rec.Fields) > 0xffff || len(rec.Methods) > 0xffff {
		return nil, structuralf("too many members in %s", rec.Name)
	}
	body = appendU2(body, len(rec.Fields))
	for _, f := range rec.Fields {
		if body, err = w.field(body, f); err != nil {
			return nil, err
		}
	}
	body = appendU2(body, len(rec.Methods))
	for _, m := range rec.Methods {
		if body, err = w.method(body, m); err != nil {
			return nil, err
		}
	}
	attrs, err := w.classAttributes()
	if err != nil {
		return nil, err
	}
	// BootstrapMethods 必须最后生成，前面的属性都可能追加引导方法
	if len(w.p.bsm) > 0 {
		var b []byte
		b = appendU2(b, len(w.p.bsm))
		for _, entry := range w.p.bsm {
			b = appendU2(b, int(entry[0]))
			b = appendU2(b, len(entry)-1)
			for _, arg := range entry[1:] {
				b = appendU2(b, int(arg))
			}
		}
		attrs = append(attrs, attribute{name: "BootstrapMethods", body: b})
	}
	if body, err = w.attributes(body, attrs); err != nil {
		return nil, err
	}

	access := rec.Access
	if rec.MajorVersion < 49 {
		access &^= AccSynthetic
	}
	out := make([]byte, 0, w.p.buf.Len()+len(body)+32)
	out = binary.BigEndian.AppendUint32(out, 0xCAFEBABE)
	out = appendU2(out, int(rec.MinorVersion))
	out = appendU2(out, int(rec.MajorVersion))
	out = appendU2(out, w.p.next)
	out = append(out, w.p.buf.Bytes()...)
	out = appendU2(out, int(access))
	out = appendU2(out, int(this))
	out = appendU2(out, int(super))
	out = appendU2(out, len(ifaces))
	for _, idx := range ifaces {
		out = appendU2(out, int(idx))
	}
	return append(out, body...), nil
}

// attributes 写出属性表，属性名在此时加入常量池
func (w *classWriter) attributes(b []byte, attrs []attribute) ([]byte, error) {
	b = appendU2(b, len(attrs))
	for _, a := range attrs {
		idx, err := w.p.utf8(a.name)
		if err != nil {
			return nil, err
		}
		if uint64(len(a.body)) > math.MaxUint32 {
			return nil, structuralf("attribute %s too large", a.name)
		}
		b = appendU2(b, int(idx))
		b = appendU4(b, len(a.body))
		b = append(b, a.body...)
	}
	return b, nil
}

// u2Attr 生成只含一个常量池索引的属性，用法为 u2Attr(name)(pool.xxx(...))
func u2Attr(name string) func(uint16, error) (attribute, error) {
	return func(idx uint16, err error) (attribute, error) {
		return attribute{name: name, body: appendU2(nil, int(idx))}, err
	}
}

// common 生成类、字段与方法共有的属性
func (w *classWriter) common(access uint16, signature string, deprecated bool, visible, invisible []*Annotation) ([]attribute, error) {
	var attrs []attribute
	if signature != "" {
		a, err := u2Attr("Signature")(w.utf8(signature))
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	if deprecated {
		attrs = append(attrs, attribute{name: "Deprecated"})
	}
	if access&AccSynthetic != 0 && w.rec.MajorVersion < 49 {
		attrs = append(attrs, attribute{name: "Synthetic"})
	}
	for _, set := range []struct {
		name string
		anns []*Annotation
	}{
		{"RuntimeVisibleAnnotations", visible},
		{"RuntimeInvisibleAnnotations", invisible},
	} {
		if len(set.anns) == 0 {
			continue
		}
		body, err := w.annotations(nil, set.anns)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attribute{name: set.name, body: body})
	}
	return attrs, nil
}

func (w *classWriter) utf8(s string) (uint16, error) {
	return w.p.utf8(s)
}

func (w *classWriter) memberAccess(access uint16) int {
	if w.rec.MajorVersion < 49 {
		access &^= AccSynthetic
	}
	return int(access)
}

func (w *classWriter) field(b []byte, f *FieldRecord) ([]byte, error) {
	name, err := w.p.utf8(f.Name)
	if err != nil {
		return nil, err
	}
	desc, err := w.p.utf8(f.Descriptor)
	if err != nil {
		return nil, err
	}
	attrs, err := w.common(f.Access, f.Signature, f.Deprecated, f.VisibleAnnotations, f.InvisibleAnnotations)
	if err != nil {
		return nil, err
	}
	if f.Value != nil {
		a, err := u2Attr("ConstantValue")(w.p.constant(f.Value))
		if err != nil {
			return nil, err
		}
		attrs = append([]attribute{a}, attrs...)
	}
	b = appendU2(b, w.memberAccess(f.Access))
	b = appendU2(b, int(name))
	b = appendU2(b, int(desc))
	return w.attributes(b, attrs)
}

func (w *classWriter) method(b []byte, m *MethodRecord) ([]byte, error) {
	name, err := w.p.utf8(m.Name)
	if err != nil {
		return nil, err
	}
	desc, err := w.p.utf8(m.Descriptor)
	if err != nil {
		return nil, err
	}
	var attrs []attribute
	if m.Code != nil {
		body, err := w.code(m)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attribute{name: "Code", body: body})
	}
	if len(m.Exceptions) > 0 {
		body := appendU2(nil, len(m.Exceptions))
		for _, e := range m.Exceptions {
			idx, err := w.p.class(e)
			if err != nil {
				return nil, err
			}
			body = appendU2(body, int(idx))
		}
		attrs = append(attrs, attribute{name: "Exceptions", body: body})
	}
	common, err := w.common(m.Access, m.Signature, m.Deprecated, m.VisibleAnnotations, m.InvisibleAnnotations)
	if err != nil {
		return nil, err
	}
	attrs = append(attrs, common...)
	for _, set := range []struct {
		name string
		anns [][]*Annotation
	}{
		{"RuntimeVisibleParameterAnnotations", m.VisibleParameterAnnotations},
		{"RuntimeInvisibleParameterAnnotations", m.InvisibleParameterAnnotations},
	} {
		if len(set.anns) == 0 {
			continue
		}
		body := []byte{byte(len(set.anns))}
		for _, anns := range set.anns {
			if body, err = w.annotations(body, anns); err != nil {
				return nil, err
			}
		}
		attrs = append(attrs, attribute{name: set.name, body: body})
	}
	if m.AnnotationDefault != nil {
		body, err := w.elementValue(nil, m.AnnotationDefault)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attribute{name: "AnnotationDefault", body: body})
	}
	if len(m.Parameters) > 0 {
		body := []byte{byte(len(m.Parameters))}
		for _, p := range m.Parameters {
			var idx uint16
			if p.Name != "" {
				if idx, err = w.p.utf8(p.Name); err != nil {
					return nil, err
				}
			}
			body = appendU2(body, int(idx))
			body = appendU2(body, int(p.Access))
		}
		attrs = append(attrs, attribute{name: "MethodParameters", body: body})
	}
	b = appendU2(b, w.memberAccess(m.Access))
	b = appendU2(b, int(name))
	b = appendU2(b, int(desc))
	return w.attributes(b, attrs)
}

func (w *classWriter) classNames(names []string) ([]byte, error) {
	body := appendU2(nil, len(names))
	for _, n := range names {
		idx, err := w.p.class(n)
		if err != nil {
			return nil, err
		}
		body = appendU2(body, int(idx))
	}
	return body, nil
}

func (w *classWriter) classAttributes() ([]attribute, error) {
	rec := w.rec
	var attrs []attribute
	if rec.SourceFile != "" {
		a, err := u2Attr("SourceFile")(w.utf8(rec.SourceFile))
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	common, err := w.common(rec.Access, rec.Signature, rec.Deprecated, rec.VisibleAnnotations, rec.InvisibleAnnotations)
	if err != nil {
		return nil, err
	}
	attrs = append(attrs, common...)
	if len(rec.InnerClasses) > 0 {
		body := appendU2(nil, len(rec.InnerClasses))
		for _, ic := range rec.InnerClasses {
			inner, err := w.p.class(ic.Name)
			if err != nil {
				return nil, err
			}
			var outer, simple uint16
			if ic.OuterName != "" {
				if outer, err = w.p.class(ic.OuterName); err != nil {
					return nil, err
				}
			}
			if ic.InnerName != "" {
				if simple, err = w.p.utf8(ic.InnerName); err != nil {
					return nil, err
				}
			}
			body = appendU2(body, int(inner))
			body = appendU2(body, int(outer))
			body = appendU2(body, int(simple))
			body = appendU2(body, int(ic.Access))
		}
		attrs = append(attrs, attribute{name: "InnerClasses", body: body})
	}
	if em := rec.EnclosingMethod; em != nil {
		owner, err := w.p.class(em.Owner)
		if err != nil {
			return nil, err
		}
		var nt uint16
		if em.Name != "" {
			if nt, err = w.p.nameAndType(em.Name, em.Descriptor); err != nil {
				return nil, err
			}
		}
		body := appendU2(appendU2(nil, int(owner)), int(nt))
		attrs = append(attrs, attribute{name: "EnclosingMethod", body: body})
	}
	if rec.NestHost != "" {
		a, err := u2Attr("NestHost")(w.p.class(rec.NestHost))
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	for _, set := range []struct {
		name  string
		names []string
	}{
		{"NestMembers", rec.NestMembers},
		{"PermittedSubclasses", rec.PermittedSubclasses},
	} {
		if len(set.names) == 0 {
			continue
		}
		body, err := w.classNames(set.names)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attribute{name: set.name, body: body})
	}
	return attrs, nil
}

func (w *classWriter) annotations(b []byte, anns []*Annotation) ([]byte, error) {
	b = appendU2(b, len(anns))
	var err error
	for _, a := range anns {
		if b, err = w.annotation(b, a); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (w *classWriter) annotation(b []byte, a *Annotation) ([]byte, error) {
	t, err := w.p.utf8(a.Type)
	if err != nil {
		return nil, err
	}
	b = appendU2(b, int(t))
	b = appendU2(b, len(a.Values))
	for _, pair := range a.Values {
		name, err := w.p.utf8(pair.Name)
		if err != nil {
			return nil, err
		}
		b = appendU2(b, int(name))
		if b, err = w.elementValue(b, pair.Value); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (w *classWriter) elementValue(b []byte, ev *ElementValue) ([]byte, error) {
	b = append(b, ev.Tag)
	var idx uint16
	var err error
	switch ev.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		idx, err = w.p.constant(ev.Const)
	case 's':
		s, ok := ev.Const.(string)
		if !ok {
			return nil, structuralf("string element value holds %T", ev.Const)
		}
		idx, err = w.p.utf8(s)
	case 'e':
		if idx, err = w.p.utf8(ev.EnumType); err != nil {
			return nil, err
		}
		b = appendU2(b, int(idx))
		idx, err = w.p.utf8(ev.EnumName)
	case 'c':
		idx, err = w.p.utf8(ev.Class)
	case '@':
		return w.annotation(b, ev.Annotation)
	case '[':
		b = appendU2(b, len(ev.Array))
		for _, v := range ev.Array {
			if b, err = w.elementValue(b, v); err != nil {
				return nil, err
			}
		}
		return b, nil
	default:
		return nil, structuralf("unknown element value tag %q", ev.Tag)
	}
	if err != nil {
		return nil, err
	}
	return appendU2(b, int(idx)), nil
}
