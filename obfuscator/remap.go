package obfuscator

import (
	"fmt"
	"strings"

	"jvm-obfuscator/classfile"
)

// remapper 把映射函数应用到类的每一处类名引用，记录遇到的第一个错误
type remapper struct {
	m   classfile.MapFunc
	err error
}

func (r *remapper) fail(err error, where string) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: %w", where, err)
	}
}

// typeName 改写内部名或数组描述符
func (r *remapper) typeName(name string) string {
	if name == "" {
		return name
	}
	out, err := classfile.RemapType(name, r.m)
	if err != nil {
		r.fail(err, "type "+name)
		return name
	}
	return out
}

// desc 改写字段或方法描述符
func (r *remapper) desc(desc string) string {
	if desc == "" {
		return desc
	}
	out, err := classfile.RemapDescriptor(desc, r.m)
	if err != nil {
		r.fail(err, "descriptor "+desc)
		return desc
	}
	if strings.HasPrefix(desc, "(") {
		before, err := classfile.ArgumentCount(desc)
		if err != nil {
			r.fail(err, "descriptor "+desc)
			return desc
		}
		after, err := classfile.ArgumentCount(out)
		if err != nil || after != before {
			r.fail(fmt.Errorf("%w: 参数个数由 %d 变为 %d", classfile.ErrStructure, before, after), "descriptor "+out)
			return desc
		}
	}
	return out
}

// signature 改写泛型签名
func (r *remapper) signature(sig string) string {
	if sig == "" {
		return sig
	}
	out, err := classfile.RemapSignature(sig, r.m)
	if err != nil {
		r.fail(err, "signature "+sig)
		return sig
	}
	return out
}

func (r *remapper) typeNames(names []string) {
	for i, name := range names {
		names[i] = r.typeName(name)
	}
}

// remapClass 改写类中所有对其它类的引用以及类自身的名称
func remapClass(rec *classfile.ClassRecord, m classfile.MapFunc) error {
	r := &remapper{m: m}

	rec.Name = r.typeName(rec.Name)
	rec.SuperName = r.typeName(rec.SuperName)
	r.typeNames(rec.Interfaces)
	rec.Signature = r.signature(rec.Signature)
	r.annotations(rec.VisibleAnnotations)
	r.annotations(rec.InvisibleAnnotations)

	for _, ic := range rec.InnerClasses {
		// 简单名 InnerName 保持不变
		ic.Name = r.typeName(ic.Name)
		ic.OuterName = r.typeName(ic.OuterName)
	}
	if em := rec.EnclosingMethod; em != nil {
		em.Owner = r.typeName(em.Owner)
		em.Descriptor = r.desc(em.Descriptor)
	}
	rec.NestHost = r.typeName(rec.NestHost)
	r.typeNames(rec.NestMembers)
	r.typeNames(rec.PermittedSubclasses)

	for _, f := range rec.Fields {
		f.Descriptor = r.desc(f.Descriptor)
		f.Signature = r.signature(f.Signature)
		r.annotations(f.VisibleAnnotations)
		r.annotations(f.InvisibleAnnotations)
	}

	for _, m := range rec.Methods {
		m.Descriptor = r.desc(m.Descriptor)
		m.Signature = r.signature(m.Signature)
		r.typeNames(m.Exceptions)
		r.annotations(m.VisibleAnnotations)
		r.annotations(m.InvisibleAnnotations)
		for _, params := range m.VisibleParameterAnnotations {
			r.annotations(params)
		}
		for _, params := range m.InvisibleParameterAnnotations {
			r.annotations(params)
		}
		if m.AnnotationDefault != nil {
			r.elementValue(m.AnnotationDefault)
		}
		if m.Code != nil {
			r.code(m.Code)
		}
		if r.err != nil {
			return fmt.Errorf("方法 %s.%s: %w", rec.Name, m.Name, r.err)
		}
	}

	return r.err
}

func (r *remapper) code(c *classfile.Code) {
	for n := c.Instructions.Front(); n != nil; n = n.Next() {
		switch in := n.Insn.(type) {
		case *classfile.TypeInsn:
			in.Type = r.typeName(in.Type)
		case *classfile.FieldInsn:
			in.Owner = r.typeName(in.Owner)
			in.Descriptor = r.desc(in.Descriptor)
		case *classfile.MethodInsn:
			in.Owner = r.typeName(in.Owner)
			in.Descriptor = r.desc(in.Descriptor)
		case *classfile.InvokeDynamicInsn:
			in.Descriptor = r.desc(in.Descriptor)
			in.Bootstrap = r.handle(in.Bootstrap)
			for i, arg := range in.Args {
				in.Args[i] = r.constant(arg)
			}
		case *classfile.LdcInsn:
			in.Value = r.constant(in.Value)
		case *classfile.MultiANewArrayInsn:
			in.Descriptor = r.desc(in.Descriptor)
		case *classfile.FrameInsn:
			r.verificationTypes(in.Locals)
			r.verificationTypes(in.Stack)
		}
	}
	for _, tc := range c.TryCatch {
		tc.Type = r.typeName(tc.Type)
	}
	for _, lv := range c.LocalVariables {
		lv.Descriptor = r.desc(lv.Descriptor)
		lv.Signature = r.signature(lv.Signature)
	}
}

func (r *remapper) verificationTypes(types []classfile.VerificationType) {
	for i := range types {
		if types[i].Kind == classfile.VObject {
			types[i].Class = r.typeName(types[i].Class)
		}
	}
}

func (r *remapper) handle(h classfile.Handle) classfile.Handle {
	h.Owner = r.typeName(h.Owner)
	h.Descriptor = r.desc(h.Descriptor)
	return h
}

// constant 改写可加载常量与引导方法参数中的类型引用
func (r *remapper) constant(v any) any {
	switch c := v.(type) {
	case classfile.ClassRef:
		return classfile.ClassRef{Name: r.typeName(c.Name)}
	case classfile.MethodTypeRef:
		return classfile.MethodTypeRef{Descriptor: r.desc(c.Descriptor)}
	case classfile.Handle:
		return r.handle(c)
	case classfile.ConstantDynamic:
		c.Descriptor = r.desc(c.Descriptor)
		c.Bootstrap = r.handle(c.Bootstrap)
		args := make([]any, len(c.Args))
		for i, arg := range c.Args {
			args[i] = r.constant(arg)
		}
		c.Args = args
		return c
	}
	return v
}

func (r *remapper) annotations(list []*classfile.Annotation) {
	for _, a := range list {
		r.annotation(a)
	}
}

func (r *remapper) annotation(a *classfile.Annotation) {
	a.Type = r.desc(a.Type)
	for _, p := range a.Values {
		r.elementValue(p.Value)
	}
}

// elementValue 改写注解元素，字符串值保持不变
func (r *remapper) elementValue(ev *classfile.ElementValue) {
	switch ev.Tag {
	case 'e':
		ev.EnumType = r.desc(ev.EnumType)
	case 'c':
		if ev.Class != "V" {
			ev.Class = r.desc(ev.Class)
		}
	case '@':
		r.annotation(ev.Annotation)
	case '[':
		for _, item := range ev.Array {
			r.elementValue(item)
		}
	}
}
