package classfile

import (
	"fmt"
	"log/slog"
	"sort"
)

// codeDecoder 解析一个 Code 属性。偏移量到标签的映射只在解码期间存在。
type codeDecoder struct {
	d      *decoder
	method *MethodRecord
	labels map[int]*Label
	lines  map[int][]int
	frames map[int]*FrameInsn
	insns  map[int]Instruction
	length int
}

func (c *codeDecoder) label(off int) *Label {
	if l, ok := c.labels[off]; ok {
		return l
	}
	l := &Label{origin: off}
	c.labels[off] = l
	return l
}

func (d *decoder) code(r *reader, m *MethodRecord) (*Code, error) {
	c := &codeDecoder{
		d:      d,
		method: m,
		labels: make(map[int]*Label),
		lines:  make(map[int][]int),
		frames: make(map[int]*FrameInsn),
		insns:  make(map[int]Instruction),
	}
	code := &Code{MaxStack: int(r.u2()), MaxLocals: int(r.u2())}
	length := int(r.u4())
	if r.err == nil && (length == 0 || length > 0xffff) {
		return nil, r.failf("invalid code length %d", length)
	}
	c.length = length
	if err := c.instructions(r.sub(length)); err != nil {
		return nil, err
	}
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		start, end, handler, catch := int(r.u2()), int(r.u2()), int(r.u2()), r.u2()
		tc := &TryCatchBlock{Start: c.label(start), End: c.label(end), Handler: c.label(handler)}
		if catch != 0 {
			t, err := d.className(catch)
			if err != nil {
				return nil, err
			}
			tc.Type = t
		}
		code.TryCatch = append(code.TryCatch, tc)
	}
	attrs, err := d.attributes(r)
	if err != nil {
		return nil, err
	}
	var lvtt []*LocalVariable
	for _, a := range attrs {
		ar := d.attrReader(a)
		err := d.withReader(ar, func() error {
			switch a.name {
			case "LineNumberTable":
				for n := int(ar.u2()); n > 0 && ar.err == nil; n-- {
					pc, line := int(ar.u2()), int(ar.u2())
					c.lines[pc] = append(c.lines[pc], line)
				}
			case "LocalVariableTable", "LocalVariableTypeTable":
				vars, err := c.localVariables(ar)
				if err != nil {
					return err
				}
				if a.name == "LocalVariableTable" {
					code.LocalVariables = append(code.LocalVariables, vars...)
				} else {
					lvtt = append(lvtt, vars...)
				}
			case "StackMapTable":
				if d.class.MajorVersion < FramesVersion {
					return nil
				}
				return c.stackMapTable(ar)
			default:
				slog.Debug(fmt.Sprintf("dropping code attribute %s of %s.%s", a.name, d.class.Name, m.Name))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	for _, t := range lvtt {
		for _, v := range code.LocalVariables {
			if v.Index == t.Index && v.Name == t.Name && v.Start == t.Start && v.End == t.End {
				v.Signature = t.Descriptor
			}
		}
	}
	list, err := c.assemble()
	if err != nil {
		return nil, err
	}
	code.Instructions = list
	return code, r.err
}

func (c *codeDecoder) localVariables(r *reader) ([]*LocalVariable, error) {
	var out []*LocalVariable
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		start, length := int(r.u2()), int(r.u2())
		name, err := c.d.utf8(r.u2())
		if err != nil {
			return nil, err
		}
		desc, err := c.d.utf8(r.u2())
		if err != nil {
			return nil, err
		}
		out = append(out, &LocalVariable{
			Name:       name,
			Descriptor: desc,
			Start:      c.label(start),
			End:        c.label(start + length),
			Index:      int(r.u2()),
		})
	}
	return out, r.err
}

// assemble 按偏移顺序生成指令序列：标签、行号、帧、指令
func (c *codeDecoder) assemble() (*InsnList, error) {
	for off := range c.labels {
		if _, ok := c.insns[off]; !ok && off != c.length {
			return nil, c.d.r.failf("branch or table offset %d is not an instruction boundary in %s", off, c.method.Name)
		}
	}
	offsets := make([]int, 0, len(c.insns))
	for off := range c.insns {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	list := NewInsnList()
	for _, off := range offsets {
		lines := c.lines[off]
		frame := c.frames[off]
		if len(lines) > 0 || frame != nil {
			c.label(off)
		}
		if l, ok := c.labels[off]; ok {
			list.Add(l)
		}
		for _, line := range lines {
			list.Add(&LineNumber{Line: line, Start: c.labels[off]})
		}
		if frame != nil {
			list.Add(frame)
		}
		list.Add(c.insns[off])
	}
	if l, ok := c.labels[c.length]; ok {
		list.Add(l)
	}
	return list, nil
}

// instructions 解码字节码，分支目标以标签表示
func (c *codeDecoder) instructions(r *reader) error {
	d := c.d
	for r.err == nil && r.pos < len(r.buf) {
		off := r.pos
		op := int(r.u1())
		var in Instruction
		switch {
		case op >= ILOAD_0 && op <= ALOAD_3:
			k := op - ILOAD_0
			in = &VarInsn{Op: ILOAD + k/4, Var: k % 4}
		case op >= ISTORE_0 && op <= ASTORE_3:
			k := op - ISTORE_0
			in = &VarInsn{Op: ISTORE + k/4, Var: k % 4}
		case op == WIDE:
			wop := int(r.u1())
			switch {
			case wop == IINC:
				in = &IincInsn{Var: int(r.u2()), Incr: int(int16(r.u2()))}
			case (wop >= ILOAD && wop <= ALOAD) || (wop >= ISTORE && wop <= ASTORE) || wop == RET:
				in = &VarInsn{Op: wop, Var: int(r.u2())}
			default:
				return r.failf("invalid wide opcode 0x%02x", wop)
			}
		case op == BIPUSH:
			in = &IntInsn{Op: op, Operand: int(int8(r.u1()))}
		case op == SIPUSH:
			in = &IntInsn{Op: op, Operand: int(int16(r.u2()))}
		case op == NEWARRAY:
			in = &IntInsn{Op: op, Operand: int(r.u1())}
		case op == LDC, op == LDC_W, op == LDC2_W:
			idx := uint16(r.u1())
			if op != LDC {
				idx = idx<<8 | uint16(r.u1())
			}
			v, err := d.constant(idx)
			if err != nil {
				return err
			}
			in = &LdcInsn{Value: v}
		case (op >= ILOAD && op <= ALOAD) || (op >= ISTORE && op <= ASTORE) || op == RET:
			in = &VarInsn{Op: op, Var: int(r.u1())}
		case op == IINC:
			in = &IincInsn{Var: int(r.u1()), Incr: int(int8(r.u1()))}
		case (op >= IFEQ && op <= JSR) || op == IFNULL || op == IFNONNULL:
			in = &JumpInsn{Op: op, Target: c.label(off + int(int16(r.u2())))}
		case op == GOTO_W || op == JSR_W:
			target := c.label(off + int(int32(r.u4())))
			if op == GOTO_W {
				in = &JumpInsn{Op: GOTO, Target: target}
			} else {
				in = &JumpInsn{Op: JSR, Target: target}
			}
		case op == TABLESWITCH:
			r.bytes((4 - (off+1)%4) % 4)
			ts := &TableSwitchInsn{Default: c.label(off + int(int32(r.u4())))}
			ts.Low, ts.High = int32(r.u4()), int32(r.u4())
			if r.err == nil && (ts.High < ts.Low || int64(ts.High)-int64(ts.Low) >= int64(len(r.buf))) {
				return r.failf("invalid tableswitch range [%d, %d]", ts.Low, ts.High)
			}
			for i := int64(ts.Low); i <= int64(ts.High) && r.err == nil; i++ {
				ts.Targets = append(ts.Targets, c.label(off+int(int32(r.u4()))))
			}
			in = ts
		case op == LOOKUPSWITCH:
			r.bytes((4 - (off+1)%4) % 4)
			ls := &LookupSwitchInsn{Default: c.label(off + int(int32(r.u4())))}
			n := int(int32(r.u4()))
			if r.err == nil && (n < 0 || n*8 > len(r.buf)) {
				return r.failf("invalid lookupswitch pair count %d", n)
			}
			for ; n > 0 && r.err == nil; n-- {
				ls.Keys = append(ls.Keys, int32(r.u4()))
				ls.Targets = append(ls.Targets, c.label(off+int(int32(r.u4()))))
			}
			in = ls
		case op >= GETSTATIC && op <= PUTFIELD:
			owner, name, desc, _, err := d.memberRef(r.u2())
			if err != nil {
				return err
			}
			in = &FieldInsn{Op: op, Owner: owner, Name: name, Descriptor: desc}
		case op >= INVOKEVIRTUAL && op <= INVOKEINTERFACE:
			owner, name, desc, itf, err := d.memberRef(r.u2())
			if err != nil {
				return err
			}
			if op == INVOKEINTERFACE {
				r.u1()
				r.u1()
			}
			in = &MethodInsn{Op: op, Owner: owner, Name: name, Descriptor: desc, Interface: itf}
		case op == INVOKEDYNAMIC:
			e, err := d.entry(r.u2(), ConstantKindInvokeDynamic)
			if err != nil {
				return err
			}
			r.u2()
			name, desc, err := d.nameAndType(e.b)
			if err != nil {
				return err
			}
			h, args, err := d.bootstrapAt(e.a, 0)
			if err != nil {
				return err
			}
			in = &InvokeDynamicInsn{Name: name, Descriptor: desc, Bootstrap: h, Args: args}
		case op == NEW || op == ANEWARRAY || op == CHECKCAST || op == INSTANCEOF:
			t, err := d.className(r.u2())
			if err != nil {
				return err
			}
			in = &TypeInsn{Op: op, Type: t}
		case op == MULTIANEWARRAY:
			t, err := d.className(r.u2())
			if err != nil {
				return err
			}
			in = &MultiANewArrayInsn{Descriptor: t, Dims: int(r.u1())}
		case op <= DCONST_1 || (op >= IALOAD && op <= SALOAD) || (op >= IASTORE && op <= LXOR) ||
			(op >= I2L && op <= DCMPG) || (op >= IRETURN && op <= RETURN) ||
			op == ARRAYLENGTH || op == ATHROW || op == MONITORENTER || op == MONITOREXIT:
			in = &Insn{Op: op}
		default:
			return r.failf("invalid opcode 0x%02x", op)
		}
		if r.err != nil {
			return r.err
		}
		c.insns[off] = in
	}
	return r.err
}

func (c *codeDecoder) verificationType(r *reader) (VerificationType, error) {
	tag := VerificationKind(r.u1())
	switch tag {
	case VTop, VInteger, VFloat, VDouble, VLong, VNull, VUninitializedThis:
		return VerificationType{Kind: tag}, r.err
	case VObject:
		name, err := c.d.className(r.u2())
		return ObjectType(name), err
	case VUninitialized:
		return VerificationType{Kind: VUninitialized, New: c.label(int(r.u2()))}, r.err
	}
	return Top, r.failf("invalid verification type tag %d", tag)
}

func (c *codeDecoder) verificationTypes(r *reader, n int) ([]VerificationType, error) {
	out := make([]VerificationType, 0, n)
	for ; n > 0 && r.err == nil; n-- {
		vt, err := c.verificationType(r)
		if err != nil {
			return nil, err
		}
		out = append(out, vt)
	}
	return out, r.err
}

// stackMapTable 把压缩帧展开为完整帧，挂在对应偏移的标签之后
func (c *codeDecoder) stackMapTable(r *reader) error {
	locals := EntryFrame(c.d.class.Name, c.method)
	off := -1
	for n := int(r.u2()); n > 0 && r.err == nil; n-- {
		ft := int(r.u1())
		var delta int
		var stack []VerificationType
		var err error
		switch {
		case ft < 64:
			delta = ft
		case ft < 128:
			delta = ft - 64
			stack, err = c.verificationTypes(r, 1)
		case ft < 247:
			return r.failf("reserved stack map frame type %d", ft)
		case ft == 247:
			delta = int(r.u2())
			stack, err = c.verificationTypes(r, 1)
		case ft <= 250:
			delta = int(r.u2())
			k := 251 - ft
			if k > len(locals) {
				return r.failf("chop frame removes %d locals from %d", k, len(locals))
			}
			locals = locals[: len(locals)-k : len(locals)-k]
		case ft == 251:
			delta = int(r.u2())
		case ft <= 254:
			delta = int(r.u2())
			var more []VerificationType
			more, err = c.verificationTypes(r, ft-251)
			locals = append(locals[:len(locals):len(locals)], more...)
		default:
			delta = int(r.u2())
			if locals, err = c.verificationTypes(r, int(r.u2())); err == nil {
				stack, err = c.verificationTypes(r, int(r.u2()))
			}
		}
		if err != nil {
			return err
		}
		off += delta + 1
		if off >= c.length {
			continue
		}
		c.label(off)
		c.frames[off] = &FrameInsn{
			Locals: append([]VerificationType(nil), locals...),
			Stack:  stack,
		}
	}
	return r.err
}
