package classfile

import (
	"math"
)

// codeWriter 把一个方法的指令序列编码为 Code 属性
type codeWriter struct {
	w       *classWriter
	m       *MethodRecord
	nodes   []*Node
	cp      map[*Node]uint16
	long    map[*Node]bool
	offsets []int
	labels  map[*Label]int
	length  int
}

func (w *classWriter) code(m *MethodRecord) ([]byte, error) {
	if m.Code.Instructions == nil {
		return nil, structuralf("method %s%s has code without instructions", m.Name, m.Descriptor)
	}
	c := &codeWriter{
		w:      w,
		m:      m,
		nodes:  m.Code.Instructions.Nodes(),
		cp:     make(map[*Node]uint16),
		long:   make(map[*Node]bool),
		labels: make(map[*Label]int),
	}
	c.offsets = make([]int, len(c.nodes))
	if err := c.resolveConstants(); err != nil {
		return nil, err
	}
	if err := c.layout(); err != nil {
		return nil, err
	}
	if c.length == 0 {
		return nil, structuralf("method %s%s has empty code", m.Name, m.Descriptor)
	}
	if c.length > 0xffff {
		return nil, structuralf("method %s%s code too large (%d bytes)", m.Name, m.Descriptor, c.length)
	}
	bytecode, err := c.emit()
	if err != nil {
		return nil, err
	}

	maxStack := max(m.Code.MaxStack, ComputeMaxStack(m.Code))
	maxLocals := max(m.Code.MaxLocals, ComputeMaxLocals(m))
	if maxStack > 0xffff || maxLocals > 0xffff {
		return nil, structuralf("method %s%s exceeds operand stack or local limits", m.Name, m.Descriptor)
	}
	var b []byte
	b = appendU2(b, maxStack)
	b = appendU2(b, maxLocals)
	b = appendU4(b, len(bytecode))
	b = append(b, bytecode...)

	table, err := c.exceptionTable()
	if err != nil {
		return nil, err
	}
	b = append(b, table...)

	var attrs []attribute
	if body, ok := c.lineNumbers(); ok {
		attrs = append(attrs, attribute{name: "LineNumberTable", body: body})
	}
	lvt, lvtt, err := c.localVariables()
	if err != nil {
		return nil, err
	}
	if lvt != nil {
		attrs = append(attrs, attribute{name: "LocalVariableTable", body: lvt})
	}
	if lvtt != nil {
		attrs = append(attrs, attribute{name: "LocalVariableTypeTable", body: lvtt})
	}
	if w.rec.MajorVersion >= FramesVersion {
		body, ok, err := c.stackMapTable()
		if err != nil {
			return nil, err
		}
		if ok {
			attrs = append(attrs, attribute{name: "StackMapTable", body: body})
		}
	}
	return w.attributes(b, attrs)
}

// resolveConstants 预先分配常量池索引，ldc 的长度取决于索引大小
func (c *codeWriter) resolveConstants() error {
	p := c.w.p
	for _, n := range c.nodes {
		var idx uint16
		var err error
		switch in := n.Insn.(type) {
		case *LdcInsn:
			idx, err = p.constant(in.Value)
		case *TypeInsn:
			idx, err = p.class(in.Type)
		case *MultiANewArrayInsn:
			idx, err = p.class(in.Descriptor)
		case *FieldInsn:
			idx, err = p.field(in.Owner, in.Name, in.Descriptor)
		case *MethodInsn:
			idx, err = p.method(in.Owner, in.Name, in.Descriptor, in.Interface)
		case *InvokeDynamicInsn:
			idx, err = p.dynamic(ConstantKindInvokeDynamic, in.Name, in.Descriptor, in.Bootstrap, in.Args)
		default:
			continue
		}
		if err != nil {
			return err
		}
		c.cp[n] = idx
	}
	return nil
}

func switchPadding(off int) int {
	return (4 - (off+1)%4) % 4
}

func (c *codeWriter) size(n *Node, off int) int {
	switch in := n.Insn.(type) {
	case *Label, *LineNumber, *FrameInsn:
		return 0
	case *Insn:
		return 1
	case *IntInsn:
		if in.Op == SIPUSH {
			return 3
		}
		return 2
	case *VarInsn:
		switch {
		case in.Var <= 3 && in.Op != RET:
			return 1
		case in.Var <= 0xff:
			return 2
		}
		return 4
	case *IincInsn:
		if in.Var <= 0xff && in.Incr >= math.MinInt8 && in.Incr <= math.MaxInt8 {
			return 3
		}
		return 6
	case *JumpInsn:
		if c.long[n] {
			return 5
		}
		return 3
	case *LdcInsn:
		if ldcType(in.Value).IsWide() || c.cp[n] > 0xff {
			return 3
		}
		return 2
	case *TableSwitchInsn:
		return 1 + switchPadding(off) + 12 + 4*len(in.Targets)
	case *LookupSwitchInsn:
		return 1 + switchPadding(off) + 8 + 8*len(in.Keys)
	case *MethodInsn:
		if in.Op == INVOKEINTERFACE {
			return 5
		}
		return 3
	case *InvokeDynamicInsn:
		return 5
	case *MultiANewArrayInsn:
		return 4
	}
	return 3
}

// layout 计算各节点偏移；超出 16 位范围的 GOTO/JSR 改用宽格式后重新计算
func (c *codeWriter) layout() error {
	for {
		off := 0
		for i, n := range c.nodes {
			c.offsets[i] = off
			if l, ok := n.Insn.(*Label); ok {
				c.labels[l] = off
			}
			off += c.size(n, off)
		}
		c.length = off
		changed := false
		for i, n := range c.nodes {
			j, ok := n.Insn.(*JumpInsn)
			if !ok || c.long[n] {
				continue
			}
			target, ok := c.labels[j.Target]
			if !ok {
				return structuralf("%s in %s%s jumps to a label outside the method", OpcodeName(j.Op), c.m.Name, c.m.Descriptor)
			}
			disp := target - c.offsets[i]
			if disp >= math.MinInt16 && disp <= math.MaxInt16 {
				continue
			}
			if j.Op != GOTO && j.Op != JSR {
				return structuralf("%s in %s%s: branch offset %d out of range", OpcodeName(j.Op), c.m.Name, c.m.Descriptor, disp)
			}
			c.long[n] = true
			changed = true
		}
		if !changed {
			return nil
		}
	}
}

func (c *codeWriter) target(l *Label, from int) (int, error) {
	off, ok := c.labels[l]
	if !ok {
		return 0, structuralf("branch target in %s%s is not in the method", c.m.Name, c.m.Descriptor)
	}
	return off - from, nil
}

func (c *codeWriter) emit() ([]byte, error) {
	b := make([]byte, 0, c.length)
	for i, n := range c.nodes {
		off := c.offsets[i]
		switch in := n.Insn.(type) {
		case *Label, *LineNumber, *FrameInsn:
		case *Insn:
			b = append(b, byte(in.Op))
		case *IntInsn:
			switch in.Op {
			case SIPUSH:
				if in.Operand < math.MinInt16 || in.Operand > math.MaxInt16 {
					return nil, structuralf("sipush operand %d out of range", in.Operand)
				}
				b = append(b, SIPUSH)
				b = appendU2(b, in.Operand)
			case BIPUSH:
				if in.Operand < math.MinInt8 || in.Operand > math.MaxInt8 {
					return nil, structuralf("bipush operand %d out of range", in.Operand)
				}
				b = append(b, BIPUSH, byte(in.Operand))
			default:
				b = append(b, byte(in.Op), byte(in.Operand))
			}
		case *VarInsn:
			switch {
			case in.Var < 0 || in.Var > 0xffff:
				return nil, structuralf("local variable index %d out of range", in.Var)
			case in.Var <= 3 && in.Op != RET:
				if in.Op >= ISTORE {
					b = append(b, byte(ISTORE_0+(in.Op-ISTORE)*4+in.Var))
				} else {
					b = append(b, byte(ILOAD_0+(in.Op-ILOAD)*4+in.Var))
				}
			case in.Var <= 0xff:
				b = append(b, byte(in.Op), byte(in.Var))
			default:
				b = append(b, WIDE, byte(in.Op))
				b = appendU2(b, in.Var)
			}
		case *IincInsn:
			if in.Var < 0 || in.Var > 0xffff || in.Incr < math.MinInt16 || in.Incr > math.MaxInt16 {
				return nil, structuralf("iinc %d %d out of range", in.Var, in.Incr)
			}
			if c.size(n, off) == 3 {
				b = append(b, IINC, byte(in.Var), byte(in.Incr))
			} else {
				b = append(b, WIDE, IINC)
				b = appendU2(b, in.Var)
				b = appendU2(b, in.Incr)
			}
		case *JumpInsn:
			disp, err := c.target(in.Target, off)
			if err != nil {
				return nil, err
			}
			if c.long[n] {
				op := GOTO_W
				if in.Op == JSR {
					op = JSR_W
				}
				b = append(b, byte(op))
				b = appendU4(b, disp)
			} else {
				b = append(b, byte(in.Op))
				b = appendU2(b, disp)
			}
		case *LdcInsn:
			idx := c.cp[n]
			switch {
			case ldcType(in.Value).IsWide():
				b = append(b, LDC2_W)
				b = appendU2(b, int(idx))
			case idx > 0xff:
				b = append(b, LDC_W)
				b = appendU2(b, int(idx))
			default:
				b = append(b, LDC, byte(idx))
			}
		case *TableSwitchInsn:
			if int64(in.High)-int64(in.Low)+1 != int64(len(in.Targets)) {
				return nil, structuralf("tableswitch [%d, %d] has %d targets", in.Low, in.High, len(in.Targets))
			}
			b = append(b, TABLESWITCH)
			b = append(b, make([]byte, switchPadding(off))...)
			disp, err := c.target(in.Default, off)
			if err != nil {
				return nil, err
			}
			b = appendU4(b, disp)
			b = appendU4(b, int(in.Low))
			b = appendU4(b, int(in.High))
			for _, t := range in.Targets {
				if disp, err = c.target(t, off); err != nil {
					return nil, err
				}
				b = appendU4(b, disp)
			}
		case *LookupSwitchInsn:
			if len(in.Keys) != len(in.Targets) {
				return nil, structuralf("lookupswitch has %d keys and %d targets", len(in.Keys), len(in.Targets))
			}
			b = append(b, LOOKUPSWITCH)
			b = append(b, make([]byte, switchPadding(off))...)
			disp, err := c.target(in.Default, off)
			if err != nil {
				return nil, err
			}
			b = appendU4(b, disp)
			b = appendU4(b, len(in.Keys))
			for k, key := range in.Keys {
				if disp, err = c.target(in.Targets[k], off); err != nil {
					return nil, err
				}
				b = appendU4(b, int(key))
				b = appendU4(b, disp)
			}
		case *TypeInsn, *FieldInsn:
			b = append(b, byte(in.Opcode()))
			b = appendU2(b, int(c.cp[n]))
		case *MethodInsn:
			b = append(b, byte(in.Op))
			b = appendU2(b, int(c.cp[n]))
			if in.Op == INVOKEINTERFACE {
				b = append(b, byte(ArgumentsSize(in.Descriptor)+1), 0)
			}
		case *InvokeDynamicInsn:
			b = append(b, INVOKEDYNAMIC)
			b = appendU2(b, int(c.cp[n]))
			b = append(b, 0, 0)
		case *MultiANewArrayInsn:
			if in.Dims < 1 || in.Dims > 0xff {
				return nil, structuralf("multianewarray dimensions %d out of range", in.Dims)
			}
			b = append(b, MULTIANEWARRAY)
			b = appendU2(b, int(c.cp[n]))
			b = append(b, byte(in.Dims))
		default:
			return nil, structuralf("unsupported instruction %T", n.Insn)
		}
	}
	return b, nil
}

func (c *codeWriter) exceptionTable() ([]byte, error) {
	var entries [][4]int
	for _, tc := range c.m.Code.TryCatch {
		start, ok1 := c.labels[tc.Start]
		end, ok2 := c.labels[tc.End]
		handler, ok3 := c.labels[tc.Handler]
		if !ok1 || !ok2 || !ok3 {
			return nil, structuralf("try/catch block in %s%s references a label outside the method", c.m.Name, c.m.Descriptor)
		}
		if start == end {
			continue
		}
		if start > end {
			return nil, structuralf("try/catch block in %s%s ends before it starts", c.m.Name, c.m.Descriptor)
		}
		var catch uint16
		if tc.Type != "" {
			var err error
			if catch, err = c.w.p.class(tc.Type); err != nil {
				return nil, err
			}
		}
		entries = append(entries, [4]int{start, end, handler, int(catch)})
	}
	b := appendU2(nil, len(entries))
	for _, e := range entries {
		for _, v := range e {
			b = appendU2(b, v)
		}
	}
	return b, nil
}

func (c *codeWriter) lineNumbers() ([]byte, bool) {
	var body []byte
	count := 0
	for _, n := range c.nodes {
		ln, ok := n.Insn.(*LineNumber)
		if !ok {
			continue
		}
		off, ok := c.labels[ln.Start]
		if !ok || off >= c.length {
			continue
		}
		body = appendU2(body, off)
		body = appendU2(body, ln.Line)
		count++
	}
	if count == 0 {
		return nil, false
	}
	return append(appendU2(nil, count), body...), true
}

func (c *codeWriter) localVariables() (lvt, lvtt []byte, err error) {
	var lvtCount, lvttCount int
	for _, v := range c.m.Code.LocalVariables {
		start, ok1 := c.labels[v.Start]
		end, ok2 := c.labels[v.End]
		if !ok1 || !ok2 || end < start {
			continue
		}
		entry := func(desc string) ([]byte, error) {
			name, err := c.w.p.utf8(v.Name)
			if err != nil {
				return nil, err
			}
			d, err := c.w.p.utf8(desc)
			if err != nil {
				return nil, err
			}
			var b []byte
			b = appendU2(b, start)
			b = appendU2(b, end-start)
			b = appendU2(b, int(name))
			b = appendU2(b, int(d))
			return appendU2(b, v.Index), nil
		}
		e, err := entry(v.Descriptor)
		if err != nil {
			return nil, nil, err
		}
		lvt = append(lvt, e...)
		lvtCount++
		if v.Signature != "" {
			e, err := entry(v.Signature)
			if err != nil {
				return nil, nil, err
			}
			lvtt = append(lvtt, e...)
			lvttCount++
		}
	}
	if lvtCount > 0 {
		lvt = append(appendU2(nil, lvtCount), lvt...)
	}
	if lvttCount > 0 {
		lvtt = append(appendU2(nil, lvttCount), lvtt...)
	}
	return lvt, lvtt, nil
}

// stackMapTable 把帧标记全部写成 full_frame；同一偏移只保留最后一个
func (c *codeWriter) stackMapTable() ([]byte, bool, error) {
	type entry struct {
		off   int
		frame *FrameInsn
	}
	var frames []entry
	for i, n := range c.nodes {
		f, ok := n.Insn.(*FrameInsn)
		if !ok || c.offsets[i] >= c.length {
			continue
		}
		if len(frames) > 0 && frames[len(frames)-1].off == c.offsets[i] {
			frames[len(frames)-1].frame = f
			continue
		}
		frames = append(frames, entry{off: c.offsets[i], frame: f})
	}
	if len(frames) == 0 {
		return nil, false, nil
	}
	b := appendU2(nil, len(frames))
	prev := -1
	var err error
	for _, e := range frames {
		b = append(b, 255)
		b = appendU2(b, e.off-prev-1)
		prev = e.off
		if b, err = c.verificationTypes(b, e.frame.Locals); err != nil {
			return nil, false, err
		}
		if b, err = c.verificationTypes(b, e.frame.Stack); err != nil {
			return nil, false, err
		}
	}
	return b, true, nil
}

func (c *codeWriter) verificationTypes(b []byte, types []VerificationType) ([]byte, error) {
	b = appendU2(b, len(types))
	for _, t := range types {
		b = append(b, byte(t.Kind))
		switch t.Kind {
		case VObject:
			idx, err := c.w.p.class(t.Class)
			if err != nil {
				return nil, err
			}
			b = appendU2(b, int(idx))
		case VUninitialized:
			off, ok := c.labels[t.New]
			if !ok {
				return nil, structuralf("uninitialized type in %s%s references a label outside the method", c.m.Name, c.m.Descriptor)
			}
			b = appendU2(b, off)
		}
	}
	return b, nil
}
