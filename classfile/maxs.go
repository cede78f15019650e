package classfile

import (
	"strings"
)

var simpleStackDelta = map[int]int{
	NOP: 0, ACONST_NULL: 1,
	IALOAD: -1, LALOAD: 0, FALOAD: -1, DALOAD: 0, AALOAD: -1, BALOAD: -1, CALOAD: -1, SALOAD: -1,
	IASTORE: -3, LASTORE: -4, FASTORE: -3, DASTORE: -4, AASTORE: -3, BASTORE: -3, CASTORE: -3, SASTORE: -3,
	POP: -1, POP2: -2, DUP: 1, DUP_X1: 1, DUP_X2: 1, DUP2: 2, DUP2_X1: 2, DUP2_X2: 2, SWAP: 0,
	INEG: 0, LNEG: 0, FNEG: 0, DNEG: 0,
	ISHL: -1, LSHL: -1, ISHR: -1, LSHR: -1, IUSHR: -1, LUSHR: -1,
	IAND: -1, LAND: -2, IOR: -1, LOR: -2, IXOR: -1, LXOR: -2,
	I2L: 1, I2F: 0, I2D: 1, L2I: -1, L2F: -1, L2D: 0, F2I: 0, F2L: 1, F2D: 1,
	D2I: -1, D2L: 0, D2F: -1, I2B: 0, I2C: 0, I2S: 0,
	LCMP: -3, FCMPL: -1, FCMPG: -1, DCMPL: -3, DCMPG: -3,
	IRETURN: -1, LRETURN: -2, FRETURN: -1, DRETURN: -2, ARETURN: -1, RETURN: 0,
	ARRAYLENGTH: 0, ATHROW: -1, MONITORENTER: -1, MONITOREXIT: -1,
}

func returnWords(desc string) int {
	return TypeSize(desc[strings.LastIndexByte(desc, ')')+1:])
}

// stackDelta 返回指令执行前后操作数栈的字数变化
func stackDelta(in Instruction) int {
	op := in.Opcode()
	switch insn := in.(type) {
	case *Insn:
		switch {
		case op >= ICONST_M1 && op <= ICONST_5, op >= FCONST_0 && op <= FCONST_2:
			return 1
		case op == LCONST_0 || op == LCONST_1 || op == DCONST_0 || op == DCONST_1:
			return 2
		case op >= IADD && op <= DREM:
			if (op-IADD)%2 == 1 {
				return -2
			}
			return -1
		}
		return simpleStackDelta[op]
	case *IntInsn:
		if op == NEWARRAY {
			return 0
		}
		return 1
	case *VarInsn:
		switch op {
		case ILOAD, FLOAD, ALOAD:
			return 1
		case LLOAD, DLOAD:
			return 2
		case ISTORE, FSTORE, ASTORE:
			return -1
		case LSTORE, DSTORE:
			return -2
		}
		return 0
	case *TypeInsn:
		if op == NEW {
			return 1
		}
		return 0
	case *FieldInsn:
		s := TypeSize(insn.Descriptor)
		switch op {
		case GETSTATIC:
			return s
		case PUTSTATIC:
			return -s
		case GETFIELD:
			return s - 1
		}
		return -s - 1
	case *MethodInsn:
		d := returnWords(insn.Descriptor) - ArgumentsSize(insn.Descriptor)
		if op != INVOKESTATIC {
			d--
		}
		return d
	case *InvokeDynamicInsn:
		return returnWords(insn.Descriptor) - ArgumentsSize(insn.Descriptor)
	case *JumpInsn:
		switch {
		case op >= IF_ICMPEQ && op <= IF_ACMPNE:
			return -2
		case op == GOTO:
			return 0
		case op == JSR:
			return 1
		}
		return -1
	case *LdcInsn:
		if ldcType(insn.Value).IsWide() {
			return 2
		}
		return 1
	case *TableSwitchInsn, *LookupSwitchInsn:
		return -1
	case *MultiANewArrayInsn:
		return 1 - insn.Dims
	}
	return 0
}

// ComputeMaxStack 通过控制流数据流求操作数栈最大深度
func ComputeMaxStack(code *Code) int {
	nodes := code.Instructions.Nodes()
	index := make(map[*Label]int, len(nodes))
	for i, n := range nodes {
		if l, ok := n.Insn.(*Label); ok {
			index[l] = i
		}
	}
	depth := make([]int, len(nodes))
	for i := range depth {
		depth[i] = -1
	}
	var work []int
	visit := func(i, d int) {
		if i < 0 || i >= len(nodes) || depth[i] >= d || d > 0xffff {
			return
		}
		depth[i] = d
		work = append(work, i)
	}
	target := func(l *Label) int {
		if i, ok := index[l]; ok {
			return i
		}
		return -1
	}
	visit(0, 0)
	for _, tc := range code.TryCatch {
		visit(target(tc.Handler), 1)
	}
	maxDepth := 0
	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		d := depth[i]
		in := nodes[i].Insn
		if IsPseudo(in) {
			visit(i+1, d)
			continue
		}
		after := d + stackDelta(in)
		if after < 0 {
			after = 0
		}
		maxDepth = max(maxDepth, d, after)
		switch insn := in.(type) {
		case *JumpInsn:
			if insn.Op == JSR {
				visit(target(insn.Target), after)
				visit(i+1, d)
				continue
			}
			visit(target(insn.Target), after)
		case *TableSwitchInsn:
			visit(target(insn.Default), after)
			for _, t := range insn.Targets {
				visit(target(t), after)
			}
		case *LookupSwitchInsn:
			visit(target(insn.Default), after)
			for _, t := range insn.Targets {
				visit(target(t), after)
			}
		}
		if !endsBlock(in.Opcode()) {
			visit(i+1, after)
		}
	}
	return maxDepth
}

// ComputeMaxLocals 返回参数与指令用到的最大局部变量槽位数
func ComputeMaxLocals(m *MethodRecord) int {
	n := ArgumentsSize(m.Descriptor)
	if m.Access&AccStatic == 0 {
		n++
	}
	if m.Code == nil {
		return n
	}
	for node := m.Code.Instructions.Front(); node != nil; node = node.Next() {
		switch in := node.Insn.(type) {
		case *VarInsn:
			size := 1
			if in.Op == LLOAD || in.Op == DLOAD || in.Op == LSTORE || in.Op == DSTORE {
				size = 2
			}
			n = max(n, in.Var+size)
		case *IincInsn:
			n = max(n, in.Var+1)
		}
	}
	for _, lv := range m.Code.LocalVariables {
		n = max(n, lv.Index+TypeSize(lv.Descriptor))
	}
	return n
}
