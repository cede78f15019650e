package classfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble 以文本形式列出类的结构与指令，用于调试输出和测试比较。
// 标签按在指令序列中出现的顺序命名为 L0、L1 ...
func Disassemble(rec *ClassRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "class %s", rec.Name)
	if rec.SuperName != "" {
		fmt.Fprintf(&sb, " extends %s", rec.SuperName)
	}
	if len(rec.Interfaces) > 0 {
		fmt.Fprintf(&sb, " implements %s", strings.Join(rec.Interfaces, ", "))
	}
	fmt.Fprintf(&sb, "\n  version %d.%d access 0x%04x\n", rec.MajorVersion, rec.MinorVersion, rec.Access)
	if rec.Signature != "" {
		fmt.Fprintf(&sb, "  signature %s\n", rec.Signature)
	}
	if rec.SourceFile != "" {
		fmt.Fprintf(&sb, "  source %s\n", rec.SourceFile)
	}
	writeAnnotations(&sb, "  ", rec.VisibleAnnotations, rec.InvisibleAnnotations)
	for _, ic := range rec.InnerClasses {
		fmt.Fprintf(&sb, "  innerclass %s %s %s 0x%04x\n", ic.Name, orDash(ic.OuterName), orDash(ic.InnerName), ic.Access)
	}
	if em := rec.EnclosingMethod; em != nil {
		fmt.Fprintf(&sb, "  enclosing %s %s%s\n", em.Owner, em.Name, em.Descriptor)
	}
	if rec.NestHost != "" {
		fmt.Fprintf(&sb, "  nesthost %s\n", rec.NestHost)
	}
	for _, n := range rec.NestMembers {
		fmt.Fprintf(&sb, "  nestmember %s\n", n)
	}
	for _, n := range rec.PermittedSubclasses {
		fmt.Fprintf(&sb, "  permitted %s\n", n)
	}
	for _, f := range rec.Fields {
		fmt.Fprintf(&sb, "  field 0x%04x %s %s", f.Access, f.Name, f.Descriptor)
		if f.Value != nil {
			fmt.Fprintf(&sb, " = %s", formatConstant(f.Value))
		}
		sb.WriteByte('\n')
		if f.Signature != "" {
			fmt.Fprintf(&sb, "    signature %s\n", f.Signature)
		}
		writeAnnotations(&sb, "    ", f.VisibleAnnotations, f.InvisibleAnnotations)
	}
	for _, m := range rec.Methods {
		fmt.Fprintf(&sb, "  method 0x%04x %s%s\n", m.Access, m.Name, m.Descriptor)
		if m.Signature != "" {
			fmt.Fprintf(&sb, "    signature %s\n", m.Signature)
		}
		for _, e := range m.Exceptions {
			fmt.Fprintf(&sb, "    throws %s\n", e)
		}
		writeAnnotations(&sb, "    ", m.VisibleAnnotations, m.InvisibleAnnotations)
		if m.Code != nil && m.Code.Instructions != nil {
			writeCode(&sb, m.Code)
		}
	}
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeAnnotations(sb *strings.Builder, indent string, visible, invisible []*Annotation) {
	for _, a := range visible {
		fmt.Fprintf(sb, "%s@%s\n", indent, formatAnnotation(a))
	}
	for _, a := range invisible {
		fmt.Fprintf(sb, "%s@%s (invisible)\n", indent, formatAnnotation(a))
	}
}

func formatAnnotation(a *Annotation) string {
	parts := make([]string, 0, len(a.Values))
	for _, p := range a.Values {
		parts = append(parts, p.Name+"="+formatElement(p.Value))
	}
	return a.Type + "(" + strings.Join(parts, ", ") + ")"
}

func formatElement(ev *ElementValue) string {
	switch ev.Tag {
	case 'e':
		return ev.EnumType + "." + ev.EnumName
	case 'c':
		return ev.Class + ".class"
	case '@':
		return "@" + formatAnnotation(ev.Annotation)
	case '[':
		parts := make([]string, 0, len(ev.Array))
		for _, v := range ev.Array {
			parts = append(parts, formatElement(v))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return formatConstant(ev.Const)
}

func formatConstant(v any) string {
	switch c := v.(type) {
	case string:
		return strconv.Quote(c)
	case int32:
		return strconv.FormatInt(int64(c), 10)
	case float32:
		return strconv.FormatFloat(float64(c), 'g', -1, 32) + "F"
	case int64:
		return strconv.FormatInt(c, 10) + "L"
	case float64:
		return strconv.FormatFloat(c, 'g', -1, 64) + "D"
	case ClassRef:
		return c.Name + ".class"
	case MethodTypeRef:
		return "methodtype " + c.Descriptor
	case Handle:
		return formatHandle(c)
	case ConstantDynamic:
		return fmt.Sprintf("condy %s %s %s%s", c.Name, c.Descriptor, formatHandle(c.Bootstrap), formatArgs(c.Args))
	}
	return fmt.Sprintf("%v", v)
}

func formatHandle(h Handle) string {
	s := fmt.Sprintf("handle %d %s.%s%s", h.Kind, h.Owner, h.Name, h.Descriptor)
	if h.Interface {
		s += " itf"
	}
	return s
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, formatConstant(a))
	}
	return " [" + strings.Join(parts, ", ") + "]"
}

func writeCode(sb *strings.Builder, code *Code) {
	names := make(map[*Label]string)
	for n := code.Instructions.Front(); n != nil; n = n.Next() {
		if l, ok := n.Insn.(*Label); ok {
			if _, seen := names[l]; !seen {
				names[l] = "L" + strconv.Itoa(len(names))
			}
		}
	}
	name := func(l *Label) string {
		if s, ok := names[l]; ok {
			return s
		}
		return "L?"
	}
	types := func(list []VerificationType) string {
		parts := make([]string, 0, len(list))
		for _, t := range list {
			if t.Kind == VUninitialized {
				parts = append(parts, "uninit("+name(t.New)+")")
				continue
			}
			parts = append(parts, t.String())
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	for n := code.Instructions.Front(); n != nil; n = n.Next() {
		sb.WriteString("    ")
		switch in := n.Insn.(type) {
		case *Label:
			sb.WriteString(name(in))
		case *LineNumber:
			fmt.Fprintf(sb, "LINE %d %s", in.Line, name(in.Start))
		case *FrameInsn:
			fmt.Fprintf(sb, "FRAME %s %s", types(in.Locals), types(in.Stack))
		case *Insn:
			sb.WriteString(OpcodeName(in.Op))
		case *IntInsn:
			fmt.Fprintf(sb, "%s %d", OpcodeName(in.Op), in.Operand)
		case *VarInsn:
			fmt.Fprintf(sb, "%s %d", OpcodeName(in.Op), in.Var)
		case *IincInsn:
			fmt.Fprintf(sb, "IINC %d %d", in.Var, in.Incr)
		case *TypeInsn:
			fmt.Fprintf(sb, "%s %s", OpcodeName(in.Op), in.Type)
		case *FieldInsn:
			fmt.Fprintf(sb, "%s %s.%s %s", OpcodeName(in.Op), in.Owner, in.Name, in.Descriptor)
		case *MethodInsn:
			fmt.Fprintf(sb, "%s %s.%s%s", OpcodeName(in.Op), in.Owner, in.Name, in.Descriptor)
			if in.Interface && in.Op != INVOKEINTERFACE {
				sb.WriteString(" itf")
			}
		case *InvokeDynamicInsn:
			fmt.Fprintf(sb, "INVOKEDYNAMIC %s%s %s%s", in.Name, in.Descriptor, formatHandle(in.Bootstrap), formatArgs(in.Args))
		case *JumpInsn:
			fmt.Fprintf(sb, "%s %s", OpcodeName(in.Op), name(in.Target))
		case *LdcInsn:
			fmt.Fprintf(sb, "LDC %s", formatConstant(in.Value))
		case *TableSwitchInsn:
			fmt.Fprintf(sb, "TABLESWITCH %d..%d", in.Low, in.High)
			for _, t := range in.Targets {
				sb.WriteString(" " + name(t))
			}
			sb.WriteString(" default " + name(in.Default))
		case *LookupSwitchInsn:
			sb.WriteString("LOOKUPSWITCH")
			for i, k := range in.Keys {
				fmt.Fprintf(sb, " %d:%s", k, name(in.Targets[i]))
			}
			sb.WriteString(" default " + name(in.Default))
		case *MultiANewArrayInsn:
			fmt.Fprintf(sb, "MULTIANEWARRAY %s %d", in.Descriptor, in.Dims)
		default:
			fmt.Fprintf(sb, "%T", in)
		}
		sb.WriteByte('\n')
	}
	for _, tc := range code.TryCatch {
		fmt.Fprintf(sb, "    TRYCATCH %s %s %s %s\n", name(tc.Start), name(tc.End), name(tc.Handler), orDash(tc.Type))
	}
	for _, lv := range code.LocalVariables {
		fmt.Fprintf(sb, "    LOCAL %d %s %s %s %s", lv.Index, lv.Name, lv.Descriptor, name(lv.Start), name(lv.End))
		if lv.Signature != "" {
			sb.WriteString(" " + lv.Signature)
		}
		sb.WriteByte('\n')
	}
}
