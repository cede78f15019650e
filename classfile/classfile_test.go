package classfile

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func roundTrip(t *testing.T, rec *ClassRecord) *ClassRecord {
	t.Helper()

	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	return got
}

func TestRoundTrip_PreservesStructure(t *testing.T) {
	t.Parallel()

	want := helloClass()
	got := roundTrip(t, want)

	if diff := cmp.Diff(Disassemble(want), Disassemble(got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_ComputesMaxs(t *testing.T) {
	t.Parallel()

	got := roundTrip(t, helloClass())
	main := got.FindMethod("main", "([Ljava/lang/String;)V")
	if main == nil {
		t.Fatal("main not found after round trip")
	}
	if main.Code.MaxStack != 2 {
		t.Errorf("MaxStack = %d, want 2", main.Code.MaxStack)
	}
	if main.Code.MaxLocals != 2 {
		t.Errorf("MaxLocals = %d, want 2", main.Code.MaxLocals)
	}
}

func TestRoundTrip_IsStable(t *testing.T) {
	t.Parallel()

	first, err := Encode(helloClass())
	if err != nil {
		t.Fatal(err)
	}
	rec, err := Decode(first)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Encode(rec)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("re-encoding a decoded class changed its bytes")
	}
}

func TestDecode_BadMagic(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte{0xCA, 0xFE, 0xBA, 0xBF, 0, 0, 0, 52})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("Decode() error = %v, want ErrDecode", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Offset != 4 {
		t.Errorf("Decode() error = %#v, want DecodeError at offset 4", err)
	}
}

func TestDecode_Truncated(t *testing.T) {
	t.Parallel()

	data, err := Encode(helloClass())
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < len(data); n += 7 {
		if _, err := Decode(data[:n]); !errors.Is(err, ErrDecode) {
			t.Errorf("Decode(data[:%d]) error = %v, want ErrDecode", n, err)
		}
	}
}

func TestDecode_InvalidOpcode(t *testing.T) {
	t.Parallel()

	data, err := Encode(methodClass(52, &Insn{Op: NOP}, &Insn{Op: RETURN}))
	if err != nil {
		t.Fatal(err)
	}
	// 方法体只有 NOP RETURN 两个字节
	i := bytes.Index(data, []byte{NOP, RETURN})
	if i < 0 {
		t.Fatal("code bytes not found")
	}
	data[i] = 0xfe
	if _, err := Decode(data); !errors.Is(err, ErrDecode) {
		t.Errorf("Decode() error = %v, want ErrDecode", err)
	}
}

func TestEncode_WidensLongGoto(t *testing.T) {
	t.Parallel()

	target := NewLabel()
	insns := []Instruction{&JumpInsn{Op: GOTO, Target: target}}
	for i := 0; i < 40000; i++ {
		insns = append(insns, &Insn{Op: NOP})
	}
	insns = append(insns, target, &Insn{Op: RETURN})

	data, err := Encode(methodClass(49, insns...))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	// goto_w 的位移为 5 + 40000
	if !bytes.Contains(data, []byte{GOTO_W, 0x00, 0x00, 0x9c, 0x45}) {
		t.Error("expected a goto_w with displacement 40005")
	}
	rec, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	first := rec.Methods[0].Code.Instructions.Front().Insn
	if j, ok := first.(*JumpInsn); !ok || j.Op != GOTO {
		t.Errorf("first instruction = %#v, want GOTO", first)
	}
}

func TestEncode_ConditionalJumpOutOfRange(t *testing.T) {
	t.Parallel()

	target := NewLabel()
	insns := []Instruction{&Insn{Op: ICONST_0}, &JumpInsn{Op: IFEQ, Target: target}}
	for i := 0; i < 40000; i++ {
		insns = append(insns, &Insn{Op: NOP})
	}
	insns = append(insns, target, &Insn{Op: RETURN})

	if _, err := Encode(methodClass(49, insns...)); !errors.Is(err, ErrStructure) {
		t.Errorf("Encode() error = %v, want ErrStructure", err)
	}
}

func TestEncode_JumpToForeignLabel(t *testing.T) {
	t.Parallel()

	rec := methodClass(52, &JumpInsn{Op: GOTO, Target: NewLabel()}, &Insn{Op: RETURN})
	if _, err := Encode(rec); !errors.Is(err, ErrStructure) {
		t.Errorf("Encode() error = %v, want ErrStructure", err)
	}
}

func TestRoundTrip_LdcWideIndex(t *testing.T) {
	t.Parallel()

	var insns []Instruction
	for i := 0; i < 300; i++ {
		insns = append(insns, &LdcInsn{Value: fmt.Sprintf("s%03d", i)}, &Insn{Op: POP})
	}
	insns = append(insns,
		&LdcInsn{Value: int64(1) << 40}, &Insn{Op: POP2},
		&LdcInsn{Value: 2.5}, &Insn{Op: POP2},
		&LdcInsn{Value: float32(1.5)}, &Insn{Op: POP},
		&LdcInsn{Value: ClassRef{Name: "java/lang/String"}}, &Insn{Op: POP},
		&Insn{Op: RETURN},
	)
	want := methodClass(52, insns...)
	got := roundTrip(t, want)

	if diff := cmp.Diff(Disassemble(want), Disassemble(got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_SwitchesAndWideLocals(t *testing.T) {
	t.Parallel()

	a, b, dflt, done := NewLabel(), NewLabel(), NewLabel(), NewLabel()
	want := methodClass(49,
		&VarInsn{Op: ILOAD, Var: 300},
		&TableSwitchInsn{Low: 1, High: 2, Default: dflt, Targets: []*Label{a, b}},
		a,
		&IincInsn{Var: 300, Incr: 1000},
		&JumpInsn{Op: GOTO, Target: done},
		b,
		&IntInsn{Op: SIPUSH, Operand: -1234},
		&VarInsn{Op: ISTORE, Var: 2},
		&JumpInsn{Op: GOTO, Target: done},
		dflt,
		&Insn{Op: ICONST_1},
		&LookupSwitchInsn{Default: done, Keys: []int32{-5, 7}, Targets: []*Label{a, b}},
		done,
		&Insn{Op: RETURN},
	)
	got := roundTrip(t, want)

	if diff := cmp.Diff(Disassemble(want), Disassemble(got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if n := got.Methods[0].Code.MaxLocals; n != 301 {
		t.Errorf("MaxLocals = %d, want 301", n)
	}
}

func TestRoundTrip_InvokeDynamicSharesBootstrap(t *testing.T) {
	t.Parallel()

	bsm := Handle{
		Kind:       RefInvokeStatic,
		Owner:      "java/lang/invoke/StringConcatFactory",
		Name:       "makeConcatWithConstants",
		Descriptor: "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/String;[Ljava/lang/Object;)Ljava/lang/invoke/CallSite;",
	}
	indy := func() Instruction {
		return &InvokeDynamicInsn{Name: "makeConcatWithConstants", Descriptor: "(I)Ljava/lang/String;", Bootstrap: bsm, Args: []any{"n=\u0001"}}
	}
	want := methodClass(55,
		&Insn{Op: ICONST_1}, indy(), &Insn{Op: POP},
		&Insn{Op: ICONST_2}, indy(), &Insn{Op: POP},
		&Insn{Op: RETURN},
	)

	data, err := Encode(want)
	if err != nil {
		t.Fatal(err)
	}
	if n := bytes.Count(data, []byte("BootstrapMethods")); n != 1 {
		t.Errorf("BootstrapMethods name occurs %d times, want 1", n)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Disassemble(want), Disassemble(got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_AnnotationsAndAttributes(t *testing.T) {
	t.Parallel()

	want := helloClass()
	want.Signature = "Ljava/lang/Object;Ljava/util/function/Supplier<Ljava/lang/String;>;"
	want.Interfaces = []string{"java/util/function/Supplier"}
	want.VisibleAnnotations = []*Annotation{{
		Type: "Lcom/example/Marker;",
		Values: []*ElementPair{
			{Name: "value", Value: &ElementValue{Tag: 's', Const: "x"}},
			{Name: "kind", Value: &ElementValue{Tag: 'e', EnumType: "Lcom/example/Kind;", EnumName: "A"}},
			{Name: "type", Value: &ElementValue{Tag: 'c', Class: "Lcom/example/App;"}},
			{Name: "ids", Value: &ElementValue{Tag: '[', Array: []*ElementValue{{Tag: 'I', Const: int32(1)}, {Tag: 'J', Const: int64(2)}}}},
		},
	}}
	want.InnerClasses = []*InnerClass{{Name: "com/example/App$Inner", OuterName: "com/example/App", InnerName: "Inner", Access: AccStatic}}
	want.NestMembers = []string{"com/example/App$Inner"}
	want.Methods[1].Exceptions = []string{"java/io/IOException"}
	got := roundTrip(t, want)

	if diff := cmp.Diff(Disassemble(want), Disassemble(got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_DropsFramesBeforeJava6(t *testing.T) {
	t.Parallel()

	rec := helloClass()
	rec.MajorVersion = 49
	got := roundTrip(t, rec)

	for n := got.FindMethod("main", "([Ljava/lang/String;)V").Code.Instructions.Front(); n != nil; n = n.Next() {
		if _, ok := n.Insn.(*FrameInsn); ok {
			t.Fatal("frame survived in a version 49 class")
		}
	}
}

func TestComputeMaxStack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		insns []Instruction
		want  int
	}{
		{
			name:  "long arithmetic",
			insns: []Instruction{&Insn{Op: LCONST_1}, &Insn{Op: LCONST_1}, &Insn{Op: LADD}, &Insn{Op: POP2}, &Insn{Op: RETURN}},
			want:  4,
		},
		{
			name: "method call",
			insns: []Instruction{
				&TypeInsn{Op: NEW, Type: "java/lang/StringBuilder"},
				&Insn{Op: DUP},
				&MethodInsn{Op: INVOKESPECIAL, Owner: "java/lang/StringBuilder", Name: "<init>", Descriptor: "()V"},
				&Insn{Op: POP},
				&Insn{Op: RETURN},
			},
			want: 2,
		},
		{
			name:  "empty",
			insns: []Instruction{&Insn{Op: RETURN}},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code := &Code{Instructions: NewInsnList(tt.insns...)}
			if got := ComputeMaxStack(code); got != tt.want {
				t.Errorf("ComputeMaxStack() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeMaxStack_HandlerStartsWithException(t *testing.T) {
	t.Parallel()

	start, end, handler := NewLabel(), NewLabel(), NewLabel()
	code := &Code{
		Instructions: NewInsnList(
			start, &Insn{Op: NOP}, end, &Insn{Op: RETURN},
			handler, &Insn{Op: DUP}, &Insn{Op: POP}, &Insn{Op: ATHROW},
		),
		TryCatch: []*TryCatchBlock{{Start: start, End: end, Handler: handler}},
	}
	if got := ComputeMaxStack(code); got != 2 {
		t.Errorf("ComputeMaxStack() = %d, want 2", got)
	}
}
