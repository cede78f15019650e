package obfuscator

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"jvm-obfuscator/classfile"
)

func guardPrefix(m *classfile.MethodRecord) []string {
	var out []string
	for _, in := range realInsns(m) {
		out = append(out, classfile.OpcodeName(in.Opcode()))
		if in.Opcode() == classfile.ATHROW {
			break
		}
	}
	return out
}

func TestAntiDebugGuard_PlainFlag(t *testing.T) {
	t.Parallel()

	rec := utilClass()
	a := NewAntiDebugGuard()
	ctx := testContext([]*classfile.ClassRecord{rec}, a)
	if err := a.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Apply(rec, testEnv(0)); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"INVOKESTATIC", "INVOKEINTERFACE", "INVOKEINTERFACE", "LDC", "INVOKEVIRTUAL", "IFEQ",
		"NEW", "DUP", "LDC", "INVOKESPECIAL", "ATHROW",
	}
	for _, m := range rec.Methods {
		if diff := cmp.Diff(want, guardPrefix(m)); diff != "" {
			t.Errorf("guard in %s mismatch (-want +got):\n%s", m.Name, diff)
		}
		ldc := realInsns(m)[3].(*classfile.LdcInsn)
		if ldc.Value != debugAgentFlag {
			t.Errorf("flag literal = %v, want %s", ldc.Value, debugAgentFlag)
		}
	}
	if got := ctx.stats.guardedMethods.Load(); got != 2 {
		t.Errorf("guarded methods = %d, want 2", got)
	}

	// 构造器入口帧含 uninitializedThis，必须仍能编码
	data, err := classfile.Encode(rec)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := classfile.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	text := classfile.Disassemble(got)
	if want := "FRAME [uninit_this] []"; !strings.Contains(text, want) {
		t.Errorf("constructor guard frame %q missing:\n%s", want, text)
	}
}

func TestAntiDebugGuard_EncryptedFlagUsesDecoderCurrentName(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.RenameSynthetic = true
	r, err := NewRenamer(config)
	if err != nil {
		t.Fatal(err)
	}
	s := NewStringProtector(config)
	a := NewAntiDebugGuard()

	app := appClass()
	ctx := testContext([]*classfile.ClassRecord{app}, a, r, s)
	for _, tr := range []Transform{a, r, s} {
		if err := tr.Init(ctx); err != nil {
			t.Fatal(err)
		}
	}
	decoder := ctx.Synthetic()[0]

	if err := a.Apply(app, testEnv(0)); err != nil {
		t.Fatal(err)
	}
	if err := a.Apply(decoder, testEnv(1)); err != nil {
		t.Fatal(err)
	}

	insns := realInsns(app.Methods[0])
	plain, err := s.Decrypt(insns[3].(*classfile.LdcInsn).Value.(string))
	if err != nil || plain != debugAgentFlag {
		t.Errorf("Decrypt(flag) = %q, %v; want %s", plain, err, debugAgentFlag)
	}
	call := insns[4].(*classfile.MethodInsn)
	wantOwner, _ := r.Lookup(defaultDecoderClass)
	if call.Owner != wantOwner || wantOwner == "" {
		t.Errorf("decode call owner = %q, want %q", call.Owner, wantOwner)
	}

	for _, m := range decoder.Methods {
		if first, ok := realInsns(m)[0].(*classfile.MethodInsn); ok && first.Owner == "java/lang/management/ManagementFactory" {
			t.Errorf("decoder method %s was guarded", m.Name)
		}
	}
}

func TestAntiDebugGuard_SkipsRenamedDecoder(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.RenameSynthetic = true
	r, _ := NewRenamer(config)
	s := NewStringProtector(config)
	a := NewAntiDebugGuard()
	ctx := testContext(nil, r, s, a)
	for _, tr := range []Transform{r, s, a} {
		if err := tr.Init(ctx); err != nil {
			t.Fatal(err)
		}
	}
	decoder := ctx.Synthetic()[0]
	if err := r.Apply(decoder, testEnv(0)); err != nil {
		t.Fatal(err)
	}
	if decoder.Name == defaultDecoderClass {
		t.Fatalf("decoder was not renamed")
	}

	before := classfile.Disassemble(decoder)
	if err := a.Apply(decoder, testEnv(0)); err != nil {
		t.Fatal(err)
	}
	if after := classfile.Disassemble(decoder); after != before {
		t.Errorf("renamed decoder %s was guarded", decoder.Name)
	}
}
