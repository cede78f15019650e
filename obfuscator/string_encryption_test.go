package obfuscator

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"jvm-obfuscator/classfile"
)

func initProtector(t *testing.T, config *Config, records ...*classfile.ClassRecord) (*StringProtector, *Context) {
	t.Helper()

	s := NewStringProtector(config)
	ctx := testContext(records, s)
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return s, ctx
}

func TestStringProtector_EncryptRoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := initProtector(t, DefaultConfig())

	tests := []string{
		"",
		"Hello",
		"exactly16bytes!!",
		"中文字符串",
		"emoji 😀 and NUL \x00 inside",
		strings.Repeat("long ", 100),
	}

	for _, plain := range tests {
		enc, err := s.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", plain, err)
		}
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			t.Fatalf("ciphertext %q is not standard base64: %v", enc, err)
		}
		if len(raw) == 0 || len(raw)%16 != 0 {
			t.Errorf("ciphertext length %d is not a positive multiple of 16", len(raw))
		}
		again, _ := s.Encrypt(plain)
		if again != enc {
			t.Errorf("Encrypt(%q) is not deterministic: %q vs %q", plain, enc, again)
		}
		got, err := s.Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if got != plain {
			t.Errorf("Decrypt(Encrypt(%q)) = %q", plain, got)
		}
	}
}

func TestStringProtector_ConfiguredKey(t *testing.T) {
	t.Parallel()

	key := []byte("0123456789abcdef")
	config := DefaultConfig()
	config.StringKey = base64.StdEncoding.EncodeToString(key)
	s, ctx := initProtector(t, config)

	if string(s.Key()) != string(key) {
		t.Errorf("Key() = %q, want %q", s.Key(), key)
	}

	decoder := ctx.Synthetic()[0]
	if got := decoder.FindField(keyFieldName).Value; got != config.StringKey {
		t.Errorf("key field = %v, want %s", got, config.StringKey)
	}
	clinit := decoder.FindMethod("<clinit>", "()V")
	patched := false
	for _, in := range clinit.Code.Instructions.Instructions() {
		if ldc, ok := in.(*classfile.LdcInsn); ok {
			if ldc.Value == keyPlaceholder {
				t.Errorf("placeholder left in <clinit>")
			}
			if ldc.Value == config.StringKey {
				patched = true
			}
		}
	}
	if !patched {
		t.Errorf("<clinit> does not load the key")
	}
}

func TestStringProtector_InvalidKey(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"not base64!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		config := DefaultConfig()
		config.StringKey = key
		s := NewStringProtector(config)
		if err := s.Init(testContext(nil, s)); !errors.Is(err, ErrEncryption) {
			t.Errorf("Init() with key %q error = %v, want ErrEncryption", key, err)
		}
	}
}

func TestStringProtector_ApplyKeepsJumpTargets(t *testing.T) {
	t.Parallel()

	target := classfile.NewLabel()
	rec := &classfile.ClassRecord{
		MajorVersion: 52,
		Access:       classfile.AccPublic | classfile.AccSuper,
		Name:         "com/example/Loop",
		SuperName:    "java/lang/Object",
		Methods: []*classfile.MethodRecord{{
			Access:     classfile.AccPublic | classfile.AccStatic,
			Name:       "spin",
			Descriptor: "()V",
			Code: &classfile.Code{Instructions: classfile.NewInsnList(
				target,
				&classfile.FrameInsn{},
				&classfile.LdcInsn{Value: "tick"},
				&classfile.Insn{Op: classfile.POP},
				&classfile.LdcInsn{Value: int32(70000)},
				&classfile.Insn{Op: classfile.POP},
				&classfile.JumpInsn{Op: classfile.GOTO, Target: target},
			)},
		}},
	}

	s, ctx := initProtector(t, DefaultConfig(), rec)
	if err := s.Apply(rec, testEnv(0)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	insns := rec.Methods[0].Code.Instructions
	n := insns.Front()
	if n.Insn != target {
		t.Fatalf("first node = %T, want the jump target label", n.Insn)
	}
	n = n.Next().Next()
	ldc, ok := n.Insn.(*classfile.LdcInsn)
	if !ok {
		t.Fatalf("node after label = %T, want *LdcInsn", n.Insn)
	}
	if plain, err := s.Decrypt(ldc.Value.(string)); err != nil || plain != "tick" {
		t.Errorf("Decrypt() = %q, %v; want tick", plain, err)
	}
	call, ok := n.Next().Insn.(*classfile.MethodInsn)
	if !ok || call.Owner != defaultDecoderClass || call.Name != decodeMethodName {
		t.Errorf("node after ciphertext = %+v, want decode call", n.Next().Insn)
	}

	if got := len(realInsns(rec.Methods[0])); got != 6 {
		t.Errorf("got %d instructions, want 6", got)
	}
	if got := ctx.stats.encryptedStrings.Load(); got != 1 {
		t.Errorf("encrypted strings = %d, want 1", got)
	}
	if _, err := classfile.Encode(rec); err != nil {
		t.Errorf("Encode() error = %v", err)
	}
}

func TestStringProtector_SkipsDecoderAndInvalidUTF8(t *testing.T) {
	t.Parallel()

	lone := appClass()
	// 孤立代理项 U+D800 经 Modified UTF-8 解码后不是合法的 UTF-8
	lone.Methods[0].Code.Instructions.Front().Next().Insn = &classfile.LdcInsn{Value: "\xed\xa0\x80"}

	s, ctx := initProtector(t, DefaultConfig(), lone)
	decoder := ctx.Synthetic()[0]
	before := classfile.Disassemble(decoder)

	for i, rec := range []*classfile.ClassRecord{lone, decoder} {
		if err := s.Apply(rec, testEnv(i)); err != nil {
			t.Fatal(err)
		}
	}

	if after := classfile.Disassemble(decoder); after != before {
		t.Errorf("decoder class was rewritten")
	}
	if got := ctx.stats.encryptedStrings.Load(); got != 0 {
		t.Errorf("encrypted strings = %d, want 0", got)
	}
}

func TestDecoderTemplate_Encodes(t *testing.T) {
	t.Parallel()

	rec := decoderTemplate("obf/runtime/D")
	if err := patchDecoderKey(rec, "a2V5a2V5a2V5a2V5a2V5aw=="); err != nil {
		t.Fatal(err)
	}
	data, err := classfile.Encode(rec)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := classfile.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	decode := got.FindMethod(decodeMethodName, decodeMethodDesc)
	if decode == nil {
		t.Fatal("decode method missing")
	}
	if decode.Code.MaxLocals != 3 {
		t.Errorf("decode MaxLocals = %d, want 3", decode.Code.MaxLocals)
	}
	if decode.Code.MaxStack < 4 {
		t.Errorf("decode MaxStack = %d, want at least 4", decode.Code.MaxStack)
	}
}

func TestPatchDecoderKey_MissingField(t *testing.T) {
	t.Parallel()

	rec := decoderTemplate("obf/runtime/D")
	rec.Fields = rec.Fields[1:]
	if err := patchDecoderKey(rec, "k"); !errors.Is(err, ErrMissingResource) {
		t.Errorf("patchDecoderKey() error = %v, want ErrMissingResource", err)
	}
}
