package obfuscator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"jvm-obfuscator/classfile"
	"jvm-obfuscator/jar"
)

func process(t *testing.T, o *Obfuscator, in *jar.Archive) []byte {
	t.Helper()

	var out bytes.Buffer
	if err := o.Process(context.Background(), in, &out); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	return out.Bytes()
}

func stringProtectorOf(t *testing.T, o *Obfuscator) *StringProtector {
	t.Helper()

	for _, tr := range o.Transforms() {
		if s, ok := tr.(*StringProtector); ok {
			return s
		}
	}
	t.Fatal("no StringProtector configured")
	return nil
}

func TestProcess_RenameAndStrings(t *testing.T) {
	t.Parallel()

	o, err := New(testConfig("rename", "strings"))
	if err != nil {
		t.Fatal(err)
	}
	out := process(t, o, exampleJar(t))
	archive, classes, files := readOutput(t, out)

	var names []string
	for name := range classes {
		names = append(names, name)
	}
	if diff := cmp.Diff([]string{"C0", "C1", defaultDecoderClass}, names, sortStrings); diff != "" {
		t.Errorf("output classes mismatch (-want +got):\n%s", diff)
	}
	if got := archive.Manifest.MainClass(); got != "C0" {
		t.Errorf("Main-Class = %q, want C0", got)
	}

	main := classes["C0"].FindMethod("main", "([Ljava/lang/String;)V")
	if main == nil {
		t.Fatal("main not found in C0")
	}
	insns := realInsns(main)
	ldc, ok := insns[1].(*classfile.LdcInsn)
	if !ok {
		t.Fatalf("insn 1 = %T, want *LdcInsn", insns[1])
	}
	call, ok := insns[2].(*classfile.MethodInsn)
	if !ok || call.Owner != defaultDecoderClass || call.Name != decodeMethodName || call.Descriptor != decodeMethodDesc {
		t.Fatalf("insn 2 = %+v, want decode call on %s", insns[2], defaultDecoderClass)
	}
	if _, emitted := classes[call.Owner]; !emitted {
		t.Errorf("decode call targets %s, which is not in the output", call.Owner)
	}

	s := stringProtectorOf(t, o)
	plain, err := s.Decrypt(ldc.Value.(string))
	if err != nil {
		t.Fatal(err)
	}
	if plain != "Hello" {
		t.Errorf("decrypted literal = %q, want Hello", plain)
	}

	keyField := classes[defaultDecoderClass].FindField(keyFieldName)
	if keyField == nil || keyField.Value != base64.StdEncoding.EncodeToString(s.Key()) {
		t.Errorf("decoder key field = %+v, want the run key", keyField)
	}

	for name, rec := range classes {
		if text := classfile.Disassemble(rec); strings.Contains(text, "com/example/") {
			t.Errorf("class %s still references an original name:\n%s", name, text)
		}
	}

	wantFiles := map[string][]byte{
		jar.ManifestPath:     []byte("Manifest-Version: 1.0\r\nMain-Class: C0\r\n\r\nName: res/app.properties\r\nX-Note: kept\r\n\r\n"),
		"res/app.properties": []byte("greeting=hello\n"),
	}
	if diff := cmp.Diff(wantFiles, files); diff != "" {
		t.Errorf("non-class entries mismatch (-want +got):\n%s", diff)
	}

	stats := o.GetStatistics()
	want := &Statistics{Classes: 3, RenamedClasses: 2, EncryptedStrings: 1, SyntheticClasses: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("GetStatistics() mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_RenameSyntheticRenamesDecoder(t *testing.T) {
	t.Parallel()

	config := testConfig("strings", "rename")
	config.RenameSynthetic = true
	o, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	_, classes, _ := readOutput(t, process(t, o, exampleJar(t)))

	if _, ok := classes[defaultDecoderClass]; ok {
		t.Errorf("decoder kept its original name with rename-synthetic")
	}
	decoder, ok := classes["C2"]
	if !ok {
		t.Fatalf("decoder not emitted as C2")
	}
	if decoder.FindMethod(decodeMethodName, decodeMethodDesc) == nil {
		t.Errorf("C2 has no decode method")
	}
	call := realInsns(classes["C0"].FindMethod("main", "([Ljava/lang/String;)V"))[2].(*classfile.MethodInsn)
	if call.Owner != "C2" {
		t.Errorf("decode call owner = %q, want C2", call.Owner)
	}
}

func TestProcess_DeterministicForSeed(t *testing.T) {
	t.Parallel()

	run := func() []byte {
		config := testConfig("rename", "flow", "antidebug")
		config.Naming = NamingNatural
		o, err := New(config)
		if err != nil {
			t.Fatal(err)
		}
		return process(t, o, exampleJar(t))
	}

	_, first, _ := readOutput(t, run())
	_, second, _ := readOutput(t, run())
	if len(first) != 2 {
		t.Fatalf("got %d classes, want 2", len(first))
	}
	for name, rec := range first {
		other, ok := second[name]
		if !ok {
			t.Fatalf("class %s missing from second run", name)
		}
		if diff := cmp.Diff(classfile.Disassemble(rec), classfile.Disassemble(other)); diff != "" {
			t.Errorf("class %s differs between runs (-first +second):\n%s", name, diff)
		}
	}
}

func TestProcess_DecodeErrorAborts(t *testing.T) {
	t.Parallel()

	in := buildJar(t,
		zipEntry{"com/example/App.class", encodeClass(t, appClass())},
		zipEntry{"com/example/Broken.class", []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0}},
	)
	o, err := New(testConfig("rename"))
	if err != nil {
		t.Fatal(err)
	}
	err = o.Process(context.Background(), in, &bytes.Buffer{})
	if !errors.Is(err, classfile.ErrDecode) {
		t.Errorf("Process() error = %v, want ErrDecode", err)
	}
}

func TestProcess_DuplicateSyntheticNameWrittenOnce(t *testing.T) {
	t.Parallel()

	config := testConfig("strings")
	config.DecoderClass = "com/example/Util"
	o, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	_, classes, _ := readOutput(t, process(t, o, exampleJar(t)))

	util := classes["com/example/Util"]
	if util == nil || util.FindMethod("count", "()I") == nil {
		t.Errorf("archive class was not the one kept on name collision")
	}
}

func TestRun_ReadsAndWritesFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "in.jar")
	var buf bytes.Buffer
	writeZip(t, &buf,
		zipEntry{"com/example/App.class", encodeClass(t, appClass())},
		zipEntry{"com/example/Util.class", encodeClass(t, utilClass())},
	)
	if err := os.WriteFile(input, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	config := testConfig("rename")
	config.Input = input
	config.Output = filepath.Join(dir, "out.jar")
	config.Mapping = filepath.Join(dir, "mapping.txt")
	o, err := New(config)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out, err := os.ReadFile(config.Output)
	if err != nil {
		t.Fatal(err)
	}
	if _, classes, _ := readOutput(t, out); len(classes) != 2 {
		t.Errorf("got %d classes, want 2", len(classes))
	}
	mapping, err := os.ReadFile(config.Mapping)
	if err != nil {
		t.Fatal(err)
	}
	want := "com.example.App -> C0:\ncom.example.Util -> C1:\n"
	if diff := cmp.Diff(want, string(mapping)); diff != "" {
		t.Errorf("mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestReorder(t *testing.T) {
	t.Parallel()

	r, _ := NewRenamer(DefaultConfig())
	s := NewStringProtector(DefaultConfig())
	f := NewControlFlowPadder(1)
	a := NewAntiDebugGuard()

	tests := []struct {
		name string
		in   []Transform
		want []Kind
	}{
		{
			name: "protector moved before renamer",
			in:   []Transform{r, f, s, a},
			want: []Kind{KindStringProtector, KindRenamer, KindControlFlowPadder, KindAntiDebugGuard},
		},
		{
			name: "already ordered",
			in:   []Transform{f, s, r},
			want: []Kind{KindControlFlowPadder, KindStringProtector, KindRenamer},
		},
		{
			name: "no protector",
			in:   []Transform{a, r, f},
			want: []Kind{KindAntiDebugGuard, KindRenamer, KindControlFlowPadder},
		},
		{
			name: "adjacent",
			in:   []Transform{NoOp{}, r, s},
			want: []Kind{KindNoOp, KindStringProtector, KindRenamer},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got []Kind
			for _, tr := range reorder(tt.in) {
				got = append(got, tr.Kind())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("reorder() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNew_UnknownTransform(t *testing.T) {
	t.Parallel()

	if _, err := New(testConfig("rename", "shrink")); err == nil {
		t.Error("New() with unknown transform succeeded")
	}
	config := testConfig("rename")
	config.Naming = "random"
	if _, err := New(config); err == nil {
		t.Error("New() with unknown naming succeeded")
	}
}

func TestProcess_NoOpKeepsClasses(t *testing.T) {
	t.Parallel()

	o, err := New(testConfig("noop"))
	if err != nil {
		t.Fatal(err)
	}
	archive, classes, _ := readOutput(t, process(t, o, exampleJar(t)))

	if got := archive.Manifest.MainClass(); got != "com/example/App" {
		t.Errorf("Main-Class = %q, want com/example/App", got)
	}
	want := map[string]string{
		"com/example/App":  classfile.Disassemble(classes["com/example/App"]),
		"com/example/Util": classfile.Disassemble(classes["com/example/Util"]),
	}
	for name, rec := range map[string]*classfile.ClassRecord{"com/example/App": appClass(), "com/example/Util": utilClass()} {
		decoded, err := classfile.Decode(encodeClass(t, rec))
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(classfile.Disassemble(decoded), want[name]); diff != "" {
			t.Errorf("%s changed (-want +got):\n%s", name, diff)
		}
	}
}
