package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jvm-obfuscator/classfile"
	"jvm-obfuscator/jar"
)

func helloClass() *classfile.ClassRecord {
	return &classfile.ClassRecord{
		MajorVersion: 52,
		Access:       classfile.AccPublic | classfile.AccSuper,
		Name:         "com/example/Hello",
		SuperName:    "java/lang/Object",
		Methods: []*classfile.MethodRecord{{
			Access:     classfile.AccPublic | classfile.AccStatic,
			Name:       "main",
			Descriptor: "([Ljava/lang/String;)V",
			Code: &classfile.Code{Instructions: classfile.NewInsnList(
				&classfile.FieldInsn{Op: classfile.GETSTATIC, Owner: "java/lang/System", Name: "out", Descriptor: "Ljava/io/PrintStream;"},
				&classfile.LdcInsn{Value: "hi"},
				&classfile.MethodInsn{Op: classfile.INVOKEVIRTUAL, Owner: "java/io/PrintStream", Name: "println", Descriptor: "(Ljava/lang/String;)V"},
				&classfile.Insn{Op: classfile.RETURN},
			)},
		}},
	}
}

func writeJar(t *testing.T) string {
	t.Helper()

	data, err := classfile.Encode(helloClass())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "hello.jar")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, content := range map[string][]byte{
		jar.ManifestPath:          []byte("Manifest-Version: 1.0\r\nMain-Class: com.example.Hello\r\n\r\n"),
		"com/example/Hello.class": data,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// 这些测试会替换默认 slog 处理器，因此不并行执行
func TestRun_Obfuscates(t *testing.T) {
	in := writeJar(t)
	out := filepath.Join(t.TempDir(), "out.jar")
	var stdout, stderr bytes.Buffer

	code := run([]string{"jvm-obfuscator", "-o", out, "--seed", "5", "--transforms", "rename,strings", in}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run() = %d, stderr:\n%s", code, stderr.String())
	}

	archive, err := jar.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer archive.Close()
	if got := archive.Manifest.MainClass(); got != "C0" {
		t.Errorf("Main-Class = %q, want C0", got)
	}
	if !strings.Contains(stdout.String(), "混淆统计") {
		t.Errorf("statistics table missing from output:\n%s", stdout.String())
	}
}

func TestRun_Dump(t *testing.T) {
	in := writeJar(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"jvm-obfuscator", "--dump", "com.example.Hello", in}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run() = %d, stderr:\n%s", code, stderr.String())
	}
	data, err := classfile.Encode(helloClass())
	if err != nil {
		t.Fatal(err)
	}
	rec, err := classfile.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if want := classfile.Disassemble(rec); stdout.String() != want {
		t.Errorf("dump output = %q, want %q", stdout.String(), want)
	}
}

func TestRun_Errors(t *testing.T) {
	in := writeJar(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no input", args: []string{"jvm-obfuscator"}, wantErr: "请指定输入"},
		{name: "unknown transform", args: []string{"jvm-obfuscator", "--transforms", "shuffle", in}, wantErr: "未知的变换"},
		{name: "bad verbosity", args: []string{"jvm-obfuscator", "--verbosity", "loud", in}, wantErr: "无效的日志级别"},
		{name: "dump missing class", args: []string{"jvm-obfuscator", "--dump", "a.B", in}, wantErr: "没有类"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tt.args, &stdout, &stderr); code != 1 {
				t.Errorf("run() = %d, want 1", code)
			}
			if !strings.Contains(stderr.String(), tt.wantErr) {
				t.Errorf("stderr = %q, want containing %q", stderr.String(), tt.wantErr)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	got := splitList([]string{"rename, strings", "flow", ""})
	want := []string{"rename", "strings", "flow"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("splitList() = %v, want %v", got, want)
	}
}
