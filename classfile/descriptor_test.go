package classfile

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testMapping(name string) string {
	switch name {
	case "com/example/Outer":
		return "C1"
	case "com/example/Outer$Inner":
		return "C1$C2"
	case "com/example/Other$Nested":
		return "C3"
	case "com/example/Value":
		return "C4"
	}
	return name
}

func TestRemapSignature(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Lcom/example/Value;", want: "LC4;"},
		{in: "[[Lcom/example/Value;", want: "[[LC4;"},
		{in: "(ILcom/example/Value;[J)Lcom/example/Outer;", want: "(ILC4;[J)LC1;"},
		{in: "Ljava/util/List<Lcom/example/Value;>;", want: "Ljava/util/List<LC4;>;"},
		{in: "Ljava/util/Map<+Lcom/example/Value;*>;", want: "Ljava/util/Map<+LC4;*>;"},
		{
			in:   "<T:Lcom/example/Value;U::Ljava/lang/Comparable<TT;>;>Ljava/lang/Object;",
			want: "<T:LC4;U::Ljava/lang/Comparable<TT;>;>Ljava/lang/Object;",
		},
		{in: "Lcom/example/Outer<TT;>.Inner<Lcom/example/Value;>;", want: "LC1<TT;>.C2<LC4;>;"},
		{in: "Lcom/example/Other.Nested;", want: "Lcom/example/Other.C3;"},
		{in: "<E:Ljava/lang/Exception;>()V^TE;^Lcom/example/Value;", want: "<E:Ljava/lang/Exception;>()V^TE;^LC4;"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := RemapSignature(tt.in, testMapping)
			if err != nil {
				t.Fatalf("RemapSignature(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("RemapSignature(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRemapSignature_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"Lcom/example/Value", "(I", "<T>V", "Q", "Ljava/util/List<Lx;"} {
		if _, err := RemapSignature(in, testMapping); !errors.Is(err, ErrStructure) {
			t.Errorf("RemapSignature(%q) error = %v, want ErrStructure", in, err)
		}
	}
}

func TestRemapType(t *testing.T) {
	t.Parallel()

	if got, _ := RemapType("com/example/Value", testMapping); got != "C4" {
		t.Errorf("RemapType(internal name) = %q, want C4", got)
	}
	if got, _ := RemapType("[Lcom/example/Value;", testMapping); got != "[LC4;" {
		t.Errorf("RemapType(array) = %q, want [LC4;", got)
	}
}

func TestParseMethodDescriptor(t *testing.T) {
	t.Parallel()

	args, ret, err := ParseMethodDescriptor("(IJ[Ljava/lang/String;D)Ljava/lang/Object;")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"I", "J", "[Ljava/lang/String;", "D"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if ret != "Ljava/lang/Object;" {
		t.Errorf("ret = %q", ret)
	}
	if n := ArgumentsSize("(IJ[Ljava/lang/String;D)V"); n != 6 {
		t.Errorf("ArgumentsSize() = %d, want 6", n)
	}
	if n := ReturnSize("()J"); n != 2 {
		t.Errorf("ReturnSize() = %d, want 2", n)
	}
	for _, bad := range []string{"I)V", "(I", "(X)V", "()", "(L;)V"} {
		if _, _, err := ParseMethodDescriptor(bad); err == nil {
			t.Errorf("ParseMethodDescriptor(%q) succeeded", bad)
		}
	}
}

func TestObjectDescriptorAndInternalName(t *testing.T) {
	t.Parallel()

	if got := ObjectDescriptor("a/B"); got != "La/B;" {
		t.Errorf("ObjectDescriptor() = %q", got)
	}
	if got := ObjectDescriptor("[I"); got != "[I" {
		t.Errorf("ObjectDescriptor(array) = %q", got)
	}
	if got := InternalName("La/B;"); got != "a/B" {
		t.Errorf("InternalName() = %q", got)
	}
}
