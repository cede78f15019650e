package classfile

import "testing"

func TestOpcodeName_MatchesConstants(t *testing.T) {
	t.Parallel()

	tests := map[int]string{
		NOP:          "NOP",
		IADD:         "IADD",
		LADD:         "LADD",
		IMUL:         "IMUL",
		DDIV:         "DDIV",
		DREM:         "DREM",
		INEG:         "INEG",
		GOTO:         "GOTO",
		INVOKESTATIC: "INVOKESTATIC",
	}
	for op, want := range tests {
		if got := OpcodeName(op); got != want {
			t.Errorf("OpcodeName(0x%02x) = %q, want %q", op, got, want)
		}
	}
}
