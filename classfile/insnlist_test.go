package classfile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func opcodes(l *InsnList) []string {
	var out []string
	for n := l.Front(); n != nil; n = n.Next() {
		if IsPseudo(n.Insn) {
			out = append(out, "~")
			continue
		}
		out = append(out, OpcodeName(n.Insn.Opcode()))
	}
	return out
}

func TestInsnList_InsertBeforeKeepsNodeIdentity(t *testing.T) {
	t.Parallel()

	l := NewInsnList(&Insn{Op: ICONST_1}, &Insn{Op: POP}, &Insn{Op: RETURN})
	pop := l.Front().Next()
	other := NewInsnList(&Insn{Op: NOP}, NewLabel())

	l.InsertBefore(pop, other)

	if diff := cmp.Diff([]string{"ICONST_1", "NOP", "~", "POP", "RETURN"}, opcodes(l)); diff != "" {
		t.Errorf("InsertBefore mismatch (-want +got):\n%s", diff)
	}
	if other.Len() != 0 || other.Front() != nil {
		t.Error("InsertBefore should empty the inserted list")
	}
	if l.Len() != 5 {
		t.Errorf("Len() = %d, want 5", l.Len())
	}
	if pop.Prev().Prev().Insn.Opcode() != NOP {
		t.Error("existing node lost its links")
	}
}

func TestInsnList_InsertAtFront(t *testing.T) {
	t.Parallel()

	l := NewInsnList(&Insn{Op: RETURN})
	l.Insert(NewInsnList(&Insn{Op: NOP}, &Insn{Op: NOP}))
	if diff := cmp.Diff([]string{"NOP", "NOP", "RETURN"}, opcodes(l)); diff != "" {
		t.Errorf("Insert mismatch (-want +got):\n%s", diff)
	}

	empty := NewInsnList()
	empty.Insert(NewInsnList(&Insn{Op: RETURN}))
	if empty.Len() != 1 || empty.Back().Insn.Opcode() != RETURN {
		t.Error("Insert into an empty list failed")
	}
}

func TestInsnList_RemoveAndSet(t *testing.T) {
	t.Parallel()

	l := NewInsnList(&Insn{Op: ICONST_0}, &Insn{Op: POP}, &Insn{Op: RETURN})
	first := l.Front()
	l.Remove(first.Next())
	l.Set(first, &Insn{Op: NOP})
	l.Remove(l.Back())

	if diff := cmp.Diff([]string{"NOP"}, opcodes(l)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if l.Front() != first || l.Back() != first {
		t.Error("head and tail should both be the remaining node")
	}
}
