package classfile

// Node 是 InsnList 中的一个位置。插入和删除其它节点不会改变已有节点的身份。
type Node struct {
	Insn Instruction

	prev, next *Node
	list       *InsnList
}

// Next 返回下一个节点，末尾返回 nil
func (n *Node) Next() *Node {
	return n.next
}

// Prev 返回上一个节点，开头返回 nil
func (n *Node) Prev() *Node {
	return n.prev
}

// InsnList 是双向链表形式的指令序列
type InsnList struct {
	head, tail *Node
	size       int
}

// NewInsnList 用给定指令创建序列
func NewInsnList(insns ...Instruction) *InsnList {
	l := &InsnList{}
	l.Add(insns...)
	return l
}

// Len 返回节点数（包括伪指令）
func (l *InsnList) Len() int {
	return l.size
}

// Front 返回第一个节点
func (l *InsnList) Front() *Node {
	return l.head
}

// Back 返回最后一个节点
func (l *InsnList) Back() *Node {
	return l.tail
}

// Add 在末尾追加指令
func (l *InsnList) Add(insns ...Instruction) {
	for _, in := range insns {
		n := &Node{Insn: in, list: l, prev: l.tail}
		if l.tail == nil {
			l.head = n
		} else {
			l.tail.next = n
		}
		l.tail = n
		l.size++
	}
}

// Nodes 返回当前所有节点的快照
func (l *InsnList) Nodes() []*Node {
	nodes := make([]*Node, 0, l.size)
	for n := l.head; n != nil; n = n.next {
		nodes = append(nodes, n)
	}
	return nodes
}

// Instructions 返回当前所有指令的快照
func (l *InsnList) Instructions() []Instruction {
	insns := make([]Instruction, 0, l.size)
	for n := l.head; n != nil; n = n.next {
		insns = append(insns, n.Insn)
	}
	return insns
}

// InsertBefore 把 other 的全部节点移动到 mark 之前，other 随后为空
func (l *InsnList) InsertBefore(mark *Node, other *InsnList) {
	if mark.list != l {
		panic("classfile: InsertBefore with a node from another list")
	}
	if other.size == 0 {
		return
	}
	for n := other.head; n != nil; n = n.next {
		n.list = l
	}
	first, last := other.head, other.tail
	first.prev = mark.prev
	last.next = mark
	if mark.prev == nil {
		l.head = first
	} else {
		mark.prev.next = first
	}
	mark.prev = last
	l.size += other.size
	other.head, other.tail, other.size = nil, nil, 0
}

// Insert 把 other 的全部节点移动到序列开头
func (l *InsnList) Insert(other *InsnList) {
	if l.head == nil {
		if other.size == 0 {
			return
		}
		for n := other.head; n != nil; n = n.next {
			n.list = l
		}
		l.head, l.tail, l.size = other.head, other.tail, other.size
		other.head, other.tail, other.size = nil, nil, 0
		return
	}
	l.InsertBefore(l.head, other)
}

// Set 在原位置替换指令，节点身份不变
func (l *InsnList) Set(n *Node, in Instruction) {
	n.Insn = in
}

// Remove 删除一个节点
func (l *InsnList) Remove(n *Node) {
	if n.list != l {
		panic("classfile: Remove with a node from another list")
	}
	if n.prev == nil {
		l.head = n.next
	} else {
		n.prev.next = n.next
	}
	if n.next == nil {
		l.tail = n.prev
	} else {
		n.next.prev = n.prev
	}
	n.prev, n.next, n.list = nil, nil, nil
	l.size--
}
