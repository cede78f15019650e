package obfuscator

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// SymbolTable 是原始内部名到新内部名的映射，按登记顺序迭代。
// 在重命名变换的 Init 中建立并冻结，之后只读，可被多个 goroutine 并发查询。
type SymbolTable struct {
	m      *linkedhashmap.Map
	frozen bool
}

func newSymbolTable() *SymbolTable {
	return &SymbolTable{m: linkedhashmap.New()}
}

func (t *SymbolTable) put(oldName, newName string) {
	if t.frozen {
		panic("obfuscator: SymbolTable modified after freeze")
	}
	t.m.Put(oldName, newName)
}

func (t *SymbolTable) freeze() {
	t.frozen = true
}

// Lookup 查询原始内部名对应的新名称
func (t *SymbolTable) Lookup(oldName string) (string, bool) {
	v, ok := t.m.Get(oldName)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Len 返回映射条数
func (t *SymbolTable) Len() int {
	return t.m.Size()
}

// Each 按登记顺序遍历映射
func (t *SymbolTable) Each(fn func(oldName, newName string)) {
	it := t.m.Iterator()
	for it.Next() {
		fn(it.Key().(string), it.Value().(string))
	}
}
