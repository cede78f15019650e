package obfuscator

import (
	"strings"

	"github.com/emirpasic/gods/sets/hashset"

	"jvm-obfuscator/classfile"
)

// reflectiveLoaders 是以类名字符串加载类的方法，键为 owner.name
var reflectiveLoaders = map[string]bool{
	"java/lang/Class.forName":           true,
	"java/lang/ClassLoader.loadClass":   true,
	"java/lang/ClassLoader.findClass":   true,
	"java/net/URLClassLoader.loadClass": true,
}

// collectReflectionTargets 找出以字面量字符串反射加载的类，返回其内部名。
// 只识别字符串常量紧接着被传给加载方法的情形。
func collectReflectionTargets(records []*classfile.ClassRecord) *hashset.Set {
	targets := hashset.New()
	for _, rec := range records {
		for _, m := range rec.Methods {
			if !m.HasBody() {
				continue
			}
			var pending string
			for n := m.Code.Instructions.Front(); n != nil; n = n.Next() {
				if classfile.IsPseudo(n.Insn) {
					continue
				}
				if call, ok := n.Insn.(*classfile.MethodInsn); ok && pending != "" {
					if reflectiveLoaders[call.Owner+"."+call.Name] &&
						strings.HasPrefix(call.Descriptor, "(Ljava/lang/String;") {
						targets.Add(strings.ReplaceAll(pending, ".", "/"))
					}
				}
				pending = ""
				if ldc, ok := n.Insn.(*classfile.LdcInsn); ok {
					if s, ok := ldc.Value.(string); ok {
						pending = s
					}
				}
			}
		}
	}
	return targets
}
