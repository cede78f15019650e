package obfuscator

import (
	"path"
	"strings"

	"jvm-obfuscator/classfile"
)

const (
	mainMethodName = "main"
	mainMethodDesc = "([Ljava/lang/String;)V"
)

// shouldExcludeClass 检查类是否匹配排除模式。
// 模式同时与内部名 (com/example/Foo) 和点分名 (com.example.Foo) 比较，
// 以 /** 或 .** 结尾的模式匹配该包及其所有子包。
func shouldExcludeClass(internalName string, patterns []string) (bool, string) {
	dotted := strings.ReplaceAll(internalName, "/", ".")
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		// 类似 "com/example/**" 的模式
		for _, suffix := range []string{"/**", ".**"} {
			if prefix, ok := strings.CutSuffix(pattern, suffix); ok {
				sep := suffix[:1]
				name := internalName
				if sep == "." {
					name = dotted
				}
				if strings.HasPrefix(name, prefix+sep) {
					return true, "matches pattern: " + pattern
				}
			}
		}

		for _, name := range []string{internalName, dotted} {
			matched, err := path.Match(pattern, name)
			if err == nil && matched {
				return true, "matches pattern: " + pattern
			}
		}

		// 不含分隔符的模式只匹配简单类名，例如 "*Test"
		if !strings.ContainsAny(pattern, "/.") {
			simple := internalName[strings.LastIndexByte(internalName, '/')+1:]
			if matched, err := path.Match(pattern, simple); err == nil && matched {
				return true, "matches pattern: " + pattern
			}
		}
	}

	return false, ""
}

// prepend 把指令插入方法开头
func prepend(m *classfile.MethodRecord, insns ...classfile.Instruction) {
	m.Code.Instructions.Insert(classfile.NewInsnList(insns...))
}

// eligible 判断方法是否有可改写的方法体
func eligible(m *classfile.MethodRecord) bool {
	return !m.IsAbstractOrNative() && m.HasBody()
}
