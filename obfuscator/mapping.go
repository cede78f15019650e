package obfuscator

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// WriteMapping 以 ProGuard 格式写出类名映射，每行一条: com.example.App -> C0:
func WriteMapping(w io.Writer, table *SymbolTable) error {
	bw := bufio.NewWriter(w)
	table.Each(func(oldName, newName string) {
		fmt.Fprintf(bw, "%s -> %s:\n", dotted(oldName), dotted(newName))
	})
	return bw.Flush()
}

func writeMappingFile(path string, table *SymbolTable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建映射文件失败: %w", err)
	}
	if err := WriteMapping(f, table); err != nil {
		f.Close()
		return fmt.Errorf("写入映射文件失败: %w", err)
	}
	return f.Close()
}

func dotted(internalName string) string {
	return strings.ReplaceAll(internalName, "/", ".")
}
