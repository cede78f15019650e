package jar

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/emirpasic/gods/sets/hashset"
)

// Writer 生成输出归档，同名条目只写入第一次
type Writer struct {
	zw      *zip.Writer
	written *hashset.Set
}

// NewWriter 创建写入 w 的归档
func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w), written: hashset.New()}
}

func (w *Writer) claim(name string) bool {
	if w.written.Contains(name) {
		return false
	}
	w.written.Add(name)
	return true
}

// WriteManifest 写入清单
func (w *Writer) WriteManifest(m *Manifest) error {
	if !w.claim(ManifestPath) {
		return nil
	}
	return w.create(ManifestPath, m.Bytes())
}

// WriteClass 按内部名写入类文件，重名时忽略并返回 false
func (w *Writer) WriteClass(internalName string, data []byte) (bool, error) {
	name := internalName + classSuffix
	if !w.claim(name) {
		return false, nil
	}
	return true, w.create(name, data)
}

// CopyEntry 不解压地复制原始条目，内容与压缩方式保持不变
func (w *Writer) CopyEntry(e *Entry) error {
	if !w.claim(e.Name) {
		return nil
	}
	if err := w.zw.Copy(e.file); err != nil {
		return fmt.Errorf("复制条目 %s 失败: %w", e.Name, err)
	}
	return nil
}

func (w *Writer) create(name string, data []byte) error {
	f, err := w.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("创建条目 %s 失败: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("写入条目 %s 失败: %w", name, err)
	}
	return nil
}

// Close 写出中央目录
func (w *Writer) Close() error {
	return w.zw.Close()
}
