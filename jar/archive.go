// Package jar 读写 JAR 归档：解出类文件条目，按原样复制其余条目，并维护清单中的入口类。
package jar

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

const classSuffix = ".class"

// Entry 是归档中的一个条目
type Entry struct {
	Name string
	file *zip.File
}

// IsDir 判断条目是否为目录
func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// IsClass 判断条目是否需要解码为类。
// module-info 与多版本目录下的类按资源原样复制。
func (e *Entry) IsClass() bool {
	return IsClassName(e.Name)
}

// IsClassName 判断条目名是否为需要解码的类文件
func IsClassName(name string) bool {
	if !strings.HasSuffix(name, classSuffix) {
		return false
	}
	if strings.HasPrefix(name, "META-INF/versions/") {
		return false
	}
	base := name[strings.LastIndexByte(name, '/')+1:]
	return base != "module-info.class"
}

// ReadAll 读取条目的解压内容
func (e *Entry) ReadAll() ([]byte, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("打开条目 %s 失败: %w", e.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("读取条目 %s 失败: %w", e.Name, err)
	}
	return data, nil
}

// Archive 是打开的输入归档，条目保持归档中的顺序
type Archive struct {
	Entries  []*Entry
	Manifest *Manifest

	closer io.Closer
}

// Open 打开磁盘上的 JAR 文件
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("打开归档 %s 失败: %w", path, err)
	}
	a, err := newArchive(&rc.Reader)
	if err != nil {
		rc.Close()
		return nil, err
	}
	a.closer = rc
	return a, nil
}

// NewArchive 从内存或其它随机读取源打开归档
func NewArchive(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("解析归档失败: %w", err)
	}
	return newArchive(zr)
}

func newArchive(zr *zip.Reader) (*Archive, error) {
	a := &Archive{}
	for _, f := range zr.File {
		e := &Entry{Name: f.Name, file: f}
		a.Entries = append(a.Entries, e)
		if f.Name == ManifestPath && a.Manifest == nil {
			data, err := e.ReadAll()
			if err != nil {
				return nil, err
			}
			a.Manifest = ParseManifest(data)
		}
	}
	return a, nil
}

// Classes 返回需要解码的类条目
func (a *Archive) Classes() []*Entry {
	var out []*Entry
	for _, e := range a.Entries {
		if e.IsClass() {
			out = append(out, e)
		}
	}
	return out
}

// Close 关闭底层文件
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
