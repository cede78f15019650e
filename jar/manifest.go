package jar

import (
	"bytes"
	"strings"
)

// ManifestPath 是清单文件在归档中的位置
const ManifestPath = "META-INF/MANIFEST.MF"

const maxLineBytes = 72

type attribute struct {
	Name  string
	Value string
}

// Manifest 是清单的主段属性，其余各段原样保留
type Manifest struct {
	main     []attribute
	sections []byte
}

// ParseManifest 解析清单。续行以单个空格开头，主段以第一个空行结束。
func ParseManifest(data []byte) *Manifest {
	m := &Manifest{}
	rest := data
	for len(rest) > 0 {
		line, next := splitLine(rest)
		if len(line) == 0 {
			m.sections = append([]byte(nil), next...)
			break
		}
		rest = next
		if line[0] == ' ' {
			if n := len(m.main); n > 0 {
				m.main[n-1].Value += string(line[1:])
			}
			continue
		}
		name, value, ok := strings.Cut(string(line), ":")
		if !ok {
			continue
		}
		m.main = append(m.main, attribute{Name: name, Value: strings.TrimPrefix(value, " ")})
	}
	return m
}

// splitLine 按 CRLF、LF 或 CR 切出一行
func splitLine(b []byte) (line, rest []byte) {
	i := bytes.IndexAny(b, "\r\n")
	if i < 0 {
		return b, nil
	}
	if b[i] == '\r' && i+1 < len(b) && b[i+1] == '\n' {
		return b[:i], b[i+2:]
	}
	return b[:i], b[i+1:]
}

// Get 返回主段属性值，名称不区分大小写
func (m *Manifest) Get(name string) string {
	for _, a := range m.main {
		if strings.EqualFold(a.Name, name) {
			return a.Value
		}
	}
	return ""
}

// Set 修改已有属性或追加新属性
func (m *Manifest) Set(name, value string) {
	for i, a := range m.main {
		if strings.EqualFold(a.Name, name) {
			m.main[i].Value = value
			return
		}
	}
	m.main = append(m.main, attribute{Name: name, Value: value})
}

// MainClass 返回入口类的内部名，没有时返回空串
func (m *Manifest) MainClass() string {
	return strings.ReplaceAll(strings.TrimSpace(m.Get("Main-Class")), ".", "/")
}

// SetMainClass 以内部名设置入口类
func (m *Manifest) SetMainClass(internalName string) {
	m.Set("Main-Class", strings.ReplaceAll(internalName, "/", "."))
}

// Bytes 重新生成清单，主段按 72 字节折行
func (m *Manifest) Bytes() []byte {
	var buf bytes.Buffer
	for _, a := range m.main {
		writeWrapped(&buf, a.Name+": "+a.Value)
	}
	buf.WriteString("\r\n")
	buf.Write(m.sections)
	return buf.Bytes()
}

func writeWrapped(buf *bytes.Buffer, line string) {
	limit := maxLineBytes
	for len(line) > limit {
		cut := limit
		// 不拆开 UTF-8 多字节字符
		for cut > 1 && line[cut]&0xc0 == 0x80 {
			cut--
		}
		buf.WriteString(line[:cut])
		buf.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLineBytes - 1
	}
	buf.WriteString(line)
	buf.WriteString("\r\n")
}
