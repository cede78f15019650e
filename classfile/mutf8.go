package classfile

import (
	"unicode/utf8"
)

// decodeMUTF8 把类文件使用的 modified UTF-8 转为 Go 字符串。
// 成对的代理项合并为一个码点，孤立代理项保留原始三字节。
func decodeMUTF8(b []byte) string {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			out = append(out, c)
			i++
		case c&0xe0 == 0xc0 && i+1 < len(b):
			r := rune(c&0x1f)<<6 | rune(b[i+1]&0x3f)
			out = utf8.AppendRune(out, r)
			i += 2
		case c&0xf0 == 0xe0 && i+2 < len(b):
			r := rune(c&0x0f)<<12 | rune(b[i+1]&0x3f)<<6 | rune(b[i+2]&0x3f)
			if r >= 0xd800 && r <= 0xdbff && i+5 < len(b) && b[i+3] == 0xed && b[i+4]&0xf0 == 0xb0 {
				lo := rune(b[i+3]&0x0f)<<12 | rune(b[i+4]&0x3f)<<6 | rune(b[i+5]&0x3f)
				out = utf8.AppendRune(out, 0x10000+(r-0xd800)<<10+(lo-0xdc00))
				i += 6
				continue
			}
			if r >= 0xd800 && r <= 0xdfff {
				out = append(out, b[i:i+3]...)
			} else {
				out = utf8.AppendRune(out, r)
			}
			i += 3
		default:
			out = append(out, c)
			i++
		}
	}
	return string(out)
}

// encodeMUTF8 是 decodeMUTF8 的逆操作
func encodeMUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c != 0 && c < 0x80 {
			out = append(out, c)
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			// 孤立代理项或非法字节
			if c == 0xed && i+2 < len(s) {
				out = append(out, s[i:i+3]...)
				i += 3
				continue
			}
			out = append(out, 0xc0|c>>6, 0x80|c&0x3f)
			i++
			continue
		}
		i += size
		switch {
		case r == 0:
			out = append(out, 0xc0, 0x80)
		case r < 0x800:
			out = append(out, byte(0xc0|r>>6), byte(0x80|r&0x3f))
		case r < 0x10000:
			out = append(out, byte(0xe0|r>>12), byte(0x80|(r>>6)&0x3f), byte(0x80|r&0x3f))
		default:
			r -= 0x10000
			hi, lo := 0xd800+(r>>10), 0xdc00+(r&0x3ff)
			out = append(out,
				byte(0xe0|hi>>12), byte(0x80|(hi>>6)&0x3f), byte(0x80|hi&0x3f),
				byte(0xe0|lo>>12), byte(0x80|(lo>>6)&0x3f), byte(0x80|lo&0x3f))
		}
	}
	return out
}
