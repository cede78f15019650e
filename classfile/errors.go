package classfile

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode 表示输入的类文件格式错误
	ErrDecode = errors.New("malformed class file")
	// ErrStructure 表示改写后的结构不再合法（描述符、跳转偏移、常量池容量等）
	ErrStructure = errors.New("structural invariant violation")
)

// DecodeError 记录解码失败的位置
type DecodeError struct {
	Offset int
	Msg    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v at offset %d: %s", ErrDecode, e.Offset, e.Msg)
}

func (e *DecodeError) Unwrap() error {
	return ErrDecode
}

func structuralf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructure, fmt.Sprintf(format, args...))
}
