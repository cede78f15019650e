package obfuscator

import "errors"

var (
	// ErrEncryption 表示某个字符串常量加密失败，类已无法保持语义，整次运行中止
	ErrEncryption = errors.New("string encryption failed")
	// ErrMissingResource 表示变换依赖的模板类或配置项不存在
	ErrMissingResource = errors.New("missing resource")
)
