package obfuscator

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"jvm-obfuscator/classfile"
	"jvm-obfuscator/internal/cmdlogger"
)

// StringProtector 把字符串常量替换为密文加解密调用，并合成解密类
type StringProtector struct {
	decoderClass  string
	configuredKey string

	key   []byte
	block cipher.Block
	stats *counters
}

// NewStringProtector 按配置创建字符串加密变换
func NewStringProtector(config *Config) *StringProtector {
	decoder := config.DecoderClass
	if decoder == "" {
		decoder = defaultDecoderClass
	}
	return &StringProtector{
		decoderClass:  decoder,
		configuredKey: config.StringKey,
	}
}

func (s *StringProtector) Kind() Kind { return KindStringProtector }

// DecoderClass 返回解密类的原始内部名
func (s *StringProtector) DecoderClass() string {
	return s.decoderClass
}

// Key 返回本次运行的 AES 密钥
func (s *StringProtector) Key() []byte {
	return s.key
}

// Init 生成本次运行的密钥并登记解密类
func (s *StringProtector) Init(ctx *Context) error {
	s.stats = ctx.stats

	if s.configuredKey != "" {
		key, err := base64.StdEncoding.DecodeString(s.configuredKey)
		if err != nil {
			return fmt.Errorf("%w: 无法解析 string-key: %v", ErrEncryption, err)
		}
		s.key = key
	} else {
		s.key = make([]byte, 16)
		if _, err := rand.Read(s.key); err != nil {
			return fmt.Errorf("%w: 生成密钥失败: %v", ErrEncryption, err)
		}
	}
	if len(s.key) != 16 {
		return fmt.Errorf("%w: 密钥长度必须为 16 字节，实际为 %d", ErrEncryption, len(s.key))
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	s.block = block

	for _, name := range ctx.ClassNames() {
		if name == s.decoderClass {
			cmdlogger.Warnf("归档中已存在与解密类同名的类 %s，输出时保留先写入的一个", name)
		}
	}

	rec := decoderTemplate(s.decoderClass)
	if err := patchDecoderKey(rec, base64.StdEncoding.EncodeToString(s.key)); err != nil {
		return err
	}
	ctx.AddSynthetic(rec)

	cmdlogger.Infof("字符串加密: 解密类 %s", s.decoderClass)
	return nil
}

// Encrypt 用 AES/ECB/PKCS5Padding 加密并以标准 base64 编码，与解密类的实现对应
func (s *StringProtector) Encrypt(plain string) (string, error) {
	if s.block == nil {
		return "", fmt.Errorf("%w: 密钥尚未初始化", ErrEncryption)
	}
	bs := s.block.BlockSize()
	data := pkcs5Pad([]byte(plain), bs)
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		s.block.Encrypt(out[i:i+bs], data[i:i+bs])
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt 是 Encrypt 的逆运算
func (s *StringProtector) Decrypt(text string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	bs := s.block.BlockSize()
	if len(data) == 0 || len(data)%bs != 0 {
		return "", fmt.Errorf("%w: 密文长度 %d 不是分组长度的倍数", ErrEncryption, len(data))
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		s.block.Decrypt(out[i:i+bs], data[i:i+bs])
	}
	plain, err := pkcs5Unpad(out, bs)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pkcs5Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs5Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: 填充无效", ErrEncryption)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: 填充无效", ErrEncryption)
		}
	}
	return data[:len(data)-n], nil
}

// decodeCall 返回调用解密方法的指令，owner 为解密类当前的名称
func decodeCall(owner string) *classfile.MethodInsn {
	return &classfile.MethodInsn{
		Op:         classfile.INVOKESTATIC,
		Owner:      owner,
		Name:       decodeMethodName,
		Descriptor: decodeMethodDesc,
	}
}

// Apply 把类中的每个字符串常量加载替换为 加载密文 + 调用解密方法
func (s *StringProtector) Apply(rec *classfile.ClassRecord, env *ClassEnv) error {
	if rec.Name == s.decoderClass {
		return nil
	}

	for _, m := range rec.Methods {
		if !m.HasBody() {
			continue
		}
		insns := m.Code.Instructions
		for _, n := range insns.Nodes() {
			ldc, ok := n.Insn.(*classfile.LdcInsn)
			if !ok {
				continue
			}
			plain, ok := ldc.Value.(string)
			if !ok {
				continue
			}
			// 含孤立代理项的常量无法以 UTF-8 还原，保持原样
			if !utf8.ValidString(plain) {
				cmdlogger.Debugf("跳过无法按 UTF-8 编码的字符串: %s.%s", rec.Name, m.Name)
				continue
			}
			enc, err := s.Encrypt(plain)
			if err != nil {
				return fmt.Errorf("加密 %s.%s 中的字符串失败: %w", rec.Name, m.Name, err)
			}
			// 先插入再删除，标签与跳转目标保持有效
			insns.InsertBefore(n, classfile.NewInsnList(
				&classfile.LdcInsn{Value: enc},
				decodeCall(s.decoderClass),
			))
			insns.Remove(n)
			if s.stats != nil {
				s.stats.encryptedStrings.Add(1)
			}
		}
	}
	return nil
}

func (s *StringProtector) Finish(ctx *Context) error {
	if s.stats != nil {
		cmdlogger.Infof("字符串加密: 共加密 %d 个字符串", s.stats.encryptedStrings.Load())
	}
	return nil
}
