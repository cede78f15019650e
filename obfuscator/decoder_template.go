package obfuscator

import (
	"fmt"

	"jvm-obfuscator/classfile"
)

const (
	decodeMethodName = "decode"
	decodeMethodDesc = "(Ljava/lang/String;)Ljava/lang/String;"

	keyFieldName   = "BASE64_KEY"
	keyPlaceholder = "{{BASE64_KEY}}"

	secretKeySpec = "javax/crypto/spec/SecretKeySpec"
	base64Decoder = "java/util/Base64$Decoder"
)

// decoderTemplate 生成解密类：
//
//	public final class <name> {
//	    private static final String BASE64_KEY = "{{BASE64_KEY}}";
//	    private static final SecretKeySpec KEY =
//	        new SecretKeySpec(Base64.getDecoder().decode("{{BASE64_KEY}}"), "AES");
//
//	    public static String decode(String s) throws GeneralSecurityException {
//	        byte[] data = Base64.getDecoder().decode(s);
//	        Cipher c = Cipher.getInstance("AES/ECB/PKCS5Padding");
//	        c.init(Cipher.DECRYPT_MODE, KEY);
//	        return new String(c.doFinal(data), StandardCharsets.UTF_8);
//	    }
//	}
//
// 密钥占位符由 patchDecoderKey 替换。
func decoderTemplate(name string) *classfile.ClassRecord {
	in := func(op int) *classfile.Insn { return &classfile.Insn{Op: op} }
	ldc := func(v any) *classfile.LdcInsn { return &classfile.LdcInsn{Value: v} }
	call := func(op int, owner, method, desc string) *classfile.MethodInsn {
		return &classfile.MethodInsn{Op: op, Owner: owner, Name: method, Descriptor: desc}
	}
	keyField := &classfile.FieldInsn{
		Op:         classfile.GETSTATIC,
		Owner:      name,
		Name:       "KEY",
		Descriptor: classfile.ObjectDescriptor(secretKeySpec),
	}
	getDecoder := call(classfile.INVOKESTATIC, "java/util/Base64", "getDecoder", "()Ljava/util/Base64$Decoder;")

	clinit := classfile.NewInsnList(
		&classfile.TypeInsn{Op: classfile.NEW, Type: secretKeySpec},
		in(classfile.DUP),
		getDecoder,
		ldc(keyPlaceholder),
		call(classfile.INVOKEVIRTUAL, base64Decoder, "decode", "(Ljava/lang/String;)[B"),
		ldc("AES"),
		call(classfile.INVOKESPECIAL, secretKeySpec, "<init>", "([BLjava/lang/String;)V"),
		&classfile.FieldInsn{Op: classfile.PUTSTATIC, Owner: name, Name: keyField.Name, Descriptor: keyField.Descriptor},
		in(classfile.RETURN),
	)

	decode := classfile.NewInsnList(
		call(classfile.INVOKESTATIC, "java/util/Base64", "getDecoder", "()Ljava/util/Base64$Decoder;"),
		&classfile.VarInsn{Op: classfile.ALOAD, Var: 0},
		call(classfile.INVOKEVIRTUAL, base64Decoder, "decode", "(Ljava/lang/String;)[B"),
		&classfile.VarInsn{Op: classfile.ASTORE, Var: 1},
		ldc("AES/ECB/PKCS5Padding"),
		call(classfile.INVOKESTATIC, "javax/crypto/Cipher", "getInstance", "(Ljava/lang/String;)Ljavax/crypto/Cipher;"),
		&classfile.VarInsn{Op: classfile.ASTORE, Var: 2},
		&classfile.VarInsn{Op: classfile.ALOAD, Var: 2},
		in(classfile.ICONST_2),
		keyField,
		call(classfile.INVOKEVIRTUAL, "javax/crypto/Cipher", "init", "(ILjava/security/Key;)V"),
		&classfile.TypeInsn{Op: classfile.NEW, Type: "java/lang/String"},
		in(classfile.DUP),
		&classfile.VarInsn{Op: classfile.ALOAD, Var: 2},
		&classfile.VarInsn{Op: classfile.ALOAD, Var: 1},
		call(classfile.INVOKEVIRTUAL, "javax/crypto/Cipher", "doFinal", "([B)[B"),
		&classfile.FieldInsn{
			Op:         classfile.GETSTATIC,
			Owner:      "java/nio/charset/StandardCharsets",
			Name:       "UTF_8",
			Descriptor: "Ljava/nio/charset/Charset;",
		},
		call(classfile.INVOKESPECIAL, "java/lang/String", "<init>", "([BLjava/nio/charset/Charset;)V"),
		in(classfile.ARETURN),
	)

	return &classfile.ClassRecord{
		MajorVersion: 52,
		Access:       classfile.AccPublic | classfile.AccFinal | classfile.AccSuper | classfile.AccSynthetic,
		Name:         name,
		SuperName:    "java/lang/Object",
		Fields: []*classfile.FieldRecord{
			{
				Access:     classfile.AccPrivate | classfile.AccStatic | classfile.AccFinal,
				Name:       keyFieldName,
				Descriptor: "Ljava/lang/String;",
				Value:      keyPlaceholder,
			},
			{
				Access:     classfile.AccPrivate | classfile.AccStatic | classfile.AccFinal,
				Name:       keyField.Name,
				Descriptor: keyField.Descriptor,
			},
		},
		Methods: []*classfile.MethodRecord{
			{
				Access:     classfile.AccStatic,
				Name:       "<clinit>",
				Descriptor: "()V",
				Code:       &classfile.Code{Instructions: clinit},
			},
			{
				Access:     classfile.AccPublic | classfile.AccStatic,
				Name:       decodeMethodName,
				Descriptor: decodeMethodDesc,
				Exceptions: []string{"java/security/GeneralSecurityException"},
				Code:       &classfile.Code{MaxLocals: 3, Instructions: decode},
			},
		},
	}
}

// patchDecoderKey 把密钥写入解密类的两个位置：字段常量值与静态初始化中的常量加载
func patchDecoderKey(rec *classfile.ClassRecord, key string) error {
	field := rec.FindField(keyFieldName)
	if field == nil {
		return fmt.Errorf("%w: 解密类 %s 缺少字段 %s", ErrMissingResource, rec.Name, keyFieldName)
	}
	field.Value = key

	if clinit := rec.FindMethod("<clinit>", "()V"); clinit != nil && clinit.HasBody() {
		for n := clinit.Code.Instructions.Front(); n != nil; n = n.Next() {
			if ldc, ok := n.Insn.(*classfile.LdcInsn); ok && ldc.Value == keyPlaceholder {
				ldc.Value = key
			}
		}
	}
	return nil
}
