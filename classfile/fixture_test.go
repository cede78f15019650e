package classfile

// helloClass 构造一个带循环、行号、局部变量表与栈映射帧的测试类
func helloClass() *ClassRecord {
	start, loop, done, end := NewLabel(), NewLabel(), NewLabel(), NewLabel()
	argsType := ObjectType("[Ljava/lang/String;")
	main := &MethodRecord{
		Access:     AccPublic | AccStatic,
		Name:       "main",
		Descriptor: "([Ljava/lang/String;)V",
		Code: &Code{
			Instructions: NewInsnList(
				start,
				&LineNumber{Line: 3, Start: start},
				&FieldInsn{Op: GETSTATIC, Owner: "java/lang/System", Name: "out", Descriptor: "Ljava/io/PrintStream;"},
				&LdcInsn{Value: "Hello"},
				&MethodInsn{Op: INVOKEVIRTUAL, Owner: "java/io/PrintStream", Name: "println", Descriptor: "(Ljava/lang/String;)V"},
				&Insn{Op: ICONST_0},
				&VarInsn{Op: ISTORE, Var: 1},
				loop,
				&FrameInsn{Locals: []VerificationType{argsType, Integer}},
				&VarInsn{Op: ILOAD, Var: 1},
				&Insn{Op: ICONST_3},
				&JumpInsn{Op: IF_ICMPGE, Target: done},
				&IincInsn{Var: 1, Incr: 1},
				&JumpInsn{Op: GOTO, Target: loop},
				done,
				&FrameInsn{Locals: []VerificationType{argsType, Integer}},
				&Insn{Op: RETURN},
				end,
			),
			LocalVariables: []*LocalVariable{
				{Name: "args", Descriptor: "[Ljava/lang/String;", Start: start, End: end, Index: 0},
			},
		},
	}
	init := &MethodRecord{
		Access:     AccPublic,
		Name:       "<init>",
		Descriptor: "()V",
		Code: &Code{
			Instructions: NewInsnList(
				&VarInsn{Op: ALOAD, Var: 0},
				&MethodInsn{Op: INVOKESPECIAL, Owner: "java/lang/Object", Name: "<init>", Descriptor: "()V"},
				&Insn{Op: RETURN},
			),
		},
	}
	return &ClassRecord{
		MajorVersion: 52,
		Access:       AccPublic | AccSuper,
		Name:         "com/example/App",
		SuperName:    "java/lang/Object",
		SourceFile:   "App.java",
		Fields: []*FieldRecord{
			{Access: AccStatic | AccFinal, Name: "GREETING", Descriptor: "Ljava/lang/String;", Value: "Hi"},
		},
		Methods: []*MethodRecord{init, main},
	}
}

// methodClass 把一个静态方法 run()V 包装成类
func methodClass(major uint16, insns ...Instruction) *ClassRecord {
	return &ClassRecord{
		MajorVersion: major,
		Access:       AccPublic | AccSuper,
		Name:         "t/T",
		SuperName:    "java/lang/Object",
		Methods: []*MethodRecord{{
			Access:     AccPublic | AccStatic,
			Name:       "run",
			Descriptor: "()V",
			Code:       &Code{Instructions: NewInsnList(insns...)},
		}},
	}
}
