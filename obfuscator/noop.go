package obfuscator

import (
	"jvm-obfuscator/classfile"
	"jvm-obfuscator/internal/cmdlogger"
)

// NoOp 不做任何改写，只记录调用
type NoOp struct{}

func (NoOp) Kind() Kind { return KindNoOp }

func (NoOp) Init(ctx *Context) error {
	cmdlogger.Debugf("noop: init")
	return nil
}

func (NoOp) Apply(rec *classfile.ClassRecord, env *ClassEnv) error {
	cmdlogger.Debugf("noop: apply %s", rec.Name)
	return nil
}

func (NoOp) Finish(ctx *Context) error {
	cmdlogger.Debugf("noop: finish")
	return nil
}
