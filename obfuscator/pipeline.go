package obfuscator

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"

	"golang.org/x/sync/errgroup"

	"jvm-obfuscator/classfile"
	"jvm-obfuscator/internal/cmdlogger"
	"jvm-obfuscator/jar"
)

// Run 读取 Config.Input，执行整个混淆流程并写出 Config.Output。
// 出错时输出文件可能不完整，不应再使用。
func (o *Obfuscator) Run(ctx context.Context) error {
	if o.Config.Input == "" || o.Config.Output == "" {
		return fmt.Errorf("必须同时指定输入与输出路径")
	}

	in, err := jar.Open(o.Config.Input)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(o.Config.Output)
	if err != nil {
		return fmt.Errorf("创建输出文件失败: %w", err)
	}
	if err := o.Process(ctx, in, out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("关闭输出文件失败: %w", err)
	}

	return nil
}

// Process 对已打开的归档执行混淆，结果写入 w
func (o *Obfuscator) Process(ctx context.Context, in *jar.Archive, w io.Writer) error {
	cmdlogger.Infof("阶段 1/7: 解码类文件...")
	records, err := decodeClasses(in)
	if err != nil {
		return err
	}

	run := &Context{
		Config:        o.Config,
		Seed:          o.seed,
		Fingerprinter: o.Fingerprinter,
		PasswordGate:  o.PasswordGate,
		stats:         &o.stats,
		transforms:    o.transforms,
		records:       records,
	}
	if in.Manifest != nil {
		run.mainClass = in.Manifest.MainClass()
	}

	cmdlogger.Infof("阶段 2/7: 初始化 %d 个变换 (种子 %d)...", len(o.transforms), o.seed)
	for _, t := range o.transforms {
		if err := t.Init(run); err != nil {
			return fmt.Errorf("初始化变换 %s 失败: %w", t.Kind(), err)
		}
	}

	cmdlogger.Infof("阶段 3/7: 调整变换顺序...")
	ordered := reorder(o.transforms)

	all := append(append([]*classfile.ClassRecord(nil), records...), run.synthetic...)
	o.stats.classes.Store(int64(len(all)))

	cmdlogger.Infof("阶段 4/7: 处理 %d 个类...", len(all))
	encoded, err := o.applyAll(ctx, ordered, all)
	if err != nil {
		return err
	}

	cmdlogger.Infof("阶段 5/7: 完成变换...")
	for _, t := range o.transforms {
		if err := t.Finish(run); err != nil {
			return fmt.Errorf("变换 %s 收尾失败: %w", t.Kind(), err)
		}
	}

	cmdlogger.Infof("阶段 6/7: 更新清单...")
	if in.Manifest != nil && run.mainClass != "" {
		if r := run.Renamer(); r != nil {
			if mapped, ok := r.Lookup(run.mainClass); ok {
				in.Manifest.SetMainClass(mapped)
				cmdlogger.Infof("入口类 %s -> %s", run.mainClass, mapped)
			}
		}
	}

	cmdlogger.Infof("阶段 7/7: 写出归档...")
	return writeArchive(in, all, encoded, w)
}

// decodeClasses 按归档顺序解码所有类条目
func decodeClasses(in *jar.Archive) ([]*classfile.ClassRecord, error) {
	var records []*classfile.ClassRecord
	for _, e := range in.Classes() {
		data, err := e.ReadAll()
		if err != nil {
			return nil, err
		}
		rec, err := classfile.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("解码 %s 失败: %w", e.Name, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// reorder 保证字符串加密排在第一个重命名之前，其余变换保持相对顺序
func reorder(transforms []Transform) []Transform {
	ordered := append([]Transform(nil), transforms...)
	renamer, protector := -1, -1
	for i, t := range ordered {
		switch t.Kind() {
		case KindRenamer:
			if renamer < 0 {
				renamer = i
			}
		case KindStringProtector:
			if protector < 0 {
				protector = i
			}
		}
	}
	if renamer < 0 || protector < 0 || protector < renamer {
		return ordered
	}

	p := ordered[protector]
	copy(ordered[renamer+1:protector+1], ordered[renamer:protector])
	ordered[renamer] = p
	return ordered
}

// applyAll 并行地对每个类依次执行所有变换并编码，结果与 records 一一对应
func (o *Obfuscator) applyAll(ctx context.Context, transforms []Transform, records []*classfile.ClassRecord) ([][]byte, error) {
	encoded := make([][]byte, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Config.Workers)
	for i, rec := range records {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			env := &ClassEnv{
				Index: i,
				Rand:  rand.New(rand.NewSource(o.seed ^ int64(i))),
			}
			name := rec.Name
			for _, t := range transforms {
				if err := t.Apply(rec, env); err != nil {
					return fmt.Errorf("变换 %s 处理类 %s 失败: %w", t.Kind(), name, err)
				}
			}
			data, err := classfile.Encode(rec)
			if err != nil {
				return fmt.Errorf("编码类 %s 失败: %w", name, err)
			}
			encoded[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return encoded, nil
}

// writeArchive 依次写出清单、所有类与其余原始条目。同名类只保留第一个。
func writeArchive(in *jar.Archive, records []*classfile.ClassRecord, encoded [][]byte, w io.Writer) error {
	out := jar.NewWriter(w)
	if in.Manifest != nil {
		if err := out.WriteManifest(in.Manifest); err != nil {
			return err
		}
	}

	for i, rec := range records {
		ok, err := out.WriteClass(rec.Name, encoded[i])
		if err != nil {
			return err
		}
		if !ok {
			cmdlogger.Warnf("重复的类 %s 已忽略", rec.Name)
		}
	}

	for _, e := range in.Entries {
		if e.IsClass() || e.Name == jar.ManifestPath {
			continue
		}
		if err := out.CopyEntry(e); err != nil {
			return err
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("写出归档失败: %w", err)
	}
	return nil
}
