package obfuscator

import (
	"fmt"

	"github.com/emirpasic/gods/sets/hashset"

	"jvm-obfuscator/classfile"
	"jvm-obfuscator/internal/cmdlogger"
)

// Renamer 把归档中的每个类改为简短的新名称，并改写所有引用
type Renamer struct {
	naming             string
	prefix             string
	exclude            []string
	preserveReflection bool
	renameSynthetic    bool
	mappingPath        string

	table *SymbolTable
	stats *counters
}

// NewRenamer 按配置创建重命名变换
func NewRenamer(config *Config) (*Renamer, error) {
	switch config.Naming {
	case "", NamingSequential, NamingNatural:
	default:
		return nil, fmt.Errorf("未知的命名方案: %q", config.Naming)
	}
	return &Renamer{
		naming:             config.Naming,
		prefix:             config.RenamePrefix,
		exclude:            config.ExcludePatterns,
		preserveReflection: config.PreserveReflection,
		renameSynthetic:    config.RenameSynthetic,
		mappingPath:        config.Mapping,
	}, nil
}

func (r *Renamer) Kind() Kind { return KindRenamer }

// Init 按归档顺序为每个类分配新名称，随后冻结符号表
func (r *Renamer) Init(ctx *Context) error {
	r.stats = ctx.stats
	r.table = newSymbolTable()

	names := ctx.ClassNames()
	var synthetic []string
	if s := ctx.StringProtector(); s != nil {
		synthetic = append(synthetic, s.DecoderClass())
	}
	if g := ctx.LicenseGuard(); g != nil {
		synthetic = append(synthetic, g.GuardClass())
	}

	// 新名称不能与任何原始名称重复，否则会被再次映射
	taken := hashset.New()
	for _, name := range names {
		taken.Add(name)
	}
	for _, name := range synthetic {
		taken.Add(name)
	}

	gen, err := newNameGenerator(r.naming, r.prefix, ctx.Seed, taken)
	if err != nil {
		return err
	}

	protected := hashset.New()
	if r.preserveReflection {
		protected = collectReflectionTargets(ctx.Records())
	}

	candidates := names
	if r.renameSynthetic {
		candidates = append(append([]string(nil), names...), synthetic...)
	}

	// 保留原名的类把所在包钉住，同包的其它类只换简单名
	seen := hashset.New()
	pinned := hashset.New()
	var renamed []string
	skipped := 0
	for _, name := range candidates {
		if seen.Contains(name) {
			continue
		}
		seen.Add(name)
		if excluded, reason := shouldExcludeClass(name, r.exclude); excluded {
			cmdlogger.Debugf("保留类名 %s (%s)", name, reason)
			pinned.Add(packageOf(name))
			skipped++
			continue
		}
		if protected.Contains(name) {
			cmdlogger.Debugf("保留类名 %s (反射加载)", name)
			pinned.Add(packageOf(name))
			skipped++
			continue
		}
		renamed = append(renamed, name)
	}
	if !r.renameSynthetic {
		for _, name := range synthetic {
			pinned.Add(packageOf(name))
		}
	}

	packages := map[string]string{}
	for _, name := range renamed {
		pkg := packageOf(name)
		target, ok := packages[pkg]
		if !ok {
			target = pkg
			if !pinned.Contains(pkg) {
				target = gen.packageName()
			}
			packages[pkg] = target
			cmdlogger.Debugf("包 %q -> %q", pkg, target)
		}
		r.table.put(name, gen.className(target))
	}
	r.table.freeze()

	cmdlogger.Infof("重命名: 映射 %d 个类，保留 %d 个", r.table.Len(), skipped)
	return nil
}

// Table 返回冻结后的符号表
func (r *Renamer) Table() *SymbolTable {
	return r.table
}

// Lookup 查询类的新名称
func (r *Renamer) Lookup(name string) (string, bool) {
	if r.table == nil {
		return "", false
	}
	return r.table.Lookup(name)
}

// Map 是供描述符改写使用的映射函数，不在表中的名称原样返回
func (r *Renamer) Map(name string) string {
	if mapped, ok := r.Lookup(name); ok {
		return mapped
	}
	return name
}

// Apply 改写类自身的名称以及它对其它类的所有引用
func (r *Renamer) Apply(rec *classfile.ClassRecord, env *ClassEnv) error {
	original := rec.Name
	if err := remapClass(rec, r.Map); err != nil {
		return fmt.Errorf("重命名类 %s 失败: %w", original, err)
	}
	if rec.Name != original && r.stats != nil {
		r.stats.renamedClasses.Add(1)
	}
	return nil
}

// Finish 写出映射报告
func (r *Renamer) Finish(ctx *Context) error {
	if r.mappingPath == "" {
		return nil
	}
	if err := writeMappingFile(r.mappingPath, r.table); err != nil {
		return err
	}
	cmdlogger.Infof("映射文件已写入: %s", r.mappingPath)
	return nil
}
