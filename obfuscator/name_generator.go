package obfuscator

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/emirpasic/gods/sets/hashset"
)

// 命名方案
const (
	NamingSequential = "sequential"
	NamingNatural    = "natural"
)

// nameGenerator 依次产生不与已占用名称重复的新内部名。
// 同一原始包的类放进同一个新包，包私有访问与嵌套成员关系才能保持。
type nameGenerator interface {
	// packageName 为一个原始包分配新包，空串表示默认包
	packageName() string
	// className 在 pkg 下生成一个未占用的内部名
	className(pkg string) string
}

// sequentialNames 生成 前缀+计数器 形式的名称，例如 C0、C1
type sequentialNames struct {
	prefix  string
	counter int
	taken   *hashset.Set
}

func (g *sequentialNames) packageName() string {
	return ""
}

func (g *sequentialNames) className(pkg string) string {
	for {
		name := qualify(pkg, fmt.Sprintf("%s%d", g.prefix, g.counter))
		g.counter++
		if !g.taken.Contains(name) {
			g.taken.Add(name)
			return name
		}
	}
}

func qualify(pkg, simple string) string {
	if pkg == "" {
		return simple
	}
	return pkg + "/" + simple
}

// packageOf 返回内部名的包部分，默认包为空串
func packageOf(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

// NaturalNameGenerator 生成看起来自然的包名和类名，例如 svc/impl 包下的 FetchClient。
// 结果只取决于种子，同一种子的两次运行得到相同的序列。
type NaturalNameGenerator struct {
	rnd      *rand.Rand
	taken    *hashset.Set
	packages *hashset.Set

	// 包名片段
	pkgPrefixes []string
	pkgSuffixes []string

	// 类名用的动词与名词
	verbs []string
	nouns []string
}

// NewNaturalNameGenerator 创建自然名称生成器，taken 中的名称不会被生成
func NewNaturalNameGenerator(seed int64, taken *hashset.Set) *NaturalNameGenerator {
	if taken == nil {
		taken = hashset.New()
	}
	packages := hashset.New()
	for _, v := range taken.Values() {
		packages.Add(packageOf(v.(string)))
	}
	return &NaturalNameGenerator{
		rnd:      rand.New(rand.NewSource(seed)),
		taken:    taken,
		packages: packages,

		// 常见的包名前缀
		pkgPrefixes: []string{
			"app", "lib", "pkg", "sys", "web", "api", "net", "db",
			"svc", "core", "util", "data", "log", "auth", "cache",
		},

		// 常见的包名后缀
		pkgSuffixes: []string{
			"core", "util", "base", "main", "impl", "svc", "mgr",
			"handler", "service", "client", "server", "config",
		},

		verbs: []string{
			"handle", "process", "execute", "run", "start", "stop",
			"init", "setup", "config", "load", "save", "update",
			"create", "delete", "remove", "add", "set", "get",
			"fetch", "send", "receive", "parse", "format", "convert",
		},

		nouns: []string{
			"Handler", "Service", "Client", "Server", "Manager", "Helper",
			"Factory", "Builder", "Provider", "Registry", "Worker", "Adapter",
		},
	}
}

// GeneratePackageName 生成一个既不是已有包、也没有分配过的包名
func (g *NaturalNameGenerator) GeneratePackageName() string {
	for attempt := 0; attempt < 1000; attempt++ {
		pkg := g.pick(g.pkgPrefixes) + "/" + g.pick(g.pkgSuffixes)
		if !g.packages.Contains(pkg) {
			g.packages.Add(pkg)
			return pkg
		}
	}

	base := g.pick(g.pkgPrefixes) + "/" + g.pick(g.pkgSuffixes)
	for i := 2; ; i++ {
		pkg := fmt.Sprintf("%s%d", base, i)
		if !g.packages.Contains(pkg) {
			g.packages.Add(pkg)
			return pkg
		}
	}
}

// GenerateClassName 在 pkg 下生成一个未被占用的内部名
func (g *NaturalNameGenerator) GenerateClassName(pkg string) string {
	for attempt := 0; attempt < 1000; attempt++ {
		name := qualify(pkg, capitalize(g.pick(g.verbs))+g.pick(g.nouns))
		if !g.taken.Contains(name) {
			g.taken.Add(name)
			return name
		}
	}

	// 组合用尽时追加编号
	base := qualify(pkg, capitalize(g.pick(g.verbs))+g.pick(g.nouns))
	for i := 2; ; i++ {
		name := fmt.Sprintf("%s%d", base, i)
		if !g.taken.Contains(name) {
			g.taken.Add(name)
			return name
		}
	}
}

func (g *NaturalNameGenerator) packageName() string {
	return g.GeneratePackageName()
}

func (g *NaturalNameGenerator) className(pkg string) string {
	return g.GenerateClassName(pkg)
}

func (g *NaturalNameGenerator) pick(words []string) string {
	return words[g.rnd.Intn(len(words))]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// newNameGenerator 按命名方案创建生成器
func newNameGenerator(naming, prefix string, seed int64, taken *hashset.Set) (nameGenerator, error) {
	switch naming {
	case NamingSequential, "":
		return &sequentialNames{prefix: prefix, taken: taken}, nil
	case NamingNatural:
		return NewNaturalNameGenerator(seed, taken), nil
	}
	return nil, fmt.Errorf("未知的命名方案: %q", naming)
}
