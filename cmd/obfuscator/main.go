package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"jvm-obfuscator/classfile"
	"jvm-obfuscator/internal/cmdlogger"
	"jvm-obfuscator/jar"
	"jvm-obfuscator/obfuscator"
)

const version = "1.0.0"

var (
	logoStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).Padding(0, 2)
)

func printLogo(w io.Writer) {
	logo := logoStyle.Render(strings.Join([]string{
		"     ██╗██╗   ██╗███╗   ███╗",
		"     ██║██║   ██║████╗ ████║",
		"     ██║██║   ██║██╔████╔██║",
		"██   ██║╚██╗ ██╔╝██║╚██╔╝██║",
		"╚█████╔╝ ╚████╔╝ ██║ ╚═╝ ██║",
		" ╚════╝   ╚═══╝  ╚═╝     ╚═╝",
	}, "\n"))
	info := lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render("━━━ Class Obfuscator ━━━"),
		mutedStyle.Render("JAR 字节码混淆与保护工具"),
		mutedStyle.Render("Version "+version),
	)
	fmt.Fprintln(w, boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, logo, "", info)))
	fmt.Fprintln(w)
}

func newCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "jvm-obfuscator",
		Usage:     "对 JAR 中的类进行重命名、字符串加密与控制流混淆",
		Version:   version,
		ArgsUsage: "[input.jar]",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:      "config",
				Usage:     "TOML 或 YAML 配置文件，命令行选项覆盖文件中的值",
				TakesFile: true,
			},
			&cli.StringFlag{
				Name:      "input",
				Aliases:   []string{"i"},
				Usage:     "输入 JAR",
				TakesFile: true,
			},
			&cli.StringFlag{
				Name:      "output",
				Aliases:   []string{"o"},
				Usage:     "输出 JAR (默认: <输入>-obf.jar)",
				TakesFile: true,
			},
			&cli.StringSliceFlag{
				Name:  "transforms",
				Usage: "启用的变换及顺序: rename, strings, flow, antidebug, license, noop",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "随机种子，0 表示随机生成",
			},
			&cli.IntFlag{
				Name:  "padding",
				Usage: "每个方法插入的死分支数",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "并行处理类的数量 (默认: CPU 数)",
			},
			&cli.StringFlag{
				Name:  "naming",
				Usage: "类名生成方案: sequential 或 natural",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "不重命名的类名模式，例如 com/example/api/**",
			},
			&cli.BoolFlag{
				Name:  "preserve-reflection",
				Usage: "保留 Class.forName 等反射调用引用的类名",
			},
			&cli.BoolFlag{
				Name:  "rename-synthetic",
				Usage: "同时重命名生成的解密类与校验类",
			},
			&cli.StringFlag{
				Name:      "mapping",
				Usage:     "写出类名映射文件",
				TakesFile: true,
			},
			&cli.StringFlag{
				Name:  "string-key",
				Usage: "base64 编码的 16 字节 AES 密钥 (默认随机生成)",
			},
			&cli.StringFlag{
				Name:  "dump",
				Usage: "只打印输入 JAR 中指定类的反汇编，不做混淆",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Usage: "日志级别: " + strings.Join(cmdlogger.Levels(), ", "),
				Value: "info",
				Action: func(_ context.Context, _ *cli.Command, s string) error {
					lvl, err := cmdlogger.ParseLevel(s)
					if err != nil {
						return err
					}
					cmdlogger.SetLevel(lvl)

					return nil
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if name := cmd.String("dump"); name != "" {
				cmdlogger.SendEverythingToStderr()
				return dumpClass(stdout, inputPath(cmd), name)
			}

			printLogo(stdout)

			config, err := buildConfig(cmd)
			if err != nil {
				return err
			}
			obf, err := obfuscator.New(config)
			if err != nil {
				return err
			}
			printConfiguration(stdout, config, obf.Seed())

			if err := obf.Run(ctx); err != nil {
				return err
			}

			printStatistics(stdout, obf.GetStatistics())
			cmdlogger.Infof("\n✅ 混淆完成: %s", config.Output)

			return nil
		},
	}
}

func inputPath(cmd *cli.Command) string {
	if cmd.IsSet("input") {
		return cmd.String("input")
	}
	return cmd.Args().First()
}

// buildConfig 依次合并默认值、配置文件与命令行选项
func buildConfig(cmd *cli.Command) (*obfuscator.Config, error) {
	config := obfuscator.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		loaded, err := obfuscator.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if in := inputPath(cmd); in != "" {
		config.Input = in
	}
	if cmd.IsSet("output") {
		config.Output = cmd.String("output")
	}
	if cmd.IsSet("transforms") {
		config.Transforms = splitList(cmd.StringSlice("transforms"))
	}
	if cmd.IsSet("seed") {
		config.Seed = cmd.Int64("seed")
	}
	if cmd.IsSet("padding") {
		config.Padding = cmd.Int("padding")
	}
	if cmd.IsSet("workers") {
		config.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("naming") {
		config.Naming = cmd.String("naming")
	}
	if cmd.IsSet("exclude") {
		config.ExcludePatterns = splitList(cmd.StringSlice("exclude"))
	}
	if cmd.IsSet("preserve-reflection") {
		config.PreserveReflection = cmd.Bool("preserve-reflection")
	}
	if cmd.IsSet("rename-synthetic") {
		config.RenameSynthetic = cmd.Bool("rename-synthetic")
	}
	if cmd.IsSet("mapping") {
		config.Mapping = cmd.String("mapping")
	}
	if cmd.IsSet("string-key") {
		config.StringKey = cmd.String("string-key")
	}

	if config.Input == "" {
		return nil, errors.New("请指定输入 JAR (--input 或位置参数)")
	}
	if config.Output == "" {
		config.Output = strings.TrimSuffix(config.Input, ".jar") + "-obf.jar"
	}
	if config.Output == config.Input {
		return nil, fmt.Errorf("输出文件不能与输入相同: %s", config.Input)
	}

	return config, nil
}

// splitList 同时接受重复的选项与逗号分隔的写法
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func dumpClass(w io.Writer, input, name string) error {
	if input == "" {
		return errors.New("请指定输入 JAR (--input 或位置参数)")
	}
	archive, err := jar.Open(input)
	if err != nil {
		return err
	}
	defer archive.Close()

	entryName := strings.ReplaceAll(name, ".", "/") + ".class"
	for _, e := range archive.Classes() {
		if e.Name != entryName {
			continue
		}
		data, err := e.ReadAll()
		if err != nil {
			return err
		}
		rec, err := classfile.Decode(data)
		if err != nil {
			return fmt.Errorf("解析 %s 失败: %w", e.Name, err)
		}
		fmt.Fprint(w, classfile.Disassemble(rec))

		return nil
	}

	return fmt.Errorf("%s 中没有类 %s", input, name)
}

func printConfiguration(w io.Writer, config *obfuscator.Config, seed int64) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("混淆配置")
	t.AppendRows([]table.Row{
		{"输入", config.Input},
		{"输出", config.Output},
		{"变换", strings.Join(config.Transforms, " → ")},
		{"种子", seed},
		{"死分支/方法", config.Padding},
		{"并行数", config.Workers},
		{"命名方案", config.Naming},
	})
	if len(config.ExcludePatterns) > 0 {
		t.AppendRow(table.Row{"排除模式", strings.Join(config.ExcludePatterns, ", ")})
	}
	if config.Mapping != "" {
		t.AppendRow(table.Row{"映射文件", config.Mapping})
	}
	t.Render()
}

func printStatistics(w io.Writer, stats *obfuscator.Statistics) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("混淆统计")
	t.AppendHeader(table.Row{"项目", "数量"})
	t.AppendRows([]table.Row{
		{"处理的类", stats.Classes},
		{"重命名的类", stats.RenamedClasses},
		{"加密的字符串", stats.EncryptedStrings},
		{"插入的死分支", stats.DeadBranches},
		{"反调试方法", stats.GuardedMethods},
		{"授权校验", stats.LicenseChecks},
		{"生成的类", stats.SyntheticClasses},
	})
	t.Render()
}

func run(args []string, stdout, stderr io.Writer) int {
	logHandler := cmdlogger.New(stdout, stderr)
	slog.SetDefault(slog.New(logHandler))

	app := newCommand(stdout, stderr)
	app.ExitErrHandler = func(_ context.Context, _ *cli.Command, _ error) {}

	if err := app.Run(context.Background(), args); err != nil {
		cmdlogger.Errorf("错误: %v", err)
		return 1
	}
	if logHandler.HasErrored() {
		return 1
	}

	return 0
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}
