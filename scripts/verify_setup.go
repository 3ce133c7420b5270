package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/shirou/gopsutil/v3/mem"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  linkscout 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s, CPU核数: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())

	// 动态模式依赖本地浏览器
	if path, ok := launcher.LookPath(); ok {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到Chrome/Chromium - 动态模式首次运行时会自动下载浏览器")
		fmt.Println("   也可以手动安装 chromium 或设置 PATH")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Printf("✅ 内存: 总计 %.1f GB, 可用 %.1f GB\n",
			float64(vm.Total)/(1<<30), float64(vm.Available)/(1<<30))
		if vm.Available < 1<<30 {
			fmt.Println("⚠️  可用内存不足1GB,动态模式的标签页数会被限制")
		}
	} else {
		fmt.Printf("⚠️  无法读取内存信息: %v\n", err)
	}

	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredPaths := []string{
		"go.mod",
		"cmd/linkscout",
		"internal/core",
		"internal/crawlers",
		"internal/models",
		"internal/tools",
		"internal/utils",
	}
	for _, p := range requiredPaths {
		if _, err := os.Stat(p); err == nil {
			fmt.Printf("✅ %s\n", p)
		} else {
			fmt.Printf("❌ %s 不存在\n", p)
			allOK = false
		}
	}

	// 可选配置
	for _, p := range []string{"configs/config.yaml", "configs/headers.yaml"} {
		if _, err := os.Stat(p); err == nil {
			fmt.Printf("✅ %s\n", p)
		} else {
			fmt.Printf("ℹ️  %s 不存在,使用默认配置\n", p)
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build -o linkscout ./cmd/linkscout' 构建项目")
		fmt.Println("  2. 运行 './linkscout --help' 查看帮助")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}
