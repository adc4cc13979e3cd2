// 命令行工具：离线维护 ipcat 数据集（查询、校验、统计、导出、更新云厂商网段、写入数据库快照）
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	if err := newRootCmd().Execute(); err != nil {
		osExit(1)
	}
}

// 便于单元测试替换
var osExit = os.Exit
