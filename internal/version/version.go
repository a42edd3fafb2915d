package version

import "fmt"

// Version/Commit 可在构建时通过 -ldflags 注入，默认使用开发占位符。
var (
	Version = "1.0.0"
	Commit  = "dev"
)

// Full 返回便于 CLI 打印的完整版本信息。
func Full() string {
	return fmt.Sprintf("tao-tracker %s (%s)", Version, Commit)
}

// UserAgent 是访问上游 HTTP 接口时使用的标识。
func UserAgent() string {
	return fmt.Sprintf("tao-tracker/%s", Version)
}
