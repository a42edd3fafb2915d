package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

// captureOutput 把 CLI 的 stdOut/stdErr 换成内存缓冲，测试结束后还原。
func captureOutput(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = out, errOut
	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return out, errOut
}

// configFixture 指向 internal/config/testdata；main 包的测试工作目录即仓库根目录。
// 同时清掉常见的部署环境变量，避免宿主机配置覆盖 fixture。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	for _, key := range []string{"HOST", "PORT", "LOG_LEVEL", "BITTENSOR_NETWORK", "TAO_TRACKER_CONFIG", "TAO_TRACKER_ENDPOINTS", "TAO_TRACKER_LOG_FILE"} {
		t.Setenv(key, "")
	}
	return filepath.Join("internal", "config", "testdata", name)
}
