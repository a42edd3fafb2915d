package main

import (
	"strings"
	"testing"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("TAO_TRACKER_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsDefaultPath(t *testing.T) {
	t.Setenv("TAO_TRACKER_CONFIG", "")

	opts, err := parseCLIFlags(nil)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "config.toml" || opts.oneShot() {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}

func TestParseCLIFlagsFetch(t *testing.T) {
	opts, err := parseCLIFlags([]string{"-fetch", "Subnets", "-netuid", "18"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.fetch != "subnets" || opts.netuid != 18 || !opts.oneShot() {
		t.Fatalf("unexpected fetch options: %+v", opts)
	}

	opts, err = parseCLIFlags([]string{"-wallet", " 5Cold "})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.wallet != "5Cold" || !opts.oneShot() {
		t.Fatalf("unexpected wallet options: %+v", opts)
	}

	cases := [][]string{
		{"-fetch", "neurons"},
		{"-netuid", "3"},
		{"-fetch", "price", "-netuid", "3"},
		{"-fetch", "subnets", "-netuid", "70000"},
		{"-unknown"},
	}
	for _, args := range cases {
		if _, err := parseCLIFlags(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	_, errOut := captureOutput(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d: %s", code, errOut.String())
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	_, errOut := captureOutput(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(errOut.String(), "加载配置失败") {
		t.Fatalf("unexpected stderr: %s", errOut.String())
	}
}

func TestRunCheckConfigRejectsInvalidValues(t *testing.T) {
	captureOutput(t)
	code := run(cliOptions{configPath: configFixture(t, "invalid.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("invalid.toml 应校验失败")
	}
}

func TestRunVersionOutput(t *testing.T) {
	out, _ := captureOutput(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(out.String(), "tao-tracker") {
		t.Fatalf("version 输出应包含 tao-tracker 标识")
	}
}
