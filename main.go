package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/tao-tracker/tao-tracker/internal/config"
	"github.com/tao-tracker/tao-tracker/internal/logging"
	"github.com/tao-tracker/tao-tracker/internal/server"
	"github.com/tao-tracker/tao-tracker/internal/server/routes"
	"github.com/tao-tracker/tao-tracker/internal/telemetry"
	"github.com/tao-tracker/tao-tracker/internal/tracker"
	"github.com/tao-tracker/tao-tracker/internal/version"
)

const (
	shutdownTimeout = 10 * time.Second
	fetchTimeout    = 2 * time.Minute
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	fetch       string
	netuid      int
	wallet      string
}

// oneShot 表示本次只抓取一次数据并打印，不启动 HTTP 服务。
func (o cliOptions) oneShot() bool {
	return o.fetch != "" || o.wallet != ""
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["network"] = cfg.Network
		fields["endpoints"] = cfg.RPCEndpoints()
		fields["ttls"] = cfg.TTLSummary()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化指标导出失败: %v\n", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.WithError(err).Warn("telemetry shutdown failed")
		}
	}()

	// 启动顺序：配置 → 上游客户端 → 缓存与 Service → Fiber server，
	// 所有请求共享同一组缓存槽位。
	httpClient := server.NewUpstreamClient(cfg)
	svc, closeSvc, err := tracker.Build(cfg, logger, httpClient)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化数据服务失败: %v\n", err)
		return 1
	}
	defer func() {
		if err := closeSvc(); err != nil {
			logger.WithError(err).Warn("close upstream failed")
		}
	}()

	if opts.oneShot() {
		return runFetch(ctx, svc, opts)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["network"] = cfg.Network
	fields["listen"] = cfg.ListenAddr()
	fields["ttls"] = cfg.TTLSummary()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	go svc.Run(ctx)

	if err := startHTTPServer(ctx, cfg, svc, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("tao-tracker", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		fetch      string
		netuid     int
		wallet     string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 TAO_TRACKER_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&fetch, "fetch", "", "抓取一次数据并以 JSON 输出：subnets|price|block")
	fs.IntVar(&netuid, "netuid", -1, "配合 -fetch subnets 只输出指定子网")
	fs.StringVar(&wallet, "wallet", "", "抓取一次指定 coldkey 的持仓并输出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	fetch = strings.ToLower(strings.TrimSpace(fetch))
	switch fetch {
	case "", "subnets", "price", "block":
	default:
		return cliOptions{}, fmt.Errorf("-fetch 仅支持 subnets|price|block，得到 %q", fetch)
	}
	if netuid >= 0 && fetch != "subnets" {
		return cliOptions{}, errors.New("-netuid 需要配合 -fetch subnets")
	}
	if netuid > 65535 {
		return cliOptions{}, fmt.Errorf("-netuid 超出范围: %d", netuid)
	}

	path := os.Getenv("TAO_TRACKER_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = config.DefaultPath
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		fetch:       fetch,
		netuid:      netuid,
		wallet:      strings.TrimSpace(wallet),
	}, nil
}

// runFetch 绕过缓存直接抓取一次，结果写到 stdOut。
func runFetch(ctx context.Context, svc *tracker.Service, opts cliOptions) int {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var (
		value any
		err   error
	)
	switch {
	case opts.wallet != "":
		value, _, err = svc.Portfolio(ctx, opts.wallet, true)
	case opts.fetch == "subnets" && opts.netuid >= 0:
		value, _, err = svc.Subnet(ctx, uint16(opts.netuid), true)
	case opts.fetch == "subnets":
		value, _, err = svc.Subnets(ctx, true)
	case opts.fetch == "price":
		value, _, err = svc.Price(ctx, true)
	case opts.fetch == "block":
		value, _, err = svc.Block(ctx, true)
	}
	if err != nil {
		fmt.Fprintf(stdErr, "抓取失败: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		fmt.Fprintf(stdErr, "输出失败: %v\n", err)
		return 1
	}
	return 0
}

func startHTTPServer(ctx context.Context, cfg *config.Config, svc *tracker.Service, logger *logrus.Logger) error {
	app, err := server.NewApp(server.AppOptions{Logger: logger})
	if err != nil {
		return err
	}
	routes.RegisterIndexRoute(app)
	routes.RegisterAPIRoutes(app, svc, logger)
	routes.RegisterDiagnosticsRoutes(app, svc, cfg.TTLSummary())

	go func() {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("收到退出信号，停止 Fiber 服务")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.WithError(err).Warn("fiber shutdown failed")
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   cfg.ListenAddr(),
	}).Info("Fiber 服务启动")

	return app.Listen(cfg.ListenAddr(), fiber.ListenConfig{DisableStartupMessage: true})
}
