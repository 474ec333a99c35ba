package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/l-schulte/waypack-machine/internal/cache"
	"github.com/l-schulte/waypack-machine/internal/config"
	_ "github.com/l-schulte/waypack-machine/internal/hubmodule/npm"
	_ "github.com/l-schulte/waypack-machine/internal/hubmodule/pypi"
	"github.com/l-schulte/waypack-machine/internal/localfiles"
	"github.com/l-schulte/waypack-machine/internal/logging"
	"github.com/l-schulte/waypack-machine/internal/metrics"
	"github.com/l-schulte/waypack-machine/internal/overrides"
	"github.com/l-schulte/waypack-machine/internal/proxy"
	"github.com/l-schulte/waypack-machine/internal/proxy/hooks"
	"github.com/l-schulte/waypack-machine/internal/server"
	"github.com/l-schulte/waypack-machine/internal/server/routes"
	"github.com/l-schulte/waypack-machine/internal/version"
)

const (
	configEnv       = "WAYPACK_CONFIG"
	summaryLimit    = 10
	shutdownTimeout = 10 * time.Second
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath string
	// explicitConfig 为 true 时配置文件必须存在。
	explicitConfig bool
	checkOnly      bool
	showVersion    bool
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

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	table, err := loadOverrides(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "加载本地覆盖表失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := startupFields("check_config", opts.configPath, cfg, table)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 覆盖表 → 路由表 → 缓存 → 指标 → Fiber server
	svc, err := buildService(cfg, table, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := startupFields("startup", opts.configPath, cfg, table)
	fields["listen_port"] = cfg.Global.ListenPort
	logger.WithFields(fields).Info("配置加载完成")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := svc.serve(ctx, cfg.Global.ListenPort); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("waypack-machine", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 WAYPACK_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置与覆盖表后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv(configEnv)
	if configFlag != "" {
		path = configFlag
	}
	explicit := path != ""
	if path == "" {
		path = config.DefaultPath
	}

	return cliOptions{
		configPath:     path,
		explicitConfig: explicit,
		checkOnly:      checkOnly,
		showVersion:    showVer,
	}, nil
}

func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}

func loadConfig(opts cliOptions) (*config.Config, error) {
	if opts.explicitConfig {
		return config.Load(opts.configPath)
	}
	return config.LoadOrDefault(opts.configPath)
}

// loadOverrides 读取覆盖表；文件缺失不是错误，此时返回 nil。
func loadOverrides(cfg *config.Config, logger *logrus.Logger) (*overrides.Table, error) {
	table, err := overrides.Load(cfg.Global.OverridesPath)
	if err != nil {
		if errors.Is(err, overrides.ErrNotFound) {
			logger.WithFields(logrus.Fields{
				"action": "overrides",
				"path":   cfg.Global.OverridesPath,
			}).Warn("未找到本地覆盖表，全部请求走上游")
			return nil, nil
		}
		return nil, err
	}
	return table, nil
}

func startupFields(action, configPath string, cfg *config.Config, table *overrides.Table) logrus.Fields {
	fields := logging.BaseFields(action, configPath)
	fields["registries"] = config.RegistrySummary(cfg.Registries)
	fields["local_files_path"] = cfg.Global.LocalFilesPath
	fields["storage_path"] = cfg.Global.StoragePath
	fields["version"] = version.Full()
	if table != nil {
		files, versions := table.Summary(summaryLimit)
		fields["override_files"] = len(table.Files)
		fields["override_versions"] = len(table.Versions)
		fields["override_files_sample"] = files
		fields["override_versions_sample"] = versions
	}
	return fields
}

// service 持有一次启动装配出的全部组件。
type service struct {
	app     *fiber.App
	flusher *metrics.Flusher
	logger  *logrus.Logger
}

func buildService(cfg *config.Config, table *overrides.Table, logger *logrus.Logger) (*service, error) {
	routeTable, err := server.NewRouteTable(cfg)
	if err != nil {
		return nil, fmt.Errorf("构建路由表失败: %w", err)
	}

	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}
	localDir, err := localfiles.NewDir(cfg.Global.LocalFilesPath)
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder()
	flusher := metrics.NewFlusher(recorder, cfg.Global.MetricsFile, cfg.Global.MetricsFlushInterval.DurationValue(), logger)

	httpClient := server.NewUpstreamClient(cfg)
	handler := proxy.NewHandler(proxy.HandlerOptions{
		Client:   proxy.NewRegistryClient(httpClient, version.UserAgent()),
		Resolver: overrides.NewResolver(table, localDir),
		Local:    localDir,
		Recorder: recorder,
		Logger:   logger,
	})
	// 只有注册了钩子的模块才能过滤元数据
	forwarder := proxy.NewForwarder(logger)
	for _, key := range hooks.Keys() {
		forwarder.Bind(key, handler)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   routeTable,
		Proxy:      forwarder,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}

	pull := cache.NewPullThrough(httpClient, store, cfg.Global.StoragePath, version.UserAgent())
	routes.RegisterLocalRoutes(app, localDir, table)
	routes.RegisterCacheRoutes(app, proxy.NewCacheHandler(pull, recorder, logger))
	routes.RegisterModuleRoutes(app, routeTable)
	routes.RegisterMetricsRoutes(app, recorder)

	return &service{app: app, flusher: flusher, logger: logger}, nil
}

// serve 监听端口直到 ctx 结束，随后关闭 Fiber 并写出最后一次指标快照。
func (s *service) serve(ctx context.Context, port int) error {
	s.flusher.Start()
	defer s.flusher.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		errCh <- s.app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.WithField("action", "shutdown").Info("收到退出信号，正在关闭服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
