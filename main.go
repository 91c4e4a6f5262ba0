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

	"github.com/photo365/photo365/internal/cache"
	"github.com/photo365/photo365/internal/config"
	"github.com/photo365/photo365/internal/gallery"
	"github.com/photo365/photo365/internal/imaging"
	"github.com/photo365/photo365/internal/logging"
	"github.com/photo365/photo365/internal/metrics"
	"github.com/photo365/photo365/internal/server"
	"github.com/photo365/photo365/internal/server/routes"
	"github.com/photo365/photo365/internal/thumbnail"
	"github.com/photo365/photo365/internal/version"
)

const (
	configEnv       = "PHOTO365_CONFIG"
	shutdownTimeout = 30 * time.Second
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
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

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	logPath := opts.configPath
	if logPath == "" {
		logPath = config.DefaultPath
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", logPath)
		fields["photo_dir"] = cfg.Global.PhotoDir
		fields["warmup_sizes"] = cfg.Global.WarmupSizes
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	svc, err := buildService(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化相册服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", logPath)
	fields["photo_dir"] = cfg.Global.PhotoDir
	fields["listen_port"] = cfg.Global.ListenPort
	fields["metrics"] = metrics.IsEnabled()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := startHTTPServer(ctx, cfg, svc, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// printVersion 输出注入的版本与提交信息。
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}

// buildService 按“指标 → 派生文件存储 → 缩略图 → 相册服务”顺序组装依赖，
// 保证所有请求共享同一组缓存与 CPU 池。
func buildService(cfg *config.Config, logger *logrus.Logger) (*gallery.Service, error) {
	g := cfg.Global
	if g.MetricsEnabled {
		metrics.InitRegistry()
	}

	derivs, err := cache.NewStore(g.PhotoDir)
	if err != nil {
		return nil, err
	}

	pool := imaging.NewPool(g.ThumbnailWorkers)
	thumbs := thumbnail.New(g.PhotoDir, derivs, thumbnail.Options{
		Pool:          pool,
		WarmupWorkers: g.WarmupWorkers,
		Logger:        logger,
		Metrics:       metrics.NewThumbnailMetrics(),
	})

	var warmup []int
	if g.WarmupEnabled() {
		warmup = g.WarmupSizes
	}
	return gallery.NewService(gallery.Options{
		Root:                g.PhotoDir,
		Thumbs:              thumbs,
		MaxThumbnailSize:    g.MaxThumbnailSize,
		WarmupSizes:         warmup,
		ListingCacheEntries: g.ListingCacheEntries,
		FailureRetryAfter:   g.FailureRetryAfter.DurationValue(),
		FolderCacheMetrics:  metrics.NewCacheMetrics("folders"),
		ImageCacheMetrics:   metrics.NewCacheMetrics("images"),
		Logger:              logger,
	})
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("photo365", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PHOTO365_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	// 两者都为空时保持空路径，由 config.Load 按可选的 ./config.toml 处理。
	path := os.Getenv(configEnv)
	if configFlag != "" {
		path = configFlag
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// startHTTPServer 阻塞监听，ctx 取消后依次关闭 HTTP 服务与后台预热。
func startHTTPServer(ctx context.Context, cfg *config.Config, svc *gallery.Service, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:         logger,
		IdentityHeader: cfg.Global.IdentityHeader,
	})
	if err != nil {
		return err
	}
	routes.RegisterPhotoRoutes(app, svc, logger)
	routes.RegisterDiagnosticsRoutes(app, svc)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		_ = closeService(svc, logger)
		return err
	case <-ctx.Done():
	}

	logger.WithField("action", "shutdown").Info("收到退出信号，开始关闭")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.WithField("action", "shutdown").Warnf("关闭 HTTP 服务失败: %v", err)
	}
	if err := <-errCh; err != nil {
		logger.WithField("action", "shutdown").Debugf("listener returned: %v", err)
	}
	return closeService(svc, logger)
}

// closeService 等待后台预热结束，超时后取消剩余任务。
func closeService(svc *gallery.Service, logger *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := svc.Close(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.WithField("action", "shutdown").Warn("预热任务未在超时前完成，已取消")
		return nil
	}
	return err
}
