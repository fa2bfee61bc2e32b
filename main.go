package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/imagehub/internal/config"
	"github.com/any-hub/imagehub/internal/fetch"
	"github.com/any-hub/imagehub/internal/logging"
	"github.com/any-hub/imagehub/internal/proxy"
	"github.com/any-hub/imagehub/internal/server"
	"github.com/any-hub/imagehub/internal/server/routes"
	"github.com/any-hub/imagehub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	refreshOnly bool
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

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["caches"] = config.CacheSummaries(cfg.Caches)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// CLI 启动遵循“配置 → Fetcher → CacheRegistry → Fiber server”顺序，
	// 所有缓存实例共享同一个上游 http.Client。
	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建缓存注册表失败: %v\n", err)
		return 1
	}

	if opts.refreshOnly {
		fields := logging.BaseFields("refresh", opts.configPath)
		fields["caches"] = config.CacheSummaries(cfg.Caches)
		if err := registry.RefreshAll(context.Background()); err != nil {
			logger.WithFields(fields).WithError(err).Error("缓存刷新失败")
			fmt.Fprintf(stdErr, "缓存刷新失败: %v\n", err)
			return 1
		}
		logger.WithFields(fields).Info("缓存已刷新")
		return 0
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["caches"] = config.CacheSummaries(cfg.Caches)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_path"] = cfg.Global.StoragePath
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, registry, proxy.NewHandler(logger), logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("imagehub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag  string
		checkOnly   bool
		refreshOnly bool
		showVer     bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 IMAGEHUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&refreshOnly, "refresh", false, "清空所有缓存实例后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if checkOnly && refreshOnly {
		return cliOptions{}, fmt.Errorf("解析参数失败: -check-config 与 -refresh 不能同时使用")
	}

	path := os.Getenv("IMAGEHUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		refreshOnly: refreshOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, registry *server.CacheRegistry, images server.ImageHandler, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := buildApp(registry, images, logger)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}

// buildRegistry 以共享的 HTTPFetcher 构建全部缓存实例。
func buildRegistry(cfg *config.Config, logger *logrus.Logger) (*server.CacheRegistry, error) {
	fetcher := fetch.NewHTTPFetcher(fetch.NewUpstreamClient(cfg), fetch.OptionsFromConfig(cfg, logger))
	return server.NewCacheRegistry(cfg, server.RegistryOptions{
		Fetcher: fetcher,
		Logger:  logger,
	})
}

// buildApp 组装图片路由与 /-/caches 诊断路由。
func buildApp(registry *server.CacheRegistry, images server.ImageHandler, logger *logrus.Logger) (*fiber.App, error) {
	app, err := server.NewApp(server.AppOptions{
		Logger:   logger,
		Registry: registry,
		Images:   images,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterCacheRoutes(app, registry, logger)
	return app, nil
}
