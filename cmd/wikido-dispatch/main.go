package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/wikido/wikido-dispatch/internal/application"
	"github.com/wikido/wikido-dispatch/internal/config"
	"github.com/wikido/wikido-dispatch/internal/dispatch"
	"github.com/wikido/wikido-dispatch/internal/extdist"
	"github.com/wikido/wikido-dispatch/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("wikido-dispatch", "Wiki farm dispatcher - maps hostnames and database names to tenant settings")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").Envar("WIKIDO_CONFIG").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	webRoot := kingpinApp.Flag("web-root", "Directory holding one sub-directory per tenant").String()
	hostingDomain := kingpinApp.Flag("hosting-domain", "Domain whose sub-domains are tenants").String()
	settingsFile := kingpinApp.Flag("settings-file", "Name of the per-tenant settings file").String()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	serveCmd := kingpinApp.Command("serve", "Serve the tenant lookup API").Default()

	resolveCmd := kingpinApp.Command("resolve", "Resolve the current invocation to its tenant settings")
	resolveDB := resolveCmd.Flag("db", "Database name selected by a maintenance script (defaults to the database variable)").Envar(dispatch.DefaultDatabaseVar).String()
	resolveServer := resolveCmd.Flag("server-name", "Host name of the web request (defaults to the server name variable)").Envar(dispatch.DefaultServerNameVar).String()
	resolveOutput := resolveCmd.Flag("output", "Output format").Short('o').Default(outputPath).Enum(outputPath, outputJSON, outputYAML)

	fetchCmd := kingpinApp.Command("fetch-extension", "Download extensions through the ExtensionDistributor")
	fetchNames := fetchCmd.Arg("extension", "Name of the extension").Required().Strings()
	fetchVersion := fetchCmd.Flag("mw-version", "MediaWiki release to get extensions for").Default(extdist.DefaultMediaWikiVersion).String()
	fetchTargetDir := fetchCmd.Flag("target-dir", "Directory to save or extract bundles to").Default("./").String()
	fetchNoExtract := fetchCmd.Flag("no-extract", "Download the bundle but do not extract it").Bool()
	fetchVerbose := fetchCmd.Flag("verbose", "Log more details about what is happening").Bool()

	command := kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}

	if *port != "" {
		overrides.Port = port
	}

	if *webRoot != "" {
		overrides.WebRoot = webRoot
	}

	if *hostingDomain != "" {
		overrides.HostingDomain = hostingDomain
	}

	if *settingsFile != "" {
		overrides.SettingsFile = settingsFile
	}

	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}

	if command == fetchCmd.FullCommand() && *fetchVerbose {
		debug := "debug"
		overrides.LogLevel = &debug
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case serveCmd.FullCommand():
		serve(cfg, logger)

	case resolveCmd.FullCommand():
		env := flagEnvironment(dispatch.OSEnvironment, map[string]string{
			cfg.DatabaseVar:   *resolveDB,
			cfg.ServerNameVar: *resolveServer,
		})
		if _, err := resolve(os.Stdout, cfg, logger, env, *resolveOutput); err != nil {
			logger.Fatal("cannot determine tenant", zap.Error(err))
		}

	case fetchCmd.FullCommand():
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		client := extdist.New(extdist.WithLogger(logger))
		if err := fetchExtensions(ctx, client, *fetchNames, *fetchVersion, *fetchTargetDir, !*fetchNoExtract, logger); err != nil {
			logger.Fatal("failed to fetch extension", zap.Error(err))
		}
	}
}

func serve(cfg config.Config, logger *zap.Logger) {
	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)

	if err := app.Close(); err != nil {
		logger.Warn("failed to stop settings watcher", zap.Error(err))
	}
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
