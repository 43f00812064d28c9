package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mstanic/business-tracker/internal"
	"github.com/mstanic/business-tracker/internal/config"
	"github.com/mstanic/business-tracker/internal/logging"
	"github.com/mstanic/business-tracker/pkg"

	log "github.com/sirupsen/logrus"
)

// fallbackAdminSecret is only used when ADMIN_SECRET_HASH is not set,
// i.e. local development setups.
const fallbackAdminSecret = "SRV-admin"

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        sentryDSN,
		SentryServerName: "tracker-service",
	})

	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)

	versionInfo, err := tryGetLastCommitHash()
	if err != nil {
		log.Tracef("failed to get last commit hash / version info: %s", err)
	} else {
		log.Tracef("running version: %s", versionInfo)
	}

	adminSecretHash := os.Getenv("ADMIN_SECRET_HASH")
	if adminSecretHash == "" {
		log.Errorf("admin secret hash not set, use ADMIN_SECRET_HASH env var to set it")
		adminSecretHash, err = pkg.HashPassword(fallbackAdminSecret)
		if err != nil {
			log.Fatalf("hash fallback admin secret: %s", err)
		}
	}

	redisPassword := os.Getenv("TRACKER_REDIS_PASS")
	if redisPassword == "" {
		log.Errorf("redis password not set. use TRACKER_REDIS_PASS")
	}

	tracingEnabled := os.Getenv("TRACING_ENABLED") == "true"
	if !tracingEnabled {
		log.Debugln("tracing disabled")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	server, err := internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:          cfg,
			AdminSecretHash: adminSecretHash,
			RedisPassword:   redisPassword,
			VersionInfo:     versionInfo,
			TracingEnabled:  tracingEnabled,
		},
	)
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	server.Serve(cfg.Host, cfg.Port)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	// go to sleep 🥱
	server.GracefulShutdown()
}

// tryGetLastCommitHash will try to get the last commit hash
// assumes that the built main executable is in project root
func tryGetLastCommitHash() (string, error) {
	cmd := exec.Command("/usr/bin/git", "rev-parse", "HEAD")
	stdout, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}
