// Package app assembles the server: database, cipher, provider adapters,
// registry, sync worker and HTTP routes.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"modelcore/internal/chat"
	"modelcore/internal/config"
	"modelcore/internal/credentials"
	"modelcore/internal/db"
	apihttp "modelcore/internal/http/api"
	"modelcore/internal/modelconfig"
	"modelcore/internal/provider"
	"modelcore/internal/registry"
	"modelcore/internal/secrets"
	"modelcore/internal/syncer"
	"modelcore/internal/thread"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the HTTP server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	serverCfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	encryptionKey, err := config.LoadEncryptionKey(configPath, serverCfg.Environment)
	if err != nil {
		return err
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	cipher, err := secrets.NewCipher(encryptionKey)
	if err != nil {
		return err
	}

	adapters := provider.NewSet(&http.Client{Timeout: serverCfg.CallTimeout})
	credentialStore := credentials.NewStore(conn, cipher, adapters, serverCfg.ProbeTimeout)

	registryOpts := []registry.Option{}
	if serverCfg.RedisAddr != "" {
		registryOpts = append(registryOpts, registry.WithRedisCache(serverCfg.RedisAddr, 0))
	}
	reg := registry.New(conn, adapters, credentialStore, registryOpts...)

	resolver := modelconfig.NewResolver(conn, reg)
	threadStore := thread.NewStore(conn)

	syncWorker := syncer.New(conn, reg, adapters, credentialStore, serverCfg.SyncStaleAfter)
	syncWorker.Start()
	defer syncWorker.Stop()

	chatService := chat.NewService(resolver, reg, credentialStore, adapters, threadStore, syncWorker)

	if serverCfg.Environment == config.EnvironmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	apihttp.RegisterRoutes(engine, apihttp.Deps{
		DB:          conn,
		Credentials: credentialStore,
		Registry:    reg,
		Resolver:    resolver,
		Syncer:      syncWorker,
		Threads:     threadStore,
		Chat:        chatService,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"port": port, "environment": serverCfg.Environment}).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errServe == http.ErrServerClosed {
			return nil
		}
		return errServe
	}
}

// requestLogger emits one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		}).Info("request")
	}
}
