package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkrupp/homecase-filevault/internal/infra/config"
	"github.com/mkrupp/homecase-filevault/internal/infra/database"
	"github.com/mkrupp/homecase-filevault/internal/infra/logging"
	"github.com/mkrupp/homecase-filevault/internal/infra/transport/http"
	"github.com/mkrupp/homecase-filevault/internal/repo/blob"
	"github.com/mkrupp/homecase-filevault/internal/repo/file"
	"github.com/mkrupp/homecase-filevault/internal/repo/user"
	"github.com/mkrupp/homecase-filevault/internal/svc/authsvc"
	"github.com/mkrupp/homecase-filevault/internal/svc/filesvc"
)

const (
	appName      = "filevault"
	configPrefix = "FILEVAULT"
)

type Config struct {
	config.EnvConfig

	Log      logging.LoggerConfig                `envPrefix:"LOG_"`
	HTTP     http.HTTPTransportConfig            `envPrefix:"HTTP_"`
	DB       database.SQLiteConfig               `envPrefix:"DB_"`
	Blob     blob.FileSystemBlobRepositoryConfig `envPrefix:"BLOB_"`
	Auth     authsvc.AuthConfig                  `envPrefix:"AUTH_"`
	File     filesvc.FileConfig                  `envPrefix:"FILE_"`
	FileHTTP filesvc.HTTPTransportConfig         `envPrefix:"FILE_HTTP_"`
}

func main() {
	var cfg Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	logging.Configure(ctx, cfg.Log, appName)

	err := run(ctx, cfg)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.filevault")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
		} else {
			log.InfoContext(ctx, "shutdown")
		}
	}()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	blobRepo, err := blob.NewFileSystemBlobRepository(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("new blob repository: %w", err)
	}
	defer blobRepo.Close()

	authSvc, err := authsvc.NewAuthService(user.NewSQLiteUserRepository(db), cfg.Auth)
	if err != nil {
		return fmt.Errorf("new auth service: %w", err)
	}

	fileSvc := filesvc.NewBlobFileService(file.NewSQLiteFileRepository(db), blobRepo, cfg.File)

	router := http.NewRouter(
		authsvc.NewHTTPTransport(authSvc),
		filesvc.NewHTTPTransport(fileSvc, authSvc, cfg.FileHTTP),
	)

	if err := http.ListenAndServe(ctx, router, cfg.HTTP); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}
