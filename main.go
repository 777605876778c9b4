package main

import (
	"context"
	"time"

	"github.com/cppla/aiboard/config"
	"github.com/cppla/aiboard/controllers"
	"github.com/cppla/aiboard/models"
	"github.com/cppla/aiboard/repository"
	"github.com/cppla/aiboard/routes"
	"github.com/cppla/aiboard/services"
	"github.com/cppla/aiboard/storage"
	"github.com/cppla/aiboard/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(&models.Article{})
	articles := repository.NewGormArticleStore(db)
	store := repository.NewCachedArticleStore(articles, utils.NewCache(utils.NewRedis(cfg)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	files, err := openStorage(ctx, cfg)
	if err != nil {
		utils.Sugar.Fatalf("attachment storage unavailable: %v", err)
	}

	board := services.NewBoardService(store, files,
		services.WithLogger(utils.Logger.Named("board")),
		services.WithMaxUploadBytes(cfg.UploadMaxBytes()),
		services.WithAttachmentIndex(articles),
	)

	if local, ok := files.(*storage.Local); ok && cfg.OrphanSweepEnabled {
		interval := time.Duration(cfg.OrphanSweepMinutes) * time.Minute
		// files younger than one interval may still be waiting for their article row
		utils.StartOrphanSweeper(ctx, local.Dir(), articles, interval, interval)
	}

	r := routes.SetupRouter(cfg, controllers.NewBoardController(board, files, utils.Logger.Named("http")))

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(ctx, ":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

func openStorage(ctx context.Context, cfg config.AppConfig) (storage.Storage, error) {
	switch cfg.UploadBackend {
	case "minio":
		utils.Sugar.Infof("attachments stored in minio bucket %s at %s", cfg.MinIOBucket, cfg.MinIOEndpoint)
		return storage.NewMinIO(ctx, storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	default:
		utils.Sugar.Infof("attachments stored in %s", cfg.UploadDir)
		return storage.NewLocal(cfg.UploadDir)
	}
}
