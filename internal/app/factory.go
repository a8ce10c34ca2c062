// Package app assembles the transcript service from configuration
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Taichi-iskw/ytscribe/internal/config"
	transcriptrepo "github.com/Taichi-iskw/ytscribe/internal/repository/transcript"
	"github.com/Taichi-iskw/ytscribe/internal/service/audio"
	"github.com/Taichi-iskw/ytscribe/internal/service/common"
	"github.com/Taichi-iskw/ytscribe/internal/service/speech"
	transcriptsvc "github.com/Taichi-iskw/ytscribe/internal/service/transcript"
	"github.com/Taichi-iskw/ytscribe/internal/service/youtube"
	"github.com/Taichi-iskw/ytscribe/internal/storage"
)

// ServiceFactory creates transcript service instances
type ServiceFactory struct {
	cfg       *config.Config
	logger    logrus.FieldLogger
	client    *http.Client
	cmdRunner common.CmdRunner
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(cfg *config.Config, logger logrus.FieldLogger) *ServiceFactory {
	return &ServiceFactory{
		cfg:       cfg,
		logger:    logger,
		client:    &http.Client{},
		cmdRunner: common.NewCmdRunner(),
	}
}

// CreateService creates the service backed by the configured store. The
// returned cleanup closes the store.
func (f *ServiceFactory) CreateService(ctx context.Context) (transcriptsvc.Service, func(), error) {
	repo, cleanup, err := f.OpenRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	svc, err := f.newService(ctx, repo)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// CreateDryRunService creates a service without a store. Only dry-run
// requests may be made against it.
func (f *ServiceFactory) CreateDryRunService(ctx context.Context) (transcriptsvc.Service, error) {
	return f.newService(ctx, nil)
}

// OpenRepository connects to the store selected by storage.driver
func (f *ServiceFactory) OpenRepository(ctx context.Context) (transcriptrepo.Repository, func(), error) {
	switch f.cfg.Storage.Driver {
	case "mongo":
		client, err := config.NewMongoClient(ctx, f.cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		coll := client.Database(f.cfg.Storage.MongoDatabase).Collection(transcriptrepo.CollectionName)
		if err := transcriptrepo.EnsureMongoIndexes(ctx, coll); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return transcriptrepo.NewMongoRepository(coll), func() {
			if err := client.Disconnect(context.Background()); err != nil {
				f.logger.WithError(err).Warn("failed to disconnect from mongo")
			}
		}, nil

	case "sqlite":
		db, err := config.OpenSQLite(f.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := transcriptrepo.EnsureSQLiteSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return transcriptrepo.NewSQLiteRepository(db), func() { db.Close() }, nil

	case "postgres", "":
		pool, err := config.NewDatabasePool(ctx, f.cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return transcriptrepo.NewPostgresRepository(pool), func() { config.CloseDatabasePool(pool) }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage driver: %s", f.cfg.Storage.Driver)
	}
}

func (f *ServiceFactory) newService(ctx context.Context, repo transcriptrepo.Repository) (transcriptsvc.Service, error) {
	transcriber, err := speech.New(f.cfg.Speech, f.client, f.cmdRunner, f.logger)
	switch {
	case stderrors.Is(err, speech.ErrNotConfigured):
		f.logger.Warn("speech provider is not configured; videos without captions will fail")
		transcriber = nil
	case err != nil:
		return nil, err
	}

	archiver, err := storage.NewArchiver(ctx, f.cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("failed to set up transcript archive: %w", err)
	}

	return transcriptsvc.NewService(transcriptsvc.Dependencies{
		Repository:  repo,
		Captions:    youtube.NewCaptionScraper(f.client, f.cfg.Captions.Languages),
		Metadata:    youtube.NewMetadataFetcher(f.client, f.cmdRunner, f.cfg.Audio.YtDlpPath),
		Downloader:  audio.NewDownloader(f.cmdRunner, f.cfg.Audio, f.logger),
		Transcriber: transcriber,
		Archiver:    archiver,
		Logger:      f.logger,
	}, transcriptsvc.Options{
		Workers:        f.cfg.Transcribe.Workers,
		MaxQueue:       f.cfg.Transcribe.MaxQueue,
		CaptionTimeout: f.cfg.Captions.Timeout,
		RunTimeout:     f.cfg.Transcribe.RunTimeout,
	}), nil
}
