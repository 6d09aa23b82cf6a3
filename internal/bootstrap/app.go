package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"ballet-compare/internal/analyses"
	"ballet-compare/internal/analysisapi"
	"ballet-compare/internal/llm"
	openai "ballet-compare/internal/llm/openai"
	"ballet-compare/internal/results"
	"ballet-compare/internal/services/health"
	"ballet-compare/internal/shared/config"
	"ballet-compare/internal/shared/server"
	"ballet-compare/internal/shared/storage/db"
	"ballet-compare/internal/shared/storage/object"
	localstore "ballet-compare/internal/shared/storage/object/local"
	miniostore "ballet-compare/internal/shared/storage/object/minio"
	s3store "ballet-compare/internal/shared/storage/object/s3"
	"ballet-compare/internal/web"
)

// App holds shared dependencies and the wired router.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Store           object.ObjectStore
	AnalysesRepo    analyses.Repo
	AnalysesService *analyses.Service
	AnalysisHandler *analyses.Handler
	WebHandler      *web.Handler
	ResultsHandler  *results.Handler
	Health          *health.Service
}

// Build prepares dependencies and the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if sqlDB == nil {
		cfg.ResultStore = "memory"
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}
	if err := buildServices(app); err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		WebHandler:      app.WebHandler,
		ResultsHandler:  app.ResultsHandler,
		AnalysisHandler: app.AnalysisHandler,
		Health:          app.Health,
	})
	return app, nil
}

// Close releases the database handle, if any.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// Dialect maps a result store name onto a SQL dialect. ok is false for the
// in-memory store.
func Dialect(resultStore string) (db.Dialect, bool) {
	switch resultStore {
	case "postgres":
		return db.DialectPostgres, true
	case "sqlite":
		return db.DialectSQLite, true
	default:
		return "", false
	}
}

// DSN returns the connection string for the configured result store.
func DSN(cfg config.Config) string {
	if cfg.ResultStore == "sqlite" {
		return cfg.SQLitePath
	}
	return cfg.DatabaseURL
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	dialect, ok := Dialect(cfg.ResultStore)
	if !ok {
		log.Printf("bootstrap: RESULT_STORE=memory; results are lost on restart")
		return nil, nil
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	if dialect == db.DialectSQLite {
		opts = db.OptionsFromEnv(db.DefaultSQLiteOptions())
	}

	sqlDB, err := db.Connect(ctx, dialect, DSN(cfg), opts)
	if err == nil {
		if err = db.RunMigrations(ctx, sqlDB, dialect); err != nil {
			sqlDB.Close()
			sqlDB = nil
		}
	}
	if err != nil {
		if cfg.IsDevLike() {
			log.Printf("bootstrap: %s result store unavailable; using in-memory repository: %v", dialect, err)
			return nil, nil
		}
		return nil, fmt.Errorf("open %s result store: %w", dialect, err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	case "minio":
		if strings.TrimSpace(cfg.MinioEndpoint) == "" || strings.TrimSpace(cfg.MinioBucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=minio requires MINIO_ENDPOINT and MINIO_BUCKET")
		}
		return miniostore.New(ctx, cfg.MinioEndpoint, cfg.MinioBucket, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildServices(app *App) error {
	cfg := app.Config

	var repo analyses.Repo
	if app.DB != nil {
		dialect, _ := Dialect(cfg.ResultStore)
		repo = &analyses.SQLRepo{DB: app.DB, Dialect: dialect}
	} else {
		repo = analyses.NewMemoryRepo()
	}

	api, err := analysisapi.New(cfg.AnalysisAPIURL,
		analysisapi.WithCallTimeout(cfg.AnalysisCallTimeout),
		analysisapi.WithMaxRetries(cfg.AnalysisMaxRetries),
	)
	if err != nil {
		return err
	}

	var llmClient llm.Client
	if cfg.CommentarySource == analyses.CommentaryOpenAI {
		client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.OpenAIBaseURL)
		if err != nil {
			return err
		}
		llmClient = client
	}

	maxUpload := cfg.MaxUploadMB << 20
	svc := &analyses.Service{
		Repo:             repo,
		Store:            app.Store,
		API:              api,
		LLM:              llmClient,
		Dispatch:         cfg.AnalysisDispatch,
		CommentarySource: cfg.CommentarySource,
	}

	app.AnalysesRepo = repo
	app.AnalysesService = svc
	app.AnalysisHandler = analyses.NewHandler(svc, maxUpload)
	app.WebHandler = web.NewHandler(svc, maxUpload)
	app.ResultsHandler = results.NewHandler(svc)
	app.Health = health.NewService(app.DB, cfg.ResultStore)
	return nil
}

func closeDB(sqlDB *sql.DB) {
	if sqlDB != nil {
		sqlDB.Close()
	}
}
