package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"datasteward/internal/ai"
	appsvc "datasteward/internal/app"
	"datasteward/internal/cache"
	"datasteward/internal/config"
	"datasteward/internal/extract"
	"datasteward/internal/kvstore"
	"datasteward/internal/model"
	minioClient "datasteward/internal/platform/minio"
	mysqlClient "datasteward/internal/platform/mysql"
	rabbitmqClient "datasteward/internal/platform/rabbitmq"
	redisClient "datasteward/internal/platform/redis"
	"datasteward/internal/realtime"
	"datasteward/internal/repository"
	"datasteward/internal/storage"
	"datasteward/internal/worker"
)

const redisKeyPrefix = "datasteward:"

type App struct {
	Config         *config.Config
	MySQL          *gorm.DB
	Redis          *redis.Client
	MQConn         *amqp.Connection
	Objects        *storage.MinIOStore
	Broker         realtime.Broker
	Denylist       *cache.TokenDenylist
	ActivityWorker *worker.ActivityPersistWorker
	Activity       *rabbitmqClient.ActivityPublisher

	Auth      *appsvc.AuthService
	Catalog   *appsvc.CatalogService
	DataChat  *appsvc.DataChatService
	TeamChat  *appsvc.TeamChatService
	Analysis  *appsvc.AnalysisService
	Dashboard *appsvc.DashboardService

	StartedAt time.Time
}

// Migrate creates or updates the relational tables and returns.
func Migrate(ctx context.Context, cfg *config.Config) error {
	db, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	return autoMigrate(db)
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := autoMigrate(mysqlDB); err != nil {
		return err
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.ActivityQueue)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	minioCli, err := minioClient.New(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Region, cfg.Storage.UseSSL)
	if err != nil {
		return err
	}
	a.Objects = storage.NewMinIOStore(minioCli, cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.PublicBaseURL)
	if err := a.Objects.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %s failed: %w", cfg.Storage.Bucket, err)
	}

	generator, err := newGenerator(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	contents, err := cache.NewContentCache(cfg.Catalog.ContentCacheSize)
	if err != nil {
		return fmt.Errorf("create content cache failed: %w", err)
	}

	activityRepo := repository.NewActivityRepository(mysqlDB)
	a.ActivityWorker = worker.NewActivityPersistWorker(mqConn, activityRepo, cfg.RabbitMQ.ActivityQueue)
	if err := a.ActivityWorker.Start(ctx); err != nil {
		return fmt.Errorf("start activity worker failed: %w", err)
	}
	a.Activity = rabbitmqClient.NewActivityPublisher(mqConn, cfg.RabbitMQ.ActivityQueue)
	activity := a.Activity

	a.Broker = realtime.NewRedisBroker(redisCli, redisKeyPrefix+"rt:")
	a.Denylist = cache.NewTokenDenylist(redisCli)
	kv := kvstore.NewRedisStore(redisCli, redisKeyPrefix)
	extractor := extract.NewExtractor(a.Objects)

	a.Auth = appsvc.NewAuthService(
		repository.NewUserRepository(mysqlDB),
		a.Denylist,
		a.Broker,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	a.Catalog = appsvc.NewCatalogService(kv, a.Objects, extractor, generator, activity, appsvc.CatalogOptions{
		ChunkSize:    cfg.Catalog.ChunkSize,
		PreviewItems: cfg.Catalog.PreviewItems,
		PreviewChars: cfg.Catalog.PreviewChars,
	})
	a.DataChat = appsvc.NewDataChatService(extractor, generator, contents, activity, appsvc.DataChatOptions{
		ChatSampleChars:   cfg.Catalog.ChatSampleChars,
		ReportSampleChars: cfg.Catalog.ReportSampleChars,
		ChatMaxTokens:     cfg.Catalog.ChatMaxTokens,
		ReportMaxTokens:   cfg.Catalog.ReportMaxTokens,
		SessionCacheSize:  cfg.DataChat.SessionCacheSize,
		SessionTTL:        time.Duration(cfg.DataChat.SessionTTLMinutes) * time.Minute,
	})
	a.TeamChat = appsvc.NewTeamChatService(a.Broker, generator, appsvc.TeamChatOptions{
		ReplyDelay:  time.Duration(cfg.TeamChat.ReplyDelayMS) * time.Millisecond,
		TypingDelay: time.Duration(cfg.TeamChat.TypingDelayMS) * time.Millisecond,
		MaxTokens:   cfg.TeamChat.MaxTokens,
	})
	a.Analysis = appsvc.NewAnalysisService(generator, cfg.Catalog.ChatMaxTokens)
	a.Dashboard = appsvc.NewDashboardService(a.Catalog, activityRepo)
	return nil
}

func autoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.Activity{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}
	return nil
}

func newGenerator(ctx context.Context, cfg config.LLMConfig) (ai.Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return ai.NewOpenAICompatibleClient(ai.ChatConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		}), nil
	case "gemini":
		return ai.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.ActivityWorker != nil {
		a.ActivityWorker.Close()
	}
	if a.Activity != nil {
		if err := a.Activity.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
