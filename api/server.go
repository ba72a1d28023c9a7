package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"productcatalog/adapters/database"
	"productcatalog/adapters/oidc"
	redisAdapter "productcatalog/adapters/redis"
	internalS3 "productcatalog/adapters/s3"
	"productcatalog/adapters/session"
	"productcatalog/catalog"
)

// Dependencies 是 ServerImpl 需要的外部元件，測試時可以個別替換
type Dependencies struct {
	Manager       IProductManager
	Reconciler    IReconciler
	Users         IUserDirectory
	Providers     map[string]oidc.IProvider
	SessionStore  session.IStore
	Producer      redisAdapter.IProducer[catalog.OrphanReport]
	GroupConsumer redisAdapter.IGroupConsumer[catalog.OrphanReport]
	Gatherer      prometheus.Gatherer
	HealthChecks  map[string]HealthCheck
	Closers       []func()
	Logger        *slog.Logger
}

type ServerImpl struct {
	manager       IProductManager
	reconciler    IReconciler
	users         IUserDirectory
	oidcProviders map[string]oidc.IProvider
	sessionStore  session.IStore
	tokens        *TokenIssuer
	producer      redisAdapter.IProducer[catalog.OrphanReport]
	groupConsumer redisAdapter.IGroupConsumer[catalog.OrphanReport]
	gatherer      prometheus.Gatherer
	healthChecks  map[string]HealthCheck
	closers       []func()
	logger        *slog.Logger
	wg            sync.WaitGroup
	cancelFunc    context.CancelFunc

	config ServerConfig
}

// NewServer 依照設定建立所有外部連線並組裝伺服器
func NewServer(ctx context.Context, config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"
	config.applyDefaults()

	// 初始化OIDC提供者
	providers := make(map[string]oidc.IProvider, len(config.OIDC.Providers))
	for name, providerConfig := range config.OIDC.Providers {
		provider, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			Name:         name,
			IssuerURL:    providerConfig.IssuerURL,
			ClientID:     providerConfig.ClientID,
			ClientSecret: providerConfig.ClientSecret,
			RedirectURL:  config.PublicURL + "/auth/sso/" + name + "/callback",
		})
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to initial OIDC provider, provider=%s, err=%w", op, name, err)
		}
		providers[name] = provider
	}

	// 初始化S3客戶端
	region := config.S3.Region
	if region == "" {
		region = "auto"
	}
	s3Cfg, err := awsCfg.LoadDefaultConfig(
		ctx,
		awsCfg.WithBaseEndpoint(config.S3.Endpoint),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.S3.AccessKeyID, config.S3.SecretAccessKey, "")),
		awsCfg.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	s3Client := s3.NewFromConfig(s3Cfg, func(o *s3.Options) {
		o.UsePathStyle = config.S3.UsePathStyle
	})
	s3Operator, err := internalS3.NewS3Operator(
		s3Client,
		config.S3.Bucket,
		config.S3.PublicBaseURL,
		internalS3.WithOperatorLogger(slog.Default()),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
	}

	// 初始化資料庫連線
	db, err := database.Open(config.DB)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to open database, err=%w", op, err)
	}
	if err := database.Migrate(db); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err)
	}
	categoryStore := database.NewCategoryStore(db)
	if _, err := categoryStore.Ensure(ctx, config.Categories); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("[%s] Fail to seed categories, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	closeAll := func() {
		_ = redisClient.Close()
		database.Close(db)
	}

	// 孤兒物件透過 Redis stream 交給背景 worker 清理
	producer, err := redisAdapter.NewProducer[catalog.OrphanReport](
		redisClient,
		config.Redis.StreamKeys.Orphans,
		redisAdapter.WithProducerLogger[catalog.OrphanReport](slog.Default()),
		redisAdapter.WithProducerMaxLen[catalog.OrphanReport](config.Redis.StreamMaxLen),
	)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("[%s] Fail to create producer, err=%w", op, err)
	}

	// 初始化指標
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	manager, err := catalog.NewManager(
		database.NewProductStore(db),
		database.NewImageStore(db),
		categoryStore,
		s3Operator,
		catalog.WithManagerLogger(slog.Default()),
		catalog.WithOrphanReporter(producer),
		catalog.WithMetrics(catalog.NewMetrics(registry)),
		catalog.WithDestinationPrefix(config.S3.KeyPrefix),
	)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("[%s] Fail to create manager, err=%w", op, err)
	}

	// 初始化group consumer，同一時間只有一個實例負責清理
	groupConsumer, err := redisAdapter.NewGroupConsumer[catalog.OrphanReport](
		redisClient,
		config.Redis.StreamKeys.Orphans,
		config.Redis.ConsumerGroup,
		config.ID,
		redisAdapter.WithGroupConsumerLogger[catalog.OrphanReport](slog.Default()),
		redisAdapter.WithGroupConsumerExclusive[catalog.OrphanReport](true),
	)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("[%s] Fail to create group consumer, err=%w", op, err)
	}

	sessionStore, err := redisAdapter.NewStore(redisClient, redisAdapter.WithStorePrefix(config.Redis.KeyPrefix+"session:"))
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("[%s] Fail to create session store, err=%w", op, err)
	}

	return NewServerWithDependencies(config, Dependencies{
		Manager:       manager,
		Reconciler:    manager,
		Users:         database.NewUserStore(db),
		Providers:     providers,
		SessionStore:  sessionStore,
		Producer:      producer,
		GroupConsumer: groupConsumer,
		Gatherer:      registry,
		HealthChecks: map[string]HealthCheck{
			"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		Closers: []func(){closeAll},
	})
}

// NewServerWithDependencies 以現成的元件建立伺服器
func NewServerWithDependencies(config ServerConfig, deps Dependencies) (*ServerImpl, error) {
	const op = "NewServerWithDependencies"
	config.applyDefaults()
	if deps.Manager == nil {
		return nil, fmt.Errorf("[%s] Product manager is required", op)
	}
	tokens, err := NewTokenIssuer(config.Auth)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create token issuer, err=%w", op, err)
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Auth.PrivateKeyPEM == "" {
		logger.Warn("No signing key configured, access tokens will not survive a restart", slog.String("op", op))
	}
	providers := deps.Providers
	if providers == nil {
		providers = map[string]oidc.IProvider{}
	}
	return &ServerImpl{
		manager:       deps.Manager,
		reconciler:    deps.Reconciler,
		users:         deps.Users,
		oidcProviders: providers,
		sessionStore:  deps.SessionStore,
		tokens:        tokens,
		producer:      deps.Producer,
		groupConsumer: deps.GroupConsumer,
		gatherer:      gatherer,
		healthChecks:  deps.HealthChecks,
		closers:       deps.Closers,
		logger:        logger,
		config:        config,
	}, nil
}

func (impl *ServerImpl) Start() error {
	const op = "ServerImpl.Start"
	// 啟動producer
	if impl.producer != nil {
		impl.producer.Start()
	}
	if impl.groupConsumer == nil || impl.reconciler == nil {
		return nil
	}
	// 啟動group consumer
	if err := impl.groupConsumer.Start(); err != nil {
		return fmt.Errorf("[%s] Fail to start group consumer, err=%w", op, err)
	}
	// 啟動一個worker用於清理外部儲存中的孤兒物件
	ctx, cancel := context.WithCancel(context.Background())
	impl.cancelFunc = cancel
	impl.logger.Info("Start orphan reconcile worker")
	impl.wg.Add(1)
	go func() {
		defer impl.wg.Done()
		defer impl.logger.Info("Orphan reconcile worker stopped")
		impl.reconcileLoop(ctx)
	}()
	return nil
}

func (impl *ServerImpl) reconcileLoop(ctx context.Context) {
	logger := impl.logger.With(slog.String("caller", "OrphanReconcile"))
	ch := impl.groupConsumer.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			logger.Debug("Receive message", slog.String("id", msg.ID), slog.String("ref", msg.Data.Ref))
			handleCtx, cancel := context.WithTimeout(ctx, impl.config.Worker.ReconcileTimeout)
			outcome, handleErr := impl.reconciler.Reconcile(handleCtx, msg.Data.Ref)
			cancel()
			if handleErr != nil {
				logger.Error("Fail to reconcile orphan object", slog.String("ref", msg.Data.Ref), slog.Any("error", handleErr))
				if err := msg.Fail(ctx, handleErr); err != nil {
					logger.Error("Fail to fail message", slog.Any("error", err))
				}
				continue
			}
			if err := msg.Done(ctx); err != nil {
				logger.Error("Reconcile success but fail to done message", slog.Any("error", err))
				continue
			}
			logger.Debug("Reconcile success", slog.String("ref", msg.Data.Ref), slog.String("outcome", outcome.String()))
		}
	}
}

func (impl *ServerImpl) Close() {
	// 關閉group consumer
	if impl.groupConsumer != nil {
		if err := impl.groupConsumer.Close(); err != nil {
			impl.logger.Warn("Fail to close group consumer", slog.Any("error", err))
		}
	}
	// 關閉worker
	if impl.cancelFunc != nil {
		impl.cancelFunc()
	}
	impl.wg.Wait()
	// 關閉producer，讓緩衝中的回報有機會寫入
	if impl.producer != nil {
		impl.producer.Close()
	}
	for _, closer := range impl.closers {
		closer()
	}
}

// requestTimeout 是寫入流程的逾時
func (impl *ServerImpl) requestTimeout() time.Duration {
	return impl.config.Upload.RequestTimeout
}
