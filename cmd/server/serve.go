package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aiko-go/internal/config"
	"aiko-go/internal/gateway"
	"aiko-go/internal/handler"
	"aiko-go/internal/middleware"
	"aiko-go/internal/repository"
	"aiko-go/internal/service"
	"aiko-go/pkg/database"
	"aiko-go/pkg/kafka"
	"aiko-go/pkg/llm"
	"aiko-go/pkg/log"
	"aiko-go/pkg/storage"
	"aiko-go/pkg/token"
	"aiko-go/pkg/tts"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout    = 5 * time.Second
	snapshotLinkExpiry = time.Hour
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "连接 Discord 并启动管理 API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 初始化持久化
	snapshots, linker, err := openSnapshotStore(cfg)
	if err != nil {
		return err
	}
	assignments, err := openAssignmentStore(cfg.Personas)
	if err != nil {
		return err
	}
	defer assignments.Close()

	var exchangeRepo repository.ExchangeRepository
	if cfg.Database.MySQL.DSN != "" {
		if err := database.InitMySQL(cfg.Database.MySQL.DSN); err != nil {
			return err
		}
		defer database.CloseMySQL()
		if exchangeRepo, err = repository.NewExchangeRepository(database.DB); err != nil {
			return fmt.Errorf("failed to migrate exchanges table: %w", err)
		}
	}

	// 4. 初始化 Service (依赖注入)
	personaMap, err := service.LoadPersonas(configPath, cfg.Personas.File)
	if err != nil {
		return err
	}
	log.Infof("已加载 %d 个人格", len(personaMap))

	conversations := service.NewConversationService(snapshots, cfg.History.MaxTurns)
	if err := conversations.Load(ctx); err != nil {
		return err
	}
	personas := service.NewPersonaService(personaMap, assignments)
	if err := personas.Load(ctx); err != nil {
		return err
	}
	models := service.NewModelSelector(cfg.LLM.Model, cfg.LLM.Models)
	voice := service.NewVoiceService(tts.NewClient(cfg.TTS), cfg.TTS.VoiceID, cfg.Voice.QueueSize)

	hub := service.NewFeedHub()
	defer hub.Close()
	observers := []service.ExchangeObserver{hub}
	if exchangeRepo != nil {
		observers = append(observers, service.NewArchiveObserver(exchangeRepo))
	}
	if cfg.Kafka.Brokers != "" {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		observers = append(observers, producer)
	}

	chat := service.NewChatService(conversations, personas, voice, llm.NewClient(cfg.LLM), models, cfg.History.ChunkSize, observers...)
	commands := service.NewCommandService(conversations, personas, voice, models, cfg.Discord.AdminIDs)
	// 停机信号不会取消进行中的问答，见 Dispatcher
	dispatcher := service.NewDispatcher(ctx)

	// 5. 创建 Discord 网关
	gw, err := gateway.New(cfg.Discord, cfg.Voice, chat, commands, dispatcher)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gw.Run(gctx) })

	// 6. 启动管理 API
	if cfg.Server.Port != "" {
		jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
			Handler: newRouter(cfg, jwtManager, conversations, personas, models, exchangeRepo, linker, hub),
		}
		g.Go(func() error {
			log.Infof("管理 API 启动于 %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP 服务监听失败: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()
	log.Info("接收到停机信号，正在关闭服务...")

	// gw.Run 正常退出时已排空；打开连接失败时在这里兜底
	dispatcher.Close()
	voice.StopAll()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := conversations.Flush(flushCtx); err != nil {
		log.Errorf("停机时写入会话快照失败: %v", err)
	}
	log.Info("服务已优雅关闭")
	return runErr
}

func newRouter(
	cfg config.Config,
	jwtManager *token.JWTManager,
	conversations service.ConversationService,
	personas service.PersonaService,
	models *service.ModelSelector,
	exchangeRepo repository.ExchangeRepository,
	linker handler.SnapshotLinker,
	hub *service.FeedHub,
) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	conversationHandler := handler.NewConversationHandler(conversations, personas)
	adminHandler := handler.NewAdminHandler(models, exchangeRepo, linker)

	apiV1 := r.Group("/api/v1")
	admin := apiV1.Group("/admin")
	// 管理员路由组，需要同时通过认证和管理员授权两个中间件
	admin.Use(middleware.AuthMiddleware(jwtManager), middleware.AdminAuthMiddleware(cfg.Discord.AdminIDs))
	{
		admin.GET("/conversations", conversationHandler.ListConversations)
		admin.GET("/conversations/:key", conversationHandler.GetConversation)
		admin.DELETE("/conversations/:key", conversationHandler.ClearConversation)
		admin.PUT("/conversations/:key/persona", conversationHandler.AssignPersona)
		admin.GET("/personas", conversationHandler.ListPersonas)

		admin.GET("/model", adminHandler.GetModel)
		admin.PUT("/model", adminHandler.SwitchModel)
		admin.GET("/exchanges", adminHandler.ListExchanges)
		admin.GET("/exchanges/stats", adminHandler.ExchangeStats)
		admin.GET("/snapshot/url", adminHandler.SnapshotURL)

		admin.GET("/feed", handler.NewFeedHandler(hub).Handle)
	}
	return r
}

// openSnapshotStore 按配置选择快照后端；只有 minio 后端会返回下载链接生成函数。
func openSnapshotStore(cfg config.Config) (repository.SnapshotStore, handler.SnapshotLinker, error) {
	switch cfg.Snapshot.Backend {
	case "", "file":
		return repository.NewFileSnapshotStore(cfg.Snapshot.Path), nil, nil
	case "redis":
		if err := database.InitRedis(cfg.Database.Redis); err != nil {
			return nil, nil, err
		}
		return repository.NewRedisSnapshotStore(database.RDB, cfg.Snapshot.RedisKey), nil, nil
	case "minio":
		if err := storage.InitMinIO(cfg.MinIO); err != nil {
			return nil, nil, err
		}
		bucket, object := cfg.MinIO.BucketName, cfg.Snapshot.ObjectKey
		linker := func(ctx context.Context) (string, error) {
			return storage.GetPresignedURL(ctx, bucket, object, snapshotLinkExpiry)
		}
		return repository.NewMinIOSnapshotStore(storage.MinioClient, bucket, object), linker, nil
	default:
		return nil, nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}

func openAssignmentStore(cfg config.PersonasConfig) (repository.AssignmentStore, error) {
	if cfg.AssignmentsPath == "" {
		return repository.NewMemoryAssignmentStore(), nil
	}
	return repository.NewBoltAssignmentStore(cfg.AssignmentsPath)
}
