package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"

	"santa-go/internal/config"
	"santa-go/internal/handlers/apiserver"
	appKafka "santa-go/internal/kafka"
	"santa-go/internal/middleware"
	appRedis "santa-go/internal/redis"
	"santa-go/internal/services"
	"santa-go/internal/storage"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("API 服务器配置加载成功。")

	// 2. 初始化数据库连接（用户身份）
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("API 服务器数据库连接成功。")

	if err := storage.AutoMigrateTables(db); err != nil {
		log.Printf("警告：数据库表迁移可能失败: %v", err)
	}

	// 3. 初始化 Redis Client
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("无法连接到 Redis: %v", err)
	}
	log.Println("成功连接到 Redis")

	// 4. 初始化 TokenBlacklist 服务
	tokenBlacklistService := appRedis.NewRedisTokenBlacklist(redisClient)

	// 5. 初始化群组/邀请的 KV 存储
	var kvStore storage.KVStore
	switch cfg.Storage.Type {
	case "redis":
		kvStore = appRedis.NewRedisKVStore(redisClient)
		log.Println("群组存储使用 Redis。")
	case "memory":
		// 进程内存储，重启即清空，只用于本机开发
		kvStore = storage.NewMemoryKVStore()
		log.Println("警告：群组存储使用内存实现，数据不会持久化。")
	default:
		log.Fatalf("不支持的存储类型: %s", cfg.Storage.Type)
	}
	groupStore := storage.NewKVGroupStore(kvStore)

	// 6. 初始化 Repositories
	userRepo := storage.NewGormUserRepository(db)

	// 7. 初始化 Kafka Producer
	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 生产者: %v", err)
	}
	defer kfkProducer.Close()
	log.Println("Kafka 生产者初始化成功 (API Server)。")

	// 8. 初始化 Services
	authService := services.NewAuthService(userRepo, cfg)
	userService := services.NewUserService(userRepo)
	groupService := services.NewGroupService(groupStore, userRepo, kfkProducer, cfg.Kafka, nil)
	inviteService := services.NewInviteService(groupStore, groupService, cfg.Invite)

	// 9. 初始化 Handlers
	authHandler := apiserver.NewAuthHandler(authService, tokenBlacklistService)
	userHandler := apiserver.NewUserHandler(userService)
	groupHandler := apiserver.NewGroupHandler(groupService)
	inviteHandler := apiserver.NewInviteHandler(inviteService, userService)

	// 10. 设置 HTTP 路由
	r := mux.NewRouter()

	// 10.1 认证路由（公开）
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	// 10.2 邀请落地页（公开）：未登录用户点开链接先看到群组信息
	r.HandleFunc("/santa/invites/{inviteID}", inviteHandler.GetInviteHandler).Methods(http.MethodGet)

	authMW := middleware.AuthMiddleware(cfg.Auth.JWTSecretKey, tokenBlacklistService)

	// 10.3 API 子路由（需要认证）
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)

	apiRouter.HandleFunc("/auth/logout", authHandler.LogoutHandler).Methods(http.MethodPost)

	// 用户路由
	apiRouter.HandleFunc("/users/me", userHandler.GetMyProfileHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/users/me", userHandler.UpdateMyProfileHandler).Methods(http.MethodPut)
	apiRouter.HandleFunc("/users/search", userHandler.SearchUsersHandler).Methods(http.MethodGet)

	// 群组路由
	apiRouter.HandleFunc("/santa/groups", groupHandler.CreateGroupHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/santa/groups", groupHandler.ListGroupsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/santa/groups/{groupID}", groupHandler.GetGroupHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/santa/groups/{groupID}/distribute", groupHandler.DistributeHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/santa/groups/{groupID}/complete", groupHandler.CompleteGroupHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/santa/groups/{groupID}/wishlist", groupHandler.UpdateWishlistHandler).Methods(http.MethodPut)
	apiRouter.HandleFunc("/santa/groups/{groupID}/assignment", groupHandler.GetAssignmentHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/santa/groups/{groupID}/invites", inviteHandler.CreateInviteHandler).Methods(http.MethodPost)

	// 邀请路由
	apiRouter.HandleFunc("/santa/invites/{inviteID}/redeem", inviteHandler.RedeemInviteHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/santa/invites/{inviteID}/revoke", inviteHandler.RevokeInviteHandler).Methods(http.MethodPost)

	// 11. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	corsHandler := handlers.CORS(corsOptions...)(r)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      corsHandler,
		ReadTimeout:  cfg.APIServer.ReadTimeout,
		WriteTimeout: cfg.APIServer.WriteTimeout,
		IdleTimeout:  time.Second * 60,
	}

	go func() {
		log.Printf("API 服务器启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到关闭信号，正在关闭 API 服务器...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("API 服务器强制关闭: %v", err)
	}

	log.Println("API 服务器已成功关闭")
}
