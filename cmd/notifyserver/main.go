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

	redisDriver "github.com/redis/go-redis/v9"

	"santa-go/internal/config"
	"santa-go/internal/handlers/notifyserver"
	appKafka "santa-go/internal/kafka"
	kafkaHandlers "santa-go/internal/kafka/handlers"
	appRedis "santa-go/internal/redis"
	"santa-go/internal/websocket"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("通知服务器配置加载成功。")

	// 2. 初始化 Redis Client（Token 黑名单校验需要）
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("无法连接到 Redis: %v", err)
	}
	tokenBlacklist := appRedis.NewRedisTokenBlacklist(redisClient)

	// 3. 初始化 WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()
	log.Println("通知 Hub 已启动。")

	// 4. 初始化 WebSocket Handler
	wsHandler := notifyserver.NewWebSocketHandler(hub, tokenBlacklist, cfg)

	// 5. 初始化并启动群组事件消费者
	eventConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建群组事件 Kafka 消费者: %v", err)
	}
	defer eventConsumer.Close()

	eventHandler := kafkaHandlers.NewGroupEventHandler(hub)

	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	go func() {
		topics := []string{cfg.Kafka.GroupEventsTopic}
		log.Printf("群组事件消费者启动，监听 topic: %s, GroupID: %s", cfg.Kafka.GroupEventsTopic, cfg.Kafka.ConsumerGroup)
		err := eventConsumer.Consume(consumerCtx, topics, cfg.Kafka.ConsumerGroup, eventHandler.HandleMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("群组事件消费者错误: %v", err)
		}
		log.Println("群组事件消费者 goroutine 已停止。")
	}()

	// 6. 配置 HTTP 服务器路由
	serveMux := http.NewServeMux()
	serveMux.HandleFunc(cfg.NotifyServer.WebSocketPath, wsHandler.ServeWS)

	// 7. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.NotifyServer.Host, cfg.NotifyServer.Port)
	httpServer := &http.Server{Addr: serverAddr, Handler: serveMux}

	go func() {
		log.Printf("通知服务器启动于 %s, WebSocket 路径: %s", serverAddr, cfg.NotifyServer.WebSocketPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("通知服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("通知服务器准备关闭...")

	cancelConsumers()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("通知服务器关闭失败: %v", err)
	}
	log.Println("通知服务器已优雅关闭。")
}
