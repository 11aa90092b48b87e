package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livescore-service/config"
	"livescore-service/database"
	"livescore-service/services"
	"livescore-service/web"
)

func main() {
	log.Println("Starting Live Score Service...")

	// 加载配置
	cfg := config.Load()

	// 选择存储: 配置了数据库用 Postgres,否则用内存存储 (仅限开发)
	var store services.Store
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}

		// 运行数据库迁移
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}

		log.Println("Database connected and migrated")
		store = services.NewPostgresStore(db)
	} else {
		log.Println("⚠️  DATABASE_URL not set, using in-memory store (data is lost on restart)")
		store = services.NewMemoryStore()
	}
	defer store.Close()

	// 目录服务: 配置了 API 地址就走 HTTP,否则放行所有 ID (仅限开发)
	var directory services.Directory
	if cfg.DirectoryAPIURL != "" {
		directory = services.NewHTTPDirectory(cfg)
		log.Printf("Directory service: %s", cfg.DirectoryAPIURL)
	} else {
		log.Println("⚠️  DIRECTORY_API_URL not set, all team/event/player ids are accepted")
		directory = services.NewAllowAllDirectory()
	}

	// 创建WebSocket Hub
	wsHub := web.NewHub()
	go wsHub.Run()

	// 更新发布: WebSocket 必开,AMQP 可选
	broadcasters := []services.Broadcaster{wsHub}

	var amqpPublisher *services.AMQPPublisher
	if cfg.AMQPURL != "" {
		amqpPublisher = services.NewAMQPPublisher(cfg)
		if err := amqpPublisher.Start(); err != nil {
			log.Fatalf("AMQP publisher error: %v", err)
		}
		broadcasters = append(broadcasters, amqpPublisher)
		log.Printf("AMQP publisher started (exchange: %s)", cfg.AMQPExchange)
	}

	// 创建记分引擎和实时推送
	engine := services.NewScoringEngine(store, directory, services.NewMultiBroadcaster(broadcasters...))
	feed := services.NewLiveFeed(store)

	// 启动Web服务器
	server := web.NewServer(cfg, store, engine, feed, wsHub)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Web server error: %v", err)
		}
	}()

	log.Printf("Web server started on port %s", cfg.Port)

	// 启动比赛监控
	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	matchMonitor := services.NewMatchMonitor(store, time.Duration(cfg.StaleLiveHours)*time.Hour)
	go matchMonitor.MonitorPeriodically(monitorCtx, time.Duration(cfg.MonitorIntervalMinutes)*time.Minute)

	log.Printf("Match monitor started (every %d minutes)", cfg.MonitorIntervalMinutes)

	log.Println("Service is running. Press Ctrl+C to stop.")

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down service...")

	// 清理资源
	cancelMonitor()
	if amqpPublisher != nil {
		amqpPublisher.Stop()
	}
	server.Stop()

	log.Println("Service stopped")
}
