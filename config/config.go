package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	// 数据库配置 (留空时使用内存存储,仅限开发环境)
	DatabaseURL string

	// 服务器配置
	Port string

	// 其他配置
	Environment string

	// AMQP配置 (留空时不启用消息发布)
	AMQPURL      string
	AMQPExchange string

	// 外部目录服务配置 (球队/赛事/球员 ID 校验)
	DirectoryAPIURL   string
	DirectoryAPIToken string

	// 比赛监控配置
	MonitorIntervalMinutes int // 监控报告间隔（分钟）
	StaleLiveHours         int // live 状态超过多少小时视为异常
}

func Load() *Config {
	// 本地开发时从 .env 加载环境变量,文件不存在则忽略
	_ = godotenv.Load()

	return &Config{
		// 数据库配置
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// 服务器配置
		Port: getEnv("PORT", "8080"),

		// 其他配置
		Environment: getEnv("ENVIRONMENT", "development"),

		// AMQP配置
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "livescore.updates"),

		// 目录服务配置
		DirectoryAPIURL:   getEnv("DIRECTORY_API_URL", ""),
		DirectoryAPIToken: getEnv("DIRECTORY_API_TOKEN", ""),

		// 监控配置
		MonitorIntervalMinutes: getEnvInt("MONITOR_INTERVAL_MINUTES", 60),
		StaleLiveHours:         getEnvInt("STALE_LIVE_HOURS", 4),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result int
	fmt.Sscanf(value, "%d", &result)
	if result == 0 {
		return defaultValue
	}
	return result
}
