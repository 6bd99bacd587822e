// =============================================================================
// 📦 RagLoop 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Chroma:    DefaultChromaConfig(),
		Ollama:    DefaultOllamaConfig(),
		Workflow:  DefaultWorkflowConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       5 * time.Minute, // 生成可能很慢，写超时要放宽
		ShutdownTimeout:    15 * time.Second,
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		CORSAllowedOrigins: []string{"*"},
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "ragloop",
		Password:        "",
		Name:            "ragloop",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		Password:      "",
		DB:            0,
		PoolSize:      10,
		MinIdleConns:  2,
		KeyPrefix:     "ragloop:checkpoint:",
		CheckpointTTL: 0,
	}
}

// DefaultChromaConfig 返回默认 Chroma 配置
func DefaultChromaConfig() ChromaConfig {
	return ChromaConfig{
		Host:       "localhost",
		Port:       8000,
		APIKey:     "",
		Collection: "ragloop",
		Timeout:    30 * time.Second,
	}
}

// DefaultOllamaConfig 返回默认 Ollama 配置
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL:    "http://localhost:11434",
		ChatModel:  "mistral:7b-instruct",
		EmbedModel: "nomic-embed-text",
		Timeout:    2 * time.Minute,
	}
}

// DefaultWorkflowConfig 返回默认工作流配置
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		CheckpointBackend: "memory",
		VectorBackend:     "memory",
		ChunkSize:         800,
		ChunkOverlap:      120,
		MinChunkSize:      50,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "ragloop",
		SampleRate:   0.1,
	}
}
