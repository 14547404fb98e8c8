package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	AI        AIConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	Store     StoreConfig
	Broadcast BroadcastConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	vector, err := loadVectorConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	broadcast, err := loadBroadcastConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Log:       loadLogConfig(),
		AI:        ai,
		Embedding: loadEmbeddingConfig(),
		Vector:    vector,
		Store:     store,
		Broadcast: broadcast,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "json"),
	}
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	DefaultModel string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.DefaultModel != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: set ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.DefaultModel,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		DefaultModel: getEnvOrDefault("LLM_DEFAULT_MODEL", "gpt-3.5-turbo"),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
	}, nil
}

// EmbeddingConfig 描述向量化模型配置，兼容 OpenAI 接口。
type EmbeddingConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

func loadEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL: getEnvOrDefault("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		Model:   getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-ada-002"),
		APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
	}
}

// VectorConfig 描述向量库配置。
type VectorConfig struct {
	Backend      string
	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string
	QdrantTLS    bool
	ChromemPath  string
	TopK         int
}

func loadVectorConfig() (VectorConfig, error) {
	port, err := parseOptionalIntEnv("QDRANT_PORT")
	if err != nil {
		return VectorConfig{}, err
	}
	qdrantPort := 6334
	if port != nil {
		qdrantPort = *port
	}

	useTLS, err := parseBoolEnv("QDRANT_TLS", false)
	if err != nil {
		return VectorConfig{}, err
	}

	topK := 5
	if override, err := parseOptionalIntEnv("RAG_TOP_K"); err != nil {
		return VectorConfig{}, err
	} else if override != nil && *override > 0 {
		topK = *override
	}

	return VectorConfig{
		Backend:      strings.ToLower(getEnvOrDefault("VECTOR_BACKEND", "chromem")),
		QdrantHost:   getEnvOrDefault("QDRANT_HOST", "localhost"),
		QdrantPort:   qdrantPort,
		QdrantAPIKey: strings.TrimSpace(os.Getenv("QDRANT_API_KEY")),
		QdrantTLS:    useTLS,
		ChromemPath:  getEnvOrDefault("CHROMEM_PATH", "./data/vectors"),
		TopK:         topK,
	}, nil
}

// StoreConfig 描述消息存储后端。
type StoreConfig struct {
	Backend       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func loadStoreConfig() (StoreConfig, error) {
	db, err := parseOptionalIntEnv("REDIS_DB")
	if err != nil {
		return StoreConfig{}, err
	}
	redisDB := 0
	if db != nil {
		redisDB = *db
	}

	return StoreConfig{
		Backend:       strings.ToLower(getEnvOrDefault("MESSAGE_STORE", "memory")),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
	}, nil
}

// BroadcastConfig 描述实时分析事件的发布方式。
type BroadcastConfig struct {
	Backends      []string
	Channel       string
	Event         string
	Retries       int
	NATSURL       string
	PusherAppID   string
	PusherKey     string
	PusherSecret  string
	PusherCluster string
}

func loadBroadcastConfig() (BroadcastConfig, error) {
	retries := 1
	if override, err := parseOptionalIntEnv("BROADCAST_RETRIES"); err != nil {
		return BroadcastConfig{}, err
	} else if override != nil {
		retries = *override
	}
	// 只允许 0 或 1 次重试。
	if retries < 0 {
		retries = 0
	}
	if retries > 1 {
		retries = 1
	}

	return BroadcastConfig{
		Backends:      parseListEnv("BROADCAST_BACKENDS", []string{"hub"}),
		Channel:       getEnvOrDefault("BROADCAST_CHANNEL", "my-channel"),
		Event:         getEnvOrDefault("BROADCAST_EVENT", "my-event"),
		Retries:       retries,
		NATSURL:       getEnvOrDefault("NATS_URL", "nats://127.0.0.1:4222"),
		PusherAppID:   strings.TrimSpace(os.Getenv("PUSHER_APP_ID")),
		PusherKey:     strings.TrimSpace(os.Getenv("PUSHER_KEY")),
		PusherSecret:  strings.TrimSpace(os.Getenv("PUSHER_SECRET")),
		PusherCluster: getEnvOrDefault("PUSHER_CLUSTER", "eu"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}

	var items []string
	for _, part := range strings.Split(raw, ",") {
		if item := strings.ToLower(strings.TrimSpace(part)); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
