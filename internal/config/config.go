package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合客户端与服务端的全部配置项。
type Config struct {
	Server ServerConfig
	Client ClientConfig
	AI     AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	client, err := loadClientConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Client: client, AI: ai}, nil
}

// 开发后端支持的会话存储驱动。
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	StoreDriver string
	StorePath   string
	CORS        bool
}

// loadServerConfig 解析监听地址与会话存储。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	driver := strings.ToLower(getEnvOrDefault("CHAT_STORE", StoreMemory))
	if driver != StoreMemory && driver != StoreSQLite {
		return ServerConfig{}, fmt.Errorf("invalid CHAT_STORE value: %q", driver)
	}
	cors, err := parseBoolEnv("CHAT_CORS", true)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg := ServerConfig{
		StoreDriver: driver,
		StorePath:   getEnvOrDefault("CHAT_STORE_PATH", "chat.sqlite"),
		CORS:        cors,
	}

	if strings.Contains(port, ":") {
		// 允许直接传入 ":8000" 或 "127.0.0.1:8000"。
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

// ClientConfig 描述控制器如何访问后端。
type ClientConfig struct {
	APIBase         string
	Backend         string
	Model           string
	RequestTimeout  time.Duration
	PreferencesPath string
}

func loadClientConfig() (ClientConfig, error) {
	timeout := 30 // 默认30秒
	if override, err := parseOptionalIntEnv("CHAT_REQUEST_TIMEOUT"); err != nil {
		return ClientConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return ClientConfig{}, fmt.Errorf("invalid CHAT_REQUEST_TIMEOUT value %d: must not be negative", *override)
		}
		timeout = *override
	}

	apiBase := getEnvOrDefault("CHAT_API_BASE", "http://localhost:8000")
	if _, err := url.ParseRequestURI(apiBase); err != nil {
		return ClientConfig{}, fmt.Errorf("invalid CHAT_API_BASE value %q: %w", apiBase, err)
	}

	return ClientConfig{
		APIBase:         apiBase,
		Backend:         getEnvOrDefault("CHAT_BACKEND", "azure"),
		Model:           getEnvOrDefault("CHAT_MODEL", "gpt-4o-mini"),
		RequestTimeout:  time.Duration(timeout) * time.Second,
		PreferencesPath: getEnvOrDefault("CHAT_PREFERENCES_PATH", defaultPreferencesPath()),
	}, nil
}

func defaultPreferencesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "chatsync", "preferences.db")
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	SystemPrompt string
}

// Enabled 表示是否提供了模型与必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark model is not configured: set ARK_MODEL plus ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
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
		Model:       c.Model,
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
		Model:        strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		SystemPrompt: getEnvOrDefault("CHAT_SYSTEM_PROMPT", "You are a helpful assistant. Answer clearly and concisely."),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
