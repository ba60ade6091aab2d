// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Discord  DiscordConfig  `mapstructure:"discord"`
	Server   ServerConfig   `mapstructure:"server"`
	History  HistoryConfig  `mapstructure:"history"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Personas PersonasConfig `mapstructure:"personas"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	LLM      LLMConfig      `mapstructure:"llm"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Voice    VoiceConfig    `mapstructure:"voice"`
}

// DiscordConfig 存储机器人网关相关的配置。
type DiscordConfig struct {
	Token    string   `mapstructure:"token"`
	AdminIDs []string `mapstructure:"admin_ids"`
	// GuildIDs 为空时只做全局命令同步
	GuildIDs []string `mapstructure:"guild_ids"`
}

// ServerConfig 存储管理 API 服务器相关的配置，Port 为空时不启动。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// HistoryConfig 控制每个会话保留的消息条数与回复分片大小。
type HistoryConfig struct {
	MaxTurns  int `mapstructure:"max_turns"`
	ChunkSize int `mapstructure:"chunk_size"`
}

// SnapshotConfig 选择会话快照的持久化后端：file、redis 或 minio。
type SnapshotConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	RedisKey  string `mapstructure:"redis_key"`
	ObjectKey string `mapstructure:"object_key"`
}

// PersonasConfig 存储人格文件与人格分配持久化的配置。
// 人格本身写在配置文件的 personalities 段或 File 指向的文件中，由 service.LoadPersonas 读取以保留名称大小写。
type PersonasConfig struct {
	File string `mapstructure:"file"`
	// AssignmentsPath 为空时人格分配只保存在内存中
	AssignmentsPath string `mapstructure:"assignments_path"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置，DSN 为空时不启用对话归档。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储管理 API 令牌的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置，Brokers 为空时不发布对话事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Models     []string            `mapstructure:"models"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// TTSConfig 存储 ElevenLabs 语音合成的配置。
type TTSConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	BaseURL         string  `mapstructure:"base_url"`
	VoiceID         string  `mapstructure:"voice_id"`
	ModelID         string  `mapstructure:"model_id"`
	Stability       float64 `mapstructure:"stability"`
	SimilarityBoost float64 `mapstructure:"similarity_boost"`
	Style           float64 `mapstructure:"style"`
	SpeakerBoost    bool    `mapstructure:"speaker_boost"`
}

// VoiceConfig 存储语音播放相关的配置。
type VoiceConfig struct {
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	QueueSize  int    `mapstructure:"queue_size"`
}

// setDefaults 注册所有可省略字段的默认值。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("history.max_turns", 20)
	v.SetDefault("history.chunk_size", 2000)
	v.SetDefault("snapshot.backend", "file")
	v.SetDefault("snapshot.path", "conversations.json")
	v.SetDefault("snapshot.redis_key", "aiko:conversations")
	v.SetDefault("snapshot.object_key", "snapshots/conversations.json")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("kafka.topic", "aiko-exchanges")
	v.SetDefault("llm.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.models", []string{"deepseek-chat", "deepseek-reasoner"})
	v.SetDefault("tts.base_url", "https://api.elevenlabs.io")
	v.SetDefault("tts.voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("tts.model_id", "eleven_monolingual_v1")
	v.SetDefault("tts.stability", 0.3)
	v.SetDefault("tts.similarity_boost", 0.7)
	v.SetDefault("tts.style", 0.8)
	v.SetDefault("tts.speaker_boost", true)
	v.SetDefault("voice.ffmpeg_path", "ffmpeg")
	v.SetDefault("voice.queue_size", 16)
}

// Load 从指定路径读取 YAML 配置并返回解析结果，环境变量 AIKO_* 覆盖文件中的同名字段。
func Load(configPath string) (Config, error) {
	var cfg Config
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("aiko")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
