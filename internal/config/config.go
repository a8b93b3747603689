// Package config loads highlighter.cfg.json through viper and exposes typed
// views of each section.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/kitchenlens/highlighter/pkg/core"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "highlighter.cfg.json"

// EffectsConfig holds effect timings.
type EffectsConfig struct {
	FlashDuration time.Duration
	BlinkInterval time.Duration
}

// TimerConfig holds countdown timer settings.
type TimerConfig struct {
	Minutes    int
	MinMinutes int
	MaxMinutes int
	Keyword    string
}

// ProcedureConfig selects where procedure steps come from.
type ProcedureConfig struct {
	Source   string `json:"source" mapstructure:"source"`
	Path     string `json:"path" mapstructure:"path"`
	URL      string `json:"url" mapstructure:"url"`
	RecipeID string `json:"recipeId" mapstructure:"recipeId"`
	APIKey   string `json:"apiKey" mapstructure:"apiKey"`
	// UploadExports sends finished memory-journal exports to URL.
	UploadExports bool `json:"uploadExports" mapstructure:"uploadExports"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds the in-memory SQLite backend settings.
type SQLiteConfig struct {
	Path         string
	DumpInterval time.Duration
}

// WebSocketConfig holds the live journal stream settings.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the journal backend.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	WebSocket WebSocketConfig
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// GraylogConfig holds the GELF sink settings.
type GraylogConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Address  string `json:"address" mapstructure:"address"`
	Level    string `json:"level" mapstructure:"level"`
	Facility string `json:"facility" mapstructure:"facility"`
}

// BridgeConfig holds the host line protocol settings.
type BridgeConfig struct {
	MaxResponse int
}

// StatusConfig holds the status HTTP server and status file settings.
type StatusConfig struct {
	Address      string
	File         string
	FileInterval time.Duration
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("logBackend", "slog")
	viper.SetDefault("catalogueFile", "")
	viper.SetDefault("sessionName", "kitchen")

	viper.SetDefault("effects.flashDuration", "1.5s")
	viper.SetDefault("effects.blinkInterval", "200ms")

	viper.SetDefault("timer.minutes", 1)
	viper.SetDefault("timer.minMinutes", 1)
	viper.SetDefault("timer.maxMinutes", 60)
	viper.SetDefault("timer.keyword", "Timer")

	viper.SetDefault("procedure.source", "file")
	viper.SetDefault("procedure.path", "./procedure.json")
	viper.SetDefault("procedure.url", "http://localhost:8080")
	viper.SetDefault("procedure.recipeId", "")
	viper.SetDefault("procedure.apiKey", "")
	viper.SetDefault("procedure.uploadExports", false)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./journal")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./journal/highlighter.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "highlighter")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "kitchen")
	viper.SetDefault("influx.bucket", "highlighter")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
	viper.SetDefault("graylog.level", "info")
	viper.SetDefault("graylog.facility", "highlighter")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "highlighter")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("bridge.maxResponse", 0)

	viper.SetDefault("status.address", "127.0.0.1:9090")
	viper.SetDefault("status.file", "")
	viper.SetDefault("status.fileInterval", "5s")
}

// Load reads configuration from the JSON file in configDir and sets default
// values.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// LoadDefaults installs the defaults without reading a file.
func LoadDefaults() {
	setDefaults()
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetCatalogue returns the inline object catalogue.
func GetCatalogue() ([]core.ObjectSpec, error) {
	var specs []core.ObjectSpec
	if err := viper.UnmarshalKey("objects", &specs); err != nil {
		return nil, fmt.Errorf("decoding objects: %w", err)
	}
	return specs, nil
}

// GetEffectsConfig returns the effect timings.
func GetEffectsConfig() EffectsConfig {
	return EffectsConfig{
		FlashDuration: viper.GetDuration("effects.flashDuration"),
		BlinkInterval: viper.GetDuration("effects.blinkInterval"),
	}
}

// GetTimerConfig returns the countdown timer settings.
func GetTimerConfig() TimerConfig {
	return TimerConfig{
		Minutes:    viper.GetInt("timer.minutes"),
		MinMinutes: viper.GetInt("timer.minMinutes"),
		MaxMinutes: viper.GetInt("timer.maxMinutes"),
		Keyword:    viper.GetString("timer.keyword"),
	}
}

// GetProcedureConfig returns the procedure source settings.
func GetProcedureConfig() ProcedureConfig {
	return ProcedureConfig{
		Source:        viper.GetString("procedure.source"),
		Path:          viper.GetString("procedure.path"),
		URL:           viper.GetString("procedure.url"),
		RecipeID:      viper.GetString("procedure.recipeId"),
		APIKey:        viper.GetString("procedure.apiKey"),
		UploadExports: viper.GetBool("procedure.uploadExports"),
	}
}

// GetStorageConfig returns the journal backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetDBConfig returns the Postgres settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled:  viper.GetBool("graylog.enabled"),
		Address:  viper.GetString("graylog.address"),
		Level:    viper.GetString("graylog.level"),
		Facility: viper.GetString("graylog.facility"),
	}
}

// GetBridgeConfig returns the host line protocol settings.
func GetBridgeConfig() BridgeConfig {
	return BridgeConfig{MaxResponse: viper.GetInt("bridge.maxResponse")}
}

// GetStatusConfig returns the status server and file settings.
func GetStatusConfig() StatusConfig {
	return StatusConfig{
		Address:      viper.GetString("status.address"),
		File:         viper.GetString("status.file"),
		FileInterval: viper.GetDuration("status.fileInterval"),
	}
}
