// Package config loads and validates the application's environment-backed
// configuration via viper, following the double-underscore key-delimiter
// convention used across the ambient stack.
package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig is the fully resolved, validated configuration (spec §6.5).
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`

	APIKey string `mapstructure:"api_key" validate:"required"`

	TelephonyProvider string `mapstructure:"telephony_provider" validate:"required,oneof=twilio vonage"`
	TelephonySID      string `mapstructure:"telephony_sid"`
	TelephonyToken    string `mapstructure:"telephony_token"`
	TelephonyNumber   string `mapstructure:"telephony_number" validate:"required"`

	VonageApplicationID string `mapstructure:"vonage_application_id"`
	VonagePrivateKey    string `mapstructure:"vonage_private_key"`

	AIAPIKey       string `mapstructure:"ai_api_key" validate:"required"`
	AIAgentID      string `mapstructure:"ai_agent_id" validate:"required"`
	AIWebhookSecret string `mapstructure:"ai_webhook_secret" validate:"required"`

	StoreURI  string `mapstructure:"store_uri" validate:"required"`
	ServerURL string `mapstructure:"server_url" validate:"required"`

	CRMWebhookURL    string `mapstructure:"crm_webhook_url"`
	EnableCRMWebhook bool   `mapstructure:"enable_crm_webhook"`

	RedisAddr string `mapstructure:"redis_addr"`

	CallDelayMs        int `mapstructure:"call_delay_ms" validate:"required"`
	MaxConcurrentCalls int `mapstructure:"max_concurrent_calls" validate:"required"`
	InactivityMs       int `mapstructure:"inactivity_ms" validate:"required"`
	DurationCapMs      int `mapstructure:"duration_cap_ms" validate:"required"`
	RetryCount         int `mapstructure:"retry_count" validate:"required"`
	RetryDelayMs       int `mapstructure:"retry_delay_ms" validate:"required"`
}

// InitConfig builds a viper instance bound to the process environment, with
// an optional .env file at ENV_PATH layered underneath it.
func InitConfig() (*viper.Viper, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))

	v.AddConfigPath(".")
	v.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		v.SetConfigFile(path)
	}
	v.SetConfigType("env")
	v.AutomaticEnv()

	setDefault(v)

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: no .env file found, reading from process environment")
	}
	return v, nil
}

func setDefault(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "callengine")
	v.SetDefault("VERSION", "0.1.0")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("API_KEY", "")

	v.SetDefault("TELEPHONY_PROVIDER", "twilio")
	v.SetDefault("TELEPHONY_SID", "")
	v.SetDefault("TELEPHONY_TOKEN", "")
	v.SetDefault("TELEPHONY_NUMBER", "")

	v.SetDefault("VONAGE_APPLICATION_ID", "")
	v.SetDefault("VONAGE_PRIVATE_KEY", "")

	v.SetDefault("AI_API_KEY", "")
	v.SetDefault("AI_AGENT_ID", "")
	v.SetDefault("AI_WEBHOOK_SECRET", "")

	v.SetDefault("STORE_URI", "postgres://localhost:5432/callengine?sslmode=disable")
	v.SetDefault("SERVER_URL", "http://localhost:8080")

	v.SetDefault("CRM_WEBHOOK_URL", "")
	v.SetDefault("ENABLE_CRM_WEBHOOK", false)

	v.SetDefault("REDIS_ADDR", "")

	v.SetDefault("CALL_DELAY_MS", 5000)
	v.SetDefault("MAX_CONCURRENT_CALLS", 5)
	v.SetDefault("INACTIVITY_MS", 60000)
	v.SetDefault("DURATION_CAP_MS", 600000)
	v.SetDefault("RETRY_COUNT", 3)
	v.SetDefault("RETRY_DELAY_MS", 1000)
}

// GetApplicationConfig unmarshals and validates v into an AppConfig.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
