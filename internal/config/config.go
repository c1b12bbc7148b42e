package config

import (
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Port           string `mapstructure:"PORT"`
	DBURL          string `mapstructure:"DB_URL"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	MQTTBroker     string `mapstructure:"MQTT_BROKER"`
	MQTTClientID   string `mapstructure:"MQTT_CLIENT_ID"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	DeviceKey      string `mapstructure:"DEVICE_KEY"`
	AgentID        string `mapstructure:"AGENT_ID"`
	CommandBackend string `mapstructure:"COMMAND_BACKEND"` // "postgres" or "memory"
	StaleAfterSecs int    `mapstructure:"STALE_AFTER_SECS"`
	MDNSName       string `mapstructure:"MDNS_NAME"`
	RemoteWSURL    string `mapstructure:"REMOTE_WS_URL"`
}

// LoadConfig reads configuration from file, .env, or env vars
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		println("Error loading .env file: ", err)
	}

	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("COMMAND_BACKEND", "postgres")
	viper.SetDefault("STALE_AFTER_SECS", 600)

	cfg := &Config{
		Port:           viper.GetString("PORT"),
		DBURL:          viper.GetString("DB_URL"),
		RedisAddr:      viper.GetString("REDIS_ADDR"),
		MQTTBroker:     viper.GetString("MQTT_BROKER"),
		MQTTClientID:   viper.GetString("MQTT_CLIENT_ID"),
		LogLevel:       viper.GetString("LOG_LEVEL"),
		JWTSecret:      viper.GetString("JWT_SECRET"),
		DeviceKey:      viper.GetString("DEVICE_KEY"),
		AgentID:        viper.GetString("AGENT_ID"),
		CommandBackend: viper.GetString("COMMAND_BACKEND"),
		StaleAfterSecs: viper.GetInt("STALE_AFTER_SECS"),
		MDNSName:       viper.GetString("MDNS_NAME"),
		RemoteWSURL:    viper.GetString("REMOTE_WS_URL"),
	}
	return cfg, nil
}
