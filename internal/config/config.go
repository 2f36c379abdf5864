package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	handlerConfig "github.com/iurnickita/paywebhook/internal/handler/config"
	loggerConfig "github.com/iurnickita/paywebhook/internal/logger/config"
	serviceConfig "github.com/iurnickita/paywebhook/internal/service/config"
	storeConfig "github.com/iurnickita/paywebhook/internal/store/config"
)

// EnvPrefix - префикс переменных окружения: PAYWEBHOOK_GATEWAY_SECRET_KEY и т.п.
const EnvPrefix = "PAYWEBHOOK"

type Config struct {
	Handler handlerConfig.Config `mapstructure:"server"`
	Service serviceConfig.Config `mapstructure:"gateway"`
	Store   storeConfig.Config   `mapstructure:"store"`
	Logger  loggerConfig.Config  `mapstructure:"log"`
}

// NewViper - значения по умолчанию и переменные окружения.
// Флаги командной строки привязываются к ключам снаружи
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.server_addr", ":8080")
	v.SetDefault("server.admin_secret", "")
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("gateway.gateway_addr", "https://connect.squareup.com")
	v.SetDefault("gateway.access_token", "")
	v.SetDefault("gateway.gateway_timeout", "10s")
	v.SetDefault("gateway.secret_key", "")
	v.SetDefault("gateway.notification_url", "")
	v.SetDefault("gateway.signature_header", "X-Square-Signature")
	v.SetDefault("gateway.complete_status", "COMPLETED")
	v.SetDefault("gateway.display_name", "Square")
	v.SetDefault("gateway.processing_lease", "5m")
	v.SetDefault("gateway.test_mode", false)

	v.SetDefault("store.db_dsn", "")

	v.SetDefault("log.log_level", "info")
	v.SetDefault("log.development", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// GetConfig читает необязательный YAML файл поверх значений по умолчанию.
// Переменные окружения и флаги имеют приоритет над файлом
func GetConfig(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
