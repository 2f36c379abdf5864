package config

type Config struct {
	ServerAddr string `mapstructure:"server_addr"`
	// AdminSecret - ключ HS256 для токенов административного API
	AdminSecret string `mapstructure:"admin_secret"`
	// MaxBodyBytes - ограничение размера уведомления
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}
