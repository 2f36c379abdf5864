package config

import "time"

// Config - параметры платежного провайдера
type Config struct {
	GatewayAddr     string        `mapstructure:"gateway_addr"`
	AccessToken     string        `mapstructure:"access_token"`
	GatewayTimeout  time.Duration `mapstructure:"gateway_timeout"`
	SecretKey       string        `mapstructure:"secret_key"`
	NotificationURL string        `mapstructure:"notification_url"`
	SignatureHeader string        `mapstructure:"signature_header"`
	CompleteStatus  string        `mapstructure:"complete_status"`
	DisplayName     string        `mapstructure:"display_name"`
	// ProcessingLease - срок резерва уведомления на время обработки
	ProcessingLease time.Duration `mapstructure:"processing_lease"`
	// TestMode разрешает пропуск проверки подписи для запросов с ?test=true.
	// Никогда не включать в рабочем окружении
	TestMode bool `mapstructure:"test_mode"`
}

func (cfg Config) GetSecretKey() []byte {
	return []byte(cfg.SecretKey)
}

func (cfg Config) GetCompleteStatus() string {
	return cfg.CompleteStatus
}

func (cfg Config) GetDisplayName() string {
	return cfg.DisplayName
}
