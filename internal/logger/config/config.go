package config

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	// Development - консольный вывод для локального запуска
	Development bool `mapstructure:"development"`
}
