package config

type Config struct {
	// Пустая строка - хранилище в памяти
	DBDsn string `mapstructure:"db_dsn"`
}
