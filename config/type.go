package config

type Config struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	NATSURL  string `mapstructure:"nats_url"`
	RedisURL string `mapstructure:"redis_url"`

	// JWTSecret verifies the access tokens presented on connect. It must
	// match the secret the account service signs tokens with.
	JWTSecret string `mapstructure:"jwt_secret"`

	// PongWaitSeconds is how long a connection may stay silent before it is
	// reclaimed as half-open. Zero means the default of 60 seconds.
	PongWaitSeconds int `mapstructure:"pong_wait_seconds"`

	// PersistTimeoutSeconds bounds a single message-store call.
	// Zero means the default of 5 seconds.
	PersistTimeoutSeconds int `mapstructure:"persist_timeout_seconds"`

	// HistoryLimit is how many recent messages are replayed to a freshly
	// joined connection. Zero disables replay.
	HistoryLimit int `mapstructure:"history_limit"`
}
