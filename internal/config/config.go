package config

import (
	"github.com/spf13/viper"
)

// Config holds everything the api process and the email worker need.
// In deployment these come in as environment variables on the pod; the
// defaults below match the local docker-compose setup (Postgres, Mosquitto,
// LocalStack).

type Config struct {
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	ServerPort string `mapstructure:"SERVER_PORT"`
	IsLocalDev bool   `mapstructure:"IS_LOCAL_DEV"`

	MQTTBroker    string `mapstructure:"MQTT_BROKER"`
	MQTTClientID  string `mapstructure:"MQTT_CLIENT_ID"`
	MQTTUsername  string `mapstructure:"MQTT_USERNAME"`
	MQTTPassword  string `mapstructure:"MQTT_PASSWORD"`
	MQTTBaseTopic string `mapstructure:"MQTT_BASE_TOPIC"`

	// Liveness and correlation windows, in seconds.
	OfflineTTLSeconds   int `mapstructure:"OFFLINE_TTL_SECONDS"`
	EnrollTTLSeconds    int `mapstructure:"ENROLL_TTL_SECONDS"`
	MaxFingerprintSlots int `mapstructure:"MAX_FINGERPRINT_SLOTS"`

	AWSRegion        string `mapstructure:"AWS_REGION"`
	AWSEndpoint      string `mapstructure:"AWS_ENDPOINT"`
	EmailSQSQueueURL string `mapstructure:"EMAIL_SQS_QUEUE_URL"`
	EmailSender      string `mapstructure:"EMAIL_SENDER"`
}

// LoadConfig reads configuration from the environment, falling back to
// local-development defaults.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("DB_HOST", "db")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "access_db")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("IS_LOCAL_DEV", false)

	viper.SetDefault("MQTT_BROKER", "tcp://mosquitto:1883")
	viper.SetDefault("MQTT_CLIENT_ID", "access-service-api")
	viper.SetDefault("MQTT_USERNAME", "")
	viper.SetDefault("MQTT_PASSWORD", "")
	viper.SetDefault("MQTT_BASE_TOPIC", "biometric")

	viper.SetDefault("OFFLINE_TTL_SECONDS", 120)
	viper.SetDefault("ENROLL_TTL_SECONDS", 60)
	viper.SetDefault("MAX_FINGERPRINT_SLOTS", 128)

	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("AWS_ENDPOINT", "http://localstack:4566")
	viper.SetDefault("EMAIL_SQS_QUEUE_URL", "http://localstack:4566/000000000000/email-queue")
	viper.SetDefault("EMAIL_SENDER", "no-reply@access-service.com")

	// Read in environment variables that match the keys.
	viper.AutomaticEnv()

	err = viper.Unmarshal(&config)
	return
}
