package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configurable settings for the gateway.  Each field
// corresponds to an environment variable.  Defaults are applied where
// reasonable so the service can run locally with minimal setup.
type Config struct {
	// Port is the TCP port of the HTTP API.
	Port string
	// WebhookURL receives every relayed inbound message as JSON.  If
	// left empty the webhook sink is disabled.
	WebhookURL string
	// WebhookTimeout bounds a single webhook POST.
	WebhookTimeout time.Duration
	// RequestTimeout bounds every operation triggered by an HTTP or AMQP
	// request (media fetch, transcoding, gateway calls).
	RequestTimeout time.Duration
	// SessionStore is the directory on disk where the whatsmeow device
	// store (session.db) is persisted.
	SessionStore string
	// QRRefresh is the auto-refresh interval of the /qr-web page.
	QRRefresh time.Duration
	// RedisURL enables the Redis status mirror when non-empty.
	RedisURL string
	// RedisPrefix is prepended to every key written by the mirror.
	RedisPrefix string
	// AMQPURL is the connection string of the RabbitMQ broker.  Empty
	// disables both the outbound consumer and the relay publisher.
	AMQPURL string
	// AMQPExchange is the topic exchange carrying outbound send requests.
	AMQPExchange string
	// AMQPQueue is the durable queue consumed for outbound send
	// requests.  Empty disables the consumer.
	AMQPQueue string
	// AMQPBinding is the routing key pattern bound to AMQPQueue.
	AMQPBinding string
	// AMQPRelayExchange receives a copy of every relayed inbound
	// message.  Empty disables the publisher.
	AMQPRelayExchange string
	// ResolveNumbers enables canonical JID resolution against WhatsApp
	// before sending.
	ResolveNumbers bool

	// S3 settings for archiving inbound media.  Archiving is enabled
	// when S3Endpoint and S3Bucket are both set; relayed payloads then
	// carry a presigned mediaUrl.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool
	S3URLExpiry time.Duration
}

// NewConfig reads configuration from the environment and returns a
// populated Config instance.  Missing variables fall back to sensible
// defaults as documented on the struct fields.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.Port = getEnv("PORT", "3000")
	cfg.WebhookURL = getEnv("WEBHOOK_URL", "")
	cfg.WebhookTimeout = getEnvSeconds("WEBHOOK_TIMEOUT_SECONDS", 10)
	cfg.RequestTimeout = getEnvSeconds("REQUEST_TIMEOUT_SECONDS", 60)
	cfg.SessionStore = getEnv("SESSION_STORE", "./state/whatsmeow")
	cfg.QRRefresh = getEnvSeconds("QR_REFRESH_SECONDS", 10)
	cfg.RedisURL = getEnv("REDIS_URL", "")
	cfg.RedisPrefix = getEnv("REDIS_PREFIX", "whatsapp-rest:")
	cfg.AMQPURL = getEnv("AMQP_URL", "")
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", "whatsapp-rest.outgoing")
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", "")
	cfg.AMQPBinding = getEnv("AMQP_BINDING", "send.*")
	cfg.AMQPRelayExchange = getEnv("AMQP_RELAY_EXCHANGE", "")
	cfg.ResolveNumbers = getEnvBool("RESOLVE_NUMBERS", false)
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", "")
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", "")
	cfg.S3Bucket = getEnv("S3_BUCKET", "")
	cfg.S3Region = getEnv("S3_REGION", "us-east-1")
	cfg.S3UseSSL = getEnvBool("S3_USE_SSL", true)
	cfg.S3URLExpiry = getEnvSeconds("S3_URL_EXPIRY_SECONDS", 3600)
	return cfg
}

// ArchiveEnabled reports whether inbound media is archived to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Endpoint != "" && c.S3Bucket != ""
}

// HTTPAddr is the listen address derived from Port.
func (c *Config) HTTPAddr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// getEnv returns the value of the environment variable named by key.  If
// the variable is not present or empty then defaultVal is returned.
func getEnv(key string, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := strings.ToLower(getEnv(key, ""))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}

// getEnvSeconds parses a positive number of seconds.  Invalid or
// non-positive values fall back to defaultSecs.
func getEnvSeconds(key string, defaultSecs int) time.Duration {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		n = defaultSecs
	}
	return time.Duration(n) * time.Second
}
