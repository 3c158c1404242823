package main

import (
	"strings"
	"time"

	"github.com/goevery/seatcast/internal/mail"
)

type Settings struct {
	Port        int    `env:"PORT,default=8000"`
	BasePath    string `env:"BASE_PATH,default=/seatcast"`
	LogEncoding string `env:"LOG_ENCODING,default=console"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	JWTSecret      string `env:"JWT_SECRET,required=true"`
	APIKeys        string `env:"API_KEYS"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	DeliveryStrategy string `env:"DELIVERY_STRATEGY,default=threshold-role-filter"`

	DatabaseURL   string `env:"DATABASE_URL"`
	RunMigrations bool   `env:"RUN_MIGRATIONS,default=true"`
	MongoDBURI    string `env:"MONGODB_URI"`

	// MemorySeedFile seeds the in-memory store used without DATABASE_URL.
	MemorySeedFile string `env:"MEMORY_SEED_FILE"`

	MailProvider         string  `env:"MAIL_PROVIDER,default=log"`
	MailFrom             string  `env:"MAIL_FROM"`
	PostmarkServerToken  string  `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string  `env:"POSTMARK_ACCOUNT_TOKEN"`
	SESRegion            string  `env:"SES_REGION"`
	MailRatePerSecond    float64 `env:"MAIL_RATE_PER_SECOND,default=10"`
	MailConcurrency      int     `env:"MAIL_CONCURRENCY,default=8"`

	SlowOperationThresholdMs int `env:"SLOW_OPERATION_THRESHOLD_MS,default=500"`
}

func (s Settings) apiKeys() []string {
	return splitList(s.APIKeys)
}

func (s Settings) allowedOrigins() []string {
	return splitList(s.AllowedOrigins)
}

func (s Settings) slowOperationThreshold() time.Duration {
	return time.Duration(s.SlowOperationThresholdMs) * time.Millisecond
}

func (s Settings) mailConfig() mail.Config {
	return mail.Config{
		Provider:             s.MailProvider,
		From:                 s.MailFrom,
		PostmarkServerToken:  s.PostmarkServerToken,
		PostmarkAccountToken: s.PostmarkAccountToken,
		SESRegion:            s.SESRegion,
	}
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}

	return items
}
