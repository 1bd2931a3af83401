package config

import "github.com/kelseyhightower/envconfig"

type APIConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// dispatch engine
	SendSuccessRate float64 `envconfig:"SEND_SUCCESS_RATE" default:"0.9"`
	DispatchRPS     float64 `envconfig:"DISPATCH_RPS" default:"50"`
	DispatchBurst   int     `envconfig:"DISPATCH_BURST" default:"100"`
	StoreTimeout    string  `envconfig:"STORE_TIMEOUT" default:"5s"`

	// audience preview cache (disabled when REDIS_ADDR is empty)
	RedisAddr       string `envconfig:"REDIS_ADDR"`
	PreviewCacheTTL string `envconfig:"PREVIEW_CACHE_TTL" default:"60s"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`
}

type WebhookConfig struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Callback signature verification
	SigningSecret string `envconfig:"WEBHOOK_SIGNING_SECRET" required:"true"`

	// AWS / SQS
	AWSRegion              string `envconfig:"AWS_REGION" required:"true"`
	DeliveryEventsQueueURL string `envconfig:"DELIVERY_EVENTS_QUEUE_URL" required:"true"`
	LocalstackEndpoint     string `envconfig:"LOCALSTACK_ENDPOINT"`
}

type WebhookProcessorConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// AWS / SQS
	AWSRegion              string `envconfig:"AWS_REGION" required:"true"`
	DeliveryEventsQueueURL string `envconfig:"DELIVERY_EVENTS_QUEUE_URL" required:"true"`
	LocalstackEndpoint     string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime            int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs             int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout          int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`
	ProcessorConcurrency   int    `envconfig:"PROCESSOR_CONCURRENCY" default:"10"`

	DBPoolMaxConns          int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns          int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime   string `envconfig:"DB_POOL_MAX_CONN_LIFETIME"`
	DBPoolMaxConnIdleTime   string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME"`
	DBPoolHealthCheckPeriod string `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWebhook() WebhookConfig {
	var cfg WebhookConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWebhookProcessor() WebhookProcessorConfig {
	var cfg WebhookProcessorConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
