/*

Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0

*/
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	clowder "github.com/redhatinsights/app-common-go/pkg/api/v1"
	"github.com/spf13/viper"
)

const StatusTopic string = "platform.deid-export.status"

// ExportCfg is the global variable containing the runtime configuration
var ExportCfg *ExportConfig

// ExportConfig represents the runtime configuration
type ExportConfig struct {
	Hostname    string
	MetricsPort int
	Logging     *loggingConfig
	LogLevel    string
	Debug       bool

	Workers      int
	Retry        RetryConfig
	SettleDelay  time.Duration
	FileTypes    []string
	DeidCommand  string
	SubjectCodes subjectCodeConfig

	StoreConfig   storeConfig
	DBConfig      dbConfig
	LedgerEnabled bool
	KafkaConfig   kafkaConfig
	StorageConfig storageConfig
}

// RetryConfig bounds the retries around a single file transfer.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

type subjectCodeConfig struct {
	Column    string
	NewColumn string
}

type storeConfig struct {
	APIURL            string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

type dbConfig struct {
	User     string
	Password string
	Hostname string
	Port     string
	Name     string
	SSLCfg   dbSSLConfig
}

type dbSSLConfig struct {
	RdsCa   *string
	SSLMode string
}

type loggingConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	LogGroup        string
	Region          string
}

type kafkaConfig struct {
	KafkaBrokers   []string
	StatusTopic    string
	KafkaSSLConfig kafkaSSLConfig
}

type kafkaSSLConfig struct {
	KafkaCA       string
	KafkaUsername string
	KafkaPassword string
	SASLMechanism string
	Protocol      string
}

type storageConfig struct {
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

var config *ExportConfig

// DefaultWorkers leaves one core for the control goroutine.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// initialize the configuration for the exporter
func init() {
	options := viper.New()
	options.SetDefault("MetricsPort", 9000)
	options.SetDefault("LogLevel", "INFO")
	options.SetDefault("Debug", false)

	// export defaults
	options.SetDefault("Workers", DefaultWorkers())
	options.SetDefault("RetryMaxAttempts", 3)
	options.SetDefault("RetryInitialBackoff", time.Second)
	options.SetDefault("RetryMaxBackoff", 10*time.Second)
	options.SetDefault("RetryMultiplier", 2.0)
	options.SetDefault("SettleDelay", 2*time.Second)
	options.SetDefault("FileTypes", []string{"dicom"})
	options.SetDefault("DeidCommand", "deid-file")
	options.SetDefault("SubjectCodeColumn", "subject.code")
	options.SetDefault("NewSubjectCodeColumn", "export.subject.code")

	// remote store defaults
	options.SetDefault("API_URL", "")
	options.SetDefault("API_KEY", "")
	options.SetDefault("ApiRequestsPerSecond", 10.0)
	options.SetDefault("ApiBurst", 20)
	options.SetDefault("ApiTimeout", 60*time.Second)

	// DB defaults
	options.SetDefault("LedgerEnabled", false)
	options.SetDefault("PGSQL_USER", "postgres")
	options.SetDefault("PGSQL_PASSWORD", "postgres")
	options.SetDefault("PGSQL_HOSTNAME", "localhost")
	options.SetDefault("PGSQL_PORT", "15433")
	options.SetDefault("PGSQL_DATABASE", "postgres")

	// kafka defaults
	options.SetDefault("StatusTopic", StatusTopic)
	options.SetDefault("KafkaBrokers", splitNonEmpty(os.Getenv("KAFKA_BROKERS")))

	// storage defaults
	options.SetDefault("StorageBucket", "")
	options.SetDefault("StorageEndpoint", "")
	options.SetDefault("StorageAccessKey", "")
	options.SetDefault("StorageSecretKey", "")
	options.SetDefault("StorageUseSSL", true)

	options.AutomaticEnv()

	if options.GetBool("Debug") {
		options.Set("LogLevel", "DEBUG")
	}

	kubenv := viper.New()
	kubenv.AutomaticEnv()

	config = &ExportConfig{
		Hostname:    kubenv.GetString("Hostname"),
		MetricsPort: options.GetInt("MetricsPort"),
		Debug:       options.GetBool("Debug"),
		LogLevel:    options.GetString("LogLevel"),
		Workers:     options.GetInt("Workers"),
		Retry: RetryConfig{
			MaxAttempts:    options.GetInt("RetryMaxAttempts"),
			InitialBackoff: options.GetDuration("RetryInitialBackoff"),
			MaxBackoff:     options.GetDuration("RetryMaxBackoff"),
			Multiplier:     options.GetFloat64("RetryMultiplier"),
		},
		SettleDelay: options.GetDuration("SettleDelay"),
		FileTypes:   options.GetStringSlice("FileTypes"),
		DeidCommand: options.GetString("DeidCommand"),
		SubjectCodes: subjectCodeConfig{
			Column:    options.GetString("SubjectCodeColumn"),
			NewColumn: options.GetString("NewSubjectCodeColumn"),
		},
		StoreConfig: storeConfig{
			APIURL:            options.GetString("API_URL"),
			APIKey:            options.GetString("API_KEY"),
			RequestsPerSecond: options.GetFloat64("ApiRequestsPerSecond"),
			Burst:             options.GetInt("ApiBurst"),
			Timeout:           options.GetDuration("ApiTimeout"),
		},
		LedgerEnabled: options.GetBool("LedgerEnabled"),
		DBConfig: dbConfig{
			User:     options.GetString("PGSQL_USER"),
			Password: options.GetString("PGSQL_PASSWORD"),
			Hostname: options.GetString("PGSQL_HOSTNAME"),
			Port:     options.GetString("PGSQL_PORT"),
			Name:     options.GetString("PGSQL_DATABASE"),
			SSLCfg: dbSSLConfig{
				SSLMode: "prefer",
			},
		},
		KafkaConfig: kafkaConfig{
			KafkaBrokers: options.GetStringSlice("KafkaBrokers"),
			StatusTopic:  options.GetString("StatusTopic"),
		},
		StorageConfig: storageConfig{
			Bucket:    options.GetString("StorageBucket"),
			Endpoint:  options.GetString("StorageEndpoint"),
			AccessKey: options.GetString("StorageAccessKey"),
			SecretKey: options.GetString("StorageSecretKey"),
			UseSSL:    options.GetBool("StorageUseSSL"),
		},
	}

	if clowder.IsClowderEnabled() {
		cfg := clowder.LoadedConfig

		config.MetricsPort = cfg.MetricsPort

		if cfg.Database != nil {
			config.LedgerEnabled = true
			config.DBConfig = dbConfig{
				User:     cfg.Database.Username,
				Password: cfg.Database.Password,
				Hostname: cfg.Database.Hostname,
				Port:     fmt.Sprint(cfg.Database.Port),
				Name:     cfg.Database.Name,
				SSLCfg: dbSSLConfig{
					SSLMode: cfg.Database.SslMode,
					RdsCa:   cfg.Database.RdsCa,
				},
			}
		}

		if cfg.Kafka != nil && len(cfg.Kafka.Brokers) > 0 {
			config.KafkaConfig.KafkaBrokers = clowder.KafkaServers
			if topic, ok := clowder.KafkaTopics[StatusTopic]; ok {
				config.KafkaConfig.StatusTopic = topic.Name
			}
			broker := cfg.Kafka.Brokers[0]
			if broker.Authtype != nil {
				caPath, err := cfg.KafkaCa(broker)
				if err != nil {
					panic("Kafka CA failed to write")
				}
				config.KafkaConfig.KafkaSSLConfig = kafkaSSLConfig{
					KafkaUsername: *broker.Sasl.Username,
					KafkaPassword: *broker.Sasl.Password,
					SASLMechanism: "SCRAM-SHA-512",
					Protocol:      "sasl_ssl",
					KafkaCA:       caPath,
				}
			}
		}

		if cfg.ObjectStore != nil && len(cfg.ObjectStore.Buckets) > 0 {
			bucket := cfg.ObjectStore.Buckets[0]
			config.StorageConfig.Bucket = bucket.RequestedName
			config.StorageConfig.Endpoint = fmt.Sprintf("%s:%d", cfg.ObjectStore.Hostname, cfg.ObjectStore.Port)
			config.StorageConfig.UseSSL = cfg.ObjectStore.Tls
			if bucket.AccessKey != nil {
				config.StorageConfig.AccessKey = *bucket.AccessKey
			}
			if bucket.SecretKey != nil {
				config.StorageConfig.SecretKey = *bucket.SecretKey
			}
		}

		config.Logging = &loggingConfig{
			AccessKeyID:     cfg.Logging.Cloudwatch.AccessKeyId,
			SecretAccessKey: cfg.Logging.Cloudwatch.SecretAccessKey,
			LogGroup:        cfg.Logging.Cloudwatch.LogGroup,
			Region:          cfg.Logging.Cloudwatch.Region,
		}
	}

	if config.Workers < 1 {
		config.Workers = DefaultWorkers()
	}

	ExportCfg = config
}

// Get returns the runtime configuration
func Get() *ExportConfig {
	return config
}

func splitNonEmpty(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
