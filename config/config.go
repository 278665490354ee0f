/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"STORESYNC_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"STORESYNC_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"STORESYNC_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"STORESYNC_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"STORESYNC_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"STORESYNC_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns                string `json:"dns" envconfig:"STORESYNC_DATA_SOURCE_DNS"`
	MaxOpenConns       int    `json:"max_open_conns" envconfig:"STORESYNC_DATA_SOURCE_MAX_OPEN_CONNS"`
	MaxIdleConns       int    `json:"max_idle_conns" envconfig:"STORESYNC_DATA_SOURCE_MAX_IDLE_CONNS"`
	ConnMaxLifetimeSec int    `json:"conn_max_lifetime_sec" envconfig:"STORESYNC_DATA_SOURCE_CONN_MAX_LIFETIME_SEC"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"STORESYNC_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"STORESYNC_REDIS_SKIP_TLS_VERIFY"`
}

type TypeSenseConfig struct {
	Dns string `json:"dns" envconfig:"STORESYNC_TYPESENSE_DNS"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"STORESYNC_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"STORESYNC_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"STORESYNC_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"STORESYNC_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"STORESYNC_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type QueueConfig struct {
	EntityQueue      string `json:"entity_queue" envconfig:"STORESYNC_QUEUE_ENTITY"`
	StockQueue       string `json:"stock_queue" envconfig:"STORESYNC_QUEUE_STOCK"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"STORESYNC_QUEUE_WEBHOOK"`
	IndexQueue       string `json:"index_queue" envconfig:"STORESYNC_QUEUE_INDEX"`
	ScheduleQueue    string `json:"schedule_queue" envconfig:"STORESYNC_QUEUE_SCHEDULE"`
	Concurrency      int    `json:"concurrency" envconfig:"STORESYNC_QUEUE_CONCURRENCY"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"STORESYNC_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"STORESYNC_QUEUE_MONITORING_PORT"`
	JobStateTTLSec   int    `json:"job_state_ttl_sec" envconfig:"STORESYNC_QUEUE_JOB_STATE_TTL_SEC"`
}

type SyncConfig struct {
	PageSize         int    `json:"page_size" envconfig:"STORESYNC_SYNC_PAGE_SIZE"`
	RecentLogLimit   int    `json:"recent_log_limit" envconfig:"STORESYNC_SYNC_RECENT_LOG_LIMIT"`
	LockTimeoutSec   int    `json:"lock_timeout_sec" envconfig:"STORESYNC_SYNC_LOCK_TIMEOUT_SEC"`
	Schedule         string `json:"schedule" envconfig:"STORESYNC_SYNC_SCHEDULE"`
	CursorOverlapSec int    `json:"cursor_overlap_sec" envconfig:"STORESYNC_SYNC_CURSOR_OVERLAP_SEC"`
	RemoteTimeoutSec int    `json:"remote_timeout_sec" envconfig:"STORESYNC_SYNC_REMOTE_TIMEOUT_SEC"`
	RemoteMaxRetries uint64 `json:"remote_max_retries" envconfig:"STORESYNC_SYNC_REMOTE_MAX_RETRIES"`
}

type ArchiveConfig struct {
	S3BucketName       string `json:"s3_bucket_name" envconfig:"STORESYNC_ARCHIVE_S3_BUCKET"`
	S3Region           string `json:"s3_region" envconfig:"STORESYNC_ARCHIVE_S3_REGION"`
	S3Endpoint         string `json:"s3_endpoint" envconfig:"STORESYNC_ARCHIVE_S3_ENDPOINT"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"STORESYNC_ARCHIVE_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"STORESYNC_ARCHIVE_AWS_SECRET_ACCESS_KEY"`
	RetentionHours     int    `json:"retention_hours" envconfig:"STORESYNC_ARCHIVE_RETENTION_HOURS"`
}

type LoggingConfig struct {
	Level      string `json:"level" envconfig:"STORESYNC_LOG_LEVEL"`
	File       string `json:"file" envconfig:"STORESYNC_LOG_FILE"`
	MaxSizeMB  int    `json:"max_size_mb" envconfig:"STORESYNC_LOG_MAX_SIZE_MB"`
	MaxBackups int    `json:"max_backups" envconfig:"STORESYNC_LOG_MAX_BACKUPS"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"STORESYNC_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"STORESYNC_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	TypeSense       TypeSenseConfig  `json:"typesense"`
	TypeSenseKey    string           `json:"type_sense_key" envconfig:"STORESYNC_TYPESENSE_KEY"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	Queue           QueueConfig      `json:"queue"`
	Sync            SyncConfig       `json:"sync"`
	Archive         ArchiveConfig    `json:"archive"`
	Logging         LoggingConfig    `json:"logging"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("storesync", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	cnf.configureLogging()
	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called storesync.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Storesync"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	cnf.DataSource.setDefaults()
	cnf.Queue.setDefaults()
	cnf.Sync.setDefaults()

	if cnf.Archive.RetentionHours <= 0 {
		cnf.Archive.RetentionHours = 24 * 30
	}
	return nil
}

func (d *DataSourceConfig) setDefaults() {
	if d.MaxOpenConns <= 0 {
		d.MaxOpenConns = 25
	}
	if d.MaxIdleConns <= 0 || d.MaxIdleConns > d.MaxOpenConns {
		d.MaxIdleConns = d.MaxOpenConns / 2
	}
	if d.ConnMaxLifetimeSec <= 0 {
		d.ConnMaxLifetimeSec = 1800
	}
}

func (q *QueueConfig) setDefaults() {
	if q.EntityQueue == "" {
		q.EntityQueue = "storesync_entities"
	}
	if q.StockQueue == "" {
		q.StockQueue = "storesync_stock"
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = "storesync_webhooks"
	}
	if q.IndexQueue == "" {
		q.IndexQueue = "storesync_index"
	}
	if q.ScheduleQueue == "" {
		q.ScheduleQueue = "storesync_schedule"
	}
	if q.Concurrency <= 0 {
		q.Concurrency = 10
	}
	if q.MaxRetryAttempts <= 0 {
		q.MaxRetryAttempts = 5
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5004"
	}
	if q.JobStateTTLSec <= 0 {
		q.JobStateTTLSec = 86400
	}
}

func (s *SyncConfig) setDefaults() {
	if s.PageSize <= 0 || s.PageSize > 100 {
		// the remote caps per_page at 100
		s.PageSize = 100
	}
	if s.RecentLogLimit <= 0 {
		s.RecentLogLimit = 25
	}
	if s.LockTimeoutSec <= 0 {
		s.LockTimeoutSec = 1800
	}
	if s.Schedule == "" {
		s.Schedule = "@every 15m"
	}
	if s.CursorOverlapSec <= 0 {
		s.CursorOverlapSec = 300
	}
	if s.RemoteTimeoutSec <= 0 {
		s.RemoteTimeoutSec = 30
	}
	if s.RemoteMaxRetries == 0 {
		s.RemoteMaxRetries = 3
	}
}

// QueueNames returns every queue the workers consume with its priority weight.
func (q QueueConfig) QueueNames() map[string]int {
	return map[string]int{
		q.StockQueue:    4,
		q.EntityQueue:   3,
		q.WebhookQueue:  2,
		q.ScheduleQueue: 1,
		q.IndexQueue:    1,
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func (cnf *Configuration) configureLogging() {
	if level, err := logrus.ParseLevel(cnf.Logging.Level); err == nil {
		logrus.SetLevel(level)
	}
	if cnf.Logging.File == "" {
		return
	}
	maxSize := cnf.Logging.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	rotating := &lumberjack.Logger{
		Filename:   cnf.Logging.File,
		MaxSize:    maxSize,
		MaxBackups: cnf.Logging.MaxBackups,
		Compress:   true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, rotating))
}

func logger() {
	log.SetOutput(logrus.StandardLogger().Writer())
}
