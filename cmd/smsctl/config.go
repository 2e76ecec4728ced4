package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// cfg holds every env-tunable knob smsctl reads at startup.
type cfg struct {
	Addr            string
	Env             string
	LogLevel        string
	ConfigRoot      string
	DataRoot        string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration

	CASBackend string // "fs" or "s3"
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string

	DBDriver string // "" (in-memory), "sqlite", or "postgres"
	DBDSN    string

	Workers            int
	QueueSize          int
	QuarantineCapacity int
	DefaultCron        string
	DefaultTimezone    string
	SchedulePollMs     int

	BypassCadence bool
}

func loadCfg() cfg {
	return cfg{
		Addr:               getenv("SMSCTL_ADDR", ":8082"),
		Env:                getenv("SMSCTL_ENV", "local"),
		LogLevel:           getenv("SMSCTL_LOG_LEVEL", "info"),
		ConfigRoot:         getenv("SMSCTL_CONFIG_ROOT", "./config"),
		DataRoot:           getenv("SMSCTL_DATA_ROOT", "./data"),
		ShutdownTimeout:    msDuration("SMSCTL_SHUTDOWN_TIMEOUT_MS", 10000),
		ReadTimeout:        msDuration("SMSCTL_READ_TIMEOUT_MS", 5000),
		WriteTimeout:       msDuration("SMSCTL_WRITE_TIMEOUT_MS", 30000),
		IdleTimeout:        msDuration("SMSCTL_IDLE_TIMEOUT_MS", 60000),
		CASBackend:         getenv("SMSCTL_CAS_BACKEND", "fs"),
		S3Bucket:           getenv("SMSCTL_S3_BUCKET", ""),
		S3Region:           getenv("SMSCTL_S3_REGION", "us-west-2"),
		S3Endpoint:         getenv("SMSCTL_S3_ENDPOINT", ""),
		S3Prefix:           getenv("SMSCTL_S3_PREFIX", "cas"),
		DBDriver:           getenv("SMSCTL_DB_DRIVER", ""),
		DBDSN:              getenv("SMSCTL_DB_DSN", ""),
		Workers:            intFromEnv("SMSCTL_WORKERS", 4),
		QueueSize:          intFromEnv("SMSCTL_QUEUE_SIZE", 64),
		QuarantineCapacity: intFromEnv("SMSCTL_QUARANTINE_CAPACITY", 50),
		DefaultCron:        getenv("SMSCTL_DEFAULT_CRON", "0 */6 * * *"),
		DefaultTimezone:    getenv("SMSCTL_DEFAULT_TZ", "UTC"),
		SchedulePollMs:     intFromEnv("SMSCTL_SCHEDULE_POLL_MS", 60000),
		BypassCadence:      boolFromEnv("SMSCTL_BYPASS_CADENCE", false),
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func boolFromEnv(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func msDuration(k string, defMS int) time.Duration {
	ms := intFromEnv(k, defMS)
	return time.Duration(ms) * time.Millisecond
}
