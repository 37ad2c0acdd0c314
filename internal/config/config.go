package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

type Config struct {
	PingPong  PingPongConfig
	QoSBias   QoSBiasConfig
	Tracking  TrackingConfig
	Async     AsyncConfig
	Diversity DiversityConfig
	Antenna   AntennaConfig
	Alert     AlertConfig
	Server    ServerConfig
	Tracing   TracingConfig
	Log       LogConfig
}

// PingPongConfig tunes handover oscillation prevention.
type PingPongConfig struct {
	MinHandoverInterval       time.Duration // floor between handovers
	MaxHandoversPerMinute     int           // ceiling before "too many"
	Window                    time.Duration // immediate-return lookback
	ConfidenceBoost           float64       // confidence overriding "too many"
	ImmediateReturnConfidence float64       // confidence overriding immediate return
}

// QoSBiasConfig tunes the probability penalty for poorly complying
// antennas.
type QoSBiasConfig struct {
	Enabled          bool
	MinSamples       int
	SuccessThreshold float64
	MinMultiplier    float64
}

// TrackingConfig sizes the per-UE state maps.
type TrackingConfig struct {
	MaxUEs           int
	TTL              time.Duration
	MemoryLimitBytes uint64 // 0 disables the memory-pressure backstop
}

// AsyncConfig sizes the operation scheduler.
type AsyncConfig struct {
	QueueSize int
	Workers   int
	Retention time.Duration
}

// DiversityConfig tunes the prediction-diversity monitor.
type DiversityConfig struct {
	WindowSize     int
	EvalSize       int
	MinUniqueRatio float64
}

// AntennaConfig locates the static cell registry.
type AntennaConfig struct {
	RegistryPath string
}

// AlertConfig configures advisory alert delivery.
type AlertConfig struct {
	WebhookURL   string
	Cooldown     time.Duration
	MaxPerMinute int
}

type ServerConfig struct {
	APIPort     int
	MetricsPort int
}

type TracingConfig struct {
	OTLPEndpoint string
	Insecure     bool
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		PingPong: PingPongConfig{
			MinHandoverInterval:       getEnvDurationSec("MIN_HANDOVER_INTERVAL_S", 2.0),
			MaxHandoversPerMinute:     getEnvInt("MAX_HANDOVERS_PER_MINUTE", 3),
			Window:                    getEnvDurationSec("PINGPONG_WINDOW_S", 10.0),
			ConfidenceBoost:           getEnvFloat("PINGPONG_CONFIDENCE_BOOST", 0.9),
			ImmediateReturnConfidence: getEnvFloat("IMMEDIATE_RETURN_CONFIDENCE", 0.95),
		},
		QoSBias: QoSBiasConfig{
			Enabled:          getEnvBool("QOS_BIAS_ENABLED", true),
			MinSamples:       getEnvInt("QOS_BIAS_MIN_SAMPLES", 5),
			SuccessThreshold: getEnvFloat("QOS_BIAS_SUCCESS_THRESHOLD", 0.9),
			MinMultiplier:    getEnvFloat("QOS_BIAS_MIN_MULTIPLIER", 0.35),
		},
		Tracking: TrackingConfig{
			MaxUEs:           getEnvInt("UE_TRACKING_MAX_UES", 10000),
			TTL:              time.Duration(getEnvInt("UE_TRACKING_TTL_HOURS", 24)) * time.Hour,
			MemoryLimitBytes: uint64(getEnvInt("UE_TRACKING_MEMORY_LIMIT_MB", 0)) * 1024 * 1024,
		},
		Async: AsyncConfig{
			QueueSize: getEnvInt("ASYNC_QUEUE_SIZE", 1000),
			Workers:   getEnvInt("ASYNC_WORKERS", runtime.NumCPU()),
			Retention: time.Duration(getEnvInt("ASYNC_RETENTION_MIN", 60)) * time.Minute,
		},
		Diversity: DiversityConfig{
			WindowSize:     getEnvInt("DIVERSITY_WINDOW", 100),
			EvalSize:       getEnvInt("DIVERSITY_EVAL_SIZE", 50),
			MinUniqueRatio: getEnvFloat("DIVERSITY_MIN_UNIQUE_RATIO", 0.3),
		},
		Antenna: AntennaConfig{
			RegistryPath: getEnv("ANTENNA_REGISTRY_PATH", "antennas.yaml"),
		},
		Alert: AlertConfig{
			WebhookURL:   getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:     time.Duration(getEnvInt("ALERT_COOLDOWN_SEC", 300)) * time.Second,
			MaxPerMinute: getEnvInt("ALERT_MAX_PER_MINUTE", 30),
		},
		Server: ServerConfig{
			APIPort:     getEnvInt("API_PORT", 8080),
			MetricsPort: getEnvInt("METRICS_PORT", 9090),
		},
		Tracing: TracingConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:     getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would make the engine misbehave.
// Called at construction time; an error here is fatal.
func (c *Config) Validate() error {
	if c.PingPong.MinHandoverInterval < 0 {
		return fmt.Errorf("MIN_HANDOVER_INTERVAL_S must not be negative")
	}
	if c.PingPong.MaxHandoversPerMinute <= 0 {
		return fmt.Errorf("MAX_HANDOVERS_PER_MINUTE must be positive")
	}
	if c.PingPong.Window <= 0 {
		return fmt.Errorf("PINGPONG_WINDOW_S must be positive")
	}
	if c.PingPong.ConfidenceBoost < 0 || c.PingPong.ConfidenceBoost > 1 {
		return fmt.Errorf("PINGPONG_CONFIDENCE_BOOST must be in [0,1]")
	}
	if c.PingPong.ImmediateReturnConfidence < 0 || c.PingPong.ImmediateReturnConfidence > 1 {
		return fmt.Errorf("IMMEDIATE_RETURN_CONFIDENCE must be in [0,1]")
	}
	if c.QoSBias.SuccessThreshold <= 0 || c.QoSBias.SuccessThreshold > 1 {
		return fmt.Errorf("QOS_BIAS_SUCCESS_THRESHOLD must be in (0,1]")
	}
	if c.QoSBias.MinMultiplier <= 0 || c.QoSBias.MinMultiplier > 1 {
		return fmt.Errorf("QOS_BIAS_MIN_MULTIPLIER must be in (0,1]")
	}
	if c.QoSBias.MinSamples < 1 {
		return fmt.Errorf("QOS_BIAS_MIN_SAMPLES must be at least 1")
	}
	if c.Tracking.MaxUEs <= 0 {
		return fmt.Errorf("UE_TRACKING_MAX_UES must be positive")
	}
	if c.Tracking.TTL <= 0 {
		return fmt.Errorf("UE_TRACKING_TTL_HOURS must be positive")
	}
	if c.Async.QueueSize <= 0 {
		return fmt.Errorf("ASYNC_QUEUE_SIZE must be positive")
	}
	if c.Async.Workers <= 0 {
		return fmt.Errorf("ASYNC_WORKERS must be positive")
	}
	if c.Diversity.EvalSize <= 0 || c.Diversity.WindowSize < c.Diversity.EvalSize {
		return fmt.Errorf("DIVERSITY_WINDOW must be at least DIVERSITY_EVAL_SIZE")
	}
	if c.Diversity.MinUniqueRatio < 0 || c.Diversity.MinUniqueRatio > 1 {
		return fmt.Errorf("DIVERSITY_MIN_UNIQUE_RATIO must be in [0,1]")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDurationSec(key string, fallbackSec float64) time.Duration {
	return time.Duration(getEnvFloat(key, fallbackSec) * float64(time.Second))
}
