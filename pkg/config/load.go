package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides read by Load (e.g. EDGE_UPLOAD_INTERVAL).
const EnvPrefix = "EDGE"

// Load builds the edge configuration from defaults, an optional YAML file and
// EDGE_-prefixed environment variables, in increasing order of precedence.
// An empty path or a missing file falls back to defaults and environment.
func Load(path string) (EdgeConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultEdgeConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return EdgeConfig{}, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg EdgeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return EdgeConfig{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return EdgeConfig{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, d EdgeConfig) {
	v.SetDefault("instance_id", d.InstanceID)
	v.SetDefault("retention.capacity", d.Retention.Capacity)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("absent_policy", d.AbsentPolicy)
	v.SetDefault("queries", d.Queries)

	v.SetDefault("upload.interval", d.Upload.Interval)
	v.SetDefault("upload.timeout", d.Upload.Timeout)
	v.SetDefault("upload.max_retries", d.Upload.MaxRetries)
	v.SetDefault("upload.retry_delay", d.Upload.RetryDelay)
	v.SetDefault("upload.queue_size", d.Upload.QueueSize)
	v.SetDefault("upload.prefix", d.Upload.Prefix)
	v.SetDefault("upload.kinds", d.Upload.Kinds)

	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)
	v.SetDefault("mqtt.qos", d.MQTT.QoS)
	v.SetDefault("mqtt.sensor_topics", d.MQTT.SensorTopics)
	v.SetDefault("mqtt.shared_topic", d.MQTT.SharedTopic)
	v.SetDefault("mqtt.tls", d.MQTT.TLS)
	v.SetDefault("mqtt.ca_file", d.MQTT.CAFile)
	v.SetDefault("mqtt.insecure_skip_verify", d.MQTT.InsecureSkipVerify)
	v.SetDefault("mqtt.connect_timeout", d.MQTT.ConnectTimeout)
	v.SetDefault("mqtt.max_reconnect_interval", d.MQTT.MaxReconnectInterval)

	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.group_id", d.Kafka.GroupID)

	v.SetDefault("sink.backends", d.Sink.Backends)
	v.SetDefault("sink.s3.bucket", d.Sink.S3.Bucket)
	v.SetDefault("sink.s3.region", d.Sink.S3.Region)
	v.SetDefault("sink.s3.endpoint", d.Sink.S3.Endpoint)
	v.SetDefault("sink.s3.access_key_id", d.Sink.S3.AccessKeyID)
	v.SetDefault("sink.s3.secret_access_key", d.Sink.S3.SecretAccessKey)
	v.SetDefault("sink.s3.use_path_style", d.Sink.S3.UsePathStyle)
	v.SetDefault("sink.influxdb.url", d.Sink.InfluxDB.URL)
	v.SetDefault("sink.influxdb.token", d.Sink.InfluxDB.Token)
	v.SetDefault("sink.influxdb.org", d.Sink.InfluxDB.Org)
	v.SetDefault("sink.influxdb.bucket", d.Sink.InfluxDB.Bucket)
	v.SetDefault("sink.file.dir", d.Sink.File.Dir)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.host", d.API.Host)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("api.read_timeout", d.API.ReadTimeout)
	v.SetDefault("api.write_timeout", d.API.WriteTimeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
}
