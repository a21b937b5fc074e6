// Package config provides configuration structures and loading for all pipeline components.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Absent policies for ranking queries.
const (
	AbsentExclude     = "exclude"
	AbsentDefaultZero = "zero"
)

// Sink backends.
const (
	SinkS3       = "s3"
	SinkInfluxDB = "influxdb"
	SinkFile     = "file"
)

// Snapshot wire shapes used by the simulator.
const (
	ShapePerTopic = "per-topic"
	ShapeShared   = "shared"
)

// Transports used by the simulator.
const (
	TransportMQTT  = "mqtt"
	TransportKafka = "kafka"
)

// RetentionConfig selects how many readings are kept per sensor.
// Capacity 1 keeps only the latest value.
type RetentionConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity" json:"capacity"`
}

// QueryConfig describes a ranking query evaluated on every poll tick.
type QueryConfig struct {
	// Name labels the query in logs
	Name string `mapstructure:"name" yaml:"name" json:"name"`

	// K is the number of sensors to return
	K int `mapstructure:"k" yaml:"k" json:"k"`

	// Sensors is the candidate subset, in tie-break order
	Sensors []string `mapstructure:"sensors" yaml:"sensors" json:"sensors"`
}

// UploadConfig controls snapshot emission.
type UploadConfig struct {
	// Interval is the minimum time between emissions
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`

	// Timeout bounds a single sink call
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// MaxRetries is the number of attempts after the first failure
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`

	// RetryDelay is the initial backoff between attempts
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`

	// QueueSize bounds the number of snapshots waiting for upload
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`

	// Prefix is the root of every storage key
	Prefix string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`

	// Kinds lists the snapshot kinds emitted each interval (aggregate, current)
	Kinds []string `mapstructure:"kinds" yaml:"kinds" json:"kinds"`
}

// MQTTConfig holds configuration for MQTT clients.
// Used by: Edge, Simulator
type MQTTConfig struct {
	// Broker is the broker URL (tcp://host:1883 or ssl://host:8883)
	Broker string `mapstructure:"broker" yaml:"broker" json:"broker"`

	// ClientID identifies the client to the broker; generated when empty
	ClientID string `mapstructure:"client_id" yaml:"client_id" json:"client_id"`

	Username string `mapstructure:"username" yaml:"username" json:"username"`
	Password string `mapstructure:"password" yaml:"password" json:"-"`

	// QoS is the subscription / publish quality of service (0, 1 or 2)
	QoS int `mapstructure:"qos" yaml:"qos" json:"qos"`

	// SensorTopics are per-sensor topics carrying bare numeric payloads
	SensorTopics []string `mapstructure:"sensor_topics" yaml:"sensor_topics" json:"sensor_topics"`

	// SharedTopic carries JSON payloads for all sensors
	SharedTopic string `mapstructure:"shared_topic" yaml:"shared_topic" json:"shared_topic"`

	// TLS enables TLS using system roots plus CAFile when set
	TLS                bool   `mapstructure:"tls" yaml:"tls" json:"tls"`
	CAFile             string `mapstructure:"ca_file" yaml:"ca_file" json:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify" json:"insecure_skip_verify"`

	// ConnectTimeout bounds the initial connection
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`

	// MaxReconnectInterval caps the reconnect backoff
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval" yaml:"max_reconnect_interval" json:"max_reconnect_interval"`
}

// KafkaConfig holds configuration for the optional Kafka transport.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Brokers []string `mapstructure:"brokers" yaml:"brokers" json:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic" json:"topic"`
	GroupID string   `mapstructure:"group_id" yaml:"group_id" json:"group_id"`
}

// S3Config holds object store settings.
type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Region          string `mapstructure:"region" yaml:"region" json:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id" json:"-"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key" json:"-"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style" json:"use_path_style"`
}

// InfluxDBConfig holds InfluxDB connection settings.
type InfluxDBConfig struct {
	URL    string `mapstructure:"url" yaml:"url" json:"url"`
	Token  string `mapstructure:"token" yaml:"token" json:"-"`
	Org    string `mapstructure:"org" yaml:"org" json:"org"`
	Bucket string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
}

// FileSinkConfig holds local snapshot directory settings.
type FileSinkConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"`
}

// SinkConfig selects and configures the durable storage backends.
type SinkConfig struct {
	// Backends lists the sinks every snapshot is written to (s3, influxdb, file)
	Backends []string       `mapstructure:"backends" yaml:"backends" json:"backends"`
	S3       S3Config       `mapstructure:"s3" yaml:"s3" json:"s3"`
	InfluxDB InfluxDBConfig `mapstructure:"influxdb" yaml:"influxdb" json:"influxdb"`
	File     FileSinkConfig `mapstructure:"file" yaml:"file" json:"file"`
}

// APIConfig holds configuration for the REST API.
type APIConfig struct {
	// Enabled toggles the HTTP server
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Host is the API server host
	Host string `mapstructure:"host" yaml:"host" json:"host"`

	// Port is the API server port
	Port int `mapstructure:"port" yaml:"port" json:"port"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level" json:"level"`
	Development bool   `mapstructure:"development" yaml:"development" json:"development"`

	// File enables rotated file output in addition to stdout
	File       string `mapstructure:"file" yaml:"file" json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress" json:"compress"`
}

// EdgeConfig holds configuration for the edge query processor.
type EdgeConfig struct {
	// InstanceID uniquely identifies this edge instance
	InstanceID string `mapstructure:"instance_id" yaml:"instance_id" json:"instance_id"`

	Retention RetentionConfig `mapstructure:"retention" yaml:"retention" json:"retention"`

	// PollInterval is the cadence of the driving loop
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" json:"poll_interval"`

	// AbsentPolicy is how ranking queries treat sensors without data (exclude, zero)
	AbsentPolicy string `mapstructure:"absent_policy" yaml:"absent_policy" json:"absent_policy"`

	Queries []QueryConfig `mapstructure:"queries" yaml:"queries" json:"queries"`
	Upload  UploadConfig  `mapstructure:"upload" yaml:"upload" json:"upload"`
	MQTT    MQTTConfig    `mapstructure:"mqtt" yaml:"mqtt" json:"mqtt"`
	Kafka   KafkaConfig   `mapstructure:"kafka" yaml:"kafka" json:"kafka"`
	Sink    SinkConfig    `mapstructure:"sink" yaml:"sink" json:"sink"`
	API     APIConfig     `mapstructure:"api" yaml:"api" json:"api"`
	Log     LogConfig     `mapstructure:"log" yaml:"log" json:"log"`
}

// BrokerConfig holds configuration for the development MQTT broker.
type BrokerConfig struct {
	// TCPHost is the MQTT listener host
	TCPHost string `yaml:"tcp_host" json:"tcp_host"`

	// TCPPort is the MQTT listener port
	TCPPort int `yaml:"tcp_port" json:"tcp_port"`

	// HTTPHost is the HTTP server host (for health/stats)
	HTTPHost string `yaml:"http_host" json:"http_host"`

	// HTTPPort is the HTTP server port
	HTTPPort int `yaml:"http_port" json:"http_port"`

	Log LogConfig `yaml:"log" json:"log"`
}

// SimulatorConfig holds configuration for the payload simulator.
type SimulatorConfig struct {
	// InstanceID uniquely identifies this simulator instance
	InstanceID string `yaml:"instance_id" json:"instance_id"`

	// Sensors are the simulated sensor IDs
	Sensors []string `yaml:"sensors" json:"sensors"`

	// Interval is how often every sensor publishes a reading
	Interval time.Duration `yaml:"interval" json:"interval"`

	// MinTemp and MaxTemp bound the uniform random temperatures
	MinTemp float64 `yaml:"min_temp" json:"min_temp"`
	MaxTemp float64 `yaml:"max_temp" json:"max_temp"`

	// Shape is the wire shape: per-topic or shared
	Shape string `yaml:"shape" json:"shape"`

	// Transport is mqtt or kafka
	Transport string `yaml:"transport" json:"transport"`

	// CSVPath replays readings from a CSV file instead of generating them
	CSVPath string `yaml:"csv_path" json:"csv_path"`

	// Loop replays the CSV continuously
	Loop bool `yaml:"loop" json:"loop"`

	// TopicPrefix is the parent of per-sensor topics
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix"`

	MQTT  MQTTConfig  `yaml:"mqtt" json:"mqtt"`
	Kafka KafkaConfig `yaml:"kafka" json:"kafka"`
	Log   LogConfig   `yaml:"log" json:"log"`
}

// DefaultSensors are the sensors of the reference deployment.
var DefaultSensors = []string{"s1", "s2", "s3", "s4", "s5"}

// DefaultMQTTConfig returns a default MQTT client configuration.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:               getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		ClientID:             getEnv("MQTT_CLIENT_ID", ""),
		Username:             getEnv("MQTT_USERNAME", ""),
		Password:             getEnv("MQTT_PASSWORD", ""),
		QoS:                  getEnvInt("MQTT_QOS", 0),
		SensorTopics:         getEnvSlice("MQTT_SENSOR_TOPICS", sensorTopics("sensors", DefaultSensors)),
		SharedTopic:          getEnv("MQTT_SHARED_TOPIC", "smart_home/temperature"),
		TLS:                  getEnvBool("MQTT_TLS", false),
		CAFile:               getEnv("MQTT_CA_FILE", ""),
		InsecureSkipVerify:   getEnvBool("MQTT_INSECURE_SKIP_VERIFY", false),
		ConnectTimeout:       getEnvDuration("MQTT_CONNECT_TIMEOUT", 10*time.Second),
		MaxReconnectInterval: getEnvDuration("MQTT_MAX_RECONNECT_INTERVAL", 30*time.Second),
	}
}

// DefaultKafkaConfig returns a default Kafka configuration (disabled).
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Enabled: getEnvBool("KAFKA_ENABLED", false),
		Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
		Topic:   getEnv("KAFKA_TOPIC", "smart_home.temperature"),
		GroupID: getEnv("KAFKA_GROUP_ID", "edge-processor"),
	}
}

// DefaultSinkConfig returns a default sink configuration.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		Backends: getEnvSlice("SINK_BACKENDS", []string{SinkFile}),
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),
		},
		InfluxDB: InfluxDBConfig{
			URL:    getEnv("INFLUXDB_URL", "http://localhost:8086"),
			Token:  os.Getenv("INFLUXDB_TOKEN"),
			Org:    getEnv("INFLUXDB_ORG", "cisco"),
			Bucket: getEnv("INFLUXDB_BUCKET", "edge_temperature"),
		},
		File: FileSinkConfig{
			Dir: getEnv("SNAPSHOT_DIR", "./snapshots"),
		},
	}
}

// DefaultAPIConfig returns a default API configuration.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		Enabled:      getEnvBool("API_ENABLED", true),
		Host:         getEnv("API_HOST", "0.0.0.0"),
		Port:         getEnvInt("API_PORT", 8080),
		ReadTimeout:  getEnvDuration("API_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: getEnvDuration("API_WRITE_TIMEOUT", 10*time.Second),
	}
}

// DefaultLogConfig returns a default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnvBool("LOG_DEVELOPMENT", false),
		File:        getEnv("LOG_FILE", ""),
		MaxSizeMB:   getEnvInt("LOG_MAX_SIZE_MB", 100),
		MaxBackups:  getEnvInt("LOG_MAX_BACKUPS", 3),
		MaxAgeDays:  getEnvInt("LOG_MAX_AGE_DAYS", 28),
		Compress:    getEnvBool("LOG_COMPRESS", true),
	}
}

// DefaultEdgeConfig returns a default edge processor configuration.
func DefaultEdgeConfig() EdgeConfig {
	return EdgeConfig{
		InstanceID:   getEnv("EDGE_ID", "edge-1"),
		Retention:    RetentionConfig{Capacity: getEnvInt("WINDOW_CAPACITY", 6)},
		PollInterval: getEnvDuration("POLL_INTERVAL", 10*time.Second),
		AbsentPolicy: getEnv("ABSENT_POLICY", AbsentExclude),
		Queries: []QueryConfig{
			{Name: "top3", K: 3, Sensors: []string{"s1", "s2", "s3", "s4", "s5"}},
			{Name: "top2", K: 2, Sensors: []string{"s1", "s2", "s3"}},
		},
		Upload: UploadConfig{
			Interval:   getEnvDuration("UPLOAD_INTERVAL", 60*time.Second),
			Timeout:    getEnvDuration("UPLOAD_TIMEOUT", 10*time.Second),
			MaxRetries: getEnvInt("UPLOAD_MAX_RETRIES", 3),
			RetryDelay: getEnvDuration("UPLOAD_RETRY_DELAY", time.Second),
			QueueSize:  getEnvInt("UPLOAD_QUEUE_SIZE", 16),
			Prefix:     getEnv("UPLOAD_PREFIX", "temps"),
			Kinds:      getEnvSlice("UPLOAD_KINDS", []string{"aggregate"}),
		},
		MQTT:  DefaultMQTTConfig(),
		Kafka: DefaultKafkaConfig(),
		Sink:  DefaultSinkConfig(),
		API:   DefaultAPIConfig(),
		Log:   DefaultLogConfig(),
	}
}

// DefaultBrokerConfig returns a default broker configuration.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		TCPHost:  getEnv("TCP_HOST", "0.0.0.0"),
		TCPPort:  getEnvInt("TCP_PORT", 1883),
		HTTPHost: getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort: getEnvInt("HTTP_PORT", 1884),
		Log:      DefaultLogConfig(),
	}
}

// DefaultSimulatorConfig returns a default simulator configuration.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		InstanceID:  getEnv("SIMULATOR_ID", "simulator-1"),
		Sensors:     getEnvSlice("SIM_SENSORS", DefaultSensors),
		Interval:    getEnvDuration("SIM_INTERVAL", 10*time.Second),
		MinTemp:     getEnvFloat("SIM_MIN_TEMP", 20),
		MaxTemp:     getEnvFloat("SIM_MAX_TEMP", 30),
		Shape:       getEnv("SIM_SHAPE", ShapePerTopic),
		Transport:   getEnv("SIM_TRANSPORT", TransportMQTT),
		CSVPath:     getEnv("CSV_PATH", ""),
		Loop:        getEnvBool("LOOP", true),
		TopicPrefix: getEnv("SIM_TOPIC_PREFIX", "sensors"),
		MQTT:        DefaultMQTTConfig(),
		Kafka:       DefaultKafkaConfig(),
		Log:         DefaultLogConfig(),
	}
}

// Validate checks the edge configuration for values the processor cannot run with.
func (c *EdgeConfig) Validate() error {
	var errs error

	if c.Retention.Capacity < 1 {
		errs = multierr.Append(errs, fmt.Errorf("retention.capacity must be >= 1, got %d", c.Retention.Capacity))
	}
	if c.PollInterval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval))
	}
	if c.AbsentPolicy != AbsentExclude && c.AbsentPolicy != AbsentDefaultZero {
		errs = multierr.Append(errs, fmt.Errorf("absent_policy must be %q or %q, got %q", AbsentExclude, AbsentDefaultZero, c.AbsentPolicy))
	}
	for i, q := range c.Queries {
		if q.K < 0 {
			errs = multierr.Append(errs, fmt.Errorf("queries[%d].k must be >= 0, got %d", i, q.K))
		}
	}
	if c.Upload.Interval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("upload.interval must be positive, got %v", c.Upload.Interval))
	}
	if c.Upload.Timeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("upload.timeout must be positive, got %v", c.Upload.Timeout))
	}
	if c.Upload.MaxRetries < 0 {
		errs = multierr.Append(errs, fmt.Errorf("upload.max_retries must be >= 0, got %d", c.Upload.MaxRetries))
	}
	if c.Upload.RetryDelay <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("upload.retry_delay must be positive, got %v", c.Upload.RetryDelay))
	}
	if c.Upload.QueueSize < 1 {
		errs = multierr.Append(errs, fmt.Errorf("upload.queue_size must be >= 1, got %d", c.Upload.QueueSize))
	}
	for _, kind := range c.Upload.Kinds {
		if kind != "aggregate" && kind != "current" {
			errs = multierr.Append(errs, fmt.Errorf("upload.kinds: unknown snapshot kind %q", kind))
		}
	}
	if len(c.Sink.Backends) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("sink.backends must not be empty"))
	}
	for _, b := range c.Sink.Backends {
		switch b {
		case SinkS3:
			if c.Sink.S3.Bucket == "" {
				errs = multierr.Append(errs, fmt.Errorf("sink.s3.bucket is required for the s3 backend"))
			}
		case SinkInfluxDB:
			if c.Sink.InfluxDB.URL == "" {
				errs = multierr.Append(errs, fmt.Errorf("sink.influxdb.url is required for the influxdb backend"))
			}
		case SinkFile:
			if c.Sink.File.Dir == "" {
				errs = multierr.Append(errs, fmt.Errorf("sink.file.dir is required for the file backend"))
			}
		default:
			errs = multierr.Append(errs, fmt.Errorf("sink.backends: unknown backend %q", b))
		}
	}
	if len(c.MQTT.SensorTopics) == 0 && c.MQTT.SharedTopic == "" && !c.Kafka.Enabled {
		errs = multierr.Append(errs, fmt.Errorf("no ingestion configured: set mqtt topics or enable kafka"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = multierr.Append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = multierr.Append(errs, fmt.Errorf("kafka.brokers and kafka.topic are required when kafka is enabled"))
	}

	return errs
}

func sensorTopics(prefix string, sensors []string) []string {
	topics := make([]string, len(sensors))
	for i, s := range sensors {
		topics[i] = prefix + "/" + s
	}
	return topics
}

// Helper functions for environment variable parsing.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvSlice parses a comma-separated list, dropping empty entries.
func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
