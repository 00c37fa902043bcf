package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/unit"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix      = "SENSORSIM"
	DefaultSamplingPeriod = time.Second
	DefaultUnit           = "celsius"
	DefaultCapacity       = 100
	DefaultLogLevel       = "info"
	DefaultStatusInterval = 10 * time.Second
	DefaultHistoryDB      = "/var/lib/sensorsim/history.db"
	DefaultBatchSize      = 50
	DefaultBatchTimeout   = 5 * time.Second
	DefaultTopicPrefix    = "sensors"
)

type Config struct {
	SamplingPeriod time.Duration   `mapstructure:"sampling_period"`
	Unit           string          `mapstructure:"unit"`
	Capacity       int             `mapstructure:"capacity"`
	SensorID       string          `mapstructure:"sensor_id"`
	LogLevel       string          `mapstructure:"log_level"`
	Monitor        bool            `mapstructure:"monitor"`
	StatusInterval time.Duration   `mapstructure:"status_interval"`
	PIDDir         string          `mapstructure:"pid_dir"`
	Source         SourceConfig    `mapstructure:"source"`
	History        HistoryConfig   `mapstructure:"history"`
	MQTT           MQTTConfig      `mapstructure:"mqtt"`
	Influx         InfluxConfig    `mapstructure:"influx"`
	Telemetry      TelemetryConfig `mapstructure:"telemetry"`
}

type SourceConfig struct {
	Kind  string  `mapstructure:"kind"`
	Min   float64 `mapstructure:"min"`
	Max   float64 `mapstructure:"max"`
	Noise float64 `mapstructure:"noise"`
	Seed  int64   `mapstructure:"seed"`
}

type HistoryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DB           string        `mapstructure:"db"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	QoS         int    `mapstructure:"qos"`
}

type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

type TelemetryConfig struct {
	Addr string `mapstructure:"addr"`
}

// flagBinding maps a command line flag onto its configuration key
type flagBinding struct {
	key  string
	flag string
}

var bindings = []flagBinding{
	{"sampling_period", "sampling-period"},
	{"unit", "unit"},
	{"capacity", "capacity"},
	{"sensor_id", "sensor-id"},
	{"log_level", "log-level"},
	{"monitor", "monitor"},
	{"status_interval", "status-interval"},
	{"pid_dir", "pid-dir"},
	{"source.kind", "source"},
	{"source.min", "source-min"},
	{"source.max", "source-max"},
	{"source.noise", "source-noise"},
	{"source.seed", "source-seed"},
	{"history.enabled", "history"},
	{"history.db", "history-db"},
	{"history.batch_size", "history-batch-size"},
	{"history.batch_timeout", "history-batch-timeout"},
	{"mqtt.broker", "mqtt-broker"},
	{"mqtt.topic_prefix", "mqtt-topic-prefix"},
	{"mqtt.client_id", "mqtt-client-id"},
	{"mqtt.qos", "mqtt-qos"},
	{"influx.url", "influx-url"},
	{"influx.token", "influx-token"},
	{"influx.org", "influx-org"},
	{"influx.bucket", "influx-bucket"},
	{"telemetry.addr", "telemetry-addr"},
}

// Load builds the configuration from defaults, an optional TOML file,
// environment variables and command line flags, in increasing precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	configFlag := fs.String("config", "", "Path to a TOML configuration file")
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, b := range bindings {
		if err := v.BindPFlag(b.key, fs.Lookup(b.flag)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	// Load configuration from file
	path := o.configPath
	if *configFlag != "" {
		path = *configFlag
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sensorsim", pflag.ContinueOnError)

	fs.Duration("sampling-period", DefaultSamplingPeriod, "Interval between measurements")
	fs.String("unit", DefaultUnit, "Measurement unit (celsius, fahrenheit, m3_per_hour)")
	fs.Int("capacity", DefaultCapacity, "Number of measurements kept in memory, 0 to disable")
	fs.String("sensor-id", "", "Sensor identifier, generated when empty")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("monitor", false, "Log every measurement")
	fs.Duration("status-interval", DefaultStatusInterval, "Interval between status summaries, 0 to disable")
	fs.String("pid-dir", "", "Directory for the PID file, defaults to the temp dir")

	fs.String("source", "uniform", "Value source (uniform, walk, constant)")
	fs.Float64("source-min", 0, "Lower bound of generated values")
	fs.Float64("source-max", 1, "Upper bound of generated values")
	fs.Float64("source-noise", 0.05, "Relative noise of the walk source")
	fs.Int64("source-seed", 0, "Random seed, 0 seeds from the clock")

	fs.Bool("history", false, "Record measurements to sqlite")
	fs.String("history-db", DefaultHistoryDB, "Path to the history database")
	fs.Int("history-batch-size", DefaultBatchSize, "Measurements per insert batch")
	fs.Duration("history-batch-timeout", DefaultBatchTimeout, "Maximum delay before a batch is written")

	fs.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	fs.String("mqtt-topic-prefix", DefaultTopicPrefix, "MQTT topic prefix")
	fs.String("mqtt-client-id", "", "MQTT client ID, derived from the sensor ID when empty")
	fs.Int("mqtt-qos", 0, "MQTT quality of service (0, 1, 2)")

	fs.String("influx-url", "", "InfluxDB URL")
	fs.String("influx-token", "", "InfluxDB token")
	fs.String("influx-org", "", "InfluxDB organization")
	fs.String("influx-bucket", "", "InfluxDB bucket")

	fs.String("telemetry-addr", "", "Address for the Prometheus /metrics endpoint")

	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sampling_period", DefaultSamplingPeriod)
	v.SetDefault("unit", DefaultUnit)
	v.SetDefault("capacity", DefaultCapacity)
	v.SetDefault("sensor_id", "")
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("monitor", false)
	v.SetDefault("status_interval", DefaultStatusInterval)
	v.SetDefault("pid_dir", "")
	v.SetDefault("source.kind", "uniform")
	v.SetDefault("source.min", 0.0)
	v.SetDefault("source.max", 1.0)
	v.SetDefault("source.noise", 0.05)
	v.SetDefault("source.seed", 0)
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db", DefaultHistoryDB)
	v.SetDefault("history.batch_size", DefaultBatchSize)
	v.SetDefault("history.batch_timeout", DefaultBatchTimeout)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic_prefix", DefaultTopicPrefix)
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")
	v.SetDefault("telemetry.addr", "")
}

// Validate checks value ranges that flags and file parsing cannot express
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.SamplingPeriod <= 0 {
		return errFactory.Wrap(errors.ErrInvalidInterval, invalid("sampling_period", c.SamplingPeriod, "must be positive"))
	}
	if c.StatusInterval < 0 {
		return errFactory.Wrap(errors.ErrInvalidInterval, invalid("status_interval", c.StatusInterval, "must not be negative"))
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.Wrap(errors.ErrInvalidLogLevel, invalid("log_level", c.LogLevel, "must be debug, info, warning or error"))
	}
	if _, err := unit.Parse(c.Unit); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, invalid("unit", c.Unit, "unknown unit"))
	}
	if c.Capacity < 0 {
		return errFactory.Wrap(errors.ErrInvalidConfig, invalid("capacity", c.Capacity, "must not be negative"))
	}
	if c.Source.Max < c.Source.Min {
		return errFactory.Wrap(errors.ErrInvalidConfig, invalid("source.max", c.Source.Max, "must not be below source.min"))
	}
	if c.History.Enabled && c.History.DB == "" {
		return errFactory.Wrap(errors.ErrInvalidConfig, invalid("history.db", c.History.DB, "required when history is enabled"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return errFactory.Wrap(errors.ErrInvalidConfig, invalid("mqtt.qos", c.MQTT.QoS, "must be 0, 1 or 2"))
	}
	if c.Influx.URL != "" && (c.Influx.Org == "" || c.Influx.Bucket == "") {
		return errFactory.Wrap(errors.ErrInvalidConfig, invalid("influx", c.Influx.URL, "org and bucket are required"))
	}

	return nil
}

type validationError struct {
	field  string
	value  interface{}
	reason string
}

func invalid(field string, value interface{}, reason string) ValidationError {
	return &validationError{field: field, value: value, reason: reason}
}

func (e *validationError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.field, e.value, e.reason)
}

func (e *validationError) Field() string      { return e.field }
func (e *validationError) Value() interface{} { return e.value }
func (e *validationError) Reason() string     { return e.reason }
