package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	mu sync.Mutex `yaml:"-"`

	CellID string `yaml:"cell_id"`

	Robot     RobotConfig     `yaml:"robot"`
	Vision    VisionConfig    `yaml:"vision"`
	Sequencer SequencerConfig `yaml:"sequencer"`
	Insertion InsertionConfig `yaml:"insertion"`
	Database  DatabaseConfig  `yaml:"database"`
	Web       WebConfig       `yaml:"web"`
	Messaging MessagingConfig `yaml:"messaging"`
	PoseCache PoseCacheConfig `yaml:"pose_cache"`
}

// RobotConfig defines the robot controller link.
type RobotConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	AckTimeout        time.Duration `yaml:"ack_timeout"`
	TaskTimeout       time.Duration `yaml:"task_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// VisionConfig points at the external capture service. An empty endpoint
// leaves the cell without a capture source; batch operations then fail at
// capture time.
type VisionConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SequencerConfig defines centroid sequencing parameters.
type SequencerConfig struct {
	XRange            float64  `yaml:"x_range"`
	YTolerance        float64  `yaml:"y_tolerance"`
	SubsampleInterval int      `yaml:"subsample_interval"`
	Boundary          Boundary `yaml:"boundary"`
}

// Boundary is the image-space box centroids must fall inside.
type Boundary struct {
	XMin float64 `yaml:"x_min"`
	XMax float64 `yaml:"x_max"`
	YMin float64 `yaml:"y_min"`
	YMax float64 `yaml:"y_max"`
}

// InsertionConfig defines batch insertion behavior.
type InsertionConfig struct {
	CapturePositions [][4]float64  `yaml:"capture_positions"`
	ZTravel          float64       `yaml:"z_travel"`
	ZInsert          float64       `yaml:"z_insert"`
	CaptureRetries   int           `yaml:"capture_retries"`
	CaptureRetryWait time.Duration `yaml:"capture_retry_wait"`
	Freshness        time.Duration `yaml:"freshness"`
	Homography       [9]float64    `yaml:"homography"`
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig defines the SQLite database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig defines PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// WebConfig defines the web server settings.
type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

// MessagingConfig defines the telemetry backend.
type MessagingConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Backend             string        `yaml:"backend"` // "mqtt" or "kafka"
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	TelemetryTopic      string        `yaml:"telemetry_topic"`
	ControlTopic        string        `yaml:"control_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

// PoseCacheConfig defines the optional Redis pose mirror.
type PoseCacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		CellID: "cell-1",
		Robot: RobotConfig{
			Host:              "192.168.0.1",
			Port:              8501,
			DialTimeout:       5 * time.Second,
			AckTimeout:        time.Second,
			TaskTimeout:       5 * time.Second,
			ReconnectInterval: time.Second,
		},
		Vision: VisionConfig{
			Timeout: 10 * time.Second,
		},
		Sequencer: SequencerConfig{
			XRange:            500,
			YTolerance:        15,
			SubsampleInterval: 1,
			Boundary: Boundary{
				XMin: 0,
				XMax: 2448,
				YMin: 0,
				YMax: 2048,
			},
		},
		Insertion: InsertionConfig{
			CapturePositions: [][4]float64{{250, 400, -18, 0}},
			ZTravel:          -18,
			ZInsert:          -140,
			CaptureRetries:   3,
			CaptureRetryWait: time.Second,
			Freshness:        time.Second,
			Homography:       [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "pickpoint.db"},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8082,
		},
		Messaging: MessagingConfig{
			Enabled:             false,
			Backend:             "mqtt",
			TelemetryTopic:      "pickpoint/telemetry",
			ControlTopic:        "pickpoint/control",
			OutboxDrainInterval: 5 * time.Second,
			MQTT: MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
		},
		PoseCache: PoseCacheConfig{
			Addr: "localhost:6379",
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Redacted returns a copy safe to expose over the API: credentials and
// the web session secret are blanked.
func (c *Config) Redacted() *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := &Config{
		CellID:    c.CellID,
		Robot:     c.Robot,
		Vision:    c.Vision,
		Sequencer: c.Sequencer,
		Insertion: c.Insertion,
		Database:  c.Database,
		Web:       c.Web,
		Messaging: c.Messaging,
		PoseCache: c.PoseCache,
	}
	out.Database.Postgres.Password = ""
	out.Web.SessionSecret = ""
	return out
}

// ClientID returns the configured messaging client ID, or derives one from the cell ID.
func (c *Config) ClientID() string {
	if c.Messaging.MQTT.ClientID != "" {
		return c.Messaging.MQTT.ClientID
	}
	return "pickpoint-" + c.CellID
}

// Lock acquires the config mutex for multi-step mutations.
func (c *Config) Lock() { c.mu.Lock() }

// Unlock releases the config mutex.
func (c *Config) Unlock() { c.mu.Unlock() }
