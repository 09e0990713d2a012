package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ifuryst/lol"

	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/pkg/utils"
	"github.com/amoylab/notification-service/pkg/version"
)

type (
	HubConfig struct {
		SendQueueSize int `yaml:"send_queue_size"` // per-connection outbound queue depth
	}

	// LimitsConfig bounds concurrent WebSocket connections. 0 means unlimited.
	LimitsConfig struct {
		MaxPerIP int `yaml:"max_per_ip"`
		MaxTotal int `yaml:"max_total"`
	}

	WebSocketConfig struct {
		ReadBufferSize   int           `yaml:"read_buffer_size"`
		WriteBufferSize  int           `yaml:"write_buffer_size"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		WriteWait        time.Duration `yaml:"write_wait"`
		PongWait         time.Duration `yaml:"pong_wait"`
		MaxMessageSize   int64         `yaml:"max_message_size"`
		OutboundBuffer   int           `yaml:"outbound_buffer"` // frames buffered in the writer before the socket reports not writable
	}

	// KafkaConfig holds the ingest consumer settings. Brokers and topics are comma
	// separated; no brokers means the ingest loop is not started.
	KafkaConfig struct {
		Brokers      string        `yaml:"brokers"`
		Topics       string        `yaml:"topics"`
		GroupID      string        `yaml:"group_id"`
		ClientID     string        `yaml:"client_id"`
		MinBytes     int           `yaml:"min_bytes"`
		MaxBytes     int           `yaml:"max_bytes"`
		MaxWait      time.Duration `yaml:"max_wait"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
		StartLatest  bool          `yaml:"start_latest"` // new groups start at the newest offset instead of the oldest
	}

	// BusConfig configures the cross-instance Redis pub/sub bus. An empty Addr disables it.
	BusConfig struct {
		Addr        string `yaml:"addr"`         // comma separated for cluster/sentinel
		ClusterType string `yaml:"cluster_type"` // single, cluster, sentinel
		MasterName  string `yaml:"master_name"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
		Channel     string `yaml:"channel"`
	}

	StorageConfig struct {
		Type         string             `yaml:"type"` // memory, db or redis
		WriteTimeout time.Duration      `yaml:"write_timeout"`
		Database     DatabaseConfig     `yaml:"database"`
		Redis        StorageRedisConfig `yaml:"redis"`
		Spooler      SpoolerConfig      `yaml:"spooler"`
	}

	DatabaseConfig struct {
		Type     string `yaml:"type"`     // sqlite, postgres, mysql
		Host     string `yaml:"host"`     // localhost
		Port     int    `yaml:"port"`     // 3306 (for mysql), 5432 (for postgres)
		User     string `yaml:"user"`     // root (for mysql), postgres (for postgres)
		Password string `yaml:"password"` // password
		DBName   string `yaml:"dbname"`   // database name, or file path for sqlite
		SSLMode  string `yaml:"sslmode"`  // disable (for postgres)
	}

	StorageRedisConfig struct {
		Addr          string `yaml:"addr"`
		ClusterType   string `yaml:"cluster_type"`
		MasterName    string `yaml:"master_name"`
		Username      string `yaml:"username"`
		Password      string `yaml:"password"`
		DB            int    `yaml:"db"`
		Prefix        string `yaml:"prefix"`
		HistoryMaxLen int64  `yaml:"history_max_len"` // approximate cap of the audit stream
	}

	// SpoolerConfig bounds the asynchronous offline writer
	SpoolerConfig struct {
		Workers int `yaml:"workers"`
		Buffer  int `yaml:"buffer"`
	}

	DecoderConfig struct {
		Disabled      bool   `yaml:"disabled"`       // skip the binary schema and decode text only
		DescriptorSet string `yaml:"descriptor_set"` // optional FileDescriptorSet file
		MessageName   string `yaml:"message_name"`   // fully qualified message name
	}
)

// SetDefaults fills zero values
func (c *NotificationServiceConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 3003
	}
	if c.Hub.SendQueueSize <= 0 {
		c.Hub.SendQueueSize = cnst.DefaultSendQueueSize
	}

	ws := &c.WebSocket
	if ws.ReadBufferSize == 0 {
		ws.ReadBufferSize = 1024
	}
	if ws.WriteBufferSize == 0 {
		ws.WriteBufferSize = 1024
	}
	if ws.HandshakeTimeout == 0 {
		ws.HandshakeTimeout = 10 * time.Second
	}
	if ws.WriteWait == 0 {
		ws.WriteWait = 10 * time.Second
	}
	if ws.PongWait == 0 {
		ws.PongWait = 60 * time.Second
	}
	if ws.MaxMessageSize == 0 {
		ws.MaxMessageSize = 64 * 1024
	}
	if ws.OutboundBuffer == 0 {
		ws.OutboundBuffer = 16
	}

	k := &c.Kafka
	if k.Topics == "" {
		k.Topics = strings.Join(cnst.DefaultTopics, ",")
	}
	if k.GroupID == "" {
		k.GroupID = cnst.DefaultConsumerGroup
	}
	if k.ClientID == "" {
		k.ClientID = version.ClientID(cnst.AppName)
	}
	if k.MinBytes == 0 {
		k.MinBytes = 1
	}
	if k.MaxBytes == 0 {
		k.MaxBytes = 10e6
	}
	if k.MaxWait == 0 {
		k.MaxWait = time.Second
	}
	if k.RetryBackoff == 0 {
		k.RetryBackoff = time.Second
	}

	if c.Bus.ClusterType == "" {
		c.Bus.ClusterType = cnst.RedisClusterTypeSingle
	}
	if c.Bus.Channel == "" {
		c.Bus.Channel = cnst.BusChannel
	}

	s := &c.Storage
	if s.Type == "" {
		s.Type = cnst.StorageTypeMemory
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 5 * time.Second
	}
	if s.Database.Type == "" {
		s.Database.Type = "sqlite"
	}
	if s.Database.Type == "sqlite" && s.Database.DBName == "" {
		s.Database.DBName = "./data/notification-service.db"
	}
	if s.Redis.ClusterType == "" {
		s.Redis.ClusterType = cnst.RedisClusterTypeSingle
	}
	if s.Redis.Prefix == "" {
		s.Redis.Prefix = "notification"
	}
	if s.Redis.HistoryMaxLen == 0 {
		s.Redis.HistoryMaxLen = 100000
	}
	if s.Spooler.Workers <= 0 {
		s.Spooler.Workers = 4
	}
	if s.Spooler.Buffer <= 0 {
		s.Spooler.Buffer = 1024
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "notification_service"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if len(c.Metrics.Buckets) == 0 {
		c.Metrics.Buckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	}

	if c.Trace.ServiceName == "" {
		c.Trace.ServiceName = cnst.AppName
	}
}

// Validate rejects inconsistent settings
func (c *NotificationServiceConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Limits.MaxPerIP < 0 || c.Limits.MaxTotal < 0 {
		return fmt.Errorf("connection limits must not be negative")
	}
	if c.Kafka.Enabled() && len(c.Kafka.TopicList()) == 0 {
		return fmt.Errorf("kafka brokers configured without topics")
	}
	switch c.Storage.Type {
	case cnst.StorageTypeMemory, cnst.StorageTypeRedis:
	case cnst.StorageTypeDB:
		switch c.Storage.Database.Type {
		case "sqlite", "postgres", "mysql":
		default:
			return fmt.Errorf("%w: %s", cnst.ErrUnsupportedDatabase, c.Storage.Database.Type)
		}
	default:
		return fmt.Errorf("%w: %s", cnst.ErrUnsupportedStorage, c.Storage.Type)
	}
	if c.Storage.Type == cnst.StorageTypeRedis && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("redis storage requires an address")
	}
	if (c.Decoder.DescriptorSet == "") != (c.Decoder.MessageName == "") {
		return fmt.Errorf("decoder descriptor_set and message_name must be set together")
	}
	return nil
}

// BrokerList returns the de-duplicated broker addresses
func (k *KafkaConfig) BrokerList() []string {
	return lol.UniqSlice(utils.SplitAndTrim(k.Brokers, ","))
}

// Enabled reports whether any broker is configured
func (k *KafkaConfig) Enabled() bool {
	return len(k.BrokerList()) > 0
}

// TopicList returns the de-duplicated topic names
func (k *KafkaConfig) TopicList() []string {
	return lol.UniqSlice(utils.SplitAndTrim(k.Topics, ","))
}

// Enabled reports whether the cross-instance bus is configured
func (b *BusConfig) Enabled() bool {
	return b.Addr != ""
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	case "sqlite":
		if c.DBName != ":memory:" {
			_ = os.MkdirAll(filepath.Dir(c.DBName), 0755)
		}
		return c.DBName
	default:
		return ""
	}
}

