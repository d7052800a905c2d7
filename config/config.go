package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Duration wraps time.Duration so TOML files can carry values like "15m".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("duration parse: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Store     StoreConfig     `toml:"store"`
	Ads       AdsConfig       `toml:"ads"`
	CRM       CRMConfig       `toml:"crm"`
	Topics    []TopicConfig   `toml:"topics"`
	Puller    PullerConfig    `toml:"puller"`
	Processor ProcessorConfig `toml:"processor"`
	Logger    LoggerConfig    `toml:"logger"`
}

type LoggerConfig struct {
	LogLevel logrus.Level `toml:"log_level"`
}

// StoreConfig describes the Postgres instance holding cursors, the outbox
// and entity snapshots.
type StoreConfig struct {
	Host     string `toml:"host"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	Schema   string `toml:"schema"`
	Port     int    `toml:"port"`
}

func (s StoreConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", url.QueryEscape(s.Username), url.QueryEscape(s.Password), s.Host, s.Port, s.Database)
}

// AdsConfig carries the advertising API credentials. Token acquisition is
// handled out-of-band; the refresh token is consumed as-is.
type AdsConfig struct {
	CustomerID      string `toml:"customer_id"`
	LoginCustomerID string `toml:"login_customer_id"`
	DeveloperToken  string `toml:"developer_token"`
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	RefreshToken    string `toml:"refresh_token"`
}

// CRMConfig locates the CRM event bus endpoint.
type CRMConfig struct {
	Endpoint string `toml:"endpoint"`
	OrgID    string `toml:"org_id"`
}

// TopicConfig describes one subscribed event topic. ChangeData marks topics
// whose events are change-data-capture envelopes eligible for outbox routing.
type TopicConfig struct {
	Name         string `toml:"name"`
	ReplayPreset string `toml:"replay_preset"`
	ChangeData   bool   `toml:"change_data"`
}

type PullerConfig struct {
	Lookback  Duration `toml:"lookback"`
	LeadTopic string   `toml:"lead_topic"`
}

type ProcessorConfig struct {
	BatchSize      int      `toml:"batch_size"`
	ClaimStaleness Duration `toml:"claim_staleness"`
}

type Option func(*Config)

func NewConfig(opts ...Option) *Config {
	c := &Config{}
	for _, opt := range opts {
		opt(c)
	}
	c.SetDefault()
	return c
}

func WithStore(store StoreConfig) Option {
	return func(c *Config) {
		c.Store = store
	}
}

func WithAds(ads AdsConfig) Option {
	return func(c *Config) {
		c.Ads = ads
	}
}

func WithCRM(crm CRMConfig) Option {
	return func(c *Config) {
		c.CRM = crm
	}
}

func WithTopic(topic TopicConfig) Option {
	return func(c *Config) {
		c.Topics = append(c.Topics, topic)
	}
}

func WithLookback(lookback time.Duration) Option {
	return func(c *Config) {
		c.Puller.Lookback = Duration(lookback)
	}
}

func WithLeadTopic(topic string) Option {
	return func(c *Config) {
		c.Puller.LeadTopic = topic
	}
}

func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.Processor.BatchSize = size
	}
}

func WithClaimStaleness(staleness time.Duration) Option {
	return func(c *Config) {
		c.Processor.ClaimStaleness = Duration(staleness)
	}
}

func WithLogLevel(level logrus.Level) Option {
	return func(c *Config) {
		c.Logger.LogLevel = level
	}
}

func (c *Config) SetDefault() {
	if c.Store.Schema == "" {
		c.Store.Schema = "public"
	}

	if c.Store.Port == 0 {
		c.Store.Port = 5432
	}

	if c.Puller.Lookback == 0 {
		c.Puller.Lookback = Duration(24 * time.Hour)
	}

	if c.Puller.LeadTopic == "" {
		c.Puller.LeadTopic = "/event/LeadUpsert"
	}

	if c.Processor.BatchSize == 0 {
		c.Processor.BatchSize = 200
	}

	if c.Processor.ClaimStaleness == 0 {
		c.Processor.ClaimStaleness = Duration(15 * time.Minute)
	}

	if c.Logger.LogLevel == 0 {
		c.Logger.LogLevel = logrus.InfoLevel
	}

	for i, topic := range c.Topics {
		if topic.ReplayPreset == "" {
			c.Topics[i].ReplayPreset = "latest"
		}
	}
}

func (c *Config) Validate() error {
	var err error
	if isEmpty(c.Store.Host) {
		err = errors.Join(err, errors.New("store.host cannot be empty"))
	}

	if isEmpty(c.Store.Username) {
		err = errors.Join(err, errors.New("store.username cannot be empty"))
	}

	if isEmpty(c.Store.Database) {
		err = errors.Join(err, errors.New("store.database cannot be empty"))
	}

	if isEmpty(c.Ads.CustomerID) {
		err = errors.Join(err, errors.New("ads.customer_id cannot be empty"))
	}

	if isEmpty(c.Ads.DeveloperToken) {
		err = errors.Join(err, errors.New("ads.developer_token cannot be empty"))
	}

	for _, topic := range c.Topics {
		if isEmpty(topic.Name) {
			err = errors.Join(err, errors.New("topic name cannot be empty"))
		}
		if topic.ReplayPreset != "latest" && topic.ReplayPreset != "earliest" {
			err = errors.Join(err, fmt.Errorf("topic %q: replay preset must be 'latest' or 'earliest'", topic.Name))
		}
	}

	if c.Processor.BatchSize <= 0 {
		err = errors.Join(err, errors.New("processor.batch_size must be greater than 0"))
	}

	if c.Processor.ClaimStaleness <= 0 {
		err = errors.Join(err, errors.New("processor.claim_staleness must be greater than 0"))
	}

	if c.Puller.Lookback <= 0 {
		err = errors.Join(err, errors.New("puller.lookback must be greater than 0"))
	}

	return err
}

func (c *Config) Print() {
	cfg := *c
	cfg.Store.Password = "*******"
	cfg.Ads.ClientSecret = "*******"
	cfg.Ads.RefreshToken = "*******"
	fmt.Printf("Config: StoreHost=%s StoreDatabase=%s AdsCustomerID=%s Topics=%d\n",
		cfg.Store.Host, cfg.Store.Database, cfg.Ads.CustomerID, len(cfg.Topics))
}

func isEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
