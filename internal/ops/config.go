package ops

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tradegw/internal/schema"
	"tradegw/internal/session"
)

// FileConfig mirrors the JSON/YAML config layout. Durations are Go
// duration strings ("5s", "250ms").
type FileConfig struct {
	Gateway  GatewayConfig      `json:"gateway" yaml:"gateway"`
	Session  SessionConfig      `json:"session" yaml:"session"`
	Feed     FeedConfig         `json:"feed" yaml:"feed"`
	Requests RequestsConfig     `json:"requests" yaml:"requests"`
	Journal  JournalConfig      `json:"journal" yaml:"journal"`
	Store    StoreConfig        `json:"store" yaml:"store"`
	Redis    RedisConfig        `json:"redis" yaml:"redis"`
	Kafka    KafkaConfig        `json:"kafka" yaml:"kafka"`
	Status   StatusConfig       `json:"status" yaml:"status"`
	Profile  ProfileConfig      `json:"profile" yaml:"profile"`
	Features FeatureFlagsConfig `json:"features" yaml:"features"`
}

// GatewayConfig identifies the gateway endpoint and this client.
type GatewayConfig struct {
	Endpoint string    `json:"endpoint" yaml:"endpoint"`
	ClientID int32     `json:"clientId" yaml:"clientId"`
	TLS      TLSConfig `json:"tls" yaml:"tls"`
}

// TLSConfig secures the gateway connection. CertFile and KeyFile name a
// client certificate pair; CAFile pins the gateway's CA.
type TLSConfig struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	CertFile           string `json:"certFile" yaml:"certFile"`
	KeyFile            string `json:"keyFile" yaml:"keyFile"`
	CAFile             string `json:"caFile" yaml:"caFile"`
	ServerName         string `json:"serverName" yaml:"serverName"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`
}

// SessionConfig tunes connection, heartbeat, and reconnect behavior.
type SessionConfig struct {
	DialTimeout       string  `json:"dialTimeout" yaml:"dialTimeout"`
	HandshakeTimeout  string  `json:"handshakeTimeout" yaml:"handshakeTimeout"`
	Heartbeat         string  `json:"heartbeat" yaml:"heartbeat"`
	MissLimit         int     `json:"missLimit" yaml:"missLimit"`
	BackoffMin        string  `json:"backoffMin" yaml:"backoffMin"`
	BackoffMax        string  `json:"backoffMax" yaml:"backoffMax"`
	BackoffFactor     float64 `json:"backoffFactor" yaml:"backoffFactor"`
	BackoffJitter     float64 `json:"backoffJitter" yaml:"backoffJitter"`
	MaxAttempts       int     `json:"maxAttempts" yaml:"maxAttempts"`
	WriteQueueSize    int     `json:"writeQueueSize" yaml:"writeQueueSize"`
	WriteRate         float64 `json:"writeRate" yaml:"writeRate"`
	WriteBurst        int     `json:"writeBurst" yaml:"writeBurst"`
	WriteTimeout      string  `json:"writeTimeout" yaml:"writeTimeout"`
	MaxPayload        uint32  `json:"maxPayload" yaml:"maxPayload"`
	OfflineOrderQueue int     `json:"offlineOrderQueue" yaml:"offlineOrderQueue"`
}

// FeedConfig sizes the market data path and names the streams the daemon
// opens at startup.
type FeedConfig struct {
	SubscriberDepth int                  `json:"subscriberDepth" yaml:"subscriberDepth"`
	EventQueueSize  int                  `json:"eventQueueSize" yaml:"eventQueueSize"`
	Subscriptions   []SubscriptionConfig `json:"subscriptions" yaml:"subscriptions"`
}

// SubscriptionConfig names one market data stream. Kind is "trades",
// "quotes", or "depth"; empty means "quotes".
type SubscriptionConfig struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Kind   string `json:"kind" yaml:"kind"`
}

// RequestsConfig bounds correlated request/response traffic.
type RequestsConfig struct {
	Ceiling int    `json:"ceiling" yaml:"ceiling"`
	Timeout string `json:"timeout" yaml:"timeout"`
}

// JournalConfig locates the order event journal.
type JournalConfig struct {
	Dir             string `json:"dir" yaml:"dir"`
	SegmentMaxBytes int64  `json:"segmentMaxBytes" yaml:"segmentMaxBytes"`
	SegmentMaxAge   string `json:"segmentMaxAge" yaml:"segmentMaxAge"`
	QueueSize       int    `json:"queueSize" yaml:"queueSize"`
}

// StoreConfig holds PostgreSQL connection parameters for the order mirror.
type StoreConfig struct {
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	User      string `json:"user" yaml:"user"`
	Password  string `json:"password" yaml:"password"`
	Database  string `json:"database" yaml:"database"`
	SSLMode   string `json:"sslMode" yaml:"sslMode"`
	QueueSize int    `json:"queueSize" yaml:"queueSize"`
}

// RedisConfig holds the snapshot mirror target.
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
	TTL       string `json:"ttl" yaml:"ttl"`
}

// KafkaConfig holds the order event publisher target.
type KafkaConfig struct {
	Brokers   []string `json:"brokers" yaml:"brokers"`
	Topic     string   `json:"topic" yaml:"topic"`
	QueueSize int      `json:"queueSize" yaml:"queueSize"`
}

// StatusConfig exposes the HTTP status endpoint. An empty addr disables it.
type StatusConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// ProfileConfig enables continuous profiling. An empty server address
// disables it.
type ProfileConfig struct {
	ServerAddress string `json:"serverAddress" yaml:"serverAddress"`
	AppName       string `json:"appName" yaml:"appName"`
}

// FeatureFlagsConfig captures optional runtime flags.
type FeatureFlagsConfig struct {
	EnableJournal *bool `json:"enableJournal" yaml:"enableJournal"`
	EnableStore   *bool `json:"enableStore" yaml:"enableStore"`
	EnableRedis   *bool `json:"enableRedis" yaml:"enableRedis"`
	EnableKafka   *bool `json:"enableKafka" yaml:"enableKafka"`
}

// FeatureFlags are resolved runtime flags.
type FeatureFlags struct {
	Journal bool
	Store   bool
	Redis   bool
	Kafka   bool
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Gateway  GatewaySettings
	Session  SessionSettings
	Feed     FeedSettings
	Requests RequestSettings
	Journal  JournalSettings
	Store    StoreSettings
	Redis    RedisSettings
	Kafka    KafkaSettings
	Status   StatusSettings
	Profile  ProfileSettings
	Features FeatureFlags
}

// GatewaySettings is the resolved gateway identity.
type GatewaySettings struct {
	Endpoint string
	ClientID int32
	// TLS is nil when the connection is plaintext.
	TLS *tls.Config
}

// SessionSettings is the resolved session tuning.
type SessionSettings struct {
	DialTimeout       time.Duration
	HandshakeTimeout  time.Duration
	Heartbeat         time.Duration
	MissLimit         int
	Backoff           session.Backoff
	MaxAttempts       int
	WriteQueueSize    int
	WriteRate         float64
	WriteBurst        int
	WriteTimeout      time.Duration
	MaxPayload        uint32
	OfflineOrderQueue int
}

// FeedSettings is the resolved market data sizing and startup streams.
type FeedSettings struct {
	SubscriberDepth int
	EventQueueSize  int
	Subscriptions   []SubscriptionSetting
}

// SubscriptionSetting is one resolved startup stream.
type SubscriptionSetting struct {
	Symbol string
	Kind   schema.TickKind
}

// RequestSettings is the resolved request/response bound.
type RequestSettings struct {
	Ceiling int
	Timeout time.Duration
}

// JournalSettings is the resolved journal placement.
type JournalSettings struct {
	Dir             string
	SegmentMaxBytes int64
	SegmentMaxAge   time.Duration
	QueueSize       int
}

// StoreSettings is the resolved PostgreSQL target.
type StoreSettings struct {
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
	SSLMode   string
	QueueSize int
}

// RedisSettings is the resolved snapshot mirror target.
type RedisSettings struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// KafkaSettings is the resolved order event publisher target.
type KafkaSettings struct {
	Brokers   []string
	Topic     string
	QueueSize int
}

// StatusSettings is the resolved status endpoint.
type StatusSettings struct {
	Addr string
}

// ProfileSettings is the resolved profiling target.
type ProfileSettings struct {
	ServerAddress string
	AppName       string
}

// Load reads an optional JSON or YAML config file, applies .env and
// TRADEGW_* environment overrides, and resolves defaults. An empty path
// yields the built-in defaults.
func Load(path string) (Loaded, error) {
	_ = godotenv.Load()

	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := unmarshalConfig(path, data, &cfg); err != nil {
			return Loaded{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)

	gateway, err := resolveGateway(cfg.Gateway)
	if err != nil {
		return Loaded{}, err
	}
	sess, err := resolveSession(cfg.Session)
	if err != nil {
		return Loaded{}, err
	}
	feed, err := resolveFeed(cfg.Feed)
	if err != nil {
		return Loaded{}, err
	}
	requests, err := resolveRequests(cfg.Requests)
	if err != nil {
		return Loaded{}, err
	}
	journal, err := resolveJournal(cfg.Journal)
	if err != nil {
		return Loaded{}, err
	}
	redis, err := resolveRedis(cfg.Redis)
	if err != nil {
		return Loaded{}, err
	}
	features := resolveFeatures(cfg.Features)
	store, err := resolveStore(cfg.Store, features.Store)
	if err != nil {
		return Loaded{}, err
	}
	kafka, err := resolveKafka(cfg.Kafka, features.Kafka)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{
		Gateway:  gateway,
		Session:  sess,
		Feed:     feed,
		Requests: requests,
		Journal:  journal,
		Store:    store,
		Redis:    redis,
		Kafka:    kafka,
		Status:   StatusSettings{Addr: cfg.Status.Addr},
		Profile:  resolveProfile(cfg.Profile),
		Features: features,
	}, nil
}

func unmarshalConfig(path string, data []byte, cfg *FileConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return sonic.Unmarshal(data, cfg)
	}
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("TRADEGW_ENDPOINT"); v != "" {
		cfg.Gateway.Endpoint = v
	}
	if v := os.Getenv("TRADEGW_CLIENT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.Gateway.ClientID = int32(id)
		}
	}
	if v := os.Getenv("TRADEGW_HEARTBEAT"); v != "" {
		cfg.Session.Heartbeat = v
	}
	if v := os.Getenv("TRADEGW_STATUS_ADDR"); v != "" {
		cfg.Status.Addr = v
	}
	if v := os.Getenv("TRADEGW_JOURNAL_DIR"); v != "" {
		cfg.Journal.Dir = v
	}
	if v := os.Getenv("TRADEGW_PG_HOST"); v != "" {
		cfg.Store.Host = v
	}
	if v := os.Getenv("TRADEGW_PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Store.Port = port
		}
	}
	if v := os.Getenv("TRADEGW_PG_USER"); v != "" {
		cfg.Store.User = v
	}
	if v := os.Getenv("TRADEGW_PG_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("TRADEGW_PG_DATABASE"); v != "" {
		cfg.Store.Database = v
	}
	if v := os.Getenv("TRADEGW_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TRADEGW_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitAndTrim(v)
	}
	if v := os.Getenv("TRADEGW_PROFILE_ADDR"); v != "" {
		cfg.Profile.ServerAddress = v
	}
}

func resolveGateway(cfg GatewayConfig) (GatewaySettings, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "127.0.0.1:4002"
	}
	if cfg.ClientID == 0 {
		cfg.ClientID = 1
	}
	if cfg.ClientID < 0 {
		return GatewaySettings{}, fmt.Errorf("gateway clientId must be > 0")
	}
	tlsConf, err := resolveTLS(cfg.TLS)
	if err != nil {
		return GatewaySettings{}, err
	}
	return GatewaySettings{Endpoint: cfg.Endpoint, ClientID: cfg.ClientID, TLS: tlsConf}, nil
}

func resolveTLS(cfg TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, fmt.Errorf("gateway tls certFile and keyFile must be set together")
	}
	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("gateway tls key pair: %w", err)
		}
		out.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("gateway tls ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("gateway tls ca %s holds no certificates", cfg.CAFile)
		}
		out.RootCAs = pool
	}
	return out, nil
}

func resolveSession(cfg SessionConfig) (SessionSettings, error) {
	dialTimeout, err := parseDuration("session dialTimeout", cfg.DialTimeout, 5*time.Second)
	if err != nil {
		return SessionSettings{}, err
	}
	handshakeTimeout, err := parseDuration("session handshakeTimeout", cfg.HandshakeTimeout, 5*time.Second)
	if err != nil {
		return SessionSettings{}, err
	}
	heartbeat, err := parseDuration("session heartbeat", cfg.Heartbeat, 5*time.Second)
	if err != nil {
		return SessionSettings{}, err
	}
	if heartbeat <= 0 {
		return SessionSettings{}, fmt.Errorf("session heartbeat must be > 0")
	}
	backoffMin, err := parseDuration("session backoffMin", cfg.BackoffMin, 500*time.Millisecond)
	if err != nil {
		return SessionSettings{}, err
	}
	backoffMax, err := parseDuration("session backoffMax", cfg.BackoffMax, 30*time.Second)
	if err != nil {
		return SessionSettings{}, err
	}
	if backoffMax < backoffMin {
		return SessionSettings{}, fmt.Errorf("session backoffMax must be >= backoffMin")
	}
	writeTimeout, err := parseDuration("session writeTimeout", cfg.WriteTimeout, 3*time.Second)
	if err != nil {
		return SessionSettings{}, err
	}
	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = 2
	}
	if cfg.BackoffJitter == 0 {
		cfg.BackoffJitter = 0.2
	}
	if cfg.BackoffJitter < 0 || cfg.BackoffJitter > 1 {
		return SessionSettings{}, fmt.Errorf("session backoffJitter must be in [0, 1]")
	}
	if cfg.MissLimit <= 0 {
		cfg.MissLimit = 3
	}
	if cfg.WriteQueueSize <= 0 {
		cfg.WriteQueueSize = 1024
	}
	if cfg.MaxPayload == 0 {
		cfg.MaxPayload = 1 << 20
	}
	if cfg.OfflineOrderQueue < 0 {
		return SessionSettings{}, fmt.Errorf("session offlineOrderQueue must be >= 0")
	}
	if cfg.OfflineOrderQueue == 0 {
		cfg.OfflineOrderQueue = 256
	}
	return SessionSettings{
		DialTimeout:      dialTimeout,
		HandshakeTimeout: handshakeTimeout,
		Heartbeat:        heartbeat,
		MissLimit:        cfg.MissLimit,
		Backoff: session.Backoff{
			Min:    backoffMin,
			Max:    backoffMax,
			Factor: cfg.BackoffFactor,
			Jitter: cfg.BackoffJitter,
		},
		MaxAttempts:       cfg.MaxAttempts,
		WriteQueueSize:    cfg.WriteQueueSize,
		WriteRate:         cfg.WriteRate,
		WriteBurst:        cfg.WriteBurst,
		WriteTimeout:      writeTimeout,
		MaxPayload:        cfg.MaxPayload,
		OfflineOrderQueue: cfg.OfflineOrderQueue,
	}, nil
}

func resolveFeed(cfg FeedConfig) (FeedSettings, error) {
	if cfg.SubscriberDepth < 0 || cfg.EventQueueSize < 0 {
		return FeedSettings{}, fmt.Errorf("feed queue sizes must be >= 0")
	}
	if cfg.SubscriberDepth == 0 {
		cfg.SubscriberDepth = 512
	}
	if cfg.EventQueueSize == 0 {
		cfg.EventQueueSize = 1024
	}
	subs := make([]SubscriptionSetting, 0, len(cfg.Subscriptions))
	for _, sub := range cfg.Subscriptions {
		if sub.Symbol == "" || len(sub.Symbol) > len(schema.Str16{}) {
			return FeedSettings{}, fmt.Errorf("feed subscription symbol %q must be 1-16 chars", sub.Symbol)
		}
		kind := schema.TickKindQuotes
		if sub.Kind != "" {
			kind = schema.ParseTickKind(sub.Kind)
			if kind == schema.TickKindUnknown {
				return FeedSettings{}, fmt.Errorf("feed subscription kind %q is unknown", sub.Kind)
			}
		}
		subs = append(subs, SubscriptionSetting{Symbol: sub.Symbol, Kind: kind})
	}
	return FeedSettings{
		SubscriberDepth: cfg.SubscriberDepth,
		EventQueueSize:  cfg.EventQueueSize,
		Subscriptions:   subs,
	}, nil
}

func resolveRequests(cfg RequestsConfig) (RequestSettings, error) {
	timeout, err := parseDuration("requests timeout", cfg.Timeout, 5*time.Second)
	if err != nil {
		return RequestSettings{}, err
	}
	if timeout <= 0 {
		return RequestSettings{}, fmt.Errorf("requests timeout must be > 0")
	}
	if cfg.Ceiling < 0 {
		return RequestSettings{}, fmt.Errorf("requests ceiling must be >= 0")
	}
	if cfg.Ceiling == 0 {
		cfg.Ceiling = 256
	}
	return RequestSettings{Ceiling: cfg.Ceiling, Timeout: timeout}, nil
}

func resolveJournal(cfg JournalConfig) (JournalSettings, error) {
	maxAge, err := parseDuration("journal segmentMaxAge", cfg.SegmentMaxAge, 0)
	if err != nil {
		return JournalSettings{}, err
	}
	if cfg.Dir == "" {
		cfg.Dir = "./data/journal"
	}
	if cfg.SegmentMaxBytes < 0 || cfg.QueueSize < 0 {
		return JournalSettings{}, fmt.Errorf("journal sizes must be >= 0")
	}
	return JournalSettings{
		Dir:             cfg.Dir,
		SegmentMaxBytes: cfg.SegmentMaxBytes,
		SegmentMaxAge:   maxAge,
		QueueSize:       cfg.QueueSize,
	}, nil
}

func resolveStore(cfg StoreConfig, enabled bool) (StoreSettings, error) {
	if enabled && cfg.Database == "" {
		return StoreSettings{}, fmt.Errorf("store database is empty")
	}
	if enabled && cfg.User == "" {
		return StoreSettings{}, fmt.Errorf("store user is empty")
	}
	return StoreSettings{
		Host:      cfg.Host,
		Port:      cfg.Port,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		SSLMode:   cfg.SSLMode,
		QueueSize: cfg.QueueSize,
	}, nil
}

func resolveRedis(cfg RedisConfig) (RedisSettings, error) {
	ttl, err := parseDuration("redis ttl", cfg.TTL, 30*time.Second)
	if err != nil {
		return RedisSettings{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "tradegw"
	}
	if cfg.DB < 0 {
		return RedisSettings{}, fmt.Errorf("redis db must be >= 0")
	}
	return RedisSettings{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		KeyPrefix: cfg.KeyPrefix,
		TTL:       ttl,
	}, nil
}

func resolveKafka(cfg KafkaConfig, enabled bool) (KafkaSettings, error) {
	if enabled && len(cfg.Brokers) == 0 {
		return KafkaSettings{}, fmt.Errorf("kafka brokers are empty")
	}
	if cfg.Topic == "" {
		cfg.Topic = "tradegw.orders"
	}
	if cfg.QueueSize < 0 {
		return KafkaSettings{}, fmt.Errorf("kafka queueSize must be >= 0")
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1024
	}
	return KafkaSettings{
		Brokers:   cfg.Brokers,
		Topic:     cfg.Topic,
		QueueSize: cfg.QueueSize,
	}, nil
}

func resolveProfile(cfg ProfileConfig) ProfileSettings {
	if cfg.AppName == "" {
		cfg.AppName = "tradegw"
	}
	return ProfileSettings{
		ServerAddress: cfg.ServerAddress,
		AppName:       cfg.AppName,
	}
}

func resolveFeatures(cfg FeatureFlagsConfig) FeatureFlags {
	flags := FeatureFlags{Journal: true}
	if cfg.EnableJournal != nil {
		flags.Journal = *cfg.EnableJournal
	}
	if cfg.EnableStore != nil {
		flags.Store = *cfg.EnableStore
	}
	if cfg.EnableRedis != nil {
		flags.Redis = *cfg.EnableRedis
	}
	if cfg.EnableKafka != nil {
		flags.Kafka = *cfg.EnableKafka
	}
	return flags
}

func parseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", name, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", name)
	}
	return d, nil
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
