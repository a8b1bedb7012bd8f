package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
)

// EnvPrefix prefixes every environment variable the Loader reads, so
// reactor.pool.min is REACTORFLOW_REACTOR_POOL_MIN.
const EnvPrefix = "REACTORFLOW"

// Configuration keys. Nested YAML maps onto the dotted form.
const (
	KeyConfigFile = "reactor.config.file"

	KeyName       = "reactor.name"
	KeyEndpoint   = "reactor.endpoint"
	KeyChannel    = "reactor.channel"
	KeyLookupURL  = "reactor.lookup.url"
	KeyLookupPath = "reactor.lookup.path"

	KeyDispatchMode = "reactor.dispatch.mode"
	KeyRingCapacity = "reactor.dispatch.ring"
	KeyIdle         = "reactor.dispatch.idle"
	KeyIdleSleep    = "reactor.dispatch.sleep"
	KeyCPUs         = "reactor.dispatch.cpus"

	KeyPoolStrategy = "reactor.pool.strategy"
	KeyPoolMin      = "reactor.pool.min"
	KeyPoolMax      = "reactor.pool.max"

	KeyTransport          = "transport.system"
	KeyKafkaBrokers       = "transport.kafka.brokers"
	KeyKafkaClientID      = "transport.kafka.clientid"
	KeyKafkaConsumerGroup = "transport.kafka.group"
	KeyRabbitMQURL        = "transport.rabbitmq.url"
	KeyNATSURL            = "transport.nats.url"
	KeyHTTPAddress        = "transport.http.address"
	KeyHTTPPublisherURL   = "transport.http.publisher"
	KeyIOFile             = "transport.io.file"
	KeyAWSRegion          = "transport.aws.region"
	KeyAWSAccountID       = "transport.aws.accountid"
	KeyAWSAccessKeyID     = "transport.aws.accesskey"
	KeyAWSSecretKey       = "transport.aws.secretkey"
	KeyAWSEndpoint        = "transport.aws.endpoint"

	KeyRetryMax         = "retry.max"
	KeyRetryInitial     = "retry.initial"
	KeyRetryMaxInterval = "retry.maxinterval"

	KeyAdminEnabled   = "admin.enabled"
	KeyAdminPort      = "admin.port"
	KeyAdminCORS      = "admin.cors"
	KeyMetricsEnabled = "metrics.enabled"

	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
)

const poolPrefix = "reactor.pool."

// Loader resolves a Config from, in increasing precedence: built-in
// defaults, a YAML file, REACTORFLOW_* environment variables (optionally
// seeded from .env files) and explicit overrides.
type Loader struct {
	v        *viper.Viper
	envFiles []string
	environ  func() []string
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithEnvFiles replaces the dotenv files read before resolving. Missing files
// are ignored.
func WithEnvFiles(files ...string) LoaderOption {
	return func(l *Loader) { l.envFiles = files }
}

func NewLoader(opts ...LoaderOption) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	l := &Loader{
		v:        v,
		envFiles: []string{".env", ".env.local"},
		environ:  os.Environ,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.setDefaults()
	return l
}

// Viper exposes the underlying instance so a CLI can bind flags to keys.
func (l *Loader) Viper() *viper.Viper { return l.v }

func (l *Loader) setDefaults() {
	d := Default()
	l.v.SetDefault(KeyEndpoint, d.Endpoint)
	l.v.SetDefault(KeyLookupURL, d.LookupURL)
	l.v.SetDefault(KeyLookupPath, d.LookupPath)
	l.v.SetDefault(KeyDispatchMode, d.DispatchMode)
	l.v.SetDefault(KeyRingCapacity, d.RingCapacity)
	l.v.SetDefault(KeyIdle, d.IdleStrategy)
	l.v.SetDefault(KeyIdleSleep, d.IdleSleep)
	l.v.SetDefault(KeyPoolStrategy, d.PoolStrategy)
	l.v.SetDefault(KeyPoolMin, d.Pool.Min)
	l.v.SetDefault(KeyPoolMax, d.Pool.Max)
	l.v.SetDefault(KeyTransport, d.PubSubSystem)
	l.v.SetDefault(KeyAdminPort, d.AdminPort)
	l.v.SetDefault(KeyLogLevel, d.LogLevel)
	l.v.SetDefault(KeyLogFormat, d.LogFormat)
}

// Load reads file (or the file named by reactor.config.file when file is
// empty), applies overrides and returns the resolved config. The result is
// not validated.
func (l *Loader) Load(file string, overrides map[string]string) (Config, error) {
	for _, f := range l.envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: env file %s: %v", errspkg.ErrConfiguration, f, err)
		}
	}

	if file == "" {
		file = l.v.GetString(KeyConfigFile)
	}
	if file != "" {
		l.v.SetConfigFile(file)
		if err := l.v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", errspkg.ErrConfiguration, file, err)
		}
	}

	for key, value := range overrides {
		l.v.Set(strings.ToLower(key), value)
	}

	return l.resolve()
}

func (l *Loader) resolve() (Config, error) {
	v := l.v
	cpus, err := intList(v.Get(KeyCPUs))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", errspkg.ErrConfiguration, KeyCPUs, err)
	}

	cfg := Config{
		Name:         v.GetString(KeyName),
		Endpoint:     v.GetString(KeyEndpoint),
		Channel:      v.GetInt32(KeyChannel),
		LookupURL:    v.GetString(KeyLookupURL),
		LookupPath:   v.GetString(KeyLookupPath),
		DispatchMode: v.GetString(KeyDispatchMode),
		RingCapacity: v.GetInt(KeyRingCapacity),
		IdleStrategy: v.GetString(KeyIdle),
		IdleSleep:    v.GetDuration(KeyIdleSleep),
		CPUs:         cpus,
		PoolStrategy: v.GetString(KeyPoolStrategy),
		Pool:         PoolSize{Min: v.GetInt(KeyPoolMin), Max: v.GetInt(KeyPoolMax)},

		PubSubSystem:       v.GetString(KeyTransport),
		KafkaBrokers:       stringList(v.Get(KeyKafkaBrokers)),
		KafkaClientID:      v.GetString(KeyKafkaClientID),
		KafkaConsumerGroup: v.GetString(KeyKafkaConsumerGroup),
		RabbitMQURL:        v.GetString(KeyRabbitMQURL),
		NATSURL:            v.GetString(KeyNATSURL),
		HTTPServerAddress:  v.GetString(KeyHTTPAddress),
		HTTPPublisherURL:   v.GetString(KeyHTTPPublisherURL),
		IOFile:             v.GetString(KeyIOFile),
		AWSRegion:          v.GetString(KeyAWSRegion),
		AWSAccountID:       v.GetString(KeyAWSAccountID),
		AWSAccessKeyID:     v.GetString(KeyAWSAccessKeyID),
		AWSSecretAccessKey: v.GetString(KeyAWSSecretKey),
		AWSEndpoint:        v.GetString(KeyAWSEndpoint),

		RetryMaxRetries:      v.GetInt(KeyRetryMax),
		RetryInitialInterval: v.GetDuration(KeyRetryInitial),
		RetryMaxInterval:     v.GetDuration(KeyRetryMaxInterval),

		AdminEnabled:            v.GetBool(KeyAdminEnabled),
		AdminPort:               v.GetInt(KeyAdminPort),
		MetricsEnabled:          v.GetBool(KeyMetricsEnabled),
		AdminCORSAllowedOrigins: stringList(v.Get(KeyAdminCORS)),

		LogLevel:  v.GetString(KeyLogLevel),
		LogFormat: v.GetString(KeyLogFormat),
	}

	for _, name := range l.poolTypes() {
		p := cfg.Pool
		if key := poolPrefix + name + ".min"; v.IsSet(key) {
			p.Min = v.GetInt(key)
		}
		if key := poolPrefix + name + ".max"; v.IsSet(key) {
			p.Max = v.GetInt(key)
		}
		if cfg.PoolOverrides == nil {
			cfg.PoolOverrides = make(map[string]PoolSize)
		}
		cfg.PoolOverrides[name] = p
	}
	return cfg, nil
}

// poolTypes lists the message types with a pool override in any layer:
// reactor.pool.<type>.min|max keys or REACTORFLOW_REACTOR_POOL_<TYPE>_MIN|MAX.
func (l *Loader) poolTypes() []string {
	seen := map[string]struct{}{}
	for _, key := range l.v.AllKeys() {
		if name, ok := poolTypeFromKey(key); ok {
			seen[name] = struct{}{}
		}
	}
	envPrefix := EnvPrefix + "_REACTOR_POOL_"
	for _, kv := range l.environ() {
		key, _, _ := strings.Cut(kv, "=")
		rest, ok := strings.CutPrefix(key, envPrefix)
		if !ok {
			continue
		}
		for _, suffix := range []string{"_min", "_max"} {
			if name, ok := strings.CutSuffix(strings.ToLower(rest), suffix); ok && name != "" {
				seen[name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func poolTypeFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, poolPrefix)
	if !ok {
		return "", false
	}
	name, field, ok := strings.Cut(rest, ".")
	if !ok || name == "" || strings.Contains(field, ".") {
		return "", false
	}
	return name, field == "min" || field == "max"
}

// ParseOverrides turns key=value pairs, as given to --set, into an override
// map.
func ParseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: override %q is not key=value", errspkg.ErrConfiguration, pair)
		}
		out[strings.ToLower(key)] = strings.TrimSpace(value)
	}
	return out, nil
}

// stringList accepts YAML sequences as well as comma separated strings from
// the environment or overrides.
func stringList(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case []any:
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
	default:
		parts = []string{fmt.Sprint(v)}
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func intList(raw any) ([]int, error) {
	if ints, ok := raw.([]int); ok {
		return ints, nil
	}
	strs := stringList(raw)
	if len(strs) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(strs))
	for _, s := range strs {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
