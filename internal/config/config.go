package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDebugMode                = false
	DefaultLogFormat                = "text"
	DefaultServerPort               = "8080"
	DefaultServerReadTimeout        = 10 * time.Second
	DefaultServerWriteTimeout       = 10 * time.Second
	DefaultServerIdleTimeout        = 120 * time.Second
	DefaultServerShutdownTimeout    = 10 * time.Second
	DefaultServerPPROFEnabled       = false
	DefaultStorageType              = StorageTypeMock
	DefaultEtcdAddrList             = "http://localhost:2379"
	DefaultEtcdTLSEnabled           = false
	DefaultEtcdServerCACertPath     = "/etc/etcd/ca.crt"
	DefaultEtcdServerClientCertPath = "/etc/etcd/client.crt"
	DefaultEtcdServerClientKeyPath  = "/etc/etcd/client.key"
	DefaultEtcdDialTimeout          = 5 * time.Second
	DefaultEtcdRequestTimeout       = 5 * time.Second
	DefaultCacheEnabled             = false
	DefaultCacheSize                = 1000
	DefaultCacheTTL                 = 30 * time.Second
	DefaultStrictTerms              = false
	DefaultFaucetEnabled            = false
	DefaultRateLimitEnabled         = false
	DefaultRateLimitRPS             = 20.0
	DefaultRateLimitBurst           = 40
)

const (
	StorageTypeEtcd = "etcd"
	StorageTypeMock = "mock"
)

type Config struct {
	Server    ServerCfg
	Storage   StorageCfg
	Cache     CacheCfg
	Escrow    EscrowCfg
	Custody   CustodyCfg
	RateLimit RateLimitCfg
	Debug     bool
	LogFormat string
}

type ServerCfg struct {
	Port         string
	PPROFEnabled bool
	Timeout      ServerTimeout
}

type ServerTimeout struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

type StorageCfg struct {
	Type string
	Etcd EtcdCfg
}

type EtcdCfg struct {
	EtcdAddrList         []string
	TLSEnabled           bool
	ServerCACertPath     string
	ServerClientCertPath string
	ServerClientKeyPath  string
	DialTimeout          time.Duration
	RequestTimeout       time.Duration
}

type CacheCfg struct {
	Enabled bool
	Size    int
	TTL     time.Duration
}

// EscrowCfg toggles ledger behaviour that deviates from the permissive defaults.
type EscrowCfg struct {
	StrictTerms bool
}

type CustodyCfg struct {
	FaucetEnabled bool
}

type RateLimitCfg struct {
	Enabled bool
	RPS     float64
	Burst   int
}

func NewConfig() *Config {
	etcdEndpointsList, err := checkEtcdEndpointsList(getEnv("RENTAL_DEPOSIT_ETCD_ADDR_LIST", DefaultEtcdAddrList))
	if err != nil {
		log.Fatal(err)
	}

	return &Config{
		Server: ServerCfg{
			Port:         getEnv("RENTAL_DEPOSIT_SERVER_PORT", DefaultServerPort),
			PPROFEnabled: getEnv("RENTAL_DEPOSIT_PPROF_ENABLED", DefaultServerPPROFEnabled),
			Timeout: ServerTimeout{
				Read:     getEnv("RENTAL_DEPOSIT_SERVER_READ_TIMEOUT", DefaultServerReadTimeout),
				Write:    getEnv("RENTAL_DEPOSIT_SERVER_WRITE_TIMEOUT", DefaultServerWriteTimeout),
				Idle:     getEnv("RENTAL_DEPOSIT_SERVER_IDLE_TIMEOUT", DefaultServerIdleTimeout),
				Shutdown: getEnv("RENTAL_DEPOSIT_SERVER_SHUTDOWN_TIMEOUT", DefaultServerShutdownTimeout),
			},
		},
		Storage: StorageCfg{
			Type: getEnv("RENTAL_DEPOSIT_STORAGE_TYPE", DefaultStorageType),
			Etcd: EtcdCfg{
				EtcdAddrList:         etcdEndpointsList,
				TLSEnabled:           getEnv("RENTAL_DEPOSIT_ETCD_TLS", DefaultEtcdTLSEnabled),
				ServerCACertPath:     getEnv("RENTAL_DEPOSIT_CA_CERT_PATH", DefaultEtcdServerCACertPath),
				ServerClientCertPath: getEnv("RENTAL_DEPOSIT_CLIENT_CERT_PATH", DefaultEtcdServerClientCertPath),
				ServerClientKeyPath:  getEnv("RENTAL_DEPOSIT_CLIENT_KEY_PATH", DefaultEtcdServerClientKeyPath),
				DialTimeout:          getEnv("RENTAL_DEPOSIT_ETCD_DIAL_TIMEOUT", DefaultEtcdDialTimeout),
				RequestTimeout:       getEnv("RENTAL_DEPOSIT_ETCD_REQUEST_TIMEOUT", DefaultEtcdRequestTimeout),
			},
		},
		Cache: CacheCfg{
			Enabled: getEnv("RENTAL_DEPOSIT_CACHE_ENABLED", DefaultCacheEnabled),
			Size:    getEnv("RENTAL_DEPOSIT_CACHE_SIZE", DefaultCacheSize),
			TTL:     getEnv("RENTAL_DEPOSIT_CACHE_TTL", DefaultCacheTTL),
		},
		Escrow: EscrowCfg{
			StrictTerms: getEnv("RENTAL_DEPOSIT_STRICT_TERMS", DefaultStrictTerms),
		},
		Custody: CustodyCfg{
			FaucetEnabled: getEnv("RENTAL_DEPOSIT_FAUCET_ENABLED", DefaultFaucetEnabled),
		},
		RateLimit: RateLimitCfg{
			Enabled: getEnv("RENTAL_DEPOSIT_RATE_LIMIT_ENABLED", DefaultRateLimitEnabled),
			RPS:     getEnv("RENTAL_DEPOSIT_RATE_LIMIT_RPS", DefaultRateLimitRPS),
			Burst:   getEnv("RENTAL_DEPOSIT_RATE_LIMIT_BURST", DefaultRateLimitBurst),
		},
		Debug:     getEnv("RENTAL_DEPOSIT_DEBUG", DefaultDebugMode),
		LogFormat: getEnv("RENTAL_DEPOSIT_LOG_FORMAT", DefaultLogFormat),
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageTypeEtcd, StorageTypeMock:
	default:
		return fmt.Errorf("unsupported storage type: %v", c.Storage.Type)
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive, got %d", c.Cache.Size)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive, got rps=%v burst=%d", c.RateLimit.RPS, c.RateLimit.Burst)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unsupported log format: %v", c.LogFormat)
	}

	return nil
}

func getEnv[T any](key string, defaultVal T) T {
	if value, exists := os.LookupEnv(key); exists {
		switch any(defaultVal).(type) {
		case string:
			return any(value).(T)
		case int:
			if intVal, err := strconv.Atoi(value); err == nil {
				return any(intVal).(T)
			}
		case bool:
			if boolVal, err := strconv.ParseBool(value); err == nil {
				return any(boolVal).(T)
			}
		case float64:
			if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
				return any(floatVal).(T)
			}
		case time.Duration:
			if durationVal, err := time.ParseDuration(value); err == nil {
				return any(durationVal).(T)
			}
		}
	}

	return defaultVal
}

func checkEtcdEndpointsList(etcdEndpointsList string) ([]string, error) {
	etcdEndpoints := strings.Split(etcdEndpointsList, ",")
	if len(etcdEndpoints) == 0 {
		return nil, fmt.Errorf("no etcd endpoints provided")
	}
	if strings.ContainsAny(etcdEndpointsList, ";|") {
		return nil, fmt.Errorf("invalid separator in etcd endpoints. Use comma (,) to separate endpoints")
	}

	for i, endpoint := range etcdEndpoints {
		if endpoint = strings.TrimSpace(endpoint); endpoint == "" {
			return nil, fmt.Errorf("empty etcd endpoint provided")
		}
		etcdEndpoints[i] = endpoint
	}

	return etcdEndpoints, nil
}
