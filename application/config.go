package application

import (
	"time"

	"github.com/kykrueger/openbis-sub009/internal/network/compressor"
	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/graphjson/registry"
	etcdutil "github.com/kykrueger/openbis-sub009/pkg/util/etcd"
	zviper "github.com/kykrueger/openbis-sub009/pkg/util/viper"
)

// Config is the typed view of the configuration file.
//
//	codec:
//	  lookupKey: dotted
//	  scalarTypes: [Date]
//	  rejectUnknownFields: false
//	  maxDepth: 10000
//	  compression: zstd
//	  maxFrameSize: 16777216
//	  minCompressSize: 256
//	registry:
//	  schemaFile: ./types.yaml
//	  etcd:
//	    endpoints: [127.0.0.1:2379]
//	    prefix: /graphjson/types
//	    dialTimeout: 5s
//	  loader:
//	    workers: 8
//	    retryAttempts: 3
type Config struct {
	Codec    CodecConfig    `mapstructure:"codec"`
	Registry RegistryConfig `mapstructure:"registry"`
}

type CodecConfig struct {
	LookupKey           string   `mapstructure:"lookupKey"`
	ScalarTypes         []string `mapstructure:"scalarTypes"`
	RejectUnknownFields bool     `mapstructure:"rejectUnknownFields"`
	MaxDepth            int      `mapstructure:"maxDepth"`
	Compression         string   `mapstructure:"compression"`
	MaxFrameSize        uint32   `mapstructure:"maxFrameSize"`
	MinCompressSize     int      `mapstructure:"minCompressSize"`
}

type RegistryConfig struct {
	SchemaFile string       `mapstructure:"schemaFile"`
	Etcd       EtcdConfig   `mapstructure:"etcd"`
	Loader     LoaderConfig `mapstructure:"loader"`
}

// EtcdConfig enables the etcd-backed lazy registry when endpoints are given or embed is on.
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	Prefix      string        `mapstructure:"prefix"`
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`

	Embed      bool   `mapstructure:"embed"`
	ConfigPath string `mapstructure:"configPath"`
	DataDir    string `mapstructure:"dataDir"`
	LogPath    string `mapstructure:"logPath"`
	LogLevel   string `mapstructure:"logLevel"`
}

func (c EtcdConfig) Enabled() bool {
	return c.Embed || len(c.Endpoints) > 0
}

func (c EtcdConfig) client() etcdutil.Config {
	return etcdutil.Config{
		Endpoints:   c.Endpoints,
		DialTimeout: c.DialTimeout,
		Username:    c.Username,
		Password:    c.Password,
		UseEmbed:    c.Embed,
		ConfigPath:  c.ConfigPath,
		DataDir:     c.DataDir,
		LogPath:     c.LogPath,
		LogLevel:    c.LogLevel,
	}
}

type LoaderConfig struct {
	Workers       int  `mapstructure:"workers"`
	RetryAttempts uint `mapstructure:"retryAttempts"`
}

func setDefaults(cfg *zviper.Config) {
	cfg.SetDefault("codec.lookupKey", graphjson.LookupKeyDotted)
	cfg.SetDefault("codec.scalarTypes", []string{graphjson.DateType})
	cfg.SetDefault("codec.maxDepth", graphjson.DefaultMaxDepth)
	cfg.SetDefault("codec.compression", compressor.AlgorithmNone)
	cfg.SetDefault("registry.etcd.prefix", registry.DefaultEtcdPrefix)
	cfg.SetDefault("registry.loader.retryAttempts", 3)
}

// ParseConfig applies defaults and decodes cfg.
func ParseConfig(cfg *zviper.Config) (Config, error) {
	setDefaults(cfg)
	var conf Config
	if err := cfg.Unmarshal(&conf); err != nil {
		return Config{}, err
	}
	return conf, nil
}
