package application

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/kykrueger/openbis-sub009/internal/network/codec"
	"github.com/kykrueger/openbis-sub009/internal/network/compressor"
	"github.com/kykrueger/openbis-sub009/internal/network/framer"
	"github.com/kykrueger/openbis-sub009/internal/network/serializer"
	"github.com/kykrueger/openbis-sub009/pkg/graphjson"
	"github.com/kykrueger/openbis-sub009/pkg/graphjson/registry"
	zlog "github.com/kykrueger/openbis-sub009/pkg/log"
	"github.com/kykrueger/openbis-sub009/pkg/metrics"
	etcdutil "github.com/kykrueger/openbis-sub009/pkg/util/etcd"
	"github.com/kykrueger/openbis-sub009/pkg/util/merr"
	zviper "github.com/kykrueger/openbis-sub009/pkg/util/viper"
)

const (
	// DefaultConfigPath is used when neither the env var nor --config is given.
	DefaultConfigPath = "./graphjson.yaml"
	ConfigPathEnv     = "GRAPHJSON_CONFIG_FILE_PATH"

	// Named loggers looked up in the "logging" section.
	CodecLoggerName    = "codec"
	RegistryLoggerName = "registry"
)

// Application owns configuration and the assembled codec components.
type Application struct {
	cfg     *zviper.Config
	conf    Config
	loggers map[string]*zlog.MLogger

	registry   graphjson.TypeRegistry
	static     *registry.Static
	lazy       *registry.Lazy
	etcdClient *clientv3.Client

	encoder    *graphjson.Encoder
	decoder    *graphjson.Decoder
	compressor compressor.Compressor
	serializer *serializer.GraphSerializer
	codec      codec.Codec
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run parses os.Args for the config path and starts the application.
// Priority of the config path:
//  1. Default: ./graphjson.yaml
//  2. Env: GRAPHJSON_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
func (a *Application) Run() error {
	path, err := ConfigPathFromArgs(os.Args[1:])
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	return a.Init(cfg)
}

// ConfigPathFromArgs resolves the config path from env and args.
func ConfigPathFromArgs(args []string) (string, error) {
	configPath := DefaultConfigPath
	if envPath := os.Getenv(ConfigPathEnv); envPath != "" {
		configPath = envPath
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return "", fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				configPath = val
			}
		}
	}
	return configPath, nil
}

// LoadConfig loads the file at path. A missing default file yields an empty config.
func LoadConfig(path string) (*zviper.Config, error) {
	cfg := zviper.New()
	if path == DefaultConfigPath {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}
	if err := cfg.LoadFile(path); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", path, err)
	}
	return cfg, nil
}

// Init sets up logging and builds the registry and codec from cfg.
func (a *Application) Init(cfg *zviper.Config) error {
	if cfg == nil {
		cfg = zviper.New()
	}
	a.cfg = cfg

	conf, err := ParseConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "parse config")
	}
	a.conf = conf

	if err := a.initLogging(); err != nil {
		return err
	}
	metrics.Register(metrics.GetRegisterer())

	if err := a.initRegistry(); err != nil {
		a.Close()
		return err
	}
	if err := a.initCodec(); err != nil {
		a.Close()
		return err
	}
	zlog.Info("graphjson application initialized",
		zap.String("lookupKey", conf.Codec.LookupKey),
		zap.String("compression", a.compressor.Algorithm()),
		zap.Bool("etcd", conf.Registry.Etcd.Enabled()))
	return nil
}

func (a *Application) initRegistry() error {
	lookupKey, err := graphjson.LookupKeyByName(a.conf.Codec.LookupKey)
	if err != nil {
		return err
	}

	a.static = registry.NewStatic(registry.WithKeyFunc(lookupKey))
	if file := a.conf.Registry.SchemaFile; file != "" {
		defs, err := registry.LoadSchemaFile(file)
		if err != nil {
			return err
		}
		if err := a.static.RegisterDefinitions(defs...); err != nil {
			return err
		}
	}
	registries := []graphjson.TypeRegistry{a.static}

	if etcdConf := a.conf.Registry.Etcd; etcdConf.Enabled() {
		cli, err := etcdutil.GetEtcdClient(etcdConf.client())
		if err != nil {
			return err
		}
		a.etcdClient = cli
		loader := registry.NewEtcdLoader(cli, etcdConf.Prefix, etcdConf.Timeout)
		a.lazy = registry.NewLazy(loader,
			registry.WithWorkers(a.conf.Registry.Loader.Workers),
			registry.WithRetryAttempts(a.conf.Registry.Loader.RetryAttempts),
			registry.WithLazyLogger(a.Logger(RegistryLoggerName)),
		)
		registries = append(registries, a.lazy)
	}

	a.registry = registry.NewChain(registries...)
	return nil
}

func (a *Application) initCodec() error {
	c := a.conf.Codec
	lookupKey, err := graphjson.LookupKeyByName(c.LookupKey)
	if err != nil {
		return err
	}
	logger := a.Logger(CodecLoggerName)

	a.encoder = graphjson.NewEncoder(
		graphjson.WithEncoderMaxDepth(c.MaxDepth),
		graphjson.WithEncoderLogger(logger),
	)
	a.decoder = graphjson.NewDecoder(a.registry,
		graphjson.WithLookupKey(lookupKey),
		graphjson.WithScalarTypes(c.ScalarTypes...),
		graphjson.WithRejectUnknownFields(c.RejectUnknownFields),
		graphjson.WithMaxDepth(c.MaxDepth),
		graphjson.WithLogger(logger),
	)

	a.compressor, err = compressor.New(c.Compression)
	if err != nil {
		return err
	}
	a.serializer = serializer.NewGraphSerializer(a.encoder, a.decoder, nil)
	a.codec, err = a.newCodec(a.serializer)
	return err
}

func (a *Application) newCodec(s serializer.Serializer) (codec.Codec, error) {
	return codec.New(codec.Options{
		Framer:            framer.NewLengthPrefixedFramer(a.conf.Codec.MaxFrameSize),
		Serializer:        s,
		Compressor:        a.compressor,
		EnableCompression: a.compressor.Algorithm() != compressor.AlgorithmNone,
		MinCompressSize:   a.conf.Codec.MinCompressSize,
	})
}

// NewCodec returns a codec whose root values are decoded against declared.
func (a *Application) NewCodec(declared *graphjson.FieldType) (codec.Codec, error) {
	if a.decoder == nil {
		return nil, merr.ErrRegistryNotInitialized
	}
	return a.newCodec(serializer.NewGraphSerializer(a.encoder, a.decoder, declared))
}

// Close releases the loader pool, the etcd client and the compressor.
// An embedded etcd server started by Init is stopped as well.
func (a *Application) Close() {
	if a.lazy != nil {
		a.lazy.Close()
		a.lazy = nil
	}
	if a.etcdClient != nil {
		if err := a.etcdClient.Close(); err != nil {
			zlog.Warn("close etcd client failed", zap.Error(err))
		}
		a.etcdClient = nil
	}
	if a.conf.Registry.Etcd.Embed {
		etcdutil.StopEtcdServer()
	}
	if z, ok := a.compressor.(*compressor.ZstdCompressor); ok {
		z.Close()
	}
	a.compressor = nil
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Settings returns the decoded configuration.
func (a *Application) Settings() Config {
	return a.conf
}

func (a *Application) Registry() graphjson.TypeRegistry { return a.registry }

// Static returns the in-memory registry so callers can register Go types at startup.
func (a *Application) Static() *registry.Static { return a.static }

func (a *Application) Encoder() *graphjson.Encoder { return a.encoder }

func (a *Application) Decoder() *graphjson.Decoder { return a.decoder }

func (a *Application) Serializer() *serializer.GraphSerializer { return a.serializer }

func (a *Application) Codec() codec.Codec { return a.codec }

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}
