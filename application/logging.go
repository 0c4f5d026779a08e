package application

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	zlog "github.com/kykrueger/openbis-sub009/pkg/log"
	zviper "github.com/kykrueger/openbis-sub009/pkg/util/viper"
)

// LogEnvPrefix is the prefix of the env vars read by initLogging.
const LogEnvPrefix = "GRAPHJSON_LOG_"

// initLogging sets up the global logger from env, then the named loggers of the "logging" section.
func (a *Application) initLogging() error {
	logger, props, err := zlog.InitLogger(logConfigFromEnv())
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	zlog.ReplaceGlobals(logger, props)

	loggers, err := moduleLoggers(a.cfg)
	if err != nil {
		return err
	}
	a.loggers = loggers
	return nil
}

// logConfigFromEnv 读取 GRAPHJSON_LOG_* 环境变量：
//
//	ENABLE    1/true 打开输出，默认关闭（所有输出被丢弃）
//	LEVEL     默认 info
//	FORMAT    console | json
//	STDOUT    是否输出到标准输出
//	FILE_DIR  日志目录
//	FILE      日志文件名，空表示不写文件
func logConfigFromEnv() *zlog.Config {
	cfg := &zlog.Config{
		Level:               envString("LEVEL", "info"),
		Format:              envString("FORMAT", zlog.FormatConsole),
		DisableErrorVerbose: true,
	}
	if !envBool("ENABLE", false) {
		return cfg
	}
	cfg.Stdout = envBool("STDOUT", false)
	cfg.File = zlog.FileLogConfig{
		RootPath: envString("FILE_DIR", ""),
		Filename: envString("FILE", ""),
	}
	return cfg
}

// moduleLoggers 根据 "logging" 段创建具名 logger：
//
//	logging:
//	  codec:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: codec.log
func moduleLoggers(cfg *zviper.Config) (map[string]*zlog.MLogger, error) {
	raw := make(map[string]zlog.Config)
	if cfg != nil {
		if err := cfg.UnmarshalKey("logging", &raw); err != nil {
			return nil, errors.Wrap(err, "decode logging section")
		}
	}

	loggers := make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		logger, _, err := zlog.InitLogger(&lc)
		if err != nil {
			return nil, errors.Wrapf(err, "init module logger %q", name)
		}
		loggers[name] = &zlog.MLogger{Logger: logger}
	}
	return loggers, nil
}

func envString(name, def string) string {
	if val := strings.TrimSpace(os.Getenv(LogEnvPrefix + name)); val != "" {
		return val
	}
	return def
}

func envBool(name string, def bool) bool {
	val := strings.ToLower(envString(name, ""))
	switch val {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return def
}
