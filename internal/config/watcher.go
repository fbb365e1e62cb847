package config

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigWatcher 监听配置文件，变更通过校验后替换当前配置并依次调用回调。
// 只有日志级别这类运行期可调的项会真正生效，数据库和 backplane 需要重启。
type ConfigWatcher struct {
	v      *viper.Viper
	log    logrus.FieldLogger
	cur    atomic.Pointer[Config]
	closed atomic.Bool

	mu    sync.Mutex
	hooks []func(*Config)
}

// NewConfigWatcher 创建配置监听器，logger 为 nil 时用标准 logger
func NewConfigWatcher(cfg *Config, configPath string, logger logrus.FieldLogger) *ConfigWatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	w := &ConfigWatcher{v: v, log: logger.WithField("config", configPath)}
	w.cur.Store(cfg)
	return w
}

// OnConfigChange 注册回调
func (w *ConfigWatcher) OnConfigChange(fn func(*Config)) {
	w.mu.Lock()
	w.hooks = append(w.hooks, fn)
	w.mu.Unlock()
}

// Start 读取一次配置文件并开始监听
func (w *ConfigWatcher) Start() error {
	if err := w.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	w.v.OnConfigChange(func(fsnotify.Event) {
		if !w.closed.Load() {
			w.apply()
		}
	})
	w.v.WatchConfig()
	return nil
}

func (w *ConfigWatcher) apply() {
	next := new(Config)
	if err := w.v.Unmarshal(next); err != nil {
		w.log.WithError(err).Error("failed to unmarshal changed config")
		return
	}
	if err := next.Validate(); err != nil {
		w.log.WithError(err).Warn("ignoring invalid config change")
		return
	}

	w.mu.Lock()
	hooks := append(([]func(*Config))(nil), w.hooks...)
	w.mu.Unlock()
	for _, fn := range hooks {
		fn(next)
	}
	w.cur.Store(next)
	w.log.Info("config reloaded")
}

// Stop 之后的文件变更被忽略；viper 没有取消监听的接口
func (w *ConfigWatcher) Stop() {
	w.closed.Store(true)
}

// GetConfig 当前生效的配置
func (w *ConfigWatcher) GetConfig() *Config {
	return w.cur.Load()
}

// LogLevelUpdater 把新配置的日志级别应用到 logger
func LogLevelUpdater(logger *logrus.Logger) func(*Config) {
	return func(cfg *Config) {
		level, err := logrus.ParseLevel(cfg.Log.Level)
		if err != nil {
			logger.WithError(err).Warn("invalid log level in reloaded config")
			return
		}
		if level == logger.GetLevel() {
			return
		}
		logger.SetLevel(level)
		logger.WithField("level", level).Info("log level changed")
	}
}
