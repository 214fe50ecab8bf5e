package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigWatcher 监听配置文件,变更通过校验后回调
//
// 日志级别等运行期参数可以热更新,
// 数据库、服务监听地址等变更会记录告警,需要重启生效。
type ConfigWatcher struct {
	viper     *viper.Viper
	logger    *logrus.Logger
	mu        sync.RWMutex
	current   *Config
	callbacks []func(*Config)
	stopped   atomic.Bool
}

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(cfg *Config, configPath string, logger *logrus.Logger) *ConfigWatcher {
	v := newViper()
	v.SetConfigFile(configPath)
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ConfigWatcher{
		viper:   v,
		logger:  logger,
		current: cfg,
	}
}

// OnConfigChange 注册配置变更回调
func (w *ConfigWatcher) OnConfigChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 读取配置文件并开始监听
func (w *ConfigWatcher) Start() error {
	if err := w.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	w.viper.OnConfigChange(func(e fsnotify.Event) {
		if w.stopped.Load() {
			return
		}
		w.reload(e.Name)
	})
	w.viper.WatchConfig()
	return nil
}

func (w *ConfigWatcher) reload(file string) {
	log := w.logger.WithField("file", file)

	var next Config
	if err := w.viper.Unmarshal(&next); err != nil {
		log.WithError(err).Error("Failed to unmarshal config")
		return
	}
	if err := next.Validate(); err != nil {
		log.WithError(err).Warn("Ignoring invalid config change")
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = &next
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	if sections := RestartRequired(prev, &next); len(sections) > 0 {
		log.WithField("sections", strings.Join(sections, ",")).Warn("Config sections changed that only apply after restart")
	}
	for _, callback := range callbacks {
		callback(&next)
	}
	log.Info("Configuration reloaded")
}

// RestartRequired 返回变更后需要重启才能生效的配置段
func RestartRequired(prev, next *Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var sections []string
	check := func(name string, a, b interface{}) {
		if !reflect.DeepEqual(a, b) {
			sections = append(sections, name)
		}
	}
	check("server", prev.Server, next.Server)
	check("database", prev.Database, next.Database)
	check("openfga", prev.OpenFGA, next.OpenFGA)
	check("keycloak", prev.Keycloak, next.Keycloak)
	check("webhook", prev.Webhook, next.Webhook)
	return sections
}

// Stop 停止处理后续变更
func (w *ConfigWatcher) Stop() {
	w.stopped.Store(true)
}

// GetConfig 获取最近一次有效的配置
func (w *ConfigWatcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
