// common/configloader/configloader.go
package configloader

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options управляет источниками конфигурации.
//
// Порядок приоритета (от слабого к сильному): defaults → YAML-файл → ENV → флаги.
type Options struct {
	// Path: путь к YAML; пустой → только ENV и defaults.
	Path string
	// EnvPrefix: префикс ENV переменных, например: "FRAME_POLLER".
	EnvPrefix string
	// Defaults: локальные дефолты поверх глобально зарегистрированных.
	Defaults map[string]interface{}
	// Flags: изменённые флаги CLI, привязанные к ключам конфига.
	Flags map[string]*pflag.Flag
}

// Load загружает конфиг в cfgPtr: из YAML + ENV + defaults.
func Load(path, envPrefix string, cfgPtr interface{}) error {
	return LoadWith(Options{Path: path, EnvPrefix: envPrefix}, cfgPtr)
}

// LoadWith: Load с полным набором опций.
func LoadWith(opts Options, cfgPtr interface{}) error {
	v := viper.New()

	// Шаг 1: apply registered defaults
	for key, val := range getDefaults() {
		v.SetDefault(key, val)
	}
	for key, val := range opts.Defaults {
		v.SetDefault(key, val)
	}

	// Шаг 2: environment override
	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Шаг 3: read file (if provided)
	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("configloader: read config %q: %w", opts.Path, err)
		}
	}

	// Шаг 4: флаги, явно заданные пользователем
	for key, f := range opts.Flags {
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("configloader: bind flag %q: %w", key, err)
		}
	}

	// Шаг 5: decode
	if err := decode(v.AllSettings(), cfgPtr); err != nil {
		return fmt.Errorf("configloader: decode failed: %w", err)
	}

	// Шаг 6: validate if possible
	if v, ok := cfgPtr.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("configloader: validation failed: %w", err)
		}
	}

	return nil
}
