// Package config — загрузка конфигурации: значения по умолчанию →
// TOML-файл → переменные окружения с префиксом BOOKHOOK_ (каждый слой
// перекрывает предыдущий).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config — вся конфигурация процесса. Ядро получает отсюда только
// значения; механика загрузки его не касается.
type Config struct {
	Gateway struct {
		Addr      string `koanf:"addr"`
		AuthToken string `koanf:"auth_token"`
		BotChatID int64  `koanf:"bot_chat_id"`
	} `koanf:"gateway"`

	Trigger struct {
		Text string `koanf:"text"`
	} `koanf:"trigger"`

	Steps struct {
		Button1Keywords []string      `koanf:"button1_keywords"`
		Button2Keywords []string      `koanf:"button2_keywords"`
		Button2Index    int           `koanf:"button2_index"`
		Button3Keywords []string      `koanf:"button3_keywords"`
		SuccessPhrases  []string      `koanf:"success_phrases"`
		Step1Timeout    time.Duration `koanf:"step1_timeout"`
		Step2Timeout    time.Duration `koanf:"step2_timeout"`
		Step3Timeout    time.Duration `koanf:"step3_timeout"`
	} `koanf:"steps"`

	Timing struct {
		PostTriggerDelay time.Duration `koanf:"post_trigger_delay"`
		InterClickDelay  time.Duration `koanf:"inter_click_delay"`
	} `koanf:"timing"`

	Stabilization struct {
		Strategy   string        `koanf:"strategy"` // wait | aggressive | predict
		Threshold  time.Duration `koanf:"threshold"`
		Confidence float64       `koanf:"confidence"` // только для predict
	} `koanf:"stabilization"`

	Retry struct {
		MaxAttempts  int           `koanf:"max_attempts"`
		BaseDelay    time.Duration `koanf:"base_delay"`
		FloodCeiling time.Duration `koanf:"flood_ceiling"`
	} `koanf:"retry"`

	Cache struct {
		Messages      int `koanf:"messages"`
		HistoryWindow int `koanf:"history_window"`
	} `koanf:"cache"`

	Log struct {
		Level          string        `koanf:"level"`
		ReportInterval time.Duration `koanf:"report_interval"`
	} `koanf:"log"`
}

// defaults — значения исходной системы: порог стабилизации 150ms,
// стратегия wait, три ретрая, окно истории 20.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"trigger.text": "Появились новые перевозки",

		"steps.button1_keywords": []string{"список прямых перевозок", "список перевозок", "прямые перевозки"},
		"steps.button2_keywords": []string{},
		"steps.button2_index":    0,
		"steps.button3_keywords": []string{"подтвердить", "забронировать", "взять", "беру", "подтверждаю"},
		"steps.success_phrases":  []string{"успешно зарезервирована", "перевозка успешно"},
		"steps.step1_timeout":    "15s",
		"steps.step2_timeout":    "15s",
		"steps.step3_timeout":    "15s",

		"timing.post_trigger_delay": "0s",
		"timing.inter_click_delay":  "50ms",

		"stabilization.strategy":   "wait",
		"stabilization.threshold":  "150ms",
		"stabilization.confidence": 0.95,

		"retry.max_attempts":  3,
		"retry.base_delay":    "100ms",
		"retry.flood_ceiling": "60s",

		"cache.messages":       10,
		"cache.history_window": 20,

		"log.level":           "info",
		"log.report_interval": "60s",
	}
}

// Load — собирает конфигурацию из слоёв. Путь к файлу может быть пуст:
// тогда пробуются стандартные места, отсутствие файла не ошибка.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
	} else {
		for _, path := range []string{"./bookhook.toml", "$HOME/.bookhook.toml"} {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// секции одноуровневые и однословные, поэтому точкой становится
	// только первый underscore: BOOKHOOK_GATEWAY_AUTH_TOKEN →
	// gateway.auth_token
	if err := k.Load(env.Provider("BOOKHOOK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "BOOKHOOK_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate — минимальная проверка обязательных полей.
func Validate(cfg *Config) error {
	if cfg.Gateway.Addr == "" {
		return fmt.Errorf("gateway.addr is required")
	}
	if cfg.Gateway.BotChatID == 0 {
		return fmt.Errorf("gateway.bot_chat_id is required")
	}
	if cfg.Trigger.Text == "" {
		return fmt.Errorf("trigger.text is required")
	}
	switch cfg.Stabilization.Strategy {
	case "wait", "aggressive", "predict":
	default:
		return fmt.Errorf("unknown stabilization.strategy %q", cfg.Stabilization.Strategy)
	}
	return nil
}
