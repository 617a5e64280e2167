package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	RewardsURL string `yaml:"rewards_url" env:"SHIFT_HELPER_REWARDS_URL"`

	BrowserProfilePath string `yaml:"browser_profile_path" env:"SHIFT_HELPER_BROWSER_PROFILE"`

	Platform string `yaml:"platform" env:"SHIFT_HELPER_PLATFORM"`

	StatePath string `yaml:"state_path" env:"SHIFT_HELPER_STATE_PATH"`
	ExportDir string `yaml:"export_dir" env:"SHIFT_HELPER_EXPORT_DIR"`

	MaxConsecutiveErrors int `yaml:"max_consecutive_errors" env:"SHIFT_HELPER_MAX_CONSECUTIVE_ERRORS"`
	MaxDismissals        int `yaml:"max_dismissals"`

	Headless        bool `yaml:"headless" env:"SHIFT_HELPER_HEADLESS"`
	KeepBrowserOpen bool `yaml:"keep_browser_open"`
	SkipLoginPrompt bool `yaml:"skip_login_prompt" env:"SHIFT_HELPER_SKIP_LOGIN_PROMPT"`

	DebugMode bool `yaml:"debug_mode" env:"SHIFT_HELPER_DEBUG"`

	Timings TimingConfig  `yaml:"timings"`
	Mailbox MailboxConfig `yaml:"mailbox"`
	Relay   RelayConfig   `yaml:"relay"`
}

// TimingConfig holds every pause and bounded wait of a redemption, in milliseconds.
type TimingConfig struct {
	TypePauseMs         int `yaml:"type_pause_ms"`
	ClearPauseMs        int `yaml:"clear_pause_ms"`
	AfterCheckPauseMs   int `yaml:"after_check_pause_ms"`
	ValidationWaitMs    int `yaml:"validation_wait_ms"`
	RedeemButtonWaitMs  int `yaml:"redeem_button_wait_ms"`
	ButtonPollMs        int `yaml:"button_poll_ms"`
	ConfirmWaitMs       int `yaml:"confirm_wait_ms"`
	PostRedeemPauseMs   int `yaml:"post_redeem_pause_ms"`
	EarlyStatusWaitMs   int `yaml:"early_status_wait_ms"`
	DismissSettleMs     int `yaml:"dismiss_settle_ms"`
	BetweenCodesMs      int `yaml:"between_codes_ms"`
	StatusTimeoutMs     int `yaml:"status_timeout_ms"`
	StatusIntervalMs    int `yaml:"status_interval_ms"`
	FormReadyTimeoutMs  int `yaml:"form_ready_timeout_ms"`
	FormReadyPollMs     int `yaml:"form_ready_poll_ms"`
	PageLoadTimeoutSecs int `yaml:"page_load_timeout_secs"`
}

type MailboxConfig struct {
	RedisAddr      string `yaml:"redis_addr" env:"SHIFT_HELPER_REDIS_ADDR"`
	RedisPassword  string `yaml:"redis_password" env:"SHIFT_HELPER_REDIS_PASSWORD"`
	RedisDB        int    `yaml:"redis_db"`
	Key            string `yaml:"key"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

type RelayConfig struct {
	ListenAddr     string   `yaml:"listen_addr" env:"SHIFT_HELPER_RELAY_ADDR"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func DefaultConfig() *Config {
	userDataDir := getUserDataDir()

	return &Config{
		RewardsURL:           "https://shift.gearboxsoftware.com/rewards",
		BrowserProfilePath:   filepath.Join(userDataDir, "browser-profile"),
		Platform:             string(PlatformSteam),
		StatePath:            filepath.Join(userDataDir, "state.db"),
		ExportDir:            "",
		MaxConsecutiveErrors: 5,
		MaxDismissals:        5,
		Headless:             false,
		KeepBrowserOpen:      false,
		SkipLoginPrompt:      false,
		DebugMode:            false,
		Timings: TimingConfig{
			TypePauseMs:         160,
			ClearPauseMs:        50,
			AfterCheckPauseMs:   350,
			ValidationWaitMs:    3500,
			RedeemButtonWaitMs:  7000,
			ButtonPollMs:        150,
			ConfirmWaitMs:       3500,
			PostRedeemPauseMs:   1200,
			EarlyStatusWaitMs:   1000,
			DismissSettleMs:     250,
			BetweenCodesMs:      800,
			StatusTimeoutMs:     6000,
			StatusIntervalMs:    250,
			FormReadyTimeoutMs:  12000,
			FormReadyPollMs:     200,
			PageLoadTimeoutSecs: 30,
		},
		Mailbox: MailboxConfig{
			Key:            "shift_helper_gm_queue",
			PollIntervalMs: 2000,
		},
		Relay: RelayConfig{
			ListenAddr:     "127.0.0.1:8088",
			AllowedOrigins: []string{"https://xsmashx88x.github.io"},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if config.BrowserProfilePath != "" {
		if err := os.MkdirAll(config.BrowserProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports the first setting that would make a run impossible.
func (c *Config) Validate() error {
	if c.RewardsURL == "" {
		return fmt.Errorf("rewards_url is required")
	}
	if _, err := ParsePlatform(c.Platform); err != nil {
		return err
	}
	if c.MaxConsecutiveErrors <= 0 {
		return fmt.Errorf("max_consecutive_errors must be positive, got %d", c.MaxConsecutiveErrors)
	}
	t := c.Timings
	bounds := map[string]int{
		"timings.redeem_button_wait_ms": t.RedeemButtonWaitMs,
		"timings.button_poll_ms":        t.ButtonPollMs,
		"timings.confirm_wait_ms":       t.ConfirmWaitMs,
		"timings.status_timeout_ms":     t.StatusTimeoutMs,
		"timings.status_interval_ms":    t.StatusIntervalMs,
		"timings.form_ready_timeout_ms": t.FormReadyTimeoutMs,
		"timings.form_ready_poll_ms":    t.FormReadyPollMs,
		// The mailbox poller ticks at this rate.
		"mailbox.poll_interval_ms": c.Mailbox.PollIntervalMs,
	}
	for name, v := range bounds {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	return nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
