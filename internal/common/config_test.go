package common

import (
	"errors"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Store:  StoreConfig{Driver: "sqlite", DSN: "file:test.db"},
		Server: ServerConfig{Addr: ":8080"},
		Inbox:  InboxConfig{Driver: "dir", Dir: "./inbox"},
		Split:  SplitConfig{CounterpartyRatio: 0.333333, OwnRatio: 0.666667},
		Payments: PaymentConfig{
			Sender:     "venmo@venmo.com",
			MinPhrases: 2,
		},
		Notify: NotifyConfig{
			CounterpartyEmail: "roommate@example.com",
			CounterpartyVenmo: "Ushi-Lo",
			SMSGateway:        "5551234567@vtext.com",
			EnableEmail:       true,
			EnableText:        true,
		},
		Run: RunConfig{DaysBack: 30, Interval: time.Hour},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty dsn", func(c *Config) { c.Store.DSN = "" }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "oracle" }},
		{"zero ratio", func(c *Config) { c.Split.CounterpartyRatio = 0 }},
		{"negative ratio", func(c *Config) { c.Split.OwnRatio = -0.5 }},
		{"ratios do not sum", func(c *Config) { c.Split.CounterpartyRatio = 0.5; c.Split.OwnRatio = 0.6 }},
		{"min phrases", func(c *Config) { c.Payments.MinPhrases = 0 }},
		{"missing venmo handle", func(c *Config) { c.Notify.CounterpartyVenmo = "" }},
		{"text without gateway", func(c *Config) { c.Notify.SMSGateway = "" }},
		{"email without address", func(c *Config) { c.Notify.CounterpartyEmail = "" }},
		{"gmail inbox without credentials", func(c *Config) { c.Inbox.Driver = "gmail" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted a broken config")
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestValidateToleratesRatioRounding(t *testing.T) {
	cfg := validConfig()
	cfg.Split.CounterpartyRatio = 0.333333
	cfg.Split.OwnRatio = 0.666667
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.Bills.Sender != "DoNotReply@billpay.pge.com" {
		t.Errorf("Bills.Sender = %q", cfg.Bills.Sender)
	}
	if cfg.Bills.StatementSubject != "Energy Statement is Ready" {
		t.Errorf("Bills.StatementSubject = %q", cfg.Bills.StatementSubject)
	}
	if cfg.Split.CounterpartyRatio != 0.333333 {
		t.Errorf("CounterpartyRatio = %v", cfg.Split.CounterpartyRatio)
	}
	if cfg.Payments.WindowDays != 0 {
		t.Errorf("WindowDays = %d, want 0 (disabled)", cfg.Payments.WindowDays)
	}
	if cfg.Run.Interval != 6*time.Hour {
		t.Errorf("Interval = %v", cfg.Run.Interval)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ROOMMATE_SPLIT_RATIO", "0.25")
	t.Setenv("MY_SPLIT_RATIO", "0.75")
	t.Setenv("DAYS_BACK", "7")
	t.Setenv("RUN_INTERVAL", "30m")
	t.Setenv("BILL_INDICATORS", "statement ready; amount owed")
	t.Setenv("TEST_MODE", "true")

	cfg := LoadConfig()
	if cfg.Split.CounterpartyRatio != 0.25 || cfg.Split.OwnRatio != 0.75 {
		t.Errorf("ratios = %v/%v", cfg.Split.CounterpartyRatio, cfg.Split.OwnRatio)
	}
	if cfg.Run.DaysBack != 7 {
		t.Errorf("DaysBack = %d", cfg.Run.DaysBack)
	}
	if cfg.Run.Interval != 30*time.Minute {
		t.Errorf("Interval = %v", cfg.Run.Interval)
	}
	want := []string{"statement ready", "amount owed"}
	if len(cfg.Bills.BillIndicators) != 2 || cfg.Bills.BillIndicators[0] != want[0] || cfg.Bills.BillIndicators[1] != want[1] {
		t.Errorf("BillIndicators = %v, want %v", cfg.Bills.BillIndicators, want)
	}
	if !cfg.Run.TestMode {
		t.Error("TestMode not applied")
	}
}
