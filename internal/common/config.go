package common

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Store    StoreConfig
	Server   ServerConfig
	Gmail    GmailConfig
	Inbox    InboxConfig
	Split    SplitConfig
	Bills    BillConfig
	Payments PaymentConfig
	Notify   NotifyConfig
	Run      RunConfig
}

// StoreConfig holds database-related configuration
type StoreConfig struct {
	Driver string // "sqlite" or "postgres"
	DSN    string
}

// ServerConfig holds dashboard server configuration
type ServerConfig struct {
	Addr string
}

// GmailConfig holds Gmail API OAuth configuration
type GmailConfig struct {
	User         string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// InboxConfig selects the inbox source for message search
type InboxConfig struct {
	Driver string // "gmail" or "dir"
	Dir    string // drop directory for the "dir" driver
}

// SplitConfig holds the fixed payment-split ratios
type SplitConfig struct {
	CounterpartyRatio float64
	OwnRatio          float64
}

// BillConfig holds bill-statement classification and identity settings
type BillConfig struct {
	Sender            string
	StatementSubject  string
	BillIndicators    []string
	PaymentIndicators []string
	IDPrefix          string
	BillerLabel       string
}

// PaymentConfig holds payment-confirmation matching settings
type PaymentConfig struct {
	Sender     string
	MinPhrases int
	WindowDays int // 0 disables the hard date window
}

// NotifyConfig holds outbound notification settings
type NotifyConfig struct {
	CounterpartyEmail string
	CounterpartyVenmo string
	SMSGateway        string
	EnableEmail       bool
	EnableText        bool
}

// RunConfig holds invocation defaults
type RunConfig struct {
	DaysBack int
	Interval time.Duration
	TestMode bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "sqlite"),
			DSN:    getEnv("STORE_DSN", "file:billsplit.db"),
		},
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Gmail: GmailConfig{
			User:         getEnv("GMAIL_USER", ""),
			ClientID:     getEnv("GMAIL_CLIENT_ID", ""),
			ClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
			RefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),
		},
		Inbox: InboxConfig{
			Driver: getEnv("INBOX_DRIVER", "gmail"),
			Dir:    getEnv("INBOX_DIR", "./inbox"),
		},
		Split: SplitConfig{
			CounterpartyRatio: getEnvAsFloat64("ROOMMATE_SPLIT_RATIO", 0.333333),
			OwnRatio:          getEnvAsFloat64("MY_SPLIT_RATIO", 0.666667),
		},
		Bills: BillConfig{
			Sender:           getEnv("BILL_SENDER", "DoNotReply@billpay.pge.com"),
			StatementSubject: getEnv("STATEMENT_SUBJECT", "Energy Statement is Ready"),
			BillIndicators: getEnvAsList("BILL_INDICATORS", []string{
				"paperless bill",
				"is now available",
				"statement balance",
			}),
			PaymentIndicators: getEnvAsList("PAYMENT_INDICATORS", []string{
				"payment has been processed",
				"confirmation number",
				"date of payment",
				"payment amount",
				"we thank you for being",
				"previously scheduled recurring payment",
			}),
			IDPrefix:    getEnv("BILL_ID_PREFIX", "pge"),
			BillerLabel: getEnv("BILLER_LABEL", "PG&E"),
		},
		Payments: PaymentConfig{
			Sender:     getEnv("PAYMENT_SENDER", "venmo@venmo.com"),
			MinPhrases: getEnvAsInt("PAYMENT_MIN_PHRASES", 2),
			WindowDays: getEnvAsInt("MATCH_WINDOW_DAYS", 0),
		},
		Notify: NotifyConfig{
			CounterpartyEmail: getEnv("ROOMMATE_EMAIL", ""),
			CounterpartyVenmo: getEnv("ROOMMATE_VENMO", ""),
			SMSGateway:        getEnv("SMS_GATEWAY", ""),
			EnableEmail:       getEnvAsBool("ENABLE_EMAIL_NOTIFICATIONS", true),
			EnableText:        getEnvAsBool("ENABLE_TEXT_MESSAGING", true),
		},
		Run: RunConfig{
			DaysBack: getEnvAsInt("DAYS_BACK", 30),
			Interval: getEnvAsDuration("RUN_INTERVAL", 6*time.Hour),
			TestMode: getEnvAsBool("TEST_MODE", false),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ";")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

const ratioTolerance = 1e-6

// Validate validates the loaded configuration. Any failure here aborts the
// invocation before a single email is touched.
func (c *Config) Validate() error {
	if c.Store.DSN == "" {
		return NewAppError("CONFIG_ERROR", "STORE_DSN is required", ErrInvalidInput)
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		return NewAppError("CONFIG_ERROR", "STORE_DRIVER must be sqlite or postgres", ErrInvalidInput)
	}
	if c.Split.CounterpartyRatio <= 0 || c.Split.OwnRatio <= 0 {
		return NewAppError("CONFIG_ERROR", "split ratios must be positive", ErrInvalidInput)
	}
	if math.Abs(c.Split.CounterpartyRatio+c.Split.OwnRatio-1.0) > ratioTolerance {
		return NewAppError("CONFIG_ERROR", "split ratios must sum to 1.0", ErrInvalidInput)
	}
	if c.Payments.MinPhrases < 1 {
		return NewAppError("CONFIG_ERROR", "PAYMENT_MIN_PHRASES must be at least 1", ErrInvalidInput)
	}
	if c.Notify.CounterpartyVenmo == "" {
		return NewAppError("CONFIG_ERROR", "ROOMMATE_VENMO is required", ErrInvalidInput)
	}
	if c.Notify.EnableText && c.Notify.SMSGateway == "" {
		return NewAppError("CONFIG_ERROR", "SMS_GATEWAY is required when text messaging is enabled", ErrInvalidInput)
	}
	if c.Notify.EnableEmail && c.Notify.CounterpartyEmail == "" {
		return NewAppError("CONFIG_ERROR", "ROOMMATE_EMAIL is required when email notifications are enabled", ErrInvalidInput)
	}
	if c.Inbox.Driver == "gmail" {
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" || c.Gmail.RefreshToken == "" {
			return NewAppError("CONFIG_ERROR", "Gmail credentials are required for the gmail inbox", ErrInvalidInput)
		}
	}
	return nil
}
