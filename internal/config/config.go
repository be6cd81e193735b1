// Package config loads process settings from configs/.env and the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	JWTSecret   string
	CORSOrigins []string
	Log         LogConfig
	DB          DBConfig
	Billing     BillingConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type DBConfig struct {
	Driver       string // postgres or sqlite
	SQLitePath   string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN builds the postgres connection string.
func (c DBConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=" + c.SSLMode
}

type BillingConfig struct {
	VATRate         decimal.Decimal
	InvoiceCurrency string
	FxBase          string
	FxQuote         string
}

// DefaultBilling returns the billing settings used when nothing is configured.
func DefaultBilling() BillingConfig {
	return BillingConfig{
		VATRate:         decimal.RequireFromString("0.07"),
		InvoiceCurrency: "KRW",
		FxBase:          "THB",
		FxQuote:         "KRW",
	}
}

// Load reads envFile when present, then the process environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		// a missing file is fine, the environment may carry everything
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_SQLITE_PATH", "billing.db")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "postgres")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("BILLING_VAT_RATE", "0.07")
	v.SetDefault("BILLING_INVOICE_CURRENCY", "KRW")
	v.SetDefault("BILLING_FX_BASE", "THB")
	v.SetDefault("BILLING_FX_QUOTE", "KRW")

	vat, err := decimal.NewFromString(strings.TrimSpace(v.GetString("BILLING_VAT_RATE")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid BILLING_VAT_RATE: %w", err)
	}
	if vat.IsNegative() || vat.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("BILLING_VAT_RATE must be in [0, 1), got %s", vat)
	}

	cfg := Config{
		Port:        v.GetString("PORT"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		DB: DBConfig{
			Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
			SQLitePath:   v.GetString("DB_SQLITE_PATH"),
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetString("DB_PORT"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASSWORD"),
			Name:         v.GetString("DB_NAME"),
			SSLMode:      v.GetString("DB_SSLMODE"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Billing: BillingConfig{
			VATRate:         vat,
			InvoiceCurrency: strings.ToUpper(v.GetString("BILLING_INVOICE_CURRENCY")),
			FxBase:          strings.ToUpper(v.GetString("BILLING_FX_BASE")),
			FxQuote:         strings.ToUpper(v.GetString("BILLING_FX_QUOTE")),
		},
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
