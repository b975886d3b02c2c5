package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	BackendDotpay     = "dotpay"
	BackendTransferuj = "transferuj"
	BackendPaypal     = "paypal"
	BackendCOD        = "cod"
	BackendTransfer   = "transfer"
)

var (
	ErrNotConfigured  = errors.New("gateway_not_configured")
	ErrUnknownBackend = errors.New("unknown_backend")
	ErrInvalidConfig  = errors.New("invalid_gateway_config")
)

// MissingSettingError is a deployment bug: a required gateway setting is
// absent. It is raised eagerly at startup, never during callback handling.
type MissingSettingError struct {
	Backend string
	Setting string
}

func (e *MissingSettingError) Error() string {
	return fmt.Sprintf("gateway %q requires setting %q", e.Backend, e.Setting)
}

// Record is the persisted per-deployment gateway configuration row. The
// JSON blob is decoded into a typed Config and validated before the
// application starts serving callbacks.
type Record struct {
	Backend   string         `json:"backend" gorm:"primaryKey;type:text"`
	Config    datatypes.JSON `json:"config" gorm:"not null"`
	IsActive  bool           `json:"is_active" gorm:"not null;default:true"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"not null"`
}

func (Record) TableName() string { return "gateway_configs" }

// Config is one gateway's typed, validated settings.
type Config interface {
	BackendName() string
	Validate() error
}

type DotpayConfig struct {
	MerchantID     int64    `json:"id"`
	PIN            string   `json:"pin"`
	Method         string   `json:"method"`
	Lang           string   `json:"lang"`
	ForceSSL       bool     `json:"force_ssl"`
	GatewayURL     string   `json:"gateway_url"`
	AllowedIPs     []string `json:"allowed_ips"`
	Currencies     []string `json:"currencies"`
	OnlineTransfer bool     `json:"onlinetransfer"`
	PEmail         string   `json:"p_email"`
	PInfo          string   `json:"p_info"`
	Tax            bool     `json:"tax"`
}

func (c DotpayConfig) BackendName() string { return BackendDotpay }

func (c DotpayConfig) Validate() error {
	if c.MerchantID == 0 {
		return &MissingSettingError{Backend: BackendDotpay, Setting: "id"}
	}
	if strings.TrimSpace(c.PIN) == "" {
		return &MissingSettingError{Backend: BackendDotpay, Setting: "pin"}
	}
	return validateMethod(BackendDotpay, c.Method)
}

type TransferujConfig struct {
	MerchantID     int64    `json:"id"`
	Key            string   `json:"key"`
	Method         string   `json:"method"`
	Lang           string   `json:"lang"`
	Signing        *bool    `json:"signing"`
	ForceSSLOnline *bool    `json:"force_ssl_online"`
	ForceSSLReturn *bool    `json:"force_ssl_return"`
	GatewayURL     string   `json:"gateway_url"`
	AllowedIPs     []string `json:"allowed_ips"`
	Currencies     []string `json:"currencies"`
}

func (c TransferujConfig) BackendName() string { return BackendTransferuj }

func (c TransferujConfig) Validate() error {
	if c.MerchantID == 0 {
		return &MissingSettingError{Backend: BackendTransferuj, Setting: "id"}
	}
	if strings.TrimSpace(c.Key) == "" {
		return &MissingSettingError{Backend: BackendTransferuj, Setting: "key"}
	}
	return validateMethod(BackendTransferuj, c.Method)
}

// SigningEnabled defaults to true: unsigned redirects are an opt-out.
func (c TransferujConfig) SigningEnabled() bool {
	return c.Signing == nil || *c.Signing
}

func (c TransferujConfig) SSLOnline() bool {
	return c.ForceSSLOnline == nil || *c.ForceSSLOnline
}

func (c TransferujConfig) SSLReturn() bool {
	return c.ForceSSLReturn == nil || *c.ForceSSLReturn
}

type PaypalConfig struct {
	Business     string   `json:"business"`
	TestBusiness string   `json:"test_business"`
	Test         bool     `json:"test"`
	ForceSSL     bool     `json:"force_ssl"`
	Currencies   []string `json:"currencies"`
}

func (c PaypalConfig) BackendName() string { return BackendPaypal }

func (c PaypalConfig) Validate() error {
	if c.Test {
		if strings.TrimSpace(c.TestBusiness) == "" {
			return &MissingSettingError{Backend: BackendPaypal, Setting: "test_business"}
		}
		return nil
	}
	if strings.TrimSpace(c.Business) == "" {
		return &MissingSettingError{Backend: BackendPaypal, Setting: "business"}
	}
	return nil
}

// ReceiverEmail is the account callbacks must name as receiver.
func (c PaypalConfig) ReceiverEmail() string {
	if c.Test {
		return c.TestBusiness
	}
	return c.Business
}

// LocalConfig covers the two backends without a remote counterparty:
// cash on delivery and regular bank transfer.
type LocalConfig struct {
	Name       string   `json:"-"`
	Currencies []string `json:"currencies"`
}

func (c LocalConfig) BackendName() string { return c.Name }

func (c LocalConfig) Validate() error { return nil }

// Decode turns a stored JSON blob into the typed config for a backend.
func Decode(backend string, raw []byte) (Config, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch backend {
	case BackendDotpay:
		var cfg DotpayConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, backend)
		}
		return cfg, nil
	case BackendTransferuj:
		var cfg TransferujConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, backend)
		}
		return cfg, nil
	case BackendPaypal:
		var cfg PaypalConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, backend)
		}
		return cfg, nil
	case BackendCOD, BackendTransfer:
		var cfg LocalConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, backend)
		}
		cfg.Name = backend
		return cfg, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// AcceptedCurrencies returns the currency allow-list for a config, falling
// back to each gateway's historical default set.
func AcceptedCurrencies(cfg Config) []string {
	override := func(list []string, fallback []string) []string {
		if len(list) > 0 {
			return list
		}
		return fallback
	}
	switch typed := cfg.(type) {
	case DotpayConfig:
		return override(typed.Currencies, []string{"PLN", "EUR", "USD", "GBP", "JPY", "CZK", "SEK"})
	case TransferujConfig:
		return override(typed.Currencies, []string{"PLN"})
	case PaypalConfig:
		return override(typed.Currencies, []string{"PLN", "USD", "EUR", "GBP"})
	case LocalConfig:
		return override(typed.Currencies, []string{"PLN", "EUR", "USD"})
	default:
		return nil
	}
}

func validateMethod(backend, method string) error {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", "get", "post":
		return nil
	default:
		return fmt.Errorf("%w: %s accepts only GET or POST", ErrInvalidConfig, backend)
	}
}
