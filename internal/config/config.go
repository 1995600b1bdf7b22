package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Auth endpoints are derived from the API host rather than configured:
// integration-tenant API hosts pair with the integration auth server.
const (
	prodAuthURL        = "https://auth.servicetitan.io/connect/token"
	integrationAuthURL = "https://auth-integration.servicetitan.io/connect/token"
)

// Config holds all tally configuration.
type Config struct {
	// ServiceTitan API access.
	ClientID     string
	ClientSecret string
	TenantID     string
	AppKey       string
	BaseURL      string
	AuthURL      string

	RequestTimeout time.Duration
	PageSize       int

	// Local paths.
	StatePath string
	LogPath   string
	ExcelPath string

	// Export destinations: "excel", "sheets", or both.
	Targets []string

	// Google Sheets destination.
	SpreadsheetID   string
	Worksheet       string
	CredentialsFile string
}

// Load reads configuration from environment variables. Required settings
// (API credentials, tenant, app key, base URL) produce an error when
// missing; everything else has a default.
func Load() (Config, error) {
	baseURL, err := requireEnv("BASE_URL")
	if err != nil {
		return Config{}, err
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "https://") {
		return Config{}, fmt.Errorf("config: BASE_URL must start with https://")
	}

	cfg := Config{
		BaseURL:         baseURL,
		AuthURL:         deriveAuthURL(baseURL),
		RequestTimeout:  getenvDuration("REQUEST_TIMEOUT", 30*time.Second),
		PageSize:        getenvInt("PAGE_SIZE", 500),
		StatePath:       getenv("STATE_PATH", "state/sync_state.json"),
		LogPath:         getenv("LOG_PATH", "logs/app.log"),
		ExcelPath:       getenv("EXCEL_PATH", "output/invoices.xlsx"),
		Targets:         splitTargets(getenv("OUTPUT", "excel")),
		SpreadsheetID:   os.Getenv("SHEETS_SPREADSHEET_ID"),
		Worksheet:       getenv("SHEETS_WORKSHEET", "invoices"),
		CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
	}

	for name, dst := range map[string]*string{
		"CLIENT_ID":     &cfg.ClientID,
		"CLIENT_SECRET": &cfg.ClientSecret,
		"TENANT_ID":     &cfg.TenantID,
		"APP_KEY":       &cfg.AppKey,
	} {
		v, err := requireEnv(name)
		if err != nil {
			return Config{}, err
		}
		*dst = v
	}

	if cfg.PageSize < 1 || cfg.PageSize > 5000 {
		return Config{}, fmt.Errorf("config: PAGE_SIZE must be between 1 and 5000, got %d", cfg.PageSize)
	}
	if len(cfg.Targets) == 0 {
		return Config{}, fmt.Errorf("config: OUTPUT must name at least one of excel, sheets")
	}
	for _, t := range cfg.Targets {
		if t != "excel" && t != "sheets" {
			return Config{}, fmt.Errorf("config: unknown OUTPUT target %q", t)
		}
	}

	return cfg, nil
}

// deriveAuthURL maps the API base URL to the matching token endpoint.
func deriveAuthURL(baseURL string) string {
	if strings.Contains(baseURL, "api-integration") {
		return integrationAuthURL
	}
	return prodAuthURL
}

func requireEnv(name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", fmt.Errorf("config: missing required environment variable %s", name)
	}
	return v, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitTargets(s string) []string {
	var targets []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
			targets = append(targets, t)
		}
	}
	return targets
}
