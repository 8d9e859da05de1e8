// Package configstore holds the typed per-connector configuration records.
// Configs are supplied by the settings store and are read-only to the
// connector layer; a connector never mutates one.
package configstore

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

const (
	KindOverseerr     = "overseerr"
	KindUniFi         = "unifi"
	KindHomeAssistant = "homeassistant"
	KindActualBudget  = "actualbudget"
	KindPlex          = "plex"
)

const (
	defaultOverseerrPort = 5055
	defaultUniFiPort     = 443
	defaultUniFiSite     = "default"
	defaultPlexPort      = 32400
)

type OverseerrConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	APIKey string `json:"api_key"`
	UseSSL bool   `json:"use_ssl"`
}

func (c OverseerrConfig) Normalized() OverseerrConfig {
	out := c
	out.Host = normalizeHost(out.Host)
	out.APIKey = strings.TrimSpace(out.APIKey)
	if out.Port == 0 {
		out.Port = defaultOverseerrPort
	}
	return out
}

func (c OverseerrConfig) BaseURL() string {
	c = c.Normalized()
	if c.Host == "" {
		return ""
	}
	return schemeFor(c.UseSSL) + "://" + hostPort(c.Host, c.Port)
}

func (c OverseerrConfig) Endpoint() string {
	c = c.Normalized()
	return hostPort(c.Host, c.Port)
}

func (c OverseerrConfig) Validate() error {
	c = c.Normalized()
	if c.Host == "" {
		return errors.New("Host is required")
	}
	if c.APIKey == "" {
		return errors.New("API key is required")
	}
	return nil
}

type UniFiConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	Site          string `json:"site"`
	TLSSkipVerify bool   `json:"tls_skip_verify"`
}

func (c UniFiConfig) Normalized() UniFiConfig {
	out := c
	out.Host = normalizeHost(out.Host)
	out.Username = strings.TrimSpace(out.Username)
	out.Site = strings.TrimSpace(out.Site)
	if out.Port == 0 {
		out.Port = defaultUniFiPort
	}
	if out.Site == "" {
		out.Site = defaultUniFiSite
	}
	return out
}

func (c UniFiConfig) BaseURL() string {
	c = c.Normalized()
	if c.Host == "" {
		return ""
	}
	return "https://" + hostPort(c.Host, c.Port)
}

func (c UniFiConfig) Endpoint() string {
	c = c.Normalized()
	return hostPort(c.Host, c.Port)
}

func (c UniFiConfig) Validate() error {
	c = c.Normalized()
	if c.Host == "" {
		return errors.New("Host is required")
	}
	if c.Username == "" {
		return errors.New("Username is required")
	}
	if c.Password == "" {
		return errors.New("Password is required")
	}
	return nil
}

type HomeAssistantConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Token  string `json:"token"`
	UseSSL bool   `json:"use_ssl"`
}

func (c HomeAssistantConfig) Normalized() HomeAssistantConfig {
	out := c
	out.Host = normalizeHost(out.Host)
	out.Token = strings.TrimSpace(out.Token)
	if out.Port == 0 {
		out.Port = 8123
	}
	return out
}

func (c HomeAssistantConfig) BaseURL() string {
	c = c.Normalized()
	if c.Host == "" {
		return ""
	}
	return schemeFor(c.UseSSL) + "://" + hostPort(c.Host, c.Port)
}

func (c HomeAssistantConfig) Endpoint() string {
	c = c.Normalized()
	return hostPort(c.Host, c.Port)
}

func (c HomeAssistantConfig) Validate() error {
	c = c.Normalized()
	if c.Host == "" {
		return errors.New("Host is required")
	}
	if c.Token == "" {
		return errors.New("Access token is required")
	}
	return nil
}

type ActualBudgetConfig struct {
	ServerURL string `json:"server_url"`
	Password  string `json:"password"`
	SyncID    string `json:"sync_id"`
}

func (c ActualBudgetConfig) Normalized() ActualBudgetConfig {
	out := c
	out.ServerURL = normalizeServerURL(out.ServerURL)
	out.SyncID = strings.TrimSpace(out.SyncID)
	return out
}

func (c ActualBudgetConfig) Endpoint() string {
	c = c.Normalized()
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return c.ServerURL
	}
	return u.Host
}

func (c ActualBudgetConfig) Validate() error {
	c = c.Normalized()
	if c.ServerURL == "" {
		return errors.New("Server URL is required")
	}
	if c.Password == "" {
		return errors.New("Password is required")
	}
	if c.SyncID == "" {
		return errors.New("Sync ID is required")
	}
	return nil
}

type PlexConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Token  string `json:"token"`
	UseSSL bool   `json:"use_ssl"`
}

func (c PlexConfig) Normalized() PlexConfig {
	out := c
	out.Host = normalizeHost(out.Host)
	out.Token = strings.TrimSpace(out.Token)
	if out.Port == 0 {
		out.Port = defaultPlexPort
	}
	return out
}

func (c PlexConfig) BaseURL() string {
	c = c.Normalized()
	if c.Host == "" {
		return ""
	}
	return schemeFor(c.UseSSL) + "://" + hostPort(c.Host, c.Port)
}

func (c PlexConfig) Endpoint() string {
	c = c.Normalized()
	return hostPort(c.Host, c.Port)
}

func (c PlexConfig) Validate() error {
	c = c.Normalized()
	if c.Host == "" {
		return errors.New("Host is required")
	}
	if c.Token == "" {
		return errors.New("Plex token is required")
	}
	return nil
}

func DecodeOverseerrConfig(raw []byte) (OverseerrConfig, error) {
	var cfg OverseerrConfig
	return cfg, decodeJSON(raw, &cfg)
}

func DecodeUniFiConfig(raw []byte) (UniFiConfig, error) {
	var cfg UniFiConfig
	return cfg, decodeJSON(raw, &cfg)
}

func DecodeHomeAssistantConfig(raw []byte) (HomeAssistantConfig, error) {
	var cfg HomeAssistantConfig
	return cfg, decodeJSON(raw, &cfg)
}

func DecodeActualBudgetConfig(raw []byte) (ActualBudgetConfig, error) {
	var cfg ActualBudgetConfig
	return cfg, decodeJSON(raw, &cfg)
}

func DecodePlexConfig(raw []byte) (PlexConfig, error) {
	var cfg PlexConfig
	return cfg, decodeJSON(raw, &cfg)
}

func EncodeConfig(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Merge helpers keep an existing secret when an edit leaves the secret
// field blank, so the settings UI can echo masked values back.

func MergeOverseerrConfig(existing OverseerrConfig, update OverseerrConfig) OverseerrConfig {
	merged := existing
	merged.Host = normalizeHost(update.Host)
	merged.Port = update.Port
	merged.UseSSL = update.UseSSL
	if key := strings.TrimSpace(update.APIKey); key != "" {
		merged.APIKey = key
	}
	return merged
}

func MergeUniFiConfig(existing UniFiConfig, update UniFiConfig) UniFiConfig {
	merged := existing
	merged.Host = normalizeHost(update.Host)
	merged.Port = update.Port
	merged.Username = strings.TrimSpace(update.Username)
	merged.Site = strings.TrimSpace(update.Site)
	merged.TLSSkipVerify = update.TLSSkipVerify
	if password := strings.TrimSpace(update.Password); password != "" {
		merged.Password = password
	}
	return merged
}

func MergeHomeAssistantConfig(existing HomeAssistantConfig, update HomeAssistantConfig) HomeAssistantConfig {
	merged := existing
	merged.Host = normalizeHost(update.Host)
	merged.Port = update.Port
	merged.UseSSL = update.UseSSL
	if token := strings.TrimSpace(update.Token); token != "" {
		merged.Token = token
	}
	return merged
}

func MergeActualBudgetConfig(existing ActualBudgetConfig, update ActualBudgetConfig) ActualBudgetConfig {
	merged := existing
	merged.ServerURL = normalizeServerURL(update.ServerURL)
	merged.SyncID = strings.TrimSpace(update.SyncID)
	if password := strings.TrimSpace(update.Password); password != "" {
		merged.Password = password
	}
	return merged
}

func MergePlexConfig(existing PlexConfig, update PlexConfig) PlexConfig {
	merged := existing
	merged.Host = normalizeHost(update.Host)
	merged.Port = update.Port
	merged.UseSSL = update.UseSSL
	if token := strings.TrimSpace(update.Token); token != "" {
		merged.Token = token
	}
	return merged
}

func MaskSecret(secret string) string {
	s := strings.TrimSpace(secret)
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func normalizeHost(raw string) string {
	host := strings.TrimSpace(raw)
	if host == "" {
		return ""
	}
	if strings.Contains(host, "://") {
		if u, err := url.Parse(host); err == nil && u.Host != "" {
			host = u.Host
		}
	}
	if h, _, err := splitHostPort(host); err == nil && h != "" {
		host = h
	}
	return strings.Trim(host, "/")
}

func normalizeServerURL(raw string) string {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return ""
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "https://" + addr
	}
	parsed, err := url.Parse(addr)
	if err != nil {
		return strings.TrimRight(addr, "/")
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimSpace(parsed.String())
}

func splitHostPort(hostport string) (string, string, error) {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 || strings.Contains(hostport, "]") && idx < strings.LastIndex(hostport, "]") {
		return hostport, "", errors.New("no port")
	}
	port := hostport[idx+1:]
	if _, err := strconv.Atoi(port); err != nil {
		return hostport, "", errors.New("no port")
	}
	return hostport[:idx], port, nil
}

func hostPort(host string, port int) string {
	if host == "" {
		return ""
	}
	return host + ":" + strconv.Itoa(port)
}

func schemeFor(useSSL bool) string {
	if useSSL {
		return "https"
	}
	return "http"
}
