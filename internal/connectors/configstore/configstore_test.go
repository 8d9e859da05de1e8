package configstore

import "testing"

func TestOverseerrConfigNormalized(t *testing.T) {
	t.Parallel()

	cfg := OverseerrConfig{Host: " https://r.local/ ", APIKey: " key "}.Normalized()
	if cfg.Host != "r.local" {
		t.Fatalf("Host = %q, want %q", cfg.Host, "r.local")
	}
	if cfg.Port != 5055 {
		t.Fatalf("Port = %d, want 5055", cfg.Port)
	}
	if cfg.APIKey != "key" {
		t.Fatalf("APIKey = %q, want %q", cfg.APIKey, "key")
	}
	if got := cfg.BaseURL(); got != "http://r.local:5055" {
		t.Fatalf("BaseURL = %q", got)
	}
}

func TestOverseerrConfigValidate(t *testing.T) {
	t.Parallel()

	err := OverseerrConfig{Host: "r.local", Port: 5055, APIKey: ""}.Validate()
	if err == nil || err.Error() != "API key is required" {
		t.Fatalf("Validate() = %v, want API key is required", err)
	}
	if err := (OverseerrConfig{APIKey: "k"}).Validate(); err == nil {
		t.Fatal("expected missing host error")
	}
	if err := (OverseerrConfig{Host: "r.local", APIKey: "k"}).Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestUniFiConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := UniFiConfig{Host: "gw.local", Username: "admin", Password: "pw"}.Normalized()
	if cfg.Port != 443 || cfg.Site != "default" {
		t.Fatalf("Normalized() = %+v, want port 443 site default", cfg)
	}
	if got := cfg.BaseURL(); got != "https://gw.local:443" {
		t.Fatalf("BaseURL = %q", got)
	}
}

func TestUniFiConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  UniFiConfig
		want string
	}{
		{"missing host", UniFiConfig{Username: "a", Password: "b"}, "Host is required"},
		{"missing username", UniFiConfig{Host: "h", Password: "b"}, "Username is required"},
		{"missing password", UniFiConfig{Host: "h", Username: "a"}, "Password is required"},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if err == nil || err.Error() != tc.want {
			t.Fatalf("%s: Validate() = %v, want %q", tc.name, err, tc.want)
		}
	}
}

func TestActualBudgetConfigNormalized(t *testing.T) {
	t.Parallel()

	cfg := ActualBudgetConfig{ServerURL: "ledger.local/", Password: "pw", SyncID: " abc "}.Normalized()
	if cfg.ServerURL != "https://ledger.local" {
		t.Fatalf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.SyncID != "abc" {
		t.Fatalf("SyncID = %q", cfg.SyncID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if err := (ActualBudgetConfig{ServerURL: "ledger.local", Password: "pw"}).Validate(); err == nil {
		t.Fatal("expected missing sync id error")
	}
}

func TestMergeKeepsSecrets(t *testing.T) {
	t.Parallel()

	existing := UniFiConfig{Host: "gw.local", Username: "admin", Password: "secret"}
	merged := MergeUniFiConfig(existing, UniFiConfig{Host: "gw2.local", Username: "admin", Password: ""})
	if merged.Password != "secret" {
		t.Fatalf("Password = %q, want existing secret kept", merged.Password)
	}
	if merged.Host != "gw2.local" {
		t.Fatalf("Host = %q, want updated", merged.Host)
	}

	merged = MergeUniFiConfig(existing, UniFiConfig{Host: "gw.local", Username: "admin", Password: "rotated"})
	if merged.Password != "rotated" {
		t.Fatalf("Password = %q, want rotated", merged.Password)
	}
}

func TestMergePlexConfigRotatesToken(t *testing.T) {
	t.Parallel()

	existing := PlexConfig{Host: "plex.local", Token: "placeholder"}
	merged := MergePlexConfig(existing, PlexConfig{Host: "plex.local", Token: "minted-by-pin-flow"})
	if merged.Token != "minted-by-pin-flow" {
		t.Fatalf("Token = %q, want minted token", merged.Token)
	}
}

func TestDecodeEmptyConfig(t *testing.T) {
	t.Parallel()

	cfg, err := DecodePlexConfig(nil)
	if err != nil {
		t.Fatalf("DecodePlexConfig(nil) error = %v", err)
	}
	if cfg.Host != "" {
		t.Fatalf("Host = %q, want empty", cfg.Host)
	}
	if _, err := DecodePlexConfig([]byte("null")); err != nil {
		t.Fatalf("DecodePlexConfig(null) error = %v", err)
	}
}

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	if got := MaskSecret(""); got != "" {
		t.Fatalf("MaskSecret(empty) = %q", got)
	}
	if got := MaskSecret("abc"); got != "****" {
		t.Fatalf("MaskSecret(short) = %q", got)
	}
	if got := MaskSecret("supersecret"); got != "****cret" {
		t.Fatalf("MaskSecret = %q", got)
	}
}
