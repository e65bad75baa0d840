package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// VaultConfig configures the optional Vault KV secret source. The diarization
// bearer token and engine API keys are typically loaded from here in
// production deployments.
type VaultConfig struct {
	Enabled   bool
	Addr      string
	Token     string
	Namespace string
	Mount     string
	Path      string
	KVVersion int
	Timeout   time.Duration
	Overwrite bool
}

// VaultResult summarizes a secret load.
type VaultResult struct {
	Enabled bool
	Path    string
	Loaded  int
	Skipped int
}

// LoadVaultConfigFromEnv builds a VaultConfig from VAULT_* environment variables.
func LoadVaultConfigFromEnv(pathOverride string) VaultConfig {
	enabled := strings.EqualFold(os.Getenv("VAULT_ENABLED"), "true")
	mount := os.Getenv("VAULT_MOUNT")
	if mount == "" {
		mount = "secret"
	}
	kvVersion := 2
	if val := os.Getenv("VAULT_KV_VERSION"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			kvVersion = parsed
		}
	}
	path := pathOverride
	if path == "" {
		path = os.Getenv("VAULT_PATH")
	}
	timeout := 5 * time.Second
	if val := os.Getenv("VAULT_TIMEOUT_MS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			timeout = time.Duration(parsed) * time.Millisecond
		}
	}
	overwrite := strings.EqualFold(os.Getenv("VAULT_OVERWRITE"), "true")

	return VaultConfig{
		Enabled:   enabled,
		Addr:      os.Getenv("VAULT_ADDR"),
		Token:     os.Getenv("VAULT_TOKEN"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Mount:     mount,
		Path:      path,
		KVVersion: kvVersion,
		Timeout:   timeout,
		Overwrite: overwrite,
	}
}

// ApplyVaultSecrets fetches the configured KV path and exports each key/value
// pair into the process environment so config.Load picks them up.
func ApplyVaultSecrets(ctx context.Context, cfg VaultConfig) (VaultResult, error) {
	if !cfg.Enabled {
		return VaultResult{Enabled: false}, nil
	}

	if cfg.Addr == "" || cfg.Token == "" || cfg.Path == "" {
		return VaultResult{Enabled: true, Path: cfg.Path}, errors.New("vault configuration incomplete (VAULT_ADDR, VAULT_TOKEN, VAULT_PATH)")
	}

	vaultURL, err := buildVaultURL(cfg.Addr, cfg.Mount, cfg.Path, cfg.KVVersion)
	if err != nil {
		return VaultResult{Enabled: true, Path: cfg.Path}, err
	}

	client := &http.Client{Timeout: cfg.Timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vaultURL, nil)
	if err != nil {
		return VaultResult{Enabled: true, Path: cfg.Path}, err
	}
	req.Header.Set("X-Vault-Token", cfg.Token)
	if cfg.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", cfg.Namespace)
	}

	resp, err := client.Do(req)
	if err != nil {
		return VaultResult{Enabled: true, Path: cfg.Path}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return VaultResult{Enabled: true, Path: cfg.Path}, fmt.Errorf("vault returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return VaultResult{Enabled: true, Path: cfg.Path}, err
	}

	secrets, err := extractKV(payload.Data, cfg.KVVersion)
	if err != nil {
		return VaultResult{Enabled: true, Path: cfg.Path}, err
	}

	result := VaultResult{Enabled: true, Path: cfg.Path}
	for key, value := range secrets {
		if !cfg.Overwrite && os.Getenv(key) != "" {
			result.Skipped++
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return result, fmt.Errorf("failed to set %s: %w", key, err)
		}
		result.Loaded++
	}

	return result, nil
}

func buildVaultURL(addr, mount, path string, kvVersion int) (string, error) {
	base, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid VAULT_ADDR: %w", err)
	}

	secretPath := strings.Trim(path, "/")
	mount = strings.Trim(mount, "/")

	if kvVersion == 2 {
		base.Path = fmt.Sprintf("/v1/%s/data/%s", mount, secretPath)
	} else {
		base.Path = fmt.Sprintf("/v1/%s/%s", mount, secretPath)
	}

	return base.String(), nil
}

func extractKV(raw json.RawMessage, kvVersion int) (map[string]string, error) {
	if kvVersion == 2 {
		var nested struct {
			Data map[string]interface{} `json:"data"`
		}
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, err
		}
		return stringify(nested.Data), nil
	}

	var flat map[string]interface{}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	return stringify(flat), nil
}

func stringify(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case string:
			out[key] = v
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[key] = string(encoded)
		}
	}
	return out
}
