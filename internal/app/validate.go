package app

import (
	"fmt"
	"os"

	"chatrelay/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, CHATRELAY_DB_PATH env, or server.db_path in config")
	}

	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if eff.Config.Upstream.ThreadStore.BaseURL == "" {
		return fmt.Errorf("thread store URL is empty: set CHATRELAY_THREADSTORE_URL or upstream.thread_store.base_url in config")
	}
	if eff.Config.Upstream.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway URL is empty: set CHATRELAY_GATEWAY_URL or upstream.gateway.base_url in config")
	}
	if eff.Config.Webhook.SigningSecret == "" {
		return fmt.Errorf("webhook signing secret is empty: set CHATRELAY_SIGNING_SECRET or webhook.signing_secret in config")
	}
	return nil
}
