package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCert(t *testing.T, dir string) string {
	t.Helper()
	certPath := filepath.Join(dir, "cert.pem")
	require.NoError(t, os.WriteFile(certPath, []byte("dummy"), 0o600))
	return certPath
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsOverUnsetFields(t *testing.T) {
	dir := t.TempDir()
	certPath := writeCert(t, dir)
	body := `
[server]
base_url = "https://127.0.0.1:9000"
api_key = "secret"
tls_cert_path = "` + certPath + `"
`
	cfg, err := Load(writeConfig(t, dir, body))
	require.NoError(t, err)

	assert.Equal(t, "ldkboss.db", cfg.General.DatabasePath)
	assert.Equal(t, 5, cfg.Autopilot.MaxProposals)
	assert.Equal(t, 0.5, cfg.Rebalancer.TriggerProbability)
	assert.True(t, cfg.General.ReconnectorEnabled)
}

func TestLoadRejectsMissingServerFields(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(writeConfig(t, dir, `[general]`+"\n"))
	require.Error(t, err)
}

func TestLoadRejectsMissingCertFile(t *testing.T) {
	dir := t.TempDir()
	body := `
[server]
base_url = "https://127.0.0.1:9000"
api_key = "secret"
tls_cert_path = "` + filepath.Join(dir, "nope.pem") + `"
`
	_, err := Load(writeConfig(t, dir, body))
	require.Error(t, err)
}

func TestValidateRejectsChannelSatsBelowAbsoluteMinimum(t *testing.T) {
	cfg := Default()
	cfg.Server = ServerConfig{BaseURL: "x", APIKey: "y", TLSCertPath: certFixture(t)}
	cfg.Autopilot.MinChannelSats = 1_000
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsChannelSatsAboveAbsoluteMaximum(t *testing.T) {
	cfg := Default()
	cfg.Server = ServerConfig{BaseURL: "x", APIKey: "y", TLSCertPath: certFixture(t)}
	cfg.Autopilot.MaxChannelSats = AbsMaxChannelSats + 1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedMinMax(t *testing.T) {
	cfg := Default()
	cfg.Server = ServerConfig{BaseURL: "x", APIKey: "y", TLSCertPath: certFixture(t)}
	cfg.Autopilot.MinChannelSats = cfg.Autopilot.MaxChannelSats + 1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsTooManyProposals(t *testing.T) {
	cfg := Default()
	cfg.Server = ServerConfig{BaseURL: "x", APIKey: "y", TLSCertPath: certFixture(t)}
	cfg.Autopilot.MaxProposals = AbsMaxProposals + 1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeTriggerProbability(t *testing.T) {
	cfg := Default()
	cfg.Server = ServerConfig{BaseURL: "x", APIKey: "y", TLSCertPath: certFixture(t)}
	cfg.Rebalancer.TriggerProbability = 1.5
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeMaxSpendablePercent(t *testing.T) {
	cfg := Default()
	cfg.Server = ServerConfig{BaseURL: "x", APIKey: "y", TLSCertPath: certFixture(t)}
	cfg.Rebalancer.MaxSpendablePercent = 100
	require.Error(t, cfg.Validate())
}

func certFixture(t *testing.T) string {
	t.Helper()
	return writeCert(t, t.TempDir())
}
