package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lyxmarket/crypto"
)

func testAddress(t *testing.T, b byte) string {
	t.Helper()
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = b
	}
	return crypto.NewAddress(crypto.LYXPrefix, raw).String()
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8546", cfg.RPCAddress)
	require.Equal(t, "./marketdata", cfg.DataDir)
	require.Equal(t, int64(7*24*60*60), cfg.ConfirmTimeoutSecs)
	require.Zero(t, cfg.FeeBps)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8546", cfg.RPCAddress)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestLoadFullConfig(t *testing.T) {
	feeRecipient := testAddress(t, 0x01)
	operator := testAddress(t, 0x02)
	path := writeConfig(t, `
RPCAddress = "0.0.0.0:9000"
DataDir = "/tmp/marketdata"
FeeRecipient = "`+feeRecipient+`"
FeeBps = 250
Operator = "`+operator+`"
ConfirmTimeoutSecs = 3600
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, uint32(250), cfg.FeeBps)
	require.Equal(t, int64(3600), cfg.ConfirmTimeoutSecs)

	recipient, err := cfg.FeeRecipientBytes()
	require.NoError(t, err)
	require.Equal(t, byte(0x01), recipient[0])

	op, err := cfg.OperatorBytes()
	require.NoError(t, err)
	require.Equal(t, byte(0x02), op[19])
}

func TestLoadRejectsFeeAboveFullSale(t *testing.T) {
	path := writeConfig(t, `
FeeRecipient = "`+testAddress(t, 0x01)+`"
FeeBps = 10001
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsFeeWithoutRecipient(t *testing.T) {
	path := writeConfig(t, "FeeBps = 250\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidAddresses(t *testing.T) {
	_, err := Load(writeConfig(t, `FeeRecipient = "not-an-address"`+"\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `Operator = "not-an-address"`+"\n"))
	require.Error(t, err)
}

func TestLoadRejectsNegativeTimeout(t *testing.T) {
	path := writeConfig(t, "ConfirmTimeoutSecs = -1\n")

	_, err := Load(path)
	require.Error(t, err)
}
