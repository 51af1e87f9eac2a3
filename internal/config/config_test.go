package config_test

import (
	"SynthLedger/internal/config"
	"SynthLedger/internal/oracle"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ============================================================================
// Test: Environment
// ============================================================================

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SYNTH_HTTP_ADDR", ":18080")
	t.Setenv("SYNTH_PERSIST_BATCH_SIZE", "7")
	t.Setenv("SYNTH_PERSIST_FLUSH_TIMEOUT", "25ms")
	t.Setenv("SYNTH_DEV_FAUCET", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":18080", cfg.HTTPAddr)
	assert.Equal(t, 7, cfg.PersistBatchSize)
	assert.Equal(t, 25*time.Millisecond, cfg.PersistFlushTimeout)
	assert.True(t, cfg.DevFaucet)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
}

func TestLoad_DotEnvFile(t *testing.T) {
	// godotenv never overrides a variable that is already set.
	t.Setenv("SYNTH_METRICS_ADDR", "placeholder")
	os.Unsetenv("SYNTH_METRICS_ADDR")
	path := writeFile(t, ".env", "SYNTH_METRICS_ADDR=:19091\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":19091", cfg.MetricsAddr)
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("SYNTH_PERSIST_BATCH_SIZE", "0")
	_, err := config.Load("")
	assert.ErrorContains(t, err, "SYNTH_PERSIST_BATCH_SIZE")
}

func TestLoad_MalformedIntFallsBack(t *testing.T) {
	t.Setenv("SYNTH_PERSIST_CHAN_SIZE", "lots")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.PersistChanSize)
}

// ============================================================================
// Test: Engine file
// ============================================================================

const engineTOML = `
custodian = "6f9619ff-8b86-d011-b42d-00cf4fc964ff"
synthetic = "sUSD"

[params]
liquidation_threshold = 60
liquidation_precision = 100
liquidation_bonus = 5
min_health_factor = 1000000000000000000
precision = 1000000000000000000
additional_feed_precision = 10000000000

[[assets]]
token = "WETH"
price_feed = "ETH/USD"
initial_price = "1850.25"

[[assets]]
token = "LINK"
price_feed = "LINK/USD"
`

func TestLoadEngineFile(t *testing.T) {
	f, err := config.LoadEngineFile(writeFile(t, "engine.toml", engineTOML))
	require.NoError(t, err)

	assert.Equal(t, "sUSD", f.Synthetic)
	assert.Equal(t, uint64(60), f.Params.LiquidationThreshold)
	assert.Equal(t, uint64(5), f.Params.LiquidationBonus)
	require.Len(t, f.Assets, 2)
	assert.Equal(t, "LINK/USD", f.Assets[1].PriceFeed)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00cf4fc964ff", f.CustodianID().String())

	reg, err := f.Registry()
	require.NoError(t, err)
	assert.Equal(t, []string{"WETH", "LINK"}, reg.Tokens())

	book := oracle.NewFeedBook()
	n, err := f.SeedPrices(book, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	q, err := book.LatestQuote("ETH/USD")
	require.NoError(t, err)
	assert.Equal(t, "185025000000", q.Price.Dec())
}

func TestLoadEngineFile_MissingUsesDefaults(t *testing.T) {
	f, err := config.LoadEngineFile(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEngineFile(), f)
	assert.NoError(t, f.Validate())
}

func TestLoadEngineFile_UnknownKey(t *testing.T) {
	_, err := config.LoadEngineFile(writeFile(t, "engine.toml", engineTOML+"\nfavourite_colour = \"blue\"\n"))
	assert.ErrorContains(t, err, "favourite_colour")
}

func TestLoadEngineFile_Invalid(t *testing.T) {
	cases := map[string]string{
		"mismatched feeds": `
[[assets]]
token = "WETH"
`,
		"bad threshold": `
[params]
liquidation_threshold = 0

[[assets]]
token = "WETH"
price_feed = "ETH/USD"
`,
		"bad price": `
[[assets]]
token = "WETH"
price_feed = "ETH/USD"
initial_price = "two thousand"
`,
		"bad custodian": `
custodian = "vault"

[[assets]]
token = "WETH"
price_feed = "ETH/USD"
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadEngineFile(writeFile(t, "engine.toml", body))
			assert.Error(t, err)
		})
	}
}

func TestRepositoryEngineFileMatchesDefaults(t *testing.T) {
	f, err := config.LoadEngineFile(filepath.Join("..", "..", "synthledger.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultEngineFile(), f)
}
