package query_test

import (
	"SynthLedger/internal/custody"
	"SynthLedger/internal/engine"
	fpmath "SynthLedger/internal/math"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/persistence"
	"SynthLedger/internal/projection"
	"SynthLedger/internal/query"
	"SynthLedger/internal/registry"
	"SynthLedger/internal/testutil"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fpmath.WadConfig.Scale)
}

func TestProjectionsAndQueries(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	reg, err := registry.New([]string{"WETH"}, []string{"ETH/USD"})
	require.NoError(t, err)
	feeds := oracle.NewFeedBook()
	feeds.SetPrice("ETH/USD", new(uint256.Int).Mul(uint256.NewInt(2000), fpmath.FeedConfig.Scale), time.Now())

	self := uuid.New()
	vault := custody.NewVault(self)
	outs := make(chan engine.Output, 64)
	log := zerolog.Nop()
	eng, err := engine.New(engine.Deps{
		Registry:    reg,
		Prices:      feeds,
		Collateral:  vault,
		Synthetic:   custody.NewSyntheticToken("SYNTH", self),
		Self:        self,
		Params:      engine.DefaultParams(),
		Logger:      &log,
		PersistChan: outs,
	})
	require.NoError(t, err)

	user := uuid.New()
	require.NoError(t, vault.Mint("WETH", user, units(3)))
	_, err = eng.DepositAndIssue(user, "WETH", units(3), units(1000))
	require.NoError(t, err)
	_, err = eng.Withdraw(user, "WETH", units(1))
	require.NoError(t, err)
	close(outs)

	// Fan the committed stream out to both workers.
	persistIn := make(chan engine.Output, 64)
	projIn := make(chan engine.Output, 64)
	for out := range outs {
		persistIn <- out
		projIn <- out
	}
	close(persistIn)
	close(projIn)

	require.NoError(t, persistence.NewPersistenceWorker(db, persistIn, 10, 5*time.Millisecond, nil).Run(ctx))
	require.NoError(t, projection.NewProjectionWorker(db, projIn, nil).Run(ctx))

	qs := query.NewQueryService(db)
	check := func() {
		t.Helper()
		pos, err := qs.GetPositions(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(2), pos.AsOfSequence)
		require.Len(t, pos.Positions, 2)
		assert.Equal(t, "WETH", pos.Positions[0].Account)
		assert.Equal(t, units(2).Dec(), pos.Positions[0].Balance)
		assert.Equal(t, projection.DebtAccount, pos.Positions[1].Account)
		assert.Equal(t, units(1000).Dec(), pos.Positions[1].Balance)
	}
	check()

	require.NoError(t, projection.RebuildProjections(ctx, db))
	check()

	history, err := qs.GetJournalHistory(ctx, user, 10, nil)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, int64(2), history[0].Sequence)

	liqs, err := qs.GetLiquidations(ctx, query.LiquidationFilter{Target: &user})
	require.NoError(t, err)
	assert.Empty(t, liqs.Liquidations)

	report, err := qs.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsHealthy, "%+v", report)
}
