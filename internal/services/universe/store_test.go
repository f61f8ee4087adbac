package universe_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/finnhub"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/services/universe"
	"github.com/ternarybob/valuescreen/internal/storage/badger"
	"go.uber.org/mock/gomock"
)

func newBadgerManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestRefresh_AgainstBadgerDeactivatesDelisted(t *testing.T) {
	// Arrange: two refreshes, the second one drops BBB
	ctrl := gomock.NewController(t)
	lister := NewMockLister(ctrl)

	gomock.InOrder(
		lister.EXPECT().
			ListIdentifiers(gomock.Any(), "US").
			Return([]finnhub.Symbol{
				{Symbol: "AAA", Type: finnhub.CommonStock, Currency: "USD"},
				{Symbol: "BBB", Type: finnhub.CommonStock, Currency: "USD"},
			}, nil).
			Times(1),
		lister.EXPECT().
			ListIdentifiers(gomock.Any(), "US").
			Return([]finnhub.Symbol{
				{Symbol: "AAA", Type: finnhub.CommonStock, Currency: "USD"},
				{Symbol: "CCC", Type: "ETP", Currency: "USD"},
			}, nil).
			Times(1),
	)

	manager := newBadgerManager(t)
	svc := universe.NewService(lister, manager.UniverseStorage(), arbor.NewLogger())
	ctx := context.Background()

	// Act
	first, err := svc.Refresh(ctx, "us")
	require.NoError(t, err)
	second, err := svc.Refresh(ctx, "US")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 2, first.Upserted)
	assert.Equal(t, 0, first.Deactivated)
	assert.Equal(t, 1, second.Upserted)
	assert.Equal(t, 1, second.Filtered)
	assert.Equal(t, 1, second.Deactivated)

	active, err := manager.UniverseStorage().ListUniverse(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "AAA", active[0].Symbol)

	// BBB is inactive, so it is no longer selected for ingestion
	stale, err := manager.StockStorage().ListStale(ctx, 12*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA"}, stale)
}

func TestRefresh_AgainstBadgerKeepsOtherExchanges(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := NewMockLister(ctrl)

	lister.EXPECT().
		ListIdentifiers(gomock.Any(), "US").
		Return([]finnhub.Symbol{
			{Symbol: "AAA", Type: finnhub.CommonStock, Currency: "USD"},
			{Symbol: "BBB", Type: finnhub.CommonStock, Currency: "USD"},
		}, nil).
		Times(1)
	lister.EXPECT().
		ListIdentifiers(gomock.Any(), "T").
		Return([]finnhub.Symbol{
			{Symbol: "7203.T", Type: finnhub.CommonStock, Currency: "JPY"},
		}, nil).
		Times(1)

	manager := newBadgerManager(t)
	svc := universe.NewService(lister, manager.UniverseStorage(), arbor.NewLogger())
	ctx := context.Background()

	_, err := svc.Refresh(ctx, "US")
	require.NoError(t, err)
	switched, err := svc.Refresh(ctx, "T")
	require.NoError(t, err)

	assert.Equal(t, 0, switched.Deactivated)

	active, err := manager.UniverseStorage().ListUniverse(ctx, true)
	require.NoError(t, err)
	symbols := make([]string, 0, len(active))
	for _, e := range active {
		symbols = append(symbols, e.Symbol)
	}
	assert.ElementsMatch(t, []string{"7203.T", "AAA", "BBB"}, symbols)
}
