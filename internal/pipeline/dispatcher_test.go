package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/internal/modules/chains"
	"github.com/aristath/risk-sentry/internal/rules"
	"github.com/aristath/risk-sentry/pkg/logger"
)

func newTestDispatcher() *dispatcher {
	return &dispatcher{
		chains: chains.New(rules.NewStore("", logger.Nop()), logger.Nop()),
	}
}

func TestDispatcher_Dispatch_DuplicateNodesRunOnce(t *testing.T) {
	d := newTestDispatcher()

	// A duplicate entry must not put two goroutines on the same result slot
	results := d.dispatch(context.Background(), []domain.Node{
		domain.NodeMarket,
		domain.NodeMarket,
		domain.NodeLiquidity,
	}, View{PolicyProfile: "default"})

	require.NotNil(t, results[domain.NodeMarket])
	require.NotNil(t, results[domain.NodeLiquidity])
	assert.Nil(t, results[domain.NodeConcentration])
	assert.Nil(t, results[domain.NodeDiversification])
}

func TestDispatcher_Dispatch_OutOfRangeNodeSkipped(t *testing.T) {
	d := newTestDispatcher()

	results := d.dispatch(context.Background(), []domain.Node{
		domain.Node(-1),
		domain.NodeCount,
		domain.NodeConcentration,
	}, View{PolicyProfile: "default"})

	require.NotNil(t, results[domain.NodeConcentration])
	for n := domain.Node(0); n < domain.NodeCount; n++ {
		if n != domain.NodeConcentration {
			assert.Nil(t, results[n], n.String())
		}
	}
}
