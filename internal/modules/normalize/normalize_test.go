package normalize

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/risk-sentry/internal/domain"
	"github.com/aristath/risk-sentry/pkg/logger"
)

type stubCalendar struct {
	previous string
	err      error
}

func (c stubCalendar) PreviousTradingDate(date string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if c.previous != "" {
		return c.previous, nil
	}
	return date, nil
}

func newTestNormalizer(cal Calendar) *Normalizer {
	return New(cal, logger.Nop())
}

func TestNormalize_ValidTargetMode(t *testing.T) {
	n := newTestNormalizer(stubCalendar{previous: "2024-03-14"})

	normalized, validation := n.Normalize(
		domain.Instruction{
			Date:    "2024-03-15",
			Mode:    domain.ModeTarget,
			Targets: map[string]float64{"AAA": 0.6, "BBB": 0.4},
		},
		domain.PortfolioContext{
			CurrentPositions: map[string]float64{"AAA": 0.5, "CCC": 0.5},
			PolicyProfile:    "default",
		},
	)

	require.True(t, validation.IsValid)
	require.NotNil(t, normalized)
	assert.Equal(t, "2024-03-14", normalized.AsOfDate)
	assert.InDelta(t, 0.6, normalized.TargetWeights["AAA"], 1e-9)
	assert.Empty(t, validation.Warnings)
}

func TestNormalize_DefaultsToTargetMode(t *testing.T) {
	n := newTestNormalizer(stubCalendar{})

	normalized, validation := n.Normalize(
		domain.Instruction{Date: "2024-03-15", Targets: map[string]float64{"AAA": 1.0}},
		domain.PortfolioContext{},
	)

	require.True(t, validation.IsValid)
	assert.Equal(t, domain.ModeTarget, normalized.Mode)
}

func TestNormalize_RenormalizesWithWarning(t *testing.T) {
	n := newTestNormalizer(stubCalendar{})

	normalized, validation := n.Normalize(
		domain.Instruction{
			Date:    "2024-03-15",
			Targets: map[string]float64{"AAA": 1.0, "BBB": 1.0},
		},
		domain.PortfolioContext{},
	)

	require.True(t, validation.IsValid)
	assert.Len(t, validation.Warnings, 1)
	assert.InDelta(t, 0.5, normalized.TargetWeights["AAA"], 1e-9)
	assert.InDelta(t, 0.5, normalized.TargetWeights["BBB"], 1e-9)
	// Raw targets stay untouched
	assert.InDelta(t, 1.0, normalized.Targets["AAA"], 1e-9)
}

func TestNormalize_DeltaModeRebasesOnCurrent(t *testing.T) {
	n := newTestNormalizer(stubCalendar{})

	normalized, validation := n.Normalize(
		domain.Instruction{
			Date:    "2024-03-15",
			Mode:    domain.ModeDelta,
			Targets: map[string]float64{"AAA": 0.1, "BBB": -0.1},
		},
		domain.PortfolioContext{
			CurrentPositions: map[string]float64{"AAA": 0.5, "BBB": 0.5},
		},
	)

	require.True(t, validation.IsValid)
	assert.InDelta(t, 0.6, normalized.TargetWeights["AAA"], 1e-9)
	assert.InDelta(t, 0.4, normalized.TargetWeights["BBB"], 1e-9)
}

func TestNormalize_AccumulatesAllErrors(t *testing.T) {
	n := newTestNormalizer(stubCalendar{})

	normalized, validation := n.Normalize(
		domain.Instruction{
			Date:    "not-a-date",
			Mode:    "replace",
			Targets: map[string]float64{"AAA": math.NaN()},
		},
		domain.PortfolioContext{},
	)

	assert.Nil(t, normalized)
	require.False(t, validation.IsValid)
	// invalid date, bad mode, non-finite weight, and empty target set
	assert.Len(t, validation.Errors, 4)
}

func TestNormalize_MissingDate(t *testing.T) {
	n := newTestNormalizer(stubCalendar{})

	_, validation := n.Normalize(
		domain.Instruction{Targets: map[string]float64{"AAA": 1.0}},
		domain.PortfolioContext{},
	)

	require.False(t, validation.IsValid)
	assert.Contains(t, validation.Errors, "missing date")
}

func TestNormalize_CalendarFailureWarnsAndKeepsDate(t *testing.T) {
	n := newTestNormalizer(stubCalendar{err: errors.New("db down")})

	normalized, validation := n.Normalize(
		domain.Instruction{Date: "2024-03-15", Targets: map[string]float64{"AAA": 1.0}},
		domain.PortfolioContext{},
	)

	require.True(t, validation.IsValid)
	assert.Equal(t, "2024-03-15", normalized.AsOfDate)
	assert.Len(t, validation.Warnings, 1)
}

func TestNormalize_UniverseFirstAppearanceOrder(t *testing.T) {
	n := newTestNormalizer(stubCalendar{})

	normalized, validation := n.Normalize(
		domain.Instruction{
			Date:    "2024-03-15",
			Targets: map[string]float64{"DDD": 0.5, "AAA": 0.5},
		},
		domain.PortfolioContext{
			Universe:         []string{"CCC", "AAA"},
			CurrentPositions: map[string]float64{"BBB": 1.0},
		},
	)

	require.True(t, validation.IsValid)
	assert.Equal(t, []string{"CCC", "AAA", "BBB", "DDD"}, normalized.Universe)
}

func TestNormalize_DefaultPolicyProfile(t *testing.T) {
	n := newTestNormalizer(stubCalendar{})

	normalized, _ := n.Normalize(
		domain.Instruction{Date: "2024-03-15", Targets: map[string]float64{"AAA": 1.0}},
		domain.PortfolioContext{},
	)

	assert.Equal(t, "default", normalized.PolicyProfile)
}
