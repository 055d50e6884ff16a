package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		name        string
		anomalyType AnomalyType
		changePct   float64
		expected    Severity
	}{
		{"activity drop below warning", TypeActivityDrop, 29.9, SeverityInfo},
		{"activity drop at warning boundary", TypeActivityDrop, 30, SeverityWarning},
		{"activity drop between", TypeActivityDrop, 45, SeverityWarning},
		{"activity drop at critical boundary", TypeActivityDrop, 50, SeverityCritical},
		{"activity drop extreme", TypeActivityDrop, 90, SeverityCritical},

		{"error spike warning", TypeErrorSpike, 150, SeverityWarning},
		{"error spike critical", TypeErrorSpike, 200, SeverityCritical},

		{"revenue drop warning", TypeRevenueDrop, 25, SeverityWarning},
		{"revenue drop critical", TypeRevenueDrop, 40, SeverityCritical},

		{"disk space warning", TypeDiskSpaceLow, 10, SeverityWarning},
		{"disk space critical", TypeDiskSpaceLow, 20, SeverityCritical},

		{"unknown type is info", AnomalyType("mystery"), 1000, SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetermineSeverity(tt.anomalyType, tt.changePct))
		})
	}
}

func TestAcknowledgeTransitions(t *testing.T) {
	a := &Anomaly{Status: StatusDetected}
	require.NoError(t, a.Acknowledge())
	assert.Equal(t, StatusAcknowledged, a.Status)

	// Acknowledging twice is a harmless no-op.
	require.NoError(t, a.Acknowledge())
	assert.Equal(t, StatusAcknowledged, a.Status)
}

func TestResolveTransitions(t *testing.T) {
	a := &Anomaly{Status: StatusDetected}
	require.NoError(t, a.Resolve("fixed by restart"))

	assert.Equal(t, StatusResolved, a.Status)
	assert.Equal(t, "fixed by restart", a.ResolutionNotes)
	require.NotNil(t, a.ResolvedAt)
}

func TestResolveFromAcknowledged(t *testing.T) {
	a := &Anomaly{Status: StatusAcknowledged}
	require.NoError(t, a.Resolve(""))
	assert.Equal(t, StatusResolved, a.Status)
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	for _, status := range []Status{StatusResolved, StatusFalsePositive} {
		a := &Anomaly{Status: status, ResolutionNotes: "original"}

		assert.ErrorIs(t, a.Acknowledge(), ErrInvalidTransition)
		assert.ErrorIs(t, a.Resolve("overwrite attempt"), ErrInvalidTransition)
		assert.ErrorIs(t, a.MarkFalsePositive("overwrite attempt"), ErrInvalidTransition)

		// Rejected transitions must not mutate history.
		assert.Equal(t, status, a.Status)
		assert.Equal(t, "original", a.ResolutionNotes)
	}
}

func TestMarkFalsePositive(t *testing.T) {
	a := &Anomaly{Status: StatusDetected}
	require.NoError(t, a.MarkFalsePositive("seasonal dip"))

	assert.Equal(t, StatusFalsePositive, a.Status)
	assert.Equal(t, "seasonal dip", a.ResolutionNotes)
	assert.True(t, a.IsTerminal())
}

func TestShouldTriggerAlert(t *testing.T) {
	tests := []struct {
		name     string
		severity Severity
		status   Status
		expected bool
	}{
		{"critical detected alerts", SeverityCritical, StatusDetected, true},
		{"warning detected alerts", SeverityWarning, StatusDetected, true},
		{"info never alerts", SeverityInfo, StatusDetected, false},
		{"acknowledged suppresses", SeverityCritical, StatusAcknowledged, false},
		{"resolved suppresses", SeverityCritical, StatusResolved, false},
		{"false positive suppresses", SeverityWarning, StatusFalsePositive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Anomaly{Severity: tt.severity, Status: tt.status}
			assert.Equal(t, tt.expected, a.ShouldTriggerAlert())
		})
	}
}

func TestAlertChannelsFanOut(t *testing.T) {
	critical := &Anomaly{Severity: SeverityCritical}
	assert.Equal(t, []Channel{ChannelEmail, ChannelSlack, ChannelSMS}, critical.AlertChannels())

	warning := &Anomaly{Severity: SeverityWarning}
	assert.Equal(t, []Channel{ChannelEmail, ChannelSlack}, warning.AlertChannels())

	info := &Anomaly{Severity: SeverityInfo}
	assert.Equal(t, []Channel{ChannelEmail}, info.AlertChannels())
}

func TestRecommendedActionsCoverage(t *testing.T) {
	for anomalyType := range changeThresholds {
		actions := RecommendedActions(anomalyType)
		assert.NotEmpty(t, actions, "type %s needs a runbook", anomalyType)
	}
	assert.Nil(t, RecommendedActions(AnomalyType("mystery")))
}

func TestRecommendedActionsReturnsCopy(t *testing.T) {
	first := RecommendedActions(TypeErrorSpike)
	first[0] = "mutated"
	assert.NotEqual(t, "mutated", RecommendedActions(TypeErrorSpike)[0])
}
