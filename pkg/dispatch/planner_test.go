package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinhq/calvin/pkg/provider"
)

func snapshotWith(tools map[string][]string) provider.Snapshot {
	snap := make(provider.Snapshot)
	for name, toolNames := range tools {
		caps := provider.Capabilities{}
		for _, t := range toolNames {
			caps.Tools = append(caps.Tools, provider.ToolDescriptor{Name: t})
		}
		snap[name] = caps
	}
	return snap
}

func TestPlanner_SingleCategorySingleEntity(t *testing.T) {
	planner := NewPlanner(nil, 0)
	snap := snapshotWith(map[string][]string{
		"finance-tools": {"analyze_sentiment"},
	})

	plan := planner.Plan("What's the sentiment for ABC?", snap)

	require.Len(t, plan.Invocations, 1)
	inv := plan.Invocations[0]
	assert.Equal(t, "finance-tools", inv.Provider)
	assert.Equal(t, "analyze_sentiment", inv.Tool)
	assert.Equal(t, "sentiment", inv.Category)
	assert.Equal(t, "ABC", inv.Entity)
	assert.Equal(t, map[string]interface{}{"symbol": "ABC"}, inv.Args)
}

func TestPlanner_Deterministic(t *testing.T) {
	planner := NewPlanner(nil, 0)
	snap := snapshotWith(map[string][]string{
		"alpha": {"analyze_sentiment", "get_relationships"},
		"beta":  {"analyze_sentiment", "get_fundamentals"},
		"gamma": {"get_historical_events"},
	})
	message := "Compare the sentiment and earnings history for ABC and XYZ"

	first := planner.Plan(message, snap)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, planner.Plan(message, snap))
	}
}

func TestPlanner_NoCategoryMatched(t *testing.T) {
	planner := NewPlanner(nil, 0)
	snap := snapshotWith(map[string][]string{
		"finance-tools": {"analyze_sentiment"},
	})

	plan := planner.Plan("Hello there, how are you today?", snap)

	assert.True(t, plan.Empty())
}

func TestPlanner_NoEntityFound(t *testing.T) {
	planner := NewPlanner(nil, 0)
	snap := snapshotWith(map[string][]string{
		"finance-tools": {"analyze_sentiment"},
	})

	plan := planner.Plan("what is the overall market sentiment?", snap)

	assert.True(t, plan.Empty())
}

func TestPlanner_CategoryWithoutProviderSkipped(t *testing.T) {
	planner := NewPlanner(nil, 0)

	tests := []struct {
		name string
		snap provider.Snapshot
	}{
		{name: "empty snapshot", snap: provider.Snapshot{}},
		{name: "provider without the tool", snap: snapshotWith(map[string][]string{
			"finance-tools": {"get_fundamentals"},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planner.Plan("What's the sentiment for ABC?", tt.snap)
			assert.True(t, plan.Empty())
		})
	}
}

func TestPlanner_FanOutCap(t *testing.T) {
	planner := NewPlanner(nil, 2)
	snap := snapshotWith(map[string][]string{
		"finance-tools": {"analyze_sentiment", "get_relationships"},
	})

	// Two categories times two entities would be four invocations uncapped
	plan := planner.Plan("Compare the sentiment for ABC and XYZ", snap)

	assert.Len(t, plan.Invocations, 2)
}

func TestPlanner_MultiCategoryMultiEntity(t *testing.T) {
	planner := NewPlanner(nil, 4)
	snap := snapshotWith(map[string][]string{
		"sentiment-srv": {"analyze_sentiment"},
		"graph-srv":     {"get_relationships"},
	})

	plan := planner.Plan("Compare the sentiment for ABC and XYZ", snap)

	require.Len(t, plan.Invocations, 4)
	// Rule table order first, then first-appearance entity order
	assert.Equal(t, "sentiment", plan.Invocations[0].Category)
	assert.Equal(t, "ABC", plan.Invocations[0].Entity)
	assert.Equal(t, "sentiment", plan.Invocations[1].Category)
	assert.Equal(t, "XYZ", plan.Invocations[1].Entity)
	assert.Equal(t, "relationship", plan.Invocations[2].Category)
	assert.Equal(t, "ABC", plan.Invocations[2].Entity)
	assert.Equal(t, "relationship", plan.Invocations[3].Category)
	assert.Equal(t, "XYZ", plan.Invocations[3].Entity)
}

func TestPlanner_StoplistFiltersCommonTokens(t *testing.T) {
	planner := NewPlanner(nil, 0)
	snap := snapshotWith(map[string][]string{
		"finance-tools": {"analyze_sentiment"},
	})

	plan := planner.Plan("WHAT IS THE sentiment ON IBM AND GDP?", snap)

	require.Len(t, plan.Invocations, 1)
	assert.Equal(t, "IBM", plan.Invocations[0].Entity)
}

func TestPlanner_DuplicateEntityCollapsed(t *testing.T) {
	planner := NewPlanner(nil, 0)
	snap := snapshotWith(map[string][]string{
		"finance-tools": {"analyze_sentiment"},
	})

	plan := planner.Plan("Is TSLA sentiment bullish? TSLA again", snap)

	require.Len(t, plan.Invocations, 1)
	assert.Equal(t, "TSLA", plan.Invocations[0].Entity)
}

func TestPlanner_ProvidersConsideredInNameOrder(t *testing.T) {
	planner := NewPlanner(nil, 0)
	snap := snapshotWith(map[string][]string{
		"zeta-tools":  {"analyze_sentiment"},
		"alpha-tools": {"analyze_sentiment"},
	})

	plan := planner.Plan("What's the sentiment for ABC?", snap)

	require.Len(t, plan.Invocations, 1)
	assert.Equal(t, "alpha-tools", plan.Invocations[0].Provider)
}

func TestPlanner_EveryToolExistsInSnapshot(t *testing.T) {
	planner := NewPlanner(nil, 0)
	snap := snapshotWith(map[string][]string{
		"alpha": {"analyze_sentiment"},
		"beta":  {"get_fundamentals", "get_relationships"},
	})

	messages := []string{
		"What's the sentiment for ABC?",
		"Show me earnings and peers for MSFT and AAPL",
		"Any historical crash events around NVDA?",
	}

	for _, msg := range messages {
		plan := planner.Plan(msg, snap)
		for _, inv := range plan.Invocations {
			assert.True(t, snap[inv.Provider].HasTool(inv.Tool),
				"invocation %s/%s not backed by snapshot", inv.Provider, inv.Tool)
		}
	}
}

func TestLooksLikeSymbol(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"ABC", true},
		{"A1", true},
		{"TSLA", true},
		{"TOOLONG", false},
		{"abc", false},
		{"Abc", false},
		{"1AB", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikeSymbol(tt.token))
		})
	}
}
