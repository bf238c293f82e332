package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/badges"
	"github.com/warp/points-engine/points"
)

func TestParseRule_TaoluMasterPreset(t *testing.T) {
	f := NewBadgeFactory()

	rule, err := f.ParseRule(TaoluMasterJSON("taolu-master", "Taolu Master", 5, 3, 50))
	require.NoError(t, err)

	assert.Equal(t, "taolu-master", rule.ID)
	assert.Equal(t, int64(50), rule.PointsAward)
	assert.Equal(t, badges.TaoluMaster(5, 3), rule.Criteria)
}

func TestParseRule_AllActivityKinds(t *testing.T) {
	f := NewBadgeFactory()
	for _, kind := range []string{
		"skill_tree_sets", "attendance_checkins", "battle_wins",
		"spotlight_awards", "gold_medals", "taolu_forms",
	} {
		rule, err := f.ParseRule(`{"id":"b","name":"B","criteria":{"type":"` + kind + `","min":3}}`)
		require.NoError(t, err, kind)
		assert.Equal(t, badges.ActivityCount{Activity: badges.ActivityKind(kind), Min: 3}, rule.Criteria)
	}
}

func TestParseRule_Rejects(t *testing.T) {
	f := NewBadgeFactory()

	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"id":`},
		{"unknown type", `{"id":"b","name":"B","criteria":{"type":"vibes"}}`},
		{"missing type", `{"id":"b","name":"B","criteria":{}}`},
		{"missing id", `{"name":"B","criteria":{"type":"competition_team"}}`},
		{"zero min", `{"id":"b","name":"B","criteria":{"type":"gold_medals"}}`},
		{"bad child", `{"id":"b","name":"B","criteria":{"type":"all_of","all_of":[{"type":"competition_team"},{"type":"nope"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseRule(tt.json)
			assert.ErrorIs(t, err, points.ErrValidation)
		})
	}
}

func TestEncode_RoundTripsEveryVariant(t *testing.T) {
	f := NewBadgeFactory()
	rules := []badges.Rule{
		{ID: "a", Name: "A", Criteria: badges.LifetimePoints{Min: 500}, PointsAward: 25},
		{ID: "b", Name: "B", Criteria: badges.CompetitionTeam{}},
		{ID: "c", Name: "C", Criteria: badges.CharacterLevel{Min: 10}},
		{ID: "d", Name: "D", Category: "forms", Criteria: badges.TaoluMaster(8, 4)},
	}
	for _, r := range rules {
		encoded, err := f.Encode(r)
		require.NoError(t, err)
		back, err := f.ParseRule(encoded)
		require.NoError(t, err)
		assert.Equal(t, r, back)
	}
}
