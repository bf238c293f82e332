package points_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/points"
)

func TestCalendar_DateKeyUsesConfiguredZone(t *testing.T) {
	// GIVEN: A Pacific-time calendar
	// WHEN: An instant is past midnight UTC but still the previous evening in LA
	// THEN: The date key is the LA civil date

	cal := points.MustCalendar("America/Los_Angeles")
	instant := time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC)

	assert.Equal(t, "2025-03-09", cal.DateKey(instant))
	assert.Equal(t, "2025-03-10", points.MustCalendar("UTC").DateKey(instant))
}

func TestCalendar_WeekStartIsMonday(t *testing.T) {
	cal := points.MustCalendar("UTC")

	sunday := time.Date(2025, 3, 16, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), cal.WeekStart(sunday))

	monday := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), cal.WeekStart(monday))
}

func TestCalendar_BadZone(t *testing.T) {
	_, err := points.NewCalendar("Mars/Olympus_Mons")
	require.Error(t, err)
}

func TestCategoryConfig_Defaults(t *testing.T) {
	cfg := points.DefaultCategoryConfig()

	tests := []struct {
		cat      points.Category
		lifetime bool
		weekly   bool
	}{
		{points.CategoryCoachAward, true, true},
		{points.CategoryChallenge, true, true},
		{points.CategoryBadge, true, true},
		{points.CategorySkillSprint, true, true},
		{points.CategorySprintPenalty, false, true},
		{points.CategoryRedeem, false, false},
		{points.CategoryAvatarBonus, false, false},
		{points.CategoryEventBonus, false, false},
		{points.Category("camp_prize"), true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.cat), func(t *testing.T) {
			assert.Equal(t, tt.lifetime, cfg.CountsLifetime(tt.cat))
			assert.Equal(t, tt.weekly, cfg.CountsWeekly(tt.cat))
		})
	}
}

func TestCategoryConfig_Sum(t *testing.T) {
	cfg := points.NewCategoryConfig([]points.Category{"spend"}, nil)

	balance, lifetime := cfg.Sum([]points.Entry{
		{Points: 10, Category: "earn"},
		{Points: -4, Category: "spend"},
		{Points: 3, Category: "earn"},
	})
	assert.Equal(t, int64(9), balance)
	assert.Equal(t, int64(13), lifetime)
	assert.Equal(t, []points.Category{"spend"}, cfg.NonLifetime())
	assert.Empty(t, cfg.NonWeekly())
}
