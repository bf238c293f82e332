package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/claims"
	"github.com/warp/points-engine/points"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "points.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "America/Los_Angeles", cfg.Calendar.Timezone)
	assert.Equal(t, int64(50), cfg.Levels.BaseJump)
	assert.Equal(t, int64(10), cfg.Levels.RoundingUnit)
	assert.Equal(t, 99, cfg.Levels.MaxLevel)
	assert.Equal(t, claims.DefaultAmounts(), cfg.Amounts())
	assert.False(t, cfg.Scheduler.BadgeSweepEnabled)

	cats := cfg.CategoryConfig()
	assert.False(t, cats.CountsLifetime(points.CategoryRedeem))
	assert.False(t, cats.CountsWeekly(points.CategoryAvatarBonus))
	assert.True(t, cats.CountsWeekly(points.CategorySprintPenalty))
	assert.True(t, cats.CountsLifetime(points.CategoryCoachAward))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesOnlyNamedKeys(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090

[redis]
addr = "localhost:6379"
ttl = "30s"

[levels]
rounding_unit = 5

[categories]
non_lifetime = ["redeem"]

[claims]
event = 25

[scheduler]
badge_sweep_enabled = true
badge_sweep_interval = "15m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL.Duration)
	assert.Equal(t, int64(5), cfg.Curve().RoundingUnit)
	assert.Equal(t, int64(50), cfg.Curve().BaseJump, "untouched keys keep defaults")
	assert.Equal(t, int64(25), cfg.Amounts()[claims.KindEvent])
	assert.Equal(t, int64(5), cfg.Amounts()[claims.KindAvatar])
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.BadgeSweepInterval.Duration)

	cats := cfg.CategoryConfig()
	assert.True(t, cats.CountsLifetime(points.CategoryAvatarBonus))
	assert.False(t, cats.CountsLifetime(points.CategoryRedeem))
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad timezone", "[calendar]\ntimezone = \"Mars/Olympus\""},
		{"rounding unit", "[levels]\nrounding_unit = 7"},
		{"zero claim", "[claims]\navatar = 0"},
		{"unknown key", "[server]\nhost = \"0.0.0.0\""},
		{"bad duration", "[redis]\nttl = \"soon\""},
		{"bad port", "[server]\nport = 70000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
