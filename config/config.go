/*
Package config loads the points engine configuration from TOML.

PURPOSE:
  One file configures the server, storage, cache, civil calendar, level
  curve, category sets, claim payouts and the badge sweep scheduler. A
  missing file means defaults; a partial file overrides only what it names.

EXAMPLE:
  [server]
  port = 8080
  cors_origins = ["http://localhost:3000"]

  [database]
  path = "./data/points.db"

  [redis]
  addr = "localhost:6379"   # empty disables the leaderboard cache
  ttl = "5m"

  [calendar]
  timezone = "America/Los_Angeles"

  [levels]
  base_jump = 50
  difficulty_pct = 8
  rounding_unit = 10

  [categories]
  non_lifetime = ["redeem", "sprint_penalty", "avatar_bonus", ...]
  non_weekly = ["redeem", "avatar_bonus", ...]

  [claims]
  avatar = 5
  leaderboard = 5
  role = 5
  event = 10

  [scheduler]
  badge_sweep_enabled = false
  badge_sweep_interval = "1h"

  [log]
  level = "info"

SEE ALSO:
  - cmd/server/main.go: Flags override port, database path and config path
*/
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/warp/points-engine/claims"
	"github.com/warp/points-engine/levels"
	"github.com/warp/points-engine/points"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	Calendar   CalendarConfig   `toml:"calendar"`
	Levels     LevelsConfig     `toml:"levels"`
	Categories CategoriesConfig `toml:"categories"`
	Claims     ClaimsConfig     `toml:"claims"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Log        LogConfig        `toml:"log"`
}

type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type RedisConfig struct {
	Addr string   `toml:"addr"`
	TTL  Duration `toml:"ttl"`
}

type CalendarConfig struct {
	Timezone string `toml:"timezone"`
}

type LevelsConfig struct {
	BaseJump      int64   `toml:"base_jump"`
	DifficultyPct float64 `toml:"difficulty_pct"`
	RoundingUnit  int64   `toml:"rounding_unit"`
	MaxLevel      int     `toml:"max_level"`
}

type CategoriesConfig struct {
	NonLifetime []string `toml:"non_lifetime"`
	NonWeekly   []string `toml:"non_weekly"`
}

type ClaimsConfig struct {
	Avatar      int64 `toml:"avatar"`
	Leaderboard int64 `toml:"leaderboard"`
	Role        int64 `toml:"role"`
	Event       int64 `toml:"event"`
}

type SchedulerConfig struct {
	BadgeSweepEnabled  bool     `toml:"badge_sweep_enabled"`
	BadgeSweepInterval Duration `toml:"badge_sweep_interval"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Duration decodes TOML strings such as "5m" or "1h30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

func Default() Config {
	curve := levels.DefaultCurve()
	amounts := claims.DefaultAmounts()
	categories := points.DefaultCategoryConfig()

	return Config{
		Server:   ServerConfig{Port: 8080, CORSOrigins: []string{"*"}},
		Database: DatabaseConfig{Path: "./data/points.db"},
		Redis:    RedisConfig{TTL: Duration{5 * time.Minute}},
		Calendar: CalendarConfig{Timezone: "America/Los_Angeles"},
		Levels: LevelsConfig{
			BaseJump:      curve.BaseJump,
			DifficultyPct: curve.DifficultyPct,
			RoundingUnit:  curve.RoundingUnit,
			MaxLevel:      curve.MaxLevel,
		},
		Categories: CategoriesConfig{
			NonLifetime: categoryNames(categories.NonLifetime()),
			NonWeekly:   categoryNames(categories.NonWeekly()),
		},
		Claims: ClaimsConfig{
			Avatar:      amounts[claims.KindAvatar],
			Leaderboard: amounts[claims.KindLeaderboard],
			Role:        amounts[claims.KindRole],
			Event:       amounts[claims.KindEvent],
		},
		Scheduler: SchedulerConfig{BadgeSweepInterval: Duration{time.Hour}},
		Log:       LogConfig{Level: "info"},
	}
}

// Load decodes path over the defaults and validates the result. An empty
// path or a missing file returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decode %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Errorf("%s: unknown keys %v", path, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return points.Invalid("server.port", "must be between 1 and 65535")
	}
	if c.Calendar.Timezone == "" {
		return points.Invalid("calendar.timezone", "required")
	}
	if _, err := points.NewCalendar(c.Calendar.Timezone); err != nil {
		return points.Invalid("calendar.timezone", err.Error())
	}
	if err := c.Curve().Validate(); err != nil {
		return errors.Wrap(err, "levels")
	}
	for kind, amount := range c.Amounts() {
		if amount <= 0 {
			return points.Invalid("claims."+string(kind), "must be positive")
		}
	}
	if c.Scheduler.BadgeSweepEnabled && c.Scheduler.BadgeSweepInterval.Duration <= 0 {
		return points.Invalid("scheduler.badge_sweep_interval", "must be positive")
	}
	return nil
}

// =============================================================================
// DOMAIN VIEWS
// =============================================================================

func (c Config) Curve() levels.Curve {
	return levels.Curve{
		BaseJump:      c.Levels.BaseJump,
		DifficultyPct: c.Levels.DifficultyPct,
		RoundingUnit:  c.Levels.RoundingUnit,
		MaxLevel:      c.Levels.MaxLevel,
	}
}

func (c Config) CategoryConfig() points.CategoryConfig {
	return points.NewCategoryConfig(toCategories(c.Categories.NonLifetime), toCategories(c.Categories.NonWeekly))
}

func (c Config) Amounts() claims.Amounts {
	return claims.Amounts{
		claims.KindAvatar:      c.Claims.Avatar,
		claims.KindLeaderboard: c.Claims.Leaderboard,
		claims.KindRole:        c.Claims.Role,
		claims.KindEvent:       c.Claims.Event,
	}
}

func categoryNames(cats []points.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

func toCategories(names []string) []points.Category {
	out := make([]points.Category, len(names))
	for i, n := range names {
		out[i] = points.Category(n)
	}
	return out
}
