package rediscache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/leaderboard"
)

func sampleRows() []leaderboard.RankedRow {
	return []leaderboard.RankedRow{
		{Rank: 1, Row: leaderboard.Row{StudentID: "s1", Name: "Ana", Value: decimal.NewFromInt(12)}},
		{Rank: 1, Row: leaderboard.Row{StudentID: "s2", Name: "Ben", Value: decimal.NewFromInt(12)}},
	}
}

func TestCache_Get(t *testing.T) {
	encoded, err := json.Marshal(sampleRows())
	require.NoError(t, err)

	tests := []struct {
		name    string
		mockFn  func(mock redismock.ClientMock)
		wantHit bool
		wantErr bool
	}{
		{
			name: "hit on current generation",
			mockFn: func(mock redismock.ClientMock) {
				mock.ExpectGet("lb:gen").SetVal("3")
				mock.ExpectGet("lb:3:total_points:10").SetVal(string(encoded))
			},
			wantHit: true,
		},
		{
			name: "miss before any invalidation",
			mockFn: func(mock redismock.ClientMock) {
				mock.ExpectGet("lb:gen").RedisNil()
				mock.ExpectGet("lb:0:total_points:10").RedisNil()
			},
		},
		{
			name: "generation read fails",
			mockFn: func(mock redismock.ClientMock) {
				mock.ExpectGet("lb:gen").SetErr(assert.AnError)
			},
			wantErr: true,
		},
		{
			name: "corrupt entry",
			mockFn: func(mock redismock.ClientMock) {
				mock.ExpectGet("lb:gen").SetVal("1")
				mock.ExpectGet("lb:1:total_points:10").SetVal("{not json")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rds, mock := redismock.NewClientMock()
			tt.mockFn(mock)
			cache := New(rds, time.Minute)

			rows, _, hit, err := cache.Get(context.Background(), "total_points:10")

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantHit, hit)
				if tt.wantHit {
					require.Len(t, rows, 2)
					assert.Equal(t, "Ben", rows[1].Name)
					assert.True(t, rows[1].Value.Equal(decimal.NewFromInt(12)))
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCache_SetWritesUnderGeneration(t *testing.T) {
	rds, mock := redismock.NewClientMock()
	encoded, err := json.Marshal(sampleRows())
	require.NoError(t, err)

	mock.ExpectSet("lb:7:weekly_points:2025-03-10:5", string(encoded), time.Minute).SetVal("OK")

	cache := New(rds, time.Minute)
	require.NoError(t, cache.Set(context.Background(), "weekly_points:2025-03-10:5", 7, sampleRows()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_SetAfterInvalidateKeepsObservedGeneration(t *testing.T) {
	// GIVEN: A miss under generation 4
	// WHEN: An invalidation bumps the generation before the rows are stored
	// THEN: The rows are written under 4 and the next read under 5 misses

	rds, mock := redismock.NewClientMock()
	encoded, err := json.Marshal(sampleRows())
	require.NoError(t, err)
	ctx := context.Background()
	cache := New(rds, time.Minute)

	mock.ExpectGet("lb:gen").SetVal("4")
	mock.ExpectGet("lb:4:total_points:10").RedisNil()
	mock.ExpectIncr("lb:gen").SetVal(5)
	mock.ExpectSet("lb:4:total_points:10", string(encoded), time.Minute).SetVal("OK")
	mock.ExpectGet("lb:gen").SetVal("5")
	mock.ExpectGet("lb:5:total_points:10").RedisNil()

	_, gen, hit, err := cache.Get(ctx, "total_points:10")
	require.NoError(t, err)
	require.False(t, hit)
	assert.Equal(t, int64(4), gen)

	require.NoError(t, cache.Invalidate(ctx))
	require.NoError(t, cache.Set(ctx, "total_points:10", gen, sampleRows()))

	_, gen, hit, err = cache.Get(ctx, "total_points:10")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(5), gen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_InvalidateBumpsGeneration(t *testing.T) {
	rds, mock := redismock.NewClientMock()
	mock.ExpectIncr("lb:gen").SetVal(8)

	cache := New(rds, time.Minute)
	require.NoError(t, cache.Invalidate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	rds, mock = redismock.NewClientMock()
	mock.ExpectIncr("lb:gen").SetErr(assert.AnError)
	assert.Error(t, New(rds, time.Minute).Invalidate(context.Background()))
}
