package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTranslator(t *testing.T) RuleTranslator {
	t.Helper()
	return NewRuleTranslator()
}

func TestTranslate(t *testing.T) {
	translator := newTestTranslator(t)

	tests := []struct {
		name         string
		rule         string
		timezone     string
		wantCron     string
		wantDegraded bool
	}{
		{
			name:     "monthly day 1 in UTC",
			rule:     "DTSTART:20250101T000000\nRRULE:FREQ=MONTHLY;BYMONTHDAY=1",
			timezone: "UTC",
			wantCron: "0 0 1 * *",
		},
		{
			// Midnight in UTC+7 is 17:00 the previous day in UTC. The
			// day-of-month field stays 1: only hour and minute shift.
			name:     "monthly day 1 in Ho Chi Minh",
			rule:     "DTSTART:20250101T000000\nRRULE:FREQ=MONTHLY;BYMONTHDAY=1",
			timezone: "Asia/Ho_Chi_Minh",
			wantCron: "0 17 1 * *",
		},
		{
			name:     "monthly with hour and minute in Jakarta",
			rule:     "DTSTART:20250101T000000\nRRULE:FREQ=MONTHLY;BYMONTHDAY=15;BYHOUR=8;BYMINUTE=30",
			timezone: "Asia/Jakarta",
			wantCron: "30 1 15 * *",
		},
		{
			name:     "daily at nine New York time",
			rule:     "DTSTART:20250101T000000\nRRULE:FREQ=DAILY;BYHOUR=9",
			timezone: "America/New_York",
			wantCron: "0 14 * * *",
		},
		{
			name:     "weekly on Monday",
			rule:     "DTSTART:20250101T000000\nRRULE:FREQ=WEEKLY;BYDAY=MO;BYHOUR=6",
			timezone: "UTC",
			wantCron: "0 6 * * 1",
		},
		{
			name:     "weekly defaults to Sunday",
			rule:     "DTSTART:20250101T000000\nRRULE:FREQ=WEEKLY",
			timezone: "UTC",
			wantCron: "0 0 * * 0",
		},
		{
			name:         "unsupported frequency falls back",
			rule:         "DTSTART:20250101T000000\nRRULE:FREQ=YEARLY",
			timezone:     "Asia/Jakarta",
			wantCron:     "0 0 1 * *",
			wantDegraded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cron, degraded, err := translator.Translate(tt.rule, tt.timezone)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCron, cron)
			assert.Equal(t, tt.wantDegraded, degraded)
		})
	}
}

func TestTranslateMalformedRule(t *testing.T) {
	translator := newTestTranslator(t)

	_, _, err := translator.Translate("NOT_A_RULE", "UTC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRuleParse))
}

func TestTranslateMissingRRuleLine(t *testing.T) {
	translator := newTestTranslator(t)

	_, _, err := translator.Translate("DTSTART:20250101T000000", "UTC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRuleParse))
}

func TestTranslateUnknownTimezone(t *testing.T) {
	translator := newTestTranslator(t)

	_, _, err := translator.Translate("DTSTART:20250101T000000\nRRULE:FREQ=DAILY", "Mars/Olympus_Mons")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRuleParse))
}

func TestNextOccurrence(t *testing.T) {
	translator := newTestTranslator(t)
	now := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

	t.Run("open-ended rule keeps producing occurrences", func(t *testing.T) {
		next, err := translator.NextOccurrence("DTSTART:20250101T000000\nRRULE:FREQ=MONTHLY;BYMONTHDAY=1", now)
		require.NoError(t, err)
		assert.False(t, next.IsZero())
		assert.True(t, next.After(now))
	})

	t.Run("count exhausted returns zero time", func(t *testing.T) {
		next, err := translator.NextOccurrence("DTSTART:20250101T000000\nRRULE:FREQ=MONTHLY;BYMONTHDAY=1;COUNT=1", now)
		require.NoError(t, err)
		assert.True(t, next.IsZero())
	})

	t.Run("until in the past returns zero time", func(t *testing.T) {
		next, err := translator.NextOccurrence("DTSTART:20250101T000000\nRRULE:FREQ=DAILY;UNTIL=20250201T000000Z", now)
		require.NoError(t, err)
		assert.True(t, next.IsZero())
	})

	t.Run("malformed rule fails", func(t *testing.T) {
		_, err := translator.NextOccurrence("NOT_A_RULE", now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRuleParse))
	})
}
