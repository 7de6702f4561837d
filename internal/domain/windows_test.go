package domain

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func day(t *testing.T, s string) time.Time {
    t.Helper()
    d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
    require.NoError(t, err)
    return d
}

func TestNewWindows_LastWeekIsLastCompletedMondayToFriday(t *testing.T) {
    cases := []struct {
        now      string
        from, to string
    }{
        {"2025-06-11", "2025-06-02", "2025-06-06"}, // Wednesday
        {"2025-06-14", "2025-06-09", "2025-06-13"}, // Saturday
        {"2025-06-13", "2025-06-02", "2025-06-06"}, // Friday: current week not completed
        {"2025-06-09", "2025-06-02", "2025-06-06"}, // Monday
    }
    for _, tc := range cases {
        w := NewWindows(day(t, tc.now).Add(15 * time.Hour))
        assert.Equal(t, tc.from, w.LastWeek.From.Format("2006-01-02"), tc.now)
        assert.Equal(t, tc.to, w.LastWeek.To.Format("2006-01-02"), tc.now)
        assert.Equal(t, time.Monday, w.LastWeek.From.Weekday())
        assert.Equal(t, time.Friday, w.LastWeek.To.Weekday())
    }
}

func TestNewWindows_Last30(t *testing.T) {
    w := NewWindows(day(t, "2025-06-11").Add(9 * time.Hour))
    assert.Equal(t, "2025-05-12..2025-06-11", w.Last30.String())
    assert.Equal(t, day(t, "2025-06-11"), w.Today)
}

func TestDateRange_ContainsIsInclusiveOnBothEnds(t *testing.T) {
    w := NewWindows(day(t, "2025-06-11"))
    assert.True(t, w.LastWeek.Contains(day(t, "2025-06-02")))
    assert.True(t, w.LastWeek.Contains(day(t, "2025-06-06").Add(23*time.Hour+59*time.Minute)))
    assert.False(t, w.LastWeek.Contains(day(t, "2025-06-01").Add(23*time.Hour)))
    assert.False(t, w.LastWeek.Contains(day(t, "2025-06-07")))

    assert.True(t, w.Last30.Contains(day(t, "2025-05-12")))
    assert.True(t, w.Last30.Contains(day(t, "2025-06-11").Add(20*time.Hour)))
    assert.False(t, w.Last30.Contains(day(t, "2025-05-11")))
}

func TestDateRange_ContainsComparesInRangeLocation(t *testing.T) {
    art := time.FixedZone("ART", -3*3600)
    now := time.Date(2025, 6, 11, 10, 0, 0, 0, art)
    w := NewWindows(now)
    // 2025-06-07 01:00 UTC is still Friday 06-06 in ART
    assert.True(t, w.LastWeek.Contains(time.Date(2025, 6, 7, 1, 0, 0, 0, time.UTC)))
    assert.False(t, w.LastWeek.Contains(time.Date(2025, 6, 7, 4, 0, 0, 0, time.UTC)))
}

func TestPercent(t *testing.T) {
    assert.Equal(t, 0.0, Percent(5, 0))
    assert.Equal(t, 66.67, Percent(2, 3))
    assert.Equal(t, 25.0, Percent(2, 8))
    assert.Equal(t, "0.00%", FormatPercent(Percent(0, 0)))
    assert.Equal(t, "66.67%", FormatPercent(66.67))
}

func TestPercent_MonotonicAsOpenDecreases(t *testing.T) {
    total := 7.0
    prev := -1.0
    for open := 7; open >= 0; open-- {
        p := Percent(total-float64(open), total)
        assert.GreaterOrEqual(t, p, prev)
        prev = p
    }
    assert.Equal(t, 100.0, prev)
}

func TestRound2(t *testing.T) {
    assert.Equal(t, 1.24, Round2(1.235000001))
    assert.Equal(t, 2.0, Round2(1.999))
}
