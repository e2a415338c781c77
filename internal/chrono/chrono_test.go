package chrono

import (
	"testing"
	"time"

	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func TestFixedTime(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("PST", -8*60*60))
	clock := FixedTime{At: at}
	require.Equal(t, time.UTC, clock.Now().Location())
	require.True(t, at.Equal(clock.Now()))
}

func TestStandardTimeIsUTC(t *testing.T) {
	require.Equal(t, time.UTC, NewStandardTime().Now().Location())
}

func TestCronSpecs(t *testing.T) {
	tel := telemetry.NewRecorder()
	cron := NewStandardCron(tel, nil)
	defer cron.Stop()

	require.NoError(t, cron.Cron("@every 1h", func() {}))
	require.NoError(t, cron.Cron("*/15 * * * *", func() {}))
	require.Error(t, cron.Cron("every hour", func() {}))
}

func TestCronLoggerParams(t *testing.T) {
	l := cronLogger{tel: telemetry.NewRecorder()}
	params := l.formatParams([]any{"entry", 1, "dangling"})
	require.Equal(t, []any{telemetry.KV{Key: "entry", Value: 1}}, params)
}
