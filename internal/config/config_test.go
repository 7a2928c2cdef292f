package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_USER", "raffle")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "raffle")

	// empty values mean "use the default", so this isolates the test from
	// whatever the surrounding shell exports
	for _, k := range []string{
		"TICKET_COUNT", "TICKET_PRICE_VND", "LOCK_WINDOW", "TICKET_PAGE_SIZE",
		"REDIS_DB", "VIETQR_TEMPLATE",
	} {
		t.Setenv(k, "")
	}
}

func TestNewDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Raffle.TicketCount)
	assert.Equal(t, int64(10000), cfg.Raffle.UnitPrice)
	assert.Equal(t, 3*time.Minute, cfg.Raffle.LockWindow)
	assert.Equal(t, 100, cfg.Raffle.PageSize)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, "compact2", cfg.VietQR.Template)
}

func TestNewReadsRedisDB(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_DB", "3")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestNewRejectsBadInt(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_DB", "three")

	_, err := New()
	assert.Error(t, err)
}

func TestNewRequiresPostgresCredentials(t *testing.T) {
	t.Setenv("POSTGRES_USER", "")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "raffle")

	_, err := New()
	assert.ErrorContains(t, err, "POSTGRES_USER")
}
