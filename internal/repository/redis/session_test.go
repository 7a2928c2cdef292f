package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/huynhbt/raffle-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStoreGetMissing(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewSessionStore(rdb, time.Hour)

	mock.ExpectGet(KeySession("abc")).RedisNil()

	sess, err := store.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", sess.ID)
	assert.False(t, sess.HasLock())
	assert.Empty(t, sess.LastSold)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStoreRoundTrip(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewSessionStore(rdb, time.Hour)

	sess := &domain.ReservationSession{
		ID:       "abc",
		Locked:   []int{3, 7},
		LockedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		LastSold: []int{1},
	}

	payload, err := json.Marshal(sess)
	require.NoError(t, err)

	mock.ExpectSet(KeySession("abc"), payload, time.Hour).SetVal("OK")
	require.NoError(t, store.Save(context.Background(), sess))

	mock.ExpectGet(KeySession("abc")).SetVal(string(payload))
	got, err := store.Get(context.Background(), "abc")
	require.NoError(t, err)

	assert.Equal(t, sess.Locked, got.Locked)
	assert.True(t, sess.LockedAt.Equal(got.LockedAt))
	assert.Equal(t, sess.LastSold, got.LastSold)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStoreDelete(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewSessionStore(rdb, time.Hour)

	mock.ExpectDel(KeySession("abc")).SetVal(1)

	require.NoError(t, store.Delete(context.Background(), "abc"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStoreReplay(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := NewIdempotencyStore(rdb, 2*time.Hour)
	key := KeyIdemLock("req-1")

	// nothing stored yet
	mock.ExpectGet(key).RedisNil()
	_, ok, err := store.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	// in-flight marker is not a replayable result
	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(true)
	locked, err := store.AcquireLock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)

	mock.ExpectGet(key).SetVal("LOCK")
	_, ok, err = store.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	// once the result is saved it replays verbatim
	mock.ExpectSet(key, `RES:{"numbers":[3]}`, 2*time.Hour).SetVal("OK")
	require.NoError(t, store.SaveResult(context.Background(), key, `{"numbers":[3]}`))

	mock.ExpectGet(key).SetVal(`RES:{"numbers":[3]}`)
	payload, ok, err := store.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"numbers":[3]}`, payload)

	assert.NoError(t, mock.ExpectationsWereMet())
}
