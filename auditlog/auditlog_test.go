package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/hrygo/tgrunner/chatid"
	"github.com/stretchr/testify/assert"
)

func TestOpen_RejectsUnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "file::memory:")
	assert.Error(t, err)
}

func TestOpen_RejectsEmptyDSN(t *testing.T) {
	_, err := Open("sqlite", "")
	assert.Error(t, err)
}

func TestSqlStore_RecordAndQueryRoundTrip(t *testing.T) {
	store, err := Open("sqlite", "file::memory:?cache=shared")
	assert.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	assert.NoError(t, store.RecordProcessed(ctx, 1, chatid.Int64(100), now))
	assert.NoError(t, store.RecordProcessed(ctx, 2, chatid.Int64(100), now.Add(time.Second)))
	assert.NoError(t, store.RecordProcessed(ctx, 3, chatid.Int64(200), now.Add(2*time.Second)))

	ids, err := store.RecentUpdateIDs(ctx, 2)
	assert.NoError(t, err)
	assert.Equal(t, []int{3, 2}, ids)
}

func TestSqlStore_RecentUpdateIDsEmptyWhenNothingRecorded(t *testing.T) {
	store, err := Open("sqlite", "file::memory:?cache=shared")
	assert.NoError(t, err)
	defer store.Close()

	ids, err := store.RecentUpdateIDs(context.Background(), 10)
	assert.NoError(t, err)
	assert.Empty(t, ids)
}
