package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPebbleJournalOrders(t *testing.T) {
	j, err := NewMemJournal()
	require.NoError(t, err)
	defer j.Close()

	base := time.Unix(1_700_000_000, 0)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.RecordOrder(OrderRecord{
			Wallet: "0xW1", Market: "AAA-USD", OrderID: id, Side: "buy",
			Type: "limit", Quantity: "1.00000000", At: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, j.RecordOrder(OrderRecord{Wallet: "0xW2", OrderID: "z", At: base}))

	got, err := j.RecentOrders("0xW1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].OrderID)
	assert.Equal(t, "b", got[1].OrderID)

	got, err = j.RecentOrders("0xW2", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "z", got[0].OrderID)

	got, err = j.RecentOrders("0xW3", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPebbleJournalErrors(t *testing.T) {
	j, err := NewMemJournal()
	require.NoError(t, err)
	defer j.Close()

	at := time.Unix(1_700_000_000, 0)
	// same timestamp, distinct keys
	require.NoError(t, j.RecordError(ErrorRecord{Op: "create", Code: "TRADING_DISABLED", Message: "first", At: at}))
	require.NoError(t, j.RecordError(ErrorRecord{Op: "create", Message: "second", At: at}))

	got, err := j.RecentErrors(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Message)
	assert.Equal(t, "TRADING_DISABLED", got[1].Code)
}

func TestPebbleJournalOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	j, err := NewPebbleJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordOrder(OrderRecord{Wallet: "0xW", OrderID: "x", At: time.Unix(1, 0)}))
	require.NoError(t, j.Close())

	j, err = NewPebbleJournal(path)
	require.NoError(t, err)
	defer j.Close()
	got, err := j.RecentOrders("0xW", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestKeyUpperBound(t *testing.T) {
	assert.Equal(t, []byte("ord:0xW;"), keyUpperBound([]byte("ord:0xW:")))
	assert.Less(t, string(orderKey("0xW", 1<<62, "zz")), string(keyUpperBound(orderPrefix("0xW"))))
}

func TestNopJournal(t *testing.T) {
	var j Journal = NopJournal{}
	assert.NoError(t, j.RecordOrder(OrderRecord{}))
	assert.NoError(t, j.RecordError(ErrorRecord{}))
	assert.NoError(t, j.Close())
}
