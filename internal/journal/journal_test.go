package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/infigrid-core/internal/infrastructure/database"
	_ "github.com/nerrad567/infigrid-core/migrations"
)

func openTestJournal(t *testing.T) (*Journal, *database.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(ctx))

	return New(db.DB), db
}

func appendN(t *testing.T, j *Journal, n int) []Entry {
	t.Helper()
	entries := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		args, err := EncodeArgs(map[string]any{"n": i})
		require.NoError(t, err)
		e, err := j.Append(context.Background(), Record{Seq: uint64(i), Caller: "ST1SENSOR", Op: "storeData", Args: args})
		require.NoError(t, err)
		entries = append(entries, e)
	}
	return entries
}

func TestAppend_ChainsEntries(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	head, err := j.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, Head{}, head)

	entries := appendN(t, j, 3)
	assert.True(t, entries[0].PrevHash.IsZero())
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
	assert.Equal(t, entries[1].Hash, entries[2].PrevHash)
	assert.NotEqual(t, entries[0].TxID, entries[1].TxID)

	head, err = j.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, Head{Seq: 3, Hash: entries[2].Hash}, head)
}

func TestAppend_Rejections(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()
	appendN(t, j, 1)

	_, err := j.Append(ctx, Record{Seq: 3, Caller: "c", Op: "op"})
	assert.ErrorIs(t, err, ErrSequenceGap)

	_, err = j.Append(ctx, Record{Seq: 1, Caller: "c", Op: "op"})
	assert.ErrorIs(t, err, ErrSequenceGap)

	_, err = j.Append(ctx, Record{Seq: 2, Op: "op"})
	assert.ErrorIs(t, err, ErrEmptyCall)

	head, err := j.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head.Seq)
}

func TestEntries(t *testing.T) {
	j, _ := openTestJournal(t)
	written := appendN(t, j, 5)

	got, err := j.Entries(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Seq)
	assert.Equal(t, written[1].Hash, got[0].Hash)
	assert.Equal(t, written[1].Args, got[0].Args)
	assert.Equal(t, written[1].CommittedAt.UnixNano(), got[0].CommittedAt.UnixNano())

	got, err = j.Entries(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplay(t *testing.T) {
	j, _ := openTestJournal(t)
	appendN(t, j, 4)

	var seqs []uint64
	head, err := j.Replay(context.Background(), func(e Entry) error {
		var args map[string]any
		if err := DecodeArgs(e.Args, &args); err != nil {
			return err
		}
		seqs = append(seqs, e.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4}, seqs)
	assert.Equal(t, uint64(4), head.Seq)

	stop := errors.New("stop")
	_, err = j.Replay(context.Background(), func(e Entry) error {
		if e.Seq == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
}

func TestJournal_IsAppendOnly(t *testing.T) {
	j, db := openTestJournal(t)
	appendN(t, j, 2)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "UPDATE journal SET op = 'forged' WHERE seq = 1")
	assert.Error(t, err)
	_, err = db.ExecContext(ctx, "DELETE FROM journal WHERE seq = 2")
	assert.Error(t, err)
}

func TestVerify_DetectsTampering(t *testing.T) {
	tests := []struct {
		name    string
		tamper  string
		wantErr error
	}{
		{"edited op", "UPDATE journal SET op = 'forged' WHERE seq = 2", ErrChainBroken},
		{"edited args", "UPDATE journal SET args = x'00' WHERE seq = 3", ErrChainBroken},
		{"removed entry", "DELETE FROM journal WHERE seq = 2", ErrSequenceGap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, db := openTestJournal(t)
			appendN(t, j, 3)
			ctx := context.Background()

			_, err := j.Verify(ctx)
			require.NoError(t, err)

			_, err = db.ExecContext(ctx, "DROP TRIGGER journal_no_update")
			require.NoError(t, err)
			_, err = db.ExecContext(ctx, "DROP TRIGGER journal_no_delete")
			require.NoError(t, err)
			_, err = db.ExecContext(ctx, tt.tamper)
			require.NoError(t, err)

			_, err = j.Verify(ctx)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestComputeHash_FieldBoundaries(t *testing.T) {
	// Moving bytes between caller and op must change the hash.
	a := computeHash(Digest{}, 1, "ab", "c", nil)
	b := computeHash(Digest{}, 1, "a", "bc", nil)
	assert.NotEqual(t, a, b)
}

func TestAppend_CommitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT seq, hash FROM journal`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "hash"}))
	mock.ExpectExec(`INSERT INTO journal`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	j := New(db)
	_, err = j.Append(context.Background(), Record{Seq: 1, Caller: "ST1SENSOR", Op: "registerDevice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committing journal entry 1")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_InsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT seq, hash FROM journal`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "hash"}))
	mock.ExpectExec(`INSERT INTO journal`).
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	j := New(db)
	_, err = j.Append(context.Background(), Record{Seq: 1, Caller: "ST1SENSOR", Op: "registerDevice"})
	require.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
