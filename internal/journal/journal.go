package journal

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Default and maximum page sizes for Entries.
const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Digest is a BLAKE2b-256 entry hash.
type Digest [blake2b.Size256]byte

// String returns the lowercase hex form of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText implements encoding.TextMarshaler so digests render as hex in JSON.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// IsZero reports whether d is the genesis back-link.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Record is a committed call to be appended.
type Record struct {
	Seq    uint64
	Caller string
	Op     string
	Args   []byte
}

// Entry is a stored journal entry.
type Entry struct {
	Seq         uint64    `json:"seq"`
	TxID        string    `json:"tx_id"`
	Caller      string    `json:"caller"`
	Op          string    `json:"op"`
	Args        []byte    `json:"-"`
	PrevHash    Digest    `json:"prev_hash"`
	Hash        Digest    `json:"hash"`
	CommittedAt time.Time `json:"committed_at"`
}

// Head identifies the last entry in the journal. The zero Head is an empty
// journal.
type Head struct {
	Seq  uint64 `json:"seq"`
	Hash Digest `json:"hash"`
}

// Journal is an append-only, hash-chained log of committed calls.
//
// Each entry links to its predecessor by hash and carries a contiguous
// sequence number starting at 1, so the full ledger state can be rebuilt by
// replaying the journal in order, and any edit to a stored entry is detected
// by Verify.
//
// Thread Safety:
//   - Append is safe to call concurrently, but callers that derive Seq from
//     Head must serialise Head and Append themselves.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a journal over the journal table of db.
func New(db *sql.DB) *Journal {
	return &Journal{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Append stores rec as the next entry.
//
// rec.Seq must be exactly one past the current head; otherwise ErrSequenceGap
// is returned and nothing is written.
func (j *Journal) Append(ctx context.Context, rec Record) (Entry, error) {
	if rec.Caller == "" || rec.Op == "" {
		return Entry{}, ErrEmptyCall
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("starting journal transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	head, err := queryHead(ctx, tx)
	if err != nil {
		return Entry{}, err
	}
	if rec.Seq != head.Seq+1 {
		return Entry{}, fmt.Errorf("%w: appending %d after %d", ErrSequenceGap, rec.Seq, head.Seq)
	}

	args := rec.Args
	if args == nil {
		args = []byte{}
	}
	e := Entry{
		Seq:         rec.Seq,
		TxID:        uuid.NewString(),
		Caller:      rec.Caller,
		Op:          rec.Op,
		Args:        args,
		PrevHash:    head.Hash,
		CommittedAt: j.now(),
	}
	e.Hash = computeHash(e.PrevHash, e.Seq, e.Caller, e.Op, e.Args)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO journal (seq, tx_id, caller, op, args, prev_hash, hash, committed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, e.TxID, e.Caller, e.Op, e.Args,
		e.PrevHash[:], e.Hash[:],
		e.CommittedAt.Format(time.RFC3339Nano),
	); err != nil {
		return Entry{}, fmt.Errorf("inserting journal entry %d: %w", e.Seq, err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("committing journal entry %d: %w", e.Seq, err)
	}
	return e, nil
}

// Head returns the last entry's sequence number and hash.
func (j *Journal) Head(ctx context.Context) (Head, error) {
	return queryHead(ctx, j.db)
}

// Entries returns up to limit entries with seq >= fromSeq in ascending order.
// A non-positive limit selects the default page size.
func (j *Journal) Entries(ctx context.Context, fromSeq uint64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, tx_id, caller, op, args, prev_hash, hash, committed_at
		 FROM journal WHERE seq >= ? ORDER BY seq LIMIT ?`,
		fromSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}

// Replay streams every entry in sequence order to fn, checking sequence
// continuity and the hash chain as it goes. It stops at the first error from
// fn or from verification.
//
// fn must not use the journal's database: the result set stays open while
// fn runs.
func (j *Journal) Replay(ctx context.Context, fn func(Entry) error) (Head, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, tx_id, caller, op, args, prev_hash, hash, committed_at
		 FROM journal ORDER BY seq`,
	)
	if err != nil {
		return Head{}, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var head Head
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return head, err
		}
		if err := verifyLink(head, e); err != nil {
			return head, err
		}
		if fn != nil {
			if err := fn(e); err != nil {
				return head, fmt.Errorf("replaying entry %d (%s): %w", e.Seq, e.Op, err)
			}
		}
		head = Head{Seq: e.Seq, Hash: e.Hash}
	}
	if err := rows.Err(); err != nil {
		return head, fmt.Errorf("iterating journal: %w", err)
	}
	return head, nil
}

// Verify walks the whole journal and checks sequence continuity and the hash
// chain. It returns the verified head.
func (j *Journal) Verify(ctx context.Context) (Head, error) {
	return j.Replay(ctx, nil)
}

// verifyLink checks that e directly follows prev and that its hash matches
// its contents.
func verifyLink(prev Head, e Entry) error {
	if e.Seq != prev.Seq+1 {
		return fmt.Errorf("%w: entry %d follows %d", ErrSequenceGap, e.Seq, prev.Seq)
	}
	if e.PrevHash != prev.Hash {
		return fmt.Errorf("%w: entry %d back-link mismatch", ErrChainBroken, e.Seq)
	}
	if e.Hash != computeHash(e.PrevHash, e.Seq, e.Caller, e.Op, e.Args) {
		return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, e.Seq)
	}
	return nil
}

// computeHash is BLAKE2b-256 over prev ‖ seq ‖ caller ‖ op ‖ args. Variable
// length fields other than the trailing args are length-prefixed.
func computeHash(prev Digest, seq uint64, caller, op string, args []byte) Digest {
	buf := make([]byte, 0, len(prev)+8+len(caller)+len(op)+len(args)+2*binary.MaxVarintLen64)
	buf = append(buf, prev[:]...)
	buf = binary.BigEndian.AppendUint64(buf, seq)
	buf = binary.AppendUvarint(buf, uint64(len(caller)))
	buf = append(buf, caller...)
	buf = binary.AppendUvarint(buf, uint64(len(op)))
	buf = append(buf, op...)
	buf = append(buf, args...)
	return blake2b.Sum256(buf)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryHead(ctx context.Context, q queryer) (Head, error) {
	var (
		head Head
		hash []byte
	)
	err := q.QueryRowContext(ctx, "SELECT seq, hash FROM journal ORDER BY seq DESC LIMIT 1").Scan(&head.Seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Head{}, nil
	}
	if err != nil {
		return Head{}, fmt.Errorf("querying journal head: %w", err)
	}
	if err := copyDigest(&head.Hash, hash); err != nil {
		return Head{}, fmt.Errorf("journal head %d: %w", head.Seq, err)
	}
	return head, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var prevHash, hash []byte
	var committedAt string
	if err := s.Scan(&e.Seq, &e.TxID, &e.Caller, &e.Op, &e.Args, &prevHash, &hash, &committedAt); err != nil {
		return Entry{}, fmt.Errorf("scanning journal entry: %w", err)
	}
	if err := copyDigest(&e.PrevHash, prevHash); err != nil {
		return Entry{}, fmt.Errorf("entry %d prev_hash: %w", e.Seq, err)
	}
	if err := copyDigest(&e.Hash, hash); err != nil {
		return Entry{}, fmt.Errorf("entry %d hash: %w", e.Seq, err)
	}
	t, err := time.Parse(time.RFC3339Nano, committedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing journal timestamp %q: %w", committedAt, err)
	}
	e.CommittedAt = t
	return e, nil
}

func copyDigest(dst *Digest, src []byte) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%w: digest length %d", ErrChainBroken, len(src))
	}
	copy(dst[:], src)
	return nil
}
