package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/calder/inkwell/internal/model"
)

// ErrNotFound is returned when a record, tombstone, or meta key does not exist.
var ErrNotFound = errors.New("not found")

// maxSyncBackoff caps the reconciler's retry delay. Pending writes are never
// dropped; they just retry less often.
const maxSyncBackoff = time.Hour

// Record is one stored entity plus its sync bookkeeping. Data holds the
// entity's canonical JSON form; ProjectID and ParentID are denormalized for
// indexed listing and cascade deletes.
type Record struct {
	Kind          model.Kind
	ID            string
	ProjectID     string
	ParentID      string
	Data          []byte
	ModifiedAt    time.Time
	Pending       bool
	SyncAttempts  int
	SyncAfter     time.Time
	LastSyncError string
}

const recordColumns = `kind, id, project_id, parent_id, data, modified_at, pending, sync_attempts, sync_after, last_sync_error`

// Put upserts a record wholesale, last writer wins. All columns including the
// sync bookkeeping are taken from rec.
func (s *Store) Put(rec Record) error {
	_, err := s.db.Exec(`
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			project_id = excluded.project_id,
			parent_id = excluded.parent_id,
			data = excluded.data,
			modified_at = excluded.modified_at,
			pending = excluded.pending,
			sync_attempts = excluded.sync_attempts,
			sync_after = excluded.sync_after,
			last_sync_error = excluded.last_sync_error`,
		rec.Kind, rec.ID, rec.ProjectID, rec.ParentID, string(rec.Data),
		rec.ModifiedAt.UTC().Format(time.RFC3339Nano), boolToInt(rec.Pending),
		rec.SyncAttempts, formatTime(rec.SyncAfter), rec.LastSyncError,
	)
	if err != nil {
		return fmt.Errorf("storing %s %s: %w", rec.Kind, rec.ID, err)
	}
	return nil
}

// Get returns the record for (kind, id) or ErrNotFound.
func (s *Store) Get(kind model.Kind, id string) (Record, error) {
	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM records WHERE kind = ? AND id = ?`, kind, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Delete removes a record. Deleting a missing record is not an error: the
// caller's intent (record gone) already holds.
func (s *Store) Delete(kind model.Kind, id string) error {
	_, err := s.db.Exec(`DELETE FROM records WHERE kind = ? AND id = ?`, kind, id)
	return err
}

// DeleteByProject removes every record owned by the given project, across all
// kinds. The project record itself is matched too since its project_id equals
// its id.
func (s *Store) DeleteByProject(projectID string) error {
	_, err := s.db.Exec(`DELETE FROM records WHERE project_id = ?`, projectID)
	return err
}

// ListKind returns all records of a kind ordered by modified_at descending.
func (s *Store) ListKind(kind model.Kind) ([]Record, error) {
	return s.list(`SELECT `+recordColumns+` FROM records WHERE kind = ? ORDER BY modified_at DESC`, kind)
}

// ListByProject returns all records of a kind within a project.
func (s *Store) ListByProject(kind model.Kind, projectID string) ([]Record, error) {
	return s.list(`SELECT `+recordColumns+` FROM records WHERE kind = ? AND project_id = ? ORDER BY modified_at DESC`, kind, projectID)
}

// ListByParent returns all records of a kind under the given parent (folder
// contents, subfolders).
func (s *Store) ListByParent(kind model.Kind, parentID string) ([]Record, error) {
	return s.list(`SELECT `+recordColumns+` FROM records WHERE kind = ? AND parent_id = ? ORDER BY modified_at DESC`, kind, parentID)
}

// CountKind returns the number of stored records of a kind.
func (s *Store) CountKind(kind model.Kind) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM records WHERE kind = ?`, kind).Scan(&n)
	return n, err
}

// UsedBytes estimates cache usage as the total size of stored record payloads.
func (s *Store) UsedBytes() (int64, error) {
	var n sql.NullInt64
	if err := s.db.QueryRow(`SELECT SUM(LENGTH(data)) FROM records`).Scan(&n); err != nil {
		return 0, err
	}
	return n.Int64, nil
}

// MarkPending flags a record as awaiting cloud confirmation, recording the
// failure and scheduling the next retry with exponential backoff. Unlike
// regular jobs there is no attempt ceiling: a pending write is user data and
// must eventually reach the cloud.
func (s *Store) MarkPending(kind model.Kind, id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning mark-pending transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts int
	err = tx.QueryRow(`SELECT sync_attempts FROM records WHERE kind = ? AND id = ?`, kind, id).Scan(&attempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	attempts++
	backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
	if backoff > maxSyncBackoff {
		backoff = maxSyncBackoff
	}
	syncAfter := time.Now().UTC().Add(backoff)

	if _, err := tx.Exec(`
		UPDATE records SET pending = 1, sync_attempts = ?, sync_after = ?, last_sync_error = ?
		WHERE kind = ? AND id = ?`,
		attempts, syncAfter.Format(time.RFC3339Nano), errMsg, kind, id,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// ClearPending marks a record as confirmed by the cloud and resets its retry
// bookkeeping.
func (s *Store) ClearPending(kind model.Kind, id string) error {
	res, err := s.db.Exec(`
		UPDATE records SET pending = 0, sync_attempts = 0, sync_after = '', last_sync_error = ''
		WHERE kind = ? AND id = ?`, kind, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingDue returns pending records whose retry time has passed, oldest
// first so the reconciler replays writes roughly in the order they happened.
func (s *Store) ListPendingDue(now time.Time) ([]Record, error) {
	return s.list(`
		SELECT `+recordColumns+` FROM records
		WHERE pending = 1 AND sync_after <= ?
		ORDER BY modified_at ASC`,
		now.UTC().Format(time.RFC3339Nano))
}

// ListPending returns every pending record of a kind regardless of its retry
// schedule. Reads use this to surface writes the cloud has not confirmed yet.
func (s *Store) ListPending(kind model.Kind) ([]Record, error) {
	return s.list(`
		SELECT `+recordColumns+` FROM records
		WHERE kind = ? AND pending = 1
		ORDER BY modified_at DESC`, kind)
}

// --- Tombstones ---

// AddTombstone records a delete that could not reach the cloud.
func (s *Store) AddTombstone(kind model.Kind, id string, deletedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO tombstones (kind, id, deleted_at) VALUES (?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET deleted_at = excluded.deleted_at`,
		kind, id, deletedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Tombstone is a delete awaiting replay against the cloud.
type Tombstone struct {
	Kind      model.Kind
	ID        string
	DeletedAt time.Time
}

// ListTombstones returns all unreplayed deletes, oldest first.
func (s *Store) ListTombstones() ([]Tombstone, error) {
	rows, err := s.db.Query(`SELECT kind, id, deleted_at FROM tombstones ORDER BY deleted_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Tombstone
	for rows.Next() {
		var t Tombstone
		var kind, deletedAt string
		if err := rows.Scan(&kind, &t.ID, &deletedAt); err != nil {
			return nil, err
		}
		t.Kind = model.Kind(kind)
		if t.DeletedAt, err = time.Parse(time.RFC3339Nano, deletedAt); err != nil {
			return nil, fmt.Errorf("parsing deleted_at for %s %s: %w", kind, t.ID, err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// DeleteTombstone removes a tombstone after its delete reached the cloud, or
// when a newer write to the same id supersedes it.
func (s *Store) DeleteTombstone(kind model.Kind, id string) error {
	_, err := s.db.Exec(`DELETE FROM tombstones WHERE kind = ? AND id = ?`, kind, id)
	return err
}

// HasTombstone reports whether a delete for (kind, id) is awaiting replay.
func (s *Store) HasTombstone(kind model.Kind, id string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tombstones WHERE kind = ? AND id = ?`, kind, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// TombstonedIDs returns the set of ids of a kind with unreplayed deletes.
func (s *Store) TombstonedIDs(kind model.Kind) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT id FROM tombstones WHERE kind = ?`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// --- Meta ---

// SetMeta upserts an engine metadata key.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// GetMeta returns a metadata value or ErrNotFound.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var kind, modifiedAt, syncAfter string
	var pending int
	err := row.Scan(&kind, &rec.ID, &rec.ProjectID, &rec.ParentID, &rec.Data,
		&modifiedAt, &pending, &rec.SyncAttempts, &syncAfter, &rec.LastSyncError)
	if err != nil {
		return Record{}, err
	}
	rec.Kind = model.Kind(kind)
	rec.Pending = pending != 0
	if rec.ModifiedAt, err = time.Parse(time.RFC3339Nano, modifiedAt); err != nil {
		return Record{}, fmt.Errorf("parsing modified_at for %s %s: %w", kind, rec.ID, err)
	}
	if syncAfter != "" {
		if rec.SyncAfter, err = time.Parse(time.RFC3339Nano, syncAfter); err != nil {
			return Record{}, fmt.Errorf("parsing sync_after for %s %s: %w", kind, rec.ID, err)
		}
	}
	return rec, nil
}

func (s *Store) list(query string, args ...any) ([]Record, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
