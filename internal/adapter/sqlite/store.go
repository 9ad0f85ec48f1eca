// Package sqlite is the durable single-writer store behind fusion and
// assessment: signal archive, embedding index, cluster assignments, unique
// events, the unit registry, assessment history and run checkpoints.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/kinetic-event-fusion/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is safe for concurrent use; writes are serialized by an internal lock.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates the database at path if needed and applies the schema.
// File-backed databases run in WAL mode.
func Open(path string) (*Store, error) {
	connStr := path
	memory := path == MemoryPath
	if memory {
		// Each store gets its own named shared-cache database so that
		// parallel stores in one process do not see each other.
		connStr = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: the store is the single writer, and per-connection
	// pragmas then hold for every statement.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if !memory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		source_type TEXT NOT NULL,
		source_name TEXT NOT NULL,
		published_at TEXT NOT NULL,
		text TEXT NOT NULL,
		sort_key INTEGER NOT NULL,
		embedding BLOB,
		ingested_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signals_sort ON signals(sort_key, id);

	CREATE TABLE IF NOT EXISTS assignments (
		signal_id TEXT PRIMARY KEY,
		cluster_id TEXT NOT NULL,
		assigned_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_cluster ON assignments(cluster_id);

	CREATE TABLE IF NOT EXISTS unique_events (
		cluster_id TEXT PRIMARY KEY,
		first_seen_at TEXT,
		last_seen_at TEXT,
		member_count INTEGER NOT NULL,
		source_names TEXT NOT NULL,
		source_types TEXT NOT NULL,
		cross_source INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS unit_positions (
		unit_id TEXT PRIMARY KEY,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		seen_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assessments (
		cluster_id TEXT NOT NULL,
		assessed_at INTEGER NOT NULL,
		score INTEGER NOT NULL,
		score_status TEXT NOT NULL,
		report TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_cluster ON assessments(cluster_id, assessed_at);

	CREATE TABLE IF NOT EXISTS checkpoints (
		name TEXT PRIMARY KEY,
		sort_key INTEGER NOT NULL,
		signal_id TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}
	return nil
}

// SortKey orders a signal in the archive: its published instant when
// parseable, otherwise the instant it was ingested.
func SortKey(published domain.Timestamp, ingested time.Time) int64 {
	if t, ok := published.Time(); ok {
		return t.UnixNano()
	}
	return ingested.UnixNano()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertSignal = `
	INSERT INTO signals (id, source_type, source_name, published_at, text, sort_key, embedding, ingested_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding
	WHERE signals.embedding IS NULL AND excluded.embedding IS NOT NULL`

func saveSignal(ctx context.Context, ex execer, rs domain.RawSignal, published domain.Timestamp, now time.Time) (bool, error) {
	var blob []byte
	if len(rs.Embedding) > 0 {
		blob = encodeEmbedding(rs.Embedding)
	}
	res, err := ex.ExecContext(ctx, upsertSignal,
		rs.ID, string(rs.SourceType), rs.SourceName, rs.PublishedAt, rs.Text,
		SortKey(published, now), blob, now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("save signal %s: %w", rs.ID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SaveSignals archives raw signals and returns how many rows changed. An
// existing signal is left as is, except that a missing embedding is filled
// in from a later delivery.
func (s *Store) SaveSignals(ctx context.Context, signals []domain.RawSignal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := domain.Now()
	written := 0
	for _, rs := range signals {
		ok, err := saveSignal(ctx, tx, rs, domain.ParseTimestamp(rs.PublishedAt), now)
		if err != nil {
			return 0, err
		}
		if ok {
			written++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

// Embeddings looks up archived vectors for the given signal IDs. IDs without
// a stored vector are absent from the result.
func (s *Store) Embeddings(ctx context.Context, ids []string) (map[string][]float32, error) {
	out := make(map[string][]float32)
	if len(ids) == 0 {
		return out, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, embedding FROM signals WHERE embedding IS NOT NULL AND id IN ("+placeholders(len(ids))+")",
		anySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		v, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("signal %s: %w", id, err)
		}
		out[id] = v
	}
	return out, rows.Err()
}

// AssignedClusters returns the committed cluster of each ID that has one.
func (s *Store) AssignedClusters(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(ids) == 0 {
		return out, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT signal_id, cluster_id FROM assignments WHERE signal_id IN ("+placeholders(len(ids))+")",
		anySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sig, cl string
		if err := rows.Scan(&sig, &cl); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out[sig] = cl
	}
	return out, rows.Err()
}

// CommitChunk durably writes one fusion chunk in a single transaction: the
// signals, their assignments, the merged unique events and the checkpoint.
// Assignments are insert-once; a signal that already has a cluster keeps it.
// It returns the unique events as stored after the merge.
func (s *Store) CommitChunk(ctx context.Context, chunk domain.Chunk) ([]domain.UniqueEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := domain.Now()
	for _, sig := range chunk.Signals {
		if _, err := saveSignal(ctx, tx, sig.RawSignal, sig.Published, now); err != nil {
			return nil, err
		}
	}

	for _, a := range chunk.Assignments {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO assignments (signal_id, cluster_id, assigned_at) VALUES (?, ?, ?)",
			a.SignalID, a.ClusterID, now.UnixNano()); err != nil {
			return nil, fmt.Errorf("save assignment %s: %w", a.SignalID, err)
		}
	}

	merged := make([]domain.UniqueEvent, 0, len(chunk.Events))
	for _, ev := range chunk.Events {
		prev, ok, err := loadUniqueEvent(ctx, tx, ev.ClusterID)
		if err != nil {
			return nil, err
		}
		out := ev
		if ok {
			out = prev.Merge(ev)
		}
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM assignments WHERE cluster_id = ?", ev.ClusterID).Scan(&out.MemberCount); err != nil {
			return nil, fmt.Errorf("count members of %s: %w", ev.ClusterID, err)
		}
		if err := saveUniqueEvent(ctx, tx, out); err != nil {
			return nil, err
		}
		merged = append(merged, out)
	}

	if cp := chunk.Checkpoint; cp != nil {
		if err := saveCheckpoint(ctx, tx, *cp, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return merged, nil
}

// WindowMembers returns every committed member of each cluster that has at
// least one member at or after since, in the order the members were
// assigned. Used to rebuild the active set.
func (s *Store) WindowMembers(ctx context.Context, since time.Time) ([]domain.ClusterMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.source_type, s.source_name, s.published_at, s.text, s.embedding, a.cluster_id
		FROM assignments a JOIN signals s ON s.id = a.signal_id
		WHERE a.cluster_id IN (
			SELECT a2.cluster_id FROM assignments a2 JOIN signals s2 ON s2.id = a2.signal_id
			WHERE s2.sort_key >= ?
		)
		ORDER BY a.rowid`, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query window members: %w", err)
	}
	defer rows.Close()

	var out []domain.ClusterMember
	for rows.Next() {
		var m domain.ClusterMember
		var st string
		var blob []byte
		if err := rows.Scan(&m.Signal.ID, &st, &m.Signal.SourceName, &m.Signal.PublishedAt,
			&m.Signal.Text, &blob, &m.ClusterID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Signal.SourceType = domain.SourceType(st)
		if blob != nil {
			if m.Signal.Embedding, err = decodeEmbedding(blob); err != nil {
				return nil, fmt.Errorf("signal %s: %w", m.Signal.ID, err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestSortKey returns the largest sort key of any assigned signal.
func (s *Store) LatestSortKey(ctx context.Context) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var key sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(s.sort_key) FROM assignments a JOIN signals s ON s.id = a.signal_id").Scan(&key)
	if err != nil {
		return 0, false, fmt.Errorf("query latest sort key: %w", err)
	}
	return key.Int64, key.Valid, nil
}

// SignalsAfter pages through the archive in (sort_key, id) order, starting
// strictly after the cursor.
func (s *Store) SignalsAfter(ctx context.Context, cursor domain.Checkpoint, limit int) ([]domain.ArchivedSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_type, source_name, published_at, text, embedding, sort_key
		FROM signals
		WHERE sort_key > ? OR (sort_key = ? AND id > ?)
		ORDER BY sort_key, id
		LIMIT ?`, cursor.SortKey, cursor.SortKey, cursor.SignalID, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []domain.ArchivedSignal
	for rows.Next() {
		var a domain.ArchivedSignal
		var st string
		var blob []byte
		if err := rows.Scan(&a.ID, &st, &a.SourceName, &a.PublishedAt, &a.Text, &blob, &a.SortKey); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		a.SourceType = domain.SourceType(st)
		if blob != nil {
			if a.Embedding, err = decodeEmbedding(blob); err != nil {
				return nil, fmt.Errorf("signal %s: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Checkpoint reads a named checkpoint.
func (s *Store) Checkpoint(ctx context.Context, name string) (domain.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := domain.Checkpoint{Name: name}
	err := s.db.QueryRowContext(ctx,
		"SELECT sort_key, signal_id FROM checkpoints WHERE name = ?", name).Scan(&cp.SortKey, &cp.SignalID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Checkpoint{}, false, nil
	}
	if err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("read checkpoint %s: %w", name, err)
	}
	return cp, true, nil
}

func saveCheckpoint(ctx context.Context, ex execer, cp domain.Checkpoint, now time.Time) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO checkpoints (name, sort_key, signal_id, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET sort_key = excluded.sort_key,
			signal_id = excluded.signal_id, updated_at = excluded.updated_at`,
		cp.Name, cp.SortKey, cp.SignalID, now.UnixNano())
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Name, err)
	}
	return nil
}

// UniqueEvent reads one stored unique event.
func (s *Store) UniqueEvent(ctx context.Context, clusterID string) (domain.UniqueEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadUniqueEvent(ctx, s.db, clusterID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadUniqueEvent(ctx context.Context, q queryRower, clusterID string) (domain.UniqueEvent, bool, error) {
	var (
		ev           domain.UniqueEvent
		first, last  sql.NullString
		names, types string
		crossSource  int
	)
	err := q.QueryRowContext(ctx, `
		SELECT cluster_id, first_seen_at, last_seen_at, member_count, source_names, source_types, cross_source
		FROM unique_events WHERE cluster_id = ?`, clusterID).
		Scan(&ev.ClusterID, &first, &last, &ev.MemberCount, &names, &types, &crossSource)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UniqueEvent{}, false, nil
	}
	if err != nil {
		return domain.UniqueEvent{}, false, fmt.Errorf("read unique event %s: %w", clusterID, err)
	}
	if ev.FirstSeenAt, err = parseStoredTime(first); err != nil {
		return domain.UniqueEvent{}, false, err
	}
	if ev.LastSeenAt, err = parseStoredTime(last); err != nil {
		return domain.UniqueEvent{}, false, err
	}
	if err := json.Unmarshal([]byte(names), &ev.SourceNames); err != nil {
		return domain.UniqueEvent{}, false, fmt.Errorf("decode source names: %w", err)
	}
	if err := json.Unmarshal([]byte(types), &ev.SourceTypes); err != nil {
		return domain.UniqueEvent{}, false, fmt.Errorf("decode source types: %w", err)
	}
	ev.CrossSourceCorroborated = crossSource != 0
	return ev, true, nil
}

func saveUniqueEvent(ctx context.Context, ex execer, ev domain.UniqueEvent) error {
	names, err := json.Marshal(nonNil(ev.SourceNames))
	if err != nil {
		return fmt.Errorf("encode source names: %w", err)
	}
	types, err := json.Marshal(nonNil(ev.SourceTypes))
	if err != nil {
		return fmt.Errorf("encode source types: %w", err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO unique_events (cluster_id, first_seen_at, last_seen_at, member_count, source_names, source_types, cross_source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cluster_id) DO UPDATE SET
			first_seen_at = excluded.first_seen_at, last_seen_at = excluded.last_seen_at,
			member_count = excluded.member_count, source_names = excluded.source_names,
			source_types = excluded.source_types, cross_source = excluded.cross_source`,
		ev.ClusterID, formatStoredTime(ev.FirstSeenAt), formatStoredTime(ev.LastSeenAt),
		ev.MemberCount, string(names), string(types), boolInt(ev.CrossSourceCorroborated))
	if err != nil {
		return fmt.Errorf("save unique event %s: %w", ev.ClusterID, err)
	}
	return nil
}

// ClusterContext concatenates the texts of a cluster's earliest members, up
// to limit of them, for use as extraction context.
func (s *Store) ClusterContext(ctx context.Context, clusterID string, limit int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.text FROM assignments a JOIN signals s ON s.id = a.signal_id
		WHERE a.cluster_id = ?
		ORDER BY s.sort_key, s.id
		LIMIT ?`, clusterID, limit)
	if err != nil {
		return "", fmt.Errorf("query cluster context: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return "", fmt.Errorf("scan text: %w", err)
		}
		texts = append(texts, t)
	}
	return strings.Join(texts, "\n"), rows.Err()
}

// LastPosition returns the most recent plausible position of a unit. It
// implements kinetic.Registry.
func (s *Store) LastPosition(ctx context.Context, unitID string) (domain.UnitPosition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos := domain.UnitPosition{UnitID: unitID}
	err := s.db.QueryRowContext(ctx,
		"SELECT lat, lon, seen_at FROM unit_positions WHERE unit_id = ?", unitID).
		Scan(&pos.Lat, &pos.Lon, &pos.SeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UnitPosition{}, false, nil
	}
	if err != nil {
		return domain.UnitPosition{}, false, fmt.Errorf("read unit %s: %w", unitID, err)
	}
	return pos, true, nil
}

// CommitAssessments stores a batch of reports and the unit positions they
// established in one transaction.
func (s *Store) CommitAssessments(ctx context.Context, reports []domain.AssessmentReport, positions []domain.UnitPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, r := range reports {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode assessment %s: %w", r.ClusterID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO assessments (cluster_id, assessed_at, score, score_status, report) VALUES (?, ?, ?, ?, ?)",
			r.ClusterID, r.AssessedAt.UnixNano(), r.Score, string(r.ScoreStatus), string(data)); err != nil {
			return fmt.Errorf("save assessment %s: %w", r.ClusterID, err)
		}
	}
	for _, p := range positions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO unit_positions (unit_id, lat, lon, seen_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(unit_id) DO UPDATE SET lat = excluded.lat, lon = excluded.lon, seen_at = excluded.seen_at`,
			p.UnitID, p.Lat, p.Lon, p.SeenAt); err != nil {
			return fmt.Errorf("save unit %s: %w", p.UnitID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Assessments returns the stored reports of a cluster, oldest first.
func (s *Store) Assessments(ctx context.Context, clusterID string) ([]domain.AssessmentReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT report FROM assessments WHERE cluster_id = ? ORDER BY assessed_at, rowid", clusterID)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	var out []domain.AssessmentReport
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		var r domain.AssessmentReport
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode assessment: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// encodeEmbedding packs a vector as little-endian float32.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes, not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

func formatStoredTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStoredTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s.String, err)
	}
	return t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
