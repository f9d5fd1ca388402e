// Package knowledge is the documentation store behind grounded answers:
// markdown chunks indexed with SQLite FTS5 and ranked by BM25.
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mofangju/security-agent/internal/selfrag"
)

// Options configures chunking and sanitizing.
type Options struct {
	ChunkSize     int
	ChunkOverlap  int
	MaxChunkChars int
	Logger        *zap.Logger
}

// Store is a selfrag.Retriever backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	opts   Options
	logger *zap.Logger
}

var _ selfrag.Retriever = (*Store)(nil)

// Open creates or opens the database at path. Use ":memory:" in tests.
func Open(path string, opts Options) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps a :memory: database alive across calls
	db.SetMaxOpenConns(1)

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 512
	}
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = DefaultMaxChunkChars
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{db: db, path: path, opts: opts, logger: logger.Named("knowledge")}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE VIRTUAL TABLE IF NOT EXISTS chunks USING fts5(
		text,
		section,
		source UNINDEXED,
		upload_id UNINDEXED,
		chunk_index UNINDEXED,
		tokenize = 'porter unicode61'
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create chunks table: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database is usable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Count returns the number of indexed chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM chunks`).Scan(&n)
	return n, err
}

// Reset removes every chunk.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks`)
	return err
}

// AddDocument replaces the chunks of (source, uploadID) with the chunks of text.
func (s *Store) AddDocument(ctx context.Context, source, uploadID, text string) (int, error) {
	if strings.TrimSpace(source) == "" {
		return 0, errors.New("document source is required")
	}
	chunks := ChunkMarkdown(text, s.opts.ChunkSize, s.opts.ChunkOverlap)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source = ? AND upload_id = ?`, source, uploadID); err != nil {
		return 0, fmt.Errorf("delete old chunks: %w", err)
	}
	for i, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (text, section, source, upload_id, chunk_index) VALUES (?, ?, ?, ?, ?)`,
			c.Text, c.Section, source, uploadID, i,
		); err != nil {
			return 0, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// IngestStats summarizes an IngestDir run.
type IngestStats struct {
	Files  int
	Chunks int
}

// IngestDir indexes every *.md file in dir under its base name.
func (s *Store) IngestDir(ctx context.Context, dir, uploadID string) (IngestStats, error) {
	var stats IngestStats
	files, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return stats, err
	}
	if len(files) == 0 {
		if _, statErr := os.Stat(dir); statErr != nil {
			return stats, fmt.Errorf("docs directory: %w", statErr)
		}
		return stats, fmt.Errorf("no markdown files found in %s", dir)
	}
	sort.Strings(files)

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return stats, fmt.Errorf("reading %s: %w", path, err)
		}
		n, err := s.AddDocument(ctx, filepath.Base(path), uploadID, string(data))
		if err != nil {
			return stats, fmt.Errorf("indexing %s: %w", path, err)
		}
		s.logger.Info("indexed document", zap.String("source", filepath.Base(path)), zap.Int("chunks", n))
		stats.Files++
		stats.Chunks += n
	}
	return stats, nil
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// matchQuery turns free text into an FTS5 OR query of quoted terms so user
// punctuation can never be parsed as query syntax.
func matchQuery(query string) string {
	seen := map[string]bool{}
	var terms []string
	for _, tok := range tokenRe.FindAllString(strings.ToLower(query), -1) {
		if len(tok) < 2 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, `"`+tok+`"`)
	}
	return strings.Join(terms, " OR ")
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "how": true, "what": true, "does": true,
	"is": true, "are": true, "to": true, "of": true, "in": true, "on": true, "do": true,
	"can": true, "an": true, "it": true, "my": true, "me": true, "with": true, "about": true,
}

// Search returns up to limit sanitized chunks ranked by BM25. Scores are
// negated bm25() values, so higher is better.
func (s *Store) Search(ctx context.Context, query string, limit int, scope selfrag.Scope) ([]selfrag.EvidenceChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	match := matchQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT text, section, source, -bm25(chunks) AS score
		FROM chunks
		WHERE chunks MATCH ?
		  AND (? = '' OR source = ?)
		  AND (? = '' OR upload_id = ?)
		ORDER BY score DESC
		LIMIT ?`,
		match, scope.Source, scope.Source, scope.UploadID, scope.UploadID, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []selfrag.EvidenceChunk
	for rows.Next() {
		var c selfrag.EvidenceChunk
		if err := rows.Scan(&c.Text, &c.Section, &c.Source, &c.Score); err != nil {
			return nil, err
		}
		res := Sanitize(c.Text, s.opts.MaxChunkChars)
		if len(res.Dropped) > 0 || res.Hidden > 0 {
			s.logger.Warn("sanitized retrieved chunk",
				zap.String("source", c.Source), zap.Strings("dropped", res.Dropped), zap.Int("hidden", res.Hidden))
		}
		if res.Text == "" {
			continue
		}
		c.Text = res.Text
		c.Index = len(out)
		out = append(out, c)
	}
	return out, rows.Err()
}
