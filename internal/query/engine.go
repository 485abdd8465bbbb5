package query

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/adaptation-atlas/atlas-assistant/internal/config"
	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
)

// sourcePattern matches quoted file references in FROM and JOIN clauses and
// read_parquet('...') calls.
var sourcePattern = regexp.MustCompile(`(?i)\b(FROM|JOIN)\s+'([^']+)'|\bread_parquet\s*\(\s*'([^']+)'\s*\)`)

var registerOnce sync.Once

// registerFunctions adds the scalar functions generated SQL relies on.
func registerFunctions() {
	registerOnce.Do(func() {
		err := sqlite.RegisterDeterministicScalarFunction("isnan", 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch x := args[0].(type) {
			case nil:
				return nil, nil
			case float64:
				if math.IsNaN(x) {
					return int64(1), nil
				}
			}
			return int64(0), nil
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to register isnan")
		}
	})
}

// SQLiteEngine runs SQL over parquet files. Each quoted file reference is
// loaded into an in-memory SQLite table and the query is rewritten to use it.
// It implements contracts.QueryEngine.
type SQLiteEngine struct {
	db     *sql.DB
	frames *frameCache

	mu     sync.Mutex // serializes materialization and queries
	tables *lru.Cache[string, string]
	drops  []string
}

// NewSQLiteEngine opens the in-memory database.
func NewSQLiteEngine(cfg config.StorageConfig) (*SQLiteEngine, error) {
	fetcher, err := NewFetcher(cfg)
	if err != nil {
		return nil, err
	}
	return NewSQLiteEngineWithFetch(cfg.DatasetCacheSize, fetcher.Fetch)
}

// NewSQLiteEngineWithFetch opens the in-memory database with a custom fetch
// function. cacheSize bounds both decoded files and materialized tables.
func NewSQLiteEngineWithFetch(cacheSize int, fetch func(ctx context.Context, href string) ([]byte, error)) (*SQLiteEngine, error) {
	if cacheSize <= 0 {
		cacheSize = 16
	}
	registerFunctions()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	frames, err := newFrameCache(cacheSize, fetch)
	if err != nil {
		db.Close()
		return nil, err
	}

	e := &SQLiteEngine{db: db, frames: frames}
	e.tables, err = lru.NewWithEvict[string, string](cacheSize, func(_ string, table string) {
		e.drops = append(e.drops, table)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table cache: %w", err)
	}
	return e, nil
}

// Close releases the database.
func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}

// Columns introspects the parquet file at href.
func (e *SQLiteEngine) Columns(ctx context.Context, href string) ([]models.TableColumn, error) {
	fr, err := e.frames.get(ctx, href)
	if err != nil {
		return nil, err
	}
	return append([]models.TableColumn(nil), fr.columns...), nil
}

// Query resolves every file reference in query, then runs it.
func (e *SQLiteEngine) Query(ctx context.Context, query string) (*models.Table, error) {
	start := time.Now()

	hrefs := References(query)
	frames := make(map[string]*frame, len(hrefs))
	for _, href := range hrefs {
		fr, err := e.frames.get(ctx, href)
		if err != nil {
			return nil, err
		}
		frames[href] = fr
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	names := make(map[string]string, len(hrefs))
	for _, href := range hrefs {
		name, err := e.materialize(ctx, href, frames[href])
		if err != nil {
			return nil, err
		}
		names[href] = name
	}
	rewritten := rewrite(query, names)

	rows, err := e.db.QueryContext(ctx, rewritten)
	if err != nil {
		return nil, unwrapSQLite(err, names)
	}
	defer rows.Close()

	table, err := ScanTable(rows)
	if err != nil {
		return nil, unwrapSQLite(err, names)
	}
	log.Debug().
		Int("rows", len(table.Rows)).
		Dur("duration", time.Since(start)).
		Msg("Query executed")
	return table, nil
}

// materialize makes sure href is loaded as a table. Caller holds e.mu.
func (e *SQLiteEngine) materialize(ctx context.Context, href string, fr *frame) (string, error) {
	if name, ok := e.tables.Get(href); ok {
		return name, nil
	}

	name := tableName(href)
	if err := e.load(ctx, name, fr); err != nil {
		return "", fmt.Errorf("load %s: %w", href, err)
	}
	e.tables.Add(href, name)

	for _, table := range e.drops {
		if _, err := e.db.ExecContext(ctx, `DROP TABLE IF EXISTS "`+table+`"`); err != nil {
			log.Warn().Err(err).Str("table", table).Msg("Failed to drop evicted table")
		}
	}
	e.drops = e.drops[:0]
	return name, nil
}

func (e *SQLiteEngine) load(ctx context.Context, name string, fr *frame) error {
	defs := make([]string, len(fr.columns))
	marks := make([]string, len(fr.columns))
	for i, c := range fr.columns {
		defs[i] = quoteIdent(c.Name) + " " + c.Type
		marks[i] = "?"
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, name)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE "%s" (%s)`, name, strings.Join(defs, ", "))); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO "%s" VALUES (%s)`, name, strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, row := range fr.rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// References returns the distinct file references of query, in order.
func References(query string) []string {
	var hrefs []string
	seen := make(map[string]bool)
	for _, m := range sourcePattern.FindAllStringSubmatch(query, -1) {
		href := m[2]
		if href == "" {
			href = m[3]
		}
		if !seen[href] {
			seen[href] = true
			hrefs = append(hrefs, href)
		}
	}
	return hrefs
}

func rewrite(query string, names map[string]string) string {
	return sourcePattern.ReplaceAllStringFunc(query, func(match string) string {
		m := sourcePattern.FindStringSubmatch(match)
		if m[2] != "" {
			return m[1] + ` "` + names[m[2]] + `"`
		}
		return `"` + names[m[3]] + `"`
	})
}

func tableName(href string) string {
	sum := sha1.Sum([]byte(href))
	return "ds_" + hex.EncodeToString(sum[:8])
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// unwrapSQLite replaces generated table names in error text with the hrefs
// the model wrote, so error messages make sense in the transcript.
func unwrapSQLite(err error, names map[string]string) error {
	msg := err.Error()
	for href, name := range names {
		msg = strings.ReplaceAll(msg, name, href)
	}
	if msg == err.Error() {
		return err
	}
	return fmt.Errorf("%s", msg)
}

// ScanTable reads all rows into a Table. Byte slices become strings and
// times are formatted. Non-finite floats become null.
func ScanTable(rows *sql.Rows) (*models.Table, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	table := &models.Table{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		x = x.UTC()
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	}
	return v
}
