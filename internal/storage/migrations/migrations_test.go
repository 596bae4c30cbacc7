package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `
-- comment; with semicolon
CREATE TABLE a (x Int32);

CREATE TABLE b (
    y String
) ENGINE = MergeTree()
ORDER BY y;
`
	stmts := splitStatements(input)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE a"), stmts[0])
	assert.Contains(t, stmts[1], "ORDER BY y")
	assert.NotContains(t, stmts[1], ";")
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'a''b' ;`))
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT '' ; SELECT 1;`))
	assert.ErrorIs(t, validateNoSemicolonInStrings(`SELECT 'a;b'`), errSemicolonInString)
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/010_later.sql":  {Data: []byte("SELECT 10;")},
		"pg/002_second.sql": {Data: []byte("SELECT 2;")},
		"pg/001_first.sql":  {Data: []byte("SELECT 1;")},
		"pg/README.md":      {Data: []byte("ignored")},
	}
	all, err := load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{all[0].version, all[1].version, all[2].version})
	assert.Equal(t, "002_second.sql", all[1].name)
	assert.Equal(t, "SELECT 10;", all[2].sql)

	_, err = load(fstest.MapFS{"pg/init.sql": {}}, "pg")
	assert.Error(t, err, "missing version")

	_, err = load(fstest.MapFS{"pg/1_a.sql": {}, "pg/001_b.sql": {}}, "pg")
	assert.Error(t, err, "duplicate version")

	_, err = load(fsys, "missing")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := load(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.NotEmpty(t, pg)

	ch, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	assert.NotEmpty(t, ch)

	for _, m := range append(pg, ch...) {
		assert.NoError(t, validateNoSemicolonInStrings(m.sql), m.name)
	}
}

type recordingDB struct {
	stmts []string
	fail  int // 1-based statement that fails; 0 never
}

func (db *recordingDB) Exec(_ context.Context, query string, _ ...any) error {
	db.stmts = append(db.stmts, query)
	if len(db.stmts) == db.fail {
		return errors.New("boom")
	}
	return nil
}

func TestApplyClickhouse(t *testing.T) {
	ctx := context.Background()

	db := &recordingDB{}
	applied, err := ApplyClickhouse(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_exchange_events.sql"}, applied)
	require.Len(t, db.stmts, 1)
	assert.Contains(t, db.stmts[0], "CREATE TABLE IF NOT EXISTS exchange_events")

	_, err = ApplyClickhouse(ctx, &recordingDB{fail: 1})
	assert.ErrorContains(t, err, "001_exchange_events.sql")
}
