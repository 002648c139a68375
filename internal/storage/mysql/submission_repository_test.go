package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
)

func TestFileSubmissionRepositoryPersists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewFileSubmissionRepository(dir)
	if err != nil {
		t.Fatalf("failed to create file repo: %v", err)
	}

	ctx := context.Background()
	first := &SubmissionRecord{TaskID: "task-1", Tool: "send_arbitrum_eth", Chain: "arbitrum-sepolia", State: "submitted", Stage: "report", TxID: "0xabc", Status: "Done", CreatedAt: 1}
	second := &SubmissionRecord{TaskID: "task-2", Tool: "pump_fun_create_token", Chain: "solana-mainnet", State: "failed", Stage: "build", Code: "NETWORK_UNAVAILABLE", Status: "Network Error", CreatedAt: 2}
	for _, record := range []*SubmissionRecord{first, second} {
		if err := repo.Save(ctx, record); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("unexpected ids: %d %d", first.ID, second.ID)
	}

	reopened, err := NewFileSubmissionRepository(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	list, err := reopened.ListLatest(ctx, 10)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 2 || list[0].TxID != "" || list[1].TxID != "0xabc" {
		t.Fatalf("unexpected list: %+v", list)
	}

	third := &SubmissionRecord{TaskID: "task-1", Tool: "send_arbitrum_eth", State: "failed", CreatedAt: 3}
	if err := reopened.Save(ctx, third); err != nil {
		t.Fatalf("save after reopen failed: %v", err)
	}
	if third.ID != 3 {
		t.Fatalf("expected id 3 after reopen, got %d", third.ID)
	}

	byTask, err := reopened.ListByTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("list by task failed: %v", err)
	}
	if len(byTask) != 2 || byTask[0].ID != 3 {
		t.Fatalf("unexpected task records: %+v", byTask)
	}

	limited, _ := reopened.ListLatest(ctx, 1)
	if len(limited) != 1 || limited[0].ID != 3 {
		t.Fatalf("unexpected limited list: %+v", limited)
	}
}

func TestSQLSubmissionRepositorySave(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		execOp(insertSubmissionSQL, mockResult{lastInsertID: 42, rowsAffected: 1}),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := NewSQLSubmissionRepositoryWithDB(db)
	record := &SubmissionRecord{Tool: "send_arbitrum_eth", Chain: "arbitrum-sepolia", State: "submitted", Stage: "report", CreatedAt: 1}
	if err := repo.Save(context.Background(), record); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if record.ID != 42 {
		t.Fatalf("expected id 42, got %d", record.ID)
	}
}

func TestSQLSubmissionRepositoryList(t *testing.T) {
	t.Parallel()

	columns := []string{"id", "task_id", "tool", "chain", "state", "stage", "tx_id", "address", "code", "status", "created_at"}
	rows := mockRowsData{
		columns: columns,
		values: [][]driver.Value{
			{int64(2), "t2", "pump_fun_create_token", "solana-mainnet", "submitted", "report", "sig", "mint", "", "mint", int64(20)},
			{int64(1), "t1", "send_arbitrum_eth", "arbitrum-sepolia", "failed", "submit", "", "", "SUBMISSION_UNKNOWN", "unknown", int64(10)},
		},
	}
	byTask := mockRowsData{
		columns: columns,
		values:  [][]driver.Value{{int64(1), "t1", "send_arbitrum_eth", "arbitrum-sepolia", "failed", "submit", "", "", "SUBMISSION_UNKNOWN", "unknown", int64(10)}},
	}

	db, driver := newMockDB(t, []mockOperation{
		queryOp(selectSubmissionColumns+` ORDER BY id DESC LIMIT ?`, rows),
		queryOp(selectSubmissionColumns+` WHERE task_id = ? ORDER BY id DESC`, byTask),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := NewSQLSubmissionRepositoryWithDB(db)
	list, err := repo.ListLatest(context.Background(), 0)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 2 || list[0].Address != "mint" || list[1].Code != "SUBMISSION_UNKNOWN" {
		t.Fatalf("unexpected list: %+v", list)
	}

	records, err := repo.ListByTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("list by task failed: %v", err)
	}
	if len(records) != 1 || records[0].TaskID != "t1" {
		t.Fatalf("unexpected task records: %+v", records)
	}
}

func TestRunMigrationsAppliesPendingFiles(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		execOp(createMigrationsTable, mockResult{}),
		queryOp(selectAppliedMigrations, mockRowsData{
			columns: []string{"version", "checksum"},
			values:  [][]driver.Value{{"0001", migrationChecksum("0001_create_submissions.sql")}},
		}),
		beginOp(),
		execOp(readMigrationStatement("0002_create_task_states.sql"), mockResult{}),
		execOp(insertAppliedMigration, mockResult{rowsAffected: 1}),
		commitOp(),
	}
	db, driver := newMockDB(t, ops)
	defer driver.assertConsumed(t)
	defer db.Close()

	if err := runMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestRunMigrationsRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		execOp(createMigrationsTable, mockResult{}),
		queryOp(selectAppliedMigrations, mockRowsData{columns: []string{"version", "checksum"}}),
		beginOp(),
		{typ: opExec, query: readMigrationStatement("0001_create_submissions.sql"), err: fmt.Errorf("boom")},
		rollbackOp(),
	}
	db, driver := newMockDB(t, ops)
	defer driver.assertConsumed(t)
	defer db.Close()

	if err := runMigrations(context.Background(), db); err == nil {
		t.Fatalf("expected migration failure")
	}
}

func TestRunMigrationsDetectsDrift(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		execOp(createMigrationsTable, mockResult{}),
		queryOp(selectAppliedMigrations, mockRowsData{
			columns: []string{"version", "checksum"},
			values:  [][]driver.Value{{"0001", "stale"}},
		}),
	}
	db, driver := newMockDB(t, ops)
	defer driver.assertConsumed(t)
	defer db.Close()

	err := runMigrations(context.Background(), db)
	if !errors.Is(err, ErrMigrationDrift) {
		t.Fatalf("expected drift error, got %v", err)
	}
}

func TestLoadMigrationsRejectsDuplicateVersions(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("CREATE TABLE a (id INT);")},
		"0001_b.sql": {Data: []byte("CREATE TABLE b (id INT);")},
	}
	if _, err := loadMigrations(fsys); err == nil {
		t.Fatalf("expected duplicate version error")
	}
}

func TestMigrationHelpers(t *testing.T) {
	t.Parallel()

	if got := parseMigrationVersion("0001_create_submissions.sql"); got != "0001" {
		t.Fatalf("unexpected version: %s", got)
	}
	if got := splitSQLStatements("a;\n ;b;"); len(got) != 2 {
		t.Fatalf("unexpected statements: %v", got)
	}
	if got := splitSQLStatements("-- header; ignored\nCREATE TABLE t (id INT);"); len(got) != 1 || got[0] != "CREATE TABLE t (id INT)" {
		t.Fatalf("comment lines must be dropped: %q", got)
	}
	if _, err := normalizeDSN(""); err == nil {
		t.Fatalf("expected empty dsn error")
	}
	dsn, err := normalizeDSN("user:pass@tcp(127.0.0.1:3306)/chainagent?multiStatements=true")
	if err != nil {
		t.Fatalf("normalize dsn failed: %v", err)
	}
	if strings.Contains(dsn, "multiStatements=true") {
		t.Fatalf("multi statements must be disabled: %s", dsn)
	}
}

func migrationChecksum(name string) string {
	content, err := embeddedMigrations.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to read migration: %v", err))
	}
	return checksum(content)
}

func readMigrationStatement(name string) string {
	content, err := embeddedMigrations.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to read migration: %v", err))
	}
	statements := splitSQLStatements(string(content))
	if len(statements) == 0 {
		panic("no statements in migration")
	}
	return statements[0]
}

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func rollbackOp() mockOperation { return mockOperation{typ: opRollback} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(name string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	op, err := c.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) Exec(query string, args []driver.Value) (driver.Result, error) {
	return c.ExecContext(context.Background(), query, named(args))
}

func (c *mockConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) Query(query string, args []driver.Value) (driver.Rows, error) {
	return c.QueryContext(context.Background(), query, named(args))
}

func (c *mockConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(ctx context.Context) error { return nil }

func (c *mockConn) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&c.driver.idx))
	if idx >= len(c.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &c.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&c.driver.idx, 1)
	if op.query != "" {
		expectedSQL := normalizeSQL(op.query)
		actualSQL := normalizeSQL(query)
		if expectedSQL != actualSQL {
			return nil, fmt.Errorf("unexpected query. want %q got %q", expectedSQL, actualSQL)
		}
	}
	return op, nil
}

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.next(opCommit)
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.next(opRollback)
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) next(expected operationType) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&t.driver.idx))
	if idx >= len(t.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &t.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&t.driver.idx, 1)
	return op, nil
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func named(args []driver.Value) []driver.NamedValue {
	namedArgs := make([]driver.NamedValue, len(args))
	for i, arg := range args {
		namedArgs[i] = driver.NamedValue{Ordinal: i + 1, Value: arg}
	}
	return namedArgs
}

func normalizeSQL(query string) string {
	fields := strings.Fields(query)
	return strings.Join(fields, " ")
}
