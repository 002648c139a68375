package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "ChainAgent/internal/errors"
)

// MySQLStore 使用 MySQL 记录任务状态，表结构由 deploy/migrations 维护。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 基于已完成迁移的连接池创建 MySQLStore。
func NewMySQLStore(db *sql.DB) (*MySQLStore, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "数据库连接不能为空")
	}
	return &MySQLStore{db: db}, nil
}

const selectTaskColumns = `SELECT id, tool, input, metadata, status, attempts, max_retries, last_error, error_code,
        result, created_at, updated_at FROM task_states`

// Create 插入新的任务记录。
func (s *MySQLStore) Create(ctx context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if strings.TrimSpace(task.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}

	now := time.Now().Unix()
	if task.CreatedAt == 0 {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	metadataValue, err := marshalNullable(task.Metadata, len(task.Metadata) == 0)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务 metadata 失败")
	}
	input := sql.NullString{String: string(task.Input), Valid: len(task.Input) > 0}

	const stmt = `INSERT INTO task_states
        (id, tool, input, metadata, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		task.ID,
		task.Tool,
		input,
		metadataValue,
		task.Status,
		task.Attempts,
		task.MaxRetries,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrTaskConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
	return nil
}

// Get 查询指定任务。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, selectTaskColumns+` WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	return task, nil
}

// Claim 以条件更新抢占任务，多实例消费同一队列时只有一个实例能领取成功。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Task, error) {
	const updateStmt = `UPDATE task_states SET status = ?, attempts = attempts + 1, updated_at = ?
        WHERE id = ? AND status = ? AND attempts < max_retries`

	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		time.Now().Unix(),
		id,
		StatusPending,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	task, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if affected > 0 {
		return task, nil
	}
	switch task.Status {
	case StatusSucceeded, StatusFailed:
		return task, ErrTaskCompleted
	case StatusRunning:
		return task, ErrTaskConflict
	default:
		if task.Attempts >= task.MaxRetries {
			return task, ErrTaskExhausted
		}
		return task, ErrTaskConflict
	}
}

// MarkSucceeded 将任务标记为成功。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error {
	encoded, err := marshalNullable(result, false)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码任务结果失败")
	}
	const stmt = `UPDATE task_states SET status = ?, result = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`
	res, err := s.db.ExecContext(ctx, stmt, StatusSucceeded, encoded, time.Now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// MarkFailed 记录失败。非终止失败会让任务回到 pending。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, result *ExecutionResult, terminal bool) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	encoded, err := marshalNullable(result, result == nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码任务结果失败")
	}
	const stmt = `UPDATE task_states SET status = ?, last_error = ?, error_code = ?, result = COALESCE(?, result), updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, stmt,
		status,
		lastError,
		string(code),
		encoded,
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// List 返回符合过滤条件的任务。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	query := selectTaskColumns
	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	order := " ORDER BY updated_at DESC, created_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"
	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, opts.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return tasks, nil
}

// Stats 返回符合过滤条件的任务聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS running,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS succeeded,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM task_states`
	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	args := []any{string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}
	args = append(args, filterArgs...)

	var stats TaskStats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务统计失败")
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task     Task
		input    sql.NullString
		metadata sql.NullString
		lastErr  sql.NullString
		result   sql.NullString
	)
	if err := row.Scan(
		&task.ID,
		&task.Tool,
		&input,
		&metadata,
		&task.Status,
		&task.Attempts,
		&task.MaxRetries,
		&lastErr,
		&task.ErrorCode,
		&result,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.LastError = lastErr.String
	if input.Valid && input.String != "" {
		task.Input = json.RawMessage(input.String)
	}
	if metadata.Valid && strings.TrimSpace(metadata.String) != "" {
		if err := json.Unmarshal([]byte(metadata.String), &task.Metadata); err != nil {
			return nil, fmt.Errorf("解析任务 metadata 失败: %w", err)
		}
	}
	if result.Valid && strings.TrimSpace(result.String) != "" {
		var decoded ExecutionResult
		if err := json.Unmarshal([]byte(result.String), &decoded); err != nil {
			return nil, fmt.Errorf("解析任务结果失败: %w", err)
		}
		task.Result = &decoded
	}
	return &task, nil
}

func marshalNullable(value any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	bytes, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 8)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for _, status := range opts.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.Tool != "" {
		conditions = append(conditions, "tool = ?")
		args = append(args, opts.Tool)
	}
	if len(opts.ErrorCodes) > 0 {
		placeholders := make([]string, 0, len(opts.ErrorCodes))
		for _, code := range opts.ErrorCodes {
			placeholders = append(placeholders, "?")
			args = append(args, string(code))
		}
		conditions = append(conditions, fmt.Sprintf("error_code IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if opts.HasResult != nil {
		// tx_id 为空时不会被序列化。
		if *opts.HasResult {
			conditions = append(conditions, `result LIKE '%"tx_id"%'`)
		} else {
			conditions = append(conditions, `(result IS NULL OR result NOT LIKE '%"tx_id"%')`)
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR tool LIKE ? OR input LIKE ? OR last_error LIKE ? OR result LIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern, pattern)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
