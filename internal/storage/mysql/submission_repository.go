package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SubmissionRecord 记录一次工具调用的提交结果。TxID 只表示节点已接收。
type SubmissionRecord struct {
	ID        int64  `json:"id"`
	TaskID    string `json:"task_id,omitempty"`
	Tool      string `json:"tool"`
	Chain     string `json:"chain"`
	State     string `json:"state"`
	Stage     string `json:"stage"`
	TxID      string `json:"tx_id,omitempty"`
	Address   string `json:"address,omitempty"`
	Code      string `json:"code,omitempty"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// SubmissionRepository 抽象提交记录的持久化接口。
type SubmissionRepository interface {
	Save(ctx context.Context, record *SubmissionRecord) error
	ListLatest(ctx context.Context, limit int) ([]SubmissionRecord, error)
	ListByTask(ctx context.Context, taskID string) ([]SubmissionRecord, error)
}

// ErrUnsupportedDriver 表示配置了未知的存储驱动。
var ErrUnsupportedDriver = errors.New("暂不支持的存储驱动")

const fileRepositoryCapacity = 512

// FileSubmissionRepository 以 JSON Lines 追加写本地文件，内存中保留最近的记录。
type FileSubmissionRepository struct {
	mu       sync.RWMutex
	dataFile string
	nextID   int64
	records  []SubmissionRecord
}

// NewFileSubmissionRepository 在 dataDir 下创建或恢复 submissions.log。
func NewFileSubmissionRepository(dataDir string) (*FileSubmissionRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &FileSubmissionRepository{dataFile: filepath.Join(dataDir, "submissions.log")}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 追加写入一条记录并分配自增 ID。
func (m *FileSubmissionRepository) Save(_ context.Context, record *SubmissionRecord) error {
	if record == nil {
		return errors.New("提交记录不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开提交日志失败: %w", err)
	}
	defer file.Close()

	m.nextID++
	record.ID = m.nextID
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化提交记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入提交日志失败: %w", err)
	}

	m.records = append([]SubmissionRecord{*record}, m.records...)
	if len(m.records) > fileRepositoryCapacity {
		m.records = m.records[:fileRepositoryCapacity]
	}
	return nil
}

// ListLatest 返回最近的提交记录，按写入顺序倒序排列。
func (m *FileSubmissionRepository) ListLatest(_ context.Context, limit int) ([]SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]SubmissionRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// ListByTask 返回某个任务的全部提交记录。
func (m *FileSubmissionRepository) ListByTask(_ context.Context, taskID string) ([]SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []SubmissionRecord
	for _, record := range m.records {
		if record.TaskID == taskID {
			results = append(results, record)
		}
	}
	return results, nil
}

func (m *FileSubmissionRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取提交日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []SubmissionRecord
	for scanner.Scan() {
		var record SubmissionRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.ID > m.nextID {
			m.nextID = record.ID
		}
		restored = append([]SubmissionRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析提交日志失败: %w", err)
	}
	if len(restored) > fileRepositoryCapacity {
		restored = restored[:fileRepositoryCapacity]
	}
	m.records = restored
	return nil
}

// SQLSubmissionRepository 使用 MySQL 存储提交记录。
type SQLSubmissionRepository struct {
	db *sql.DB
}

// NewSQLSubmissionRepository 创建连接池并执行迁移。
func NewSQLSubmissionRepository(ctx context.Context, cfg Config) (*SQLSubmissionRepository, error) {
	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SQLSubmissionRepository{db: db}, nil
}

// NewSQLSubmissionRepositoryWithDB 复用已有连接池，不执行迁移。
func NewSQLSubmissionRepositoryWithDB(db *sql.DB) *SQLSubmissionRepository {
	return &SQLSubmissionRepository{db: db}
}

const insertSubmissionSQL = `INSERT INTO submissions
    (task_id, tool, chain, state, stage, tx_id, address, code, status, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectSubmissionColumns = `SELECT id, task_id, tool, chain, state, stage, tx_id, address, code, status, created_at
    FROM submissions`

// Save 将提交记录写入 MySQL 并回填 ID。
func (s *SQLSubmissionRepository) Save(ctx context.Context, record *SubmissionRecord) error {
	if record == nil {
		return errors.New("提交记录不能为空")
	}
	result, err := s.db.ExecContext(ctx, insertSubmissionSQL,
		record.TaskID,
		record.Tool,
		record.Chain,
		record.State,
		record.Stage,
		record.TxID,
		record.Address,
		record.Code,
		record.Status,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("写入提交记录失败: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取提交记录 ID 失败: %w", err)
	}
	record.ID = id
	return nil
}

// ListLatest 查询最近的若干条提交记录。
func (s *SQLSubmissionRepository) ListLatest(ctx context.Context, limit int) ([]SubmissionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectSubmissionColumns+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询提交记录失败: %w", err)
	}
	return scanSubmissions(rows)
}

// ListByTask 查询某个任务的全部提交记录。
func (s *SQLSubmissionRepository) ListByTask(ctx context.Context, taskID string) ([]SubmissionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectSubmissionColumns+` WHERE task_id = ? ORDER BY id DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("查询任务提交记录失败: %w", err)
	}
	return scanSubmissions(rows)
}

func scanSubmissions(rows *sql.Rows) ([]SubmissionRecord, error) {
	defer rows.Close()

	var records []SubmissionRecord
	for rows.Next() {
		var r SubmissionRecord
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Tool, &r.Chain, &r.State, &r.Stage, &r.TxID, &r.Address, &r.Code, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析提交记录失败: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历提交记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLSubmissionRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
