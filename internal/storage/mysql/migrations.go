package mysql

import (
	"bufio"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"ChainAgent/deploy/migrations"
)

// ErrMigrationDrift 表示已执行的迁移文件在之后被修改过。
var ErrMigrationDrift = errors.New("迁移文件与已执行版本不一致")

var embeddedMigrations fs.ReadFileFS = migrations.Files

const (
	createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version VARCHAR(32) NOT NULL PRIMARY KEY,
    name VARCHAR(128) NOT NULL,
    checksum CHAR(64) NOT NULL,
    applied_at BIGINT NOT NULL
)`
	selectAppliedMigrations = `SELECT version, checksum FROM schema_migrations`
	insertAppliedMigration  = `INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)`
)

// migration 对应 deploy/migrations 下的一个 NNNN_desc.sql 文件。
type migration struct {
	version    string
	name       string
	checksum   string
	statements []string
}

// runMigrations 按版本号顺序执行尚未执行的迁移，每个文件一个事务。
// 已执行版本的校验和不一致时直接失败，不会继续执行后续迁移。
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}
	applied, err := appliedChecksums(ctx, db)
	if err != nil {
		return err
	}
	pending, err := loadMigrations(embeddedMigrations)
	if err != nil {
		return err
	}
	for _, m := range pending {
		sum, ok := applied[m.version]
		if !ok {
			if err := m.apply(ctx, db); err != nil {
				return err
			}
			continue
		}
		if sum != m.checksum {
			return fmt.Errorf("%w: %s", ErrMigrationDrift, m.name)
		}
	}
	return nil
}

func appliedChecksums(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, selectAppliedMigrations)
	if err != nil {
		return nil, fmt.Errorf("查询 schema_migrations 失败: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("解析 schema_migrations 失败: %w", err)
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 schema_migrations 失败: %w", err)
	}
	return applied, nil
}

func (m migration) apply(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range m.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行迁移 %s 第 %d 条语句失败: %w", m.name, i+1, err)
		}
	}
	if _, err = tx.ExecContext(ctx, insertAppliedMigration, m.version, m.name, m.checksum, time.Now().Unix()); err != nil {
		return fmt.Errorf("记录迁移版本失败: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移事务失败: %w", err)
	}
	return nil
}

// loadMigrations 读取 fsys 根目录下的 .sql 文件，按版本号排序。
func loadMigrations(fsys fs.ReadFileFS) ([]migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}
	seen := make(map[string]string, len(names))
	out := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := fsys.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		version := parseMigrationVersion(name)
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("迁移版本 %s 重复: %s 与 %s", version, prev, name)
		}
		seen[version] = name
		out = append(out, migration{
			version:    version,
			name:       name,
			checksum:   checksum(content),
			statements: statements,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// splitSQLStatements 按分号拆分语句，并丢弃以 -- 开头的注释行。
// 迁移文件中的字符串字面量不能包含分号。
func splitSQLStatements(content string) []string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var statements []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

// parseMigrationVersion 取文件名中第一个下划线之前的部分。
func parseMigrationVersion(name string) string {
	base := strings.TrimSuffix(path.Base(name), ".sql")
	if version, _, ok := strings.Cut(base, "_"); ok && version != "" {
		return version
	}
	return base
}
