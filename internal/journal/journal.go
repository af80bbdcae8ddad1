// Package journal 执行流水（SQLite），用于事后审计与状态页展示。
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/betbot/spreadarb/internal/domain"
	"github.com/betbot/spreadarb/internal/metrics"
	"github.com/betbot/spreadarb/pkg/logger"
)

// Entry 一条执行记录
type Entry struct {
	ID          string                      `json:"id"`
	Action      string                      `json:"action"`
	SymbolA     string                      `json:"symbol_a"`
	SymbolB     string                      `json:"symbol_b"`
	Status      string                      `json:"status"`
	Notional    float64                     `json:"notional"`
	SpreadPct   float64                     `json:"spread_pct"`
	RealizedPnL *float64                    `json:"realized_pnl,omitempty"`
	UnhedgedQty float64                     `json:"unhedged_qty"`
	Note        string                      `json:"note"`
	RiskTier    string                      `json:"risk_tier,omitempty"`
	RiskReason  string                      `json:"risk_reason,omitempty"`
	LatencyMs   int64                       `json:"latency_ms"`
	Legs        []domain.LegExecutionResult `json:"legs"`
	CompletedAt time.Time                   `json:"completed_at"`
}

// Journal SQLite 执行流水
type Journal struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库文件并建表
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite 单写者
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS executions (
  id TEXT PRIMARY KEY,
  action TEXT NOT NULL,
  symbol_a TEXT NOT NULL,
  symbol_b TEXT NOT NULL,
  status TEXT NOT NULL,
  notional REAL NOT NULL,
  spread_pct REAL NOT NULL,
  realized_pnl REAL,
  unhedged_qty REAL NOT NULL DEFAULT 0,
  note TEXT NOT NULL DEFAULT '',
  risk_tier TEXT,
  risk_reason TEXT,
  latency_ms INTEGER NOT NULL,
  legs_json TEXT NOT NULL,
  completed_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_executions_completed ON executions(completed_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_executions_symbol ON executions(symbol_a, completed_at DESC);`,
	}
	for _, st := range stmts {
		if _, err := j.db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("journal migrate: %w", err)
		}
	}
	return nil
}

// Record 写入一条执行结果；同一 ID 重复写入时覆盖
func (j *Journal) Record(ctx context.Context, r domain.ExecutionResult) error {
	legs, err := json.Marshal([]domain.LegExecutionResult{r.LegA, r.LegB})
	if err != nil {
		return fmt.Errorf("marshal legs: %w", err)
	}
	var pnl sql.NullFloat64
	if r.RealizedPnL != nil {
		pnl = sql.NullFloat64{Float64: *r.RealizedPnL, Valid: true}
	}
	var tier, reason sql.NullString
	if r.Risk != nil {
		tier = sql.NullString{String: string(r.Risk.Tier), Valid: true}
		reason = sql.NullString{String: r.Risk.ReasonCode, Valid: true}
	}
	completed := r.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	_, err = j.db.ExecContext(ctx, `
INSERT OR REPLACE INTO executions
  (id, action, symbol_a, symbol_b, status, notional, spread_pct, realized_pnl, unhedged_qty,
   note, risk_tier, risk_reason, latency_ms, legs_json, completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`, r.ID, string(r.Decision.Action), r.Decision.SymbolA, r.Decision.SymbolB, string(r.Status),
		r.Decision.Notional, r.Decision.SpreadPct, pnl, r.UnhedgedQty,
		r.Note, tier, reason, r.Latency.Milliseconds(), string(legs),
		completed.UTC().Format(time.RFC3339Nano))
	if err != nil {
		metrics.JournalWriteFailures.Add(1)
		logger.Errorf("[journal] 写入执行记录失败 id=%s: %v", r.ID, err)
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Recent 最近 limit 条记录，按完成时间倒序
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, action, symbol_a, symbol_b, status, notional, spread_pct, realized_pnl, unhedged_qty,
       note, risk_tier, risk_reason, latency_ms, legs_json, completed_at
FROM executions
ORDER BY completed_at DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e            Entry
			pnl          sql.NullFloat64
			tier, reason sql.NullString
			legs, ts     string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.SymbolA, &e.SymbolB, &e.Status, &e.Notional, &e.SpreadPct,
			&pnl, &e.UnhedgedQty, &e.Note, &tier, &reason, &e.LatencyMs, &legs, &ts); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if pnl.Valid {
			v := pnl.Float64
			e.RealizedPnL = &v
		}
		e.RiskTier = tier.String
		e.RiskReason = reason.String
		if err := json.Unmarshal([]byte(legs), &e.Legs); err != nil {
			return nil, fmt.Errorf("unmarshal legs %s: %w", e.ID, err)
		}
		if e.CompletedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse completed_at %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByStatus 各执行状态计数
func (j *Journal) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM executions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
