package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/aboodalmontad/Hajz/config"
	"github.com/aboodalmontad/Hajz/internal/model"
)

// 持久化字段键。服务配对（serving）刻意不持久化：
// 它是派生的瞬态数据，主节点每次重新加载后必须为空。
const (
	FieldCustomers   = "customers"
	FieldWindows     = "windows"
	FieldClerks      = "clerks"
	FieldNextTicket  = "next_ticket"
	FieldServedCount = "served_count"
)

const createTableStmt = `
	CREATE TABLE IF NOT EXISTS queue_state (
		field VARCHAR(64) NOT NULL PRIMARY KEY,
		value MEDIUMTEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`

// MySQLRepository 持久化仓库，每个字段一行，值为JSON。
// 只有主节点写入；从节点永远不落盘。
type MySQLRepository struct {
	db *sql.DB
}

func NewMySQLRepository() (*MySQLRepository, error) {
	db, err := sql.Open("mysql", config.AppConfig.MySQL.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	db.SetMaxOpenConns(config.AppConfig.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(config.AppConfig.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	if _, err := db.Exec(createTableStmt); err != nil {
		return nil, fmt.Errorf("初始化queue_state表失败: %w", err)
	}

	return &MySQLRepository{db: db}, nil
}

// LoadState 读取持久化的队列状态。表完全为空视为首次运行，
// 返回种子数据；个别字段缺失时使用该字段的默认值。
func (r *MySQLRepository) LoadState() (model.QueueState, error) {
	rows, err := r.db.Query("SELECT field, value FROM queue_state")
	if err != nil {
		return model.QueueState{}, fmt.Errorf("查询队列状态失败: %w", err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return model.QueueState{}, fmt.Errorf("扫描队列状态失败: %w", err)
		}
		fields[field] = value
	}
	if err := rows.Err(); err != nil {
		return model.QueueState{}, fmt.Errorf("迭代队列状态失败: %w", err)
	}

	if len(fields) == 0 {
		return model.SeedState(), nil
	}

	state := model.EmptyState()
	if raw, ok := fields[FieldCustomers]; ok {
		if err := json.Unmarshal([]byte(raw), &state.Customers); err != nil {
			return model.QueueState{}, fmt.Errorf("解析等待队列失败: %w", err)
		}
	}
	if raw, ok := fields[FieldWindows]; ok {
		if err := json.Unmarshal([]byte(raw), &state.Windows); err != nil {
			return model.QueueState{}, fmt.Errorf("解析窗口集合失败: %w", err)
		}
	}
	if raw, ok := fields[FieldClerks]; ok {
		if err := json.Unmarshal([]byte(raw), &state.Clerks); err != nil {
			return model.QueueState{}, fmt.Errorf("解析员工集合失败: %w", err)
		}
	}
	if raw, ok := fields[FieldNextTicket]; ok {
		if err := json.Unmarshal([]byte(raw), &state.NextTicket); err != nil {
			return model.QueueState{}, fmt.Errorf("解析取号计数器失败: %w", err)
		}
	}
	if raw, ok := fields[FieldServedCount]; ok {
		if err := json.Unmarshal([]byte(raw), &state.ServedCount); err != nil {
			return model.QueueState{}, fmt.Errorf("解析已服务计数失败: %w", err)
		}
	}

	return state, nil
}

// SaveState 写入队列状态的持久化子集，单事务内逐字段upsert
func (r *MySQLRepository) SaveState(state model.QueueState) error {
	fields, err := DurableFields(state)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO queue_state (field, value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("准备写入语句失败: %w", err)
	}
	defer stmt.Close()

	for field, value := range fields {
		if _, err := stmt.Exec(field, value); err != nil {
			tx.Rollback()
			return fmt.Errorf("写入字段 %s 失败: %w", field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func (r *MySQLRepository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// DurableFields 把队列状态拆成持久化字段的JSON值。
// 空切片序列化为[]而不是null，避免加载侧歧义。
func DurableFields(state model.QueueState) (map[string]string, error) {
	if state.Customers == nil {
		state.Customers = []model.Customer{}
	}
	if state.Windows == nil {
		state.Windows = []model.Window{}
	}
	if state.Clerks == nil {
		state.Clerks = []model.Clerk{}
	}

	fields := make(map[string]string, 5)
	for field, v := range map[string]interface{}{
		FieldCustomers:   state.Customers,
		FieldWindows:     state.Windows,
		FieldClerks:      state.Clerks,
		FieldNextTicket:  state.NextTicket,
		FieldServedCount: state.ServedCount,
	} {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("序列化字段 %s 失败: %w", field, err)
		}
		fields[field] = string(data)
	}
	return fields, nil
}
