package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Collection 以 JSON 文档形式存储的一类记录
// Collection is a keyed set of JSON documents stored in one table.
// Values are copied on write and on read; callers never share memory
// with the store.
type Collection[T any] struct {
	store    *Store
	name     string
	table    string
	keyCol   string
	indexCol string // optional secondary index, used by DeleteRange
	stampCol string // optional last-write column
	keyOf    func(T) string
	indexOf  func(T) int64
}

// CollectionStats is the record count and serialized size of a collection.
type CollectionStats struct {
	Count int64
	Bytes int64
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Put 插入或覆盖一条记录 / Put inserts or replaces one record.
func (c *Collection[T]) Put(ctx context.Context, v T) error {
	return c.PutAll(ctx, []T{v})
}

// PutAll 在单个事务中写入多条记录
// PutAll writes every value in one transaction.
func (c *Collection[T]) PutAll(ctx context.Context, values []T) error {
	if len(values) == 0 {
		return nil
	}
	db, err := c.store.ensureDB(ctx)
	if err != nil {
		return err
	}

	query := c.upsertSQL()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return c.fail("put", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return c.fail("put", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, v := range values {
		key := c.keyOf(v)
		if strings.TrimSpace(key) == "" {
			return c.fail("put", errors.New("empty key"))
		}
		data, err := json.Marshal(v)
		if err != nil {
			return c.fail("put", fmt.Errorf("encode %s: %w", key, err))
		}
		args := []any{key, string(data)}
		if c.indexCol != "" {
			args = append(args, c.indexOf(v))
		}
		if c.stampCol != "" {
			args = append(args, now)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return c.fail("put", fmt.Errorf("%s: %w", key, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return c.fail("put", err)
	}
	return nil
}

func (c *Collection[T]) upsertSQL() string {
	cols := []string{c.keyCol, "data"}
	updates := []string{"data = excluded.data"}
	if c.indexCol != "" {
		cols = append(cols, c.indexCol)
		updates = append(updates, c.indexCol+" = excluded."+c.indexCol)
	}
	if c.stampCol != "" {
		cols = append(cols, c.stampCol)
		updates = append(updates, c.stampCol+" = excluded."+c.stampCol)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s`,
		c.table, strings.Join(cols, ", "), marks, c.keyCol, strings.Join(updates, ", "))
}

// Get 按主键读取记录，不存在时返回 ErrNotFound
// Get returns the record stored under key, or ErrNotFound.
func (c *Collection[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	db, err := c.store.ensureDB(ctx)
	if err != nil {
		return zero, err
	}
	var data string
	err = db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE %s = ?`, c.table, c.keyCol), key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, c.fail("get", err)
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return zero, c.fail("get", fmt.Errorf("decode %s: %w", key, err))
	}
	return v, nil
}

// GetAll 按主键顺序返回全部记录
// GetAll returns every record in key order.
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	db, err := c.store.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s, data FROM %s ORDER BY %s ASC`, c.keyCol, c.table, c.keyCol))
	if err != nil {
		return nil, c.fail("list", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, c.fail("list", err)
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, c.fail("list", fmt.Errorf("decode %s: %w", key, err))
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, c.fail("list", err)
	}
	return out, nil
}

// Delete 删除单条记录，不存在时不报错
// Delete removes one record. Missing keys are not an error.
func (c *Collection[T]) Delete(ctx context.Context, key string) error {
	db, err := c.store.ensureDB(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, c.table, c.keyCol), key,
	); err != nil {
		return c.fail("delete", err)
	}
	return nil
}

// DeleteRange 删除索引值严格小于 upper 的记录并返回其主键
// DeleteRange removes every record whose index value is strictly below
// upper and returns the removed keys in index order.
func (c *Collection[T]) DeleteRange(ctx context.Context, upper int64) ([]string, error) {
	if c.indexCol == "" {
		return nil, c.fail("delete range", errors.New("collection has no index"))
	}
	db, err := c.store.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, c.fail("delete range", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s < ? ORDER BY %s ASC, %s ASC`,
		c.keyCol, c.table, c.indexCol, c.indexCol, c.keyCol), upper)
	if err != nil {
		return nil, c.fail("delete range", err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, c.fail("delete range", err)
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, c.fail("delete range", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s < ?`, c.table, c.indexCol), upper,
	); err != nil {
		return nil, c.fail("delete range", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, c.fail("delete range", err)
	}
	return keys, nil
}

// Clear 清空集合 / Clear removes every record.
func (c *Collection[T]) Clear(ctx context.Context) error {
	db, err := c.store.ensureDB(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, c.table)); err != nil {
		return c.fail("clear", err)
	}
	return nil
}

// Stats 返回记录数与序列化字节数
// Stats returns the record count and the summed size of the stored documents.
func (c *Collection[T]) Stats(ctx context.Context) (CollectionStats, error) {
	db, err := c.store.ensureDB(ctx)
	if err != nil {
		return CollectionStats{}, err
	}
	var st CollectionStats
	err = db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(CAST(data AS BLOB))), 0) FROM %s`, c.table),
	).Scan(&st.Count, &st.Bytes)
	if err != nil {
		return CollectionStats{}, c.fail("stats", err)
	}
	return st, nil
}

func (c *Collection[T]) fail(op string, err error) error {
	return &StoreError{Op: op, Collection: c.name, Err: err}
}
