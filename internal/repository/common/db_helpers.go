package common

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// GetByID читает одну строку таблицы по первичному ключу.
// sql.ErrNoRows заменяется на доменный notFoundErr вызывающего.
func GetByID[T any](ctx context.Context, db *sqlx.DB, table string, id interface{}, notFoundErr error) (*T, error) {
	return GetByField[T](ctx, db, table, "id", id, notFoundErr)
}

// GetByField читает одну строку таблицы по совпадению поля.
// Структура T должна покрывать все колонки таблицы (SELECT *).
func GetByField[T any](ctx context.Context, db *sqlx.DB, table, field string, value interface{}, notFoundErr error) (*T, error) {
	var entity T

	err := db.GetContext(ctx, &entity,
		fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", table, field), value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, notFoundErr
	case err != nil:
		return nil, fmt.Errorf("get by %s from %s: %w", field, table, err)
	}

	return &entity, nil
}

// BatchInserter накапливает строки и вставляет их пачками одним
// многострочным INSERT, чтобы сидирование не писало в цикле по одной.
type BatchInserter struct {
	tx          *sqlx.Tx
	baseQuery   string
	suffix      string
	batchSize   int
	fieldsCount int
	values      []interface{}
	rowCount    int
}

// NewBatchInserter готовит инсертер для baseQuery вида
// "INSERT INTO t (a, b, c)"; VALUES и placeholders добавляются сами.
func NewBatchInserter(tx *sqlx.Tx, baseQuery string, fieldsCount int, batchSize int) *BatchInserter {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &BatchInserter{
		tx:          tx,
		baseQuery:   baseQuery,
		batchSize:   batchSize,
		fieldsCount: fieldsCount,
		values:      make([]interface{}, 0, batchSize*fieldsCount),
	}
}

// WithSuffix добавляет хвост после VALUES, например ON CONFLICT DO NOTHING.
func (bi *BatchInserter) WithSuffix(suffix string) *BatchInserter {
	bi.suffix = suffix
	return bi
}

// Add ставит строку в очередь; заполненный батч уходит в базу сразу.
func (bi *BatchInserter) Add(ctx context.Context, rowValues ...interface{}) error {
	if len(rowValues) != bi.fieldsCount {
		return fmt.Errorf("expected %d fields, got %d", bi.fieldsCount, len(rowValues))
	}

	bi.values = append(bi.values, rowValues...)
	bi.rowCount++

	if bi.rowCount >= bi.batchSize {
		return bi.Flush(ctx)
	}
	return nil
}

// Flush вставляет накопленные строки. Пустой буфер - no-op.
func (bi *BatchInserter) Flush(ctx context.Context) error {
	if bi.rowCount == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(bi.baseQuery)
	sb.WriteString(" VALUES ")

	arg := 1
	for row := 0; row < bi.rowCount; row++ {
		if row > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for col := 0; col < bi.fieldsCount; col++ {
			if col > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(arg))
			arg++
		}
		sb.WriteByte(')')
	}

	if bi.suffix != "" {
		sb.WriteByte(' ')
		sb.WriteString(bi.suffix)
	}

	if _, err := bi.tx.ExecContext(ctx, sb.String(), bi.values...); err != nil {
		return fmt.Errorf("batch insert: %w", err)
	}

	bi.values = bi.values[:0]
	bi.rowCount = 0
	return nil
}

// WithTransaction выполняет fn в транзакции: откат при ошибке и панике,
// коммит при успехе.
func WithTransaction(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
