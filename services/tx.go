package services

import (
	"context"
	"database/sql"

	"github.com/koc-community/tournament-system/repositories"
)

// txRunner выполняет fn в одной транзакции: ошибка fn откатывает её и
// возвращается как есть. Выделен в тип, чтобы тесты сервисов могли
// исполнять транзакционные пути без базы.
type txRunner func(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error

func runInTx(db *sql.DB) txRunner {
	return func(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return Internal(err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return Internal(err)
		}
		return nil
	}
}
