package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/orderfx/internal/domain"
)

// Таблицы связанных с заказом агрегатов.
const (
	TableCustomers = "customers"
	TablePayments  = "payments"
	TableCarts     = "carts"
)

// ReferenceRepository проверяет наличие строки с заданным ID в одной из таблиц ссылок.
type ReferenceRepository struct {
	db    *sql.DB
	table string
}

// NewReferenceRepository создаёт проверку для table. Допустимы только известные таблицы.
func NewReferenceRepository(store *Store, table string) (*ReferenceRepository, error) {
	switch table {
	case TableCustomers, TablePayments, TableCarts:
	default:
		return nil, fmt.Errorf("unsupported reference table %q", table)
	}
	return &ReferenceRepository{db: store.DB(), table: table}, nil
}

// NewReferenceRepositories создаёт проверки клиентов, платежей и корзин.
func NewReferenceRepositories(store *Store) domain.ReferenceRepositories {
	return domain.ReferenceRepositories{
		Customers: &ReferenceRepository{db: store.DB(), table: TableCustomers},
		Payments:  &ReferenceRepository{db: store.DB(), table: TablePayments},
		Carts:     &ReferenceRepository{db: store.DB(), table: TableCarts},
	}
}

// ExistsByID сообщает, есть ли строка с данным ID.
func (r *ReferenceRepository) ExistsByID(id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var exists bool
	// table проверена в конструкторе.
	query := `SELECT EXISTS (SELECT 1 FROM ` + r.table + ` WHERE id = $1)`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s exists: %w", r.table, err)
	}
	return exists, nil
}

// Add регистрирует ID; повторная регистрация не считается ошибкой.
func (r *ReferenceRepository) Add(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `INSERT INTO ` + r.table + ` (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("insert %s: %w", r.table, err)
	}
	return nil
}

var _ domain.ExistenceChecker = (*ReferenceRepository)(nil)
