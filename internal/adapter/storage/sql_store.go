package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-shipments/internal/core/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id          VARCHAR(36)  NOT NULL PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		description TEXT         NOT NULL,
		quantity    INTEGER      NOT NULL CHECK (quantity >= 0),
		version     BIGINT       NOT NULL DEFAULT 0,
		created_at  BIGINT       NOT NULL,
		updated_at  BIGINT       NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shipments (
		id          VARCHAR(36) NOT NULL PRIMARY KEY,
		total_price VARCHAR(64) NOT NULL,
		items       TEXT        NOT NULL,
		created_at  BIGINT      NOT NULL
	)`,
}

const itemColumns = `id, name, description, quantity, version, created_at, updated_at`

// SQLStore keeps items and shipments in one database so a shipment commit can
// span both tables in a single transaction.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, driverName string) *SQLStore {
	return &SQLStore{db: db, driver: driverName, now: time.Now}
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return unavailable("ping", s.db.PingContext(ctx))
}

func (s *SQLStore) q(query string) string {
	return rebind(s.driver, query)
}

func (s *SQLStore) CommitShipment(ctx context.Context, shipment domain.Shipment, decrements []domain.StockDecrement) error {
	itemsJSON, err := json.Marshal(shipment.Items)
	if err != nil {
		return fmt.Errorf("encode shipment items: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer tx.Rollback()

	updatedAt := s.now().UnixMilli()
	for _, d := range lockOrder(decrements) {
		result, err := tx.ExecContext(ctx, s.q(`
			UPDATE items
			SET quantity = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ? AND quantity = ?`),
			d.NewQuantity, updatedAt, d.ItemID.String(), d.ExpectedVersion, d.ExpectedQuantity,
		)
		if err != nil {
			return txErr("update item", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return unavailable("update item", err)
		}
		if rows == 0 {
			return fmt.Errorf("item %s changed since it was read: %w", d.ItemID, domain.ErrCommitConflict)
		}
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO shipments (id, total_price, items, created_at)
		VALUES (?, ?, ?, ?)`),
		shipment.ID.String(), shipment.TotalPrice.String(), string(itemsJSON), shipment.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return txErr("insert shipment", err)
	}

	return txErr("commit", tx.Commit())
}

// lockOrder returns the decrements sorted by item id so concurrent commits
// take row locks in the same order.
func lockOrder(decrements []domain.StockDecrement) []domain.StockDecrement {
	sorted := slices.Clone(decrements)
	slices.SortFunc(sorted, func(a, b domain.StockDecrement) int {
		return bytes.Compare(a.ItemID[:], b.ItemID[:])
	})
	return sorted
}

func (s *SQLStore) ListShipments(ctx context.Context) ([]domain.Shipment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, total_price, items, created_at
		FROM shipments ORDER BY created_at, id`)
	if err != nil {
		return nil, unavailable("query shipments", err)
	}
	defer rows.Close()

	shipments := []domain.Shipment{}
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		shipments = append(shipments, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query shipments", err)
	}
	return shipments, nil
}

func (s *SQLStore) GetShipment(ctx context.Context, id uuid.UUID) (*domain.Shipment, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, total_price, items, created_at
		FROM shipments WHERE id = ?`), id.String())

	sh, err := scanShipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shipment %s: %w", id, domain.ErrShipmentNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *SQLStore) FindItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Item, error) {
	found := make(map[uuid.UUID]domain.Item, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+itemColumns+`
		FROM items WHERE id IN (`+placeholders(len(ids))+`)`), args...)
	if err != nil {
		return nil, unavailable("query items", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		found[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query items", err)
	}
	return found, nil
}

func (s *SQLStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY name, id`)
	if err != nil {
		return nil, unavailable("query items", err)
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query items", err)
	}
	return items, nil
}

func (s *SQLStore) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+itemColumns+` FROM items WHERE id = ?`), id.String())

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ItemNotFoundError{ItemID: id}
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *SQLStore) CreateItem(ctx context.Context, item domain.Item) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		item.ID.String(), item.Name, item.Description, item.Quantity, item.Version,
		item.CreatedAt.UnixMilli(), item.UpdatedAt.UnixMilli(),
	)
	return unavailable("insert item", err)
}

func (s *SQLStore) UpdateItem(ctx context.Context, item domain.Item) error {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE items
		SET name = ?, description = ?, quantity = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`),
		item.Name, item.Description, item.Quantity, item.UpdatedAt.UnixMilli(),
		item.ID.String(), item.Version,
	)
	if err != nil {
		return unavailable("update item", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return unavailable("update item", err)
	}
	if rows == 0 {
		if _, err := s.GetItem(ctx, item.ID); err != nil {
			return err
		}
		return fmt.Errorf("item %s: %w", item.ID, domain.ErrCommitConflict)
	}
	return nil
}

func (s *SQLStore) DeleteItem(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM items WHERE id = ?`), id.String())
	if err != nil {
		return unavailable("delete item", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return unavailable("delete item", err)
	}
	if rows == 0 {
		return &domain.ItemNotFoundError{ItemID: id}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (domain.Item, error) {
	var (
		item             domain.Item
		id               string
		created, updated int64
	)
	err := row.Scan(&id, &item.Name, &item.Description, &item.Quantity, &item.Version, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return item, err
	}
	if err != nil {
		return item, unavailable("scan item", err)
	}

	item.ID, err = uuid.Parse(id)
	if err != nil {
		return item, fmt.Errorf("item id %q: %w", id, err)
	}
	item.CreatedAt = time.UnixMilli(created).UTC()
	item.UpdatedAt = time.UnixMilli(updated).UTC()
	return item, nil
}

func scanShipment(row scanner) (domain.Shipment, error) {
	var (
		sh      domain.Shipment
		id      string
		price   string
		items   string
		created int64
	)
	err := row.Scan(&id, &price, &items, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return sh, err
	}
	if err != nil {
		return sh, unavailable("scan shipment", err)
	}

	if sh.ID, err = uuid.Parse(id); err != nil {
		return sh, fmt.Errorf("shipment id %q: %w", id, err)
	}
	if sh.TotalPrice, err = decimal.NewFromString(price); err != nil {
		return sh, fmt.Errorf("shipment %s price %q: %w", id, price, err)
	}
	if err := json.Unmarshal([]byte(items), &sh.Items); err != nil {
		return sh, fmt.Errorf("shipment %s items: %w", id, err)
	}
	sh.CreatedAt = time.UnixMilli(created).UTC()
	return sh, nil
}
