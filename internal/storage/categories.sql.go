package storage

import (
	"context"
	"fmt"

	"finanzas/internal/core"
)

const categoryColumns = `id, household_id, name, color`

func scanCategory(row interface{ Scan(...interface{}) error }) (core.Category, error) {
	var c core.Category
	err := row.Scan(&c.ID, &c.HouseholdID, &c.Name, &c.Color)
	return c, err
}

const createCategory = `INSERT INTO categories (household_id, name, color) VALUES (?, ?, ?)
RETURNING ` + categoryColumns

func (q *Queries) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	created, err := scanCategory(q.db.QueryRowContext(ctx, createCategory, c.HouseholdID, c.Name, c.Color))
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return created, nil
}

const getCategory = `SELECT ` + categoryColumns + ` FROM categories WHERE id = ? AND household_id = ?`

func (q *Queries) GetCategory(ctx context.Context, householdID, id int64) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx, getCategory, id, householdID))
	if err != nil {
		return core.Category{}, notFound(err, "category")
	}
	return c, nil
}

const listCategories = `SELECT ` + categoryColumns + ` FROM categories WHERE household_id = ? ORDER BY name, id`

func (q *Queries) ListCategories(ctx context.Context, householdID int64) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, householdID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const updateCategory = `UPDATE categories SET name = ?, color = ? WHERE id = ? AND household_id = ?`

func (q *Queries) UpdateCategory(ctx context.Context, c core.Category) error {
	res, err := q.db.ExecContext(ctx, updateCategory, c.Name, c.Color, c.ID, c.HouseholdID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return rowsAffected(res, "category")
}

const deleteCategory = `DELETE FROM categories WHERE id = ? AND household_id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, householdID, id int64) error {
	res, err := q.db.ExecContext(ctx, deleteCategory, id, householdID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return rowsAffected(res, "category")
}
