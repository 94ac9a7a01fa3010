package services

import (
	"context"
	"fmt"
	"log/slog"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

type CategoryService struct {
	storage *storage.SQLiteRepository
}

func NewCategoryService(storage *storage.SQLiteRepository) *CategoryService {
	return &CategoryService{storage: storage}
}

func (s *CategoryService) Create(ctx context.Context, householdID int64, c core.Category) (core.Category, error) {
	c.HouseholdID = householdID
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	return s.storage.Queries().CreateCategory(ctx, c)
}

func (s *CategoryService) List(ctx context.Context, householdID int64) ([]core.Category, error) {
	return s.storage.Queries().ListCategories(ctx, householdID)
}

func (s *CategoryService) Update(ctx context.Context, householdID int64, c core.Category) (core.Category, error) {
	c.HouseholdID = householdID
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.storage.Queries().UpdateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", c.ID, err)
	}
	return c, nil
}

// Delete removes the category and all of its expenses in one transaction.
// Savings get back the amount of every savings-funded expense removed.
func (s *CategoryService) Delete(ctx context.Context, householdID, id int64) error {
	var (
		credit  core.Money
		removed int64
	)
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetCategory(ctx, householdID, id); err != nil {
			return err
		}
		var err error
		credit, err = q.SumSavingsFundedByCategory(ctx, householdID, id)
		if err != nil {
			return err
		}
		if credit.Cents != 0 {
			if err := applySavings(ctx, q, householdID, credit, core.SavingsAdd, s.storage.Now()); err != nil {
				return err
			}
		}
		removed, err = q.DeleteExpensesByCategory(ctx, householdID, id)
		if err != nil {
			return err
		}
		return q.DeleteCategory(ctx, householdID, id)
	})
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Category deleted",
		applog.FieldHouseholdID, householdID,
		applog.FieldCategoryID, id,
		"expenses", removed,
		"credited_cents", credit.Cents)
	return nil
}
