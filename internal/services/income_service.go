package services

import (
	"context"
	"strings"

	"finanzas/internal/core"
	"finanzas/internal/storage"
)

type IncomeService struct {
	storage *storage.SQLiteRepository
}

func NewIncomeService(storage *storage.SQLiteRepository) *IncomeService {
	return &IncomeService{storage: storage}
}

func (s *IncomeService) Create(ctx context.Context, householdID int64, i core.Income) (core.Income, error) {
	i.HouseholdID = householdID
	i.Description = strings.TrimSpace(i.Description)
	if err := i.Validate(); err != nil {
		return core.Income{}, err
	}
	return s.storage.Queries().CreateIncome(ctx, i, s.storage.Now())
}

func (s *IncomeService) List(ctx context.Context, householdID int64, period core.Period) ([]core.Income, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	return s.storage.Queries().ListIncomesForPeriod(ctx, householdID, period)
}

func (s *IncomeService) Delete(ctx context.Context, householdID, id int64) error {
	return s.storage.Queries().DeleteIncome(ctx, householdID, id)
}
