package core

import "strconv"

// ExportHeader is the column order of every expense export.
var ExportHeader = []string{"date", "name", "amount", "type", "categoryId", "paid", "month"}

// ExportRow is the flat projection of one expense.
type ExportRow struct {
	Date       Date
	Name       string
	Amount     Money
	Type       ExpenseType
	CategoryID int64
	Paid       Money
	Month      Period
}

// Export is a household's expenses for one period, ready for a sink.
type Export struct {
	HouseholdID int64
	Period      Period
	Rows        []ExportRow
}

func NewExportRow(e Expense) ExportRow {
	return ExportRow{
		Date:       e.Date,
		Name:       e.Name,
		Amount:     e.Amount,
		Type:       e.Type,
		CategoryID: e.CategoryID,
		Paid:       e.Paid,
		Month:      e.Month,
	}
}

// Record renders the row in ExportHeader order.
func (r ExportRow) Record() []string {
	return []string{
		r.Date.String(),
		r.Name,
		r.Amount.String(),
		string(r.Type),
		strconv.FormatInt(r.CategoryID, 10),
		r.Paid.String(),
		r.Month.String(),
	}
}
