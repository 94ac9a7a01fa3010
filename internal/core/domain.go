package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Fijo     ExpenseType = "Fijo"
	Variable ExpenseType = "Variable"

	Lent     LoanType = "lent"
	Borrowed LoanType = "borrowed"

	SimpleInterest          InterestType = "simple"
	EffectiveAnnualInterest InterestType = "effective_annual"

	Monthly  PaymentFrequency = "monthly"
	Biweekly PaymentFrequency = "biweekly"
	Weekly   PaymentFrequency = "weekly"

	LoanActive   LoanStatus = "active"
	LoanPaid     LoanStatus = "paid"
	LoanOverdue  LoanStatus = "overdue"
	LoanForgiven LoanStatus = "forgiven"

	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"

	UserRegular    UserRole = "user"
	UserAdmin      UserRole = "admin"
	UserSuperAdmin UserRole = "superadmin"

	SavingsAdd      SavingsOp = "add"
	SavingsSubtract SavingsOp = "subtract"
	SavingsSet      SavingsOp = "set"

	GoalNone    GoalType = "NONE"
	GoalPercent GoalType = "PERCENT"
	GoalFixed   GoalType = "FIXED"

	SoftDelete DeleteMode = "soft"
	HardDelete DeleteMode = "hard"
)

type (
	ExpenseType      string
	LoanType         string
	InterestType     string
	PaymentFrequency string
	LoanStatus       string
	MemberRole       string
	UserRole         string
	SavingsOp        string
	GoalType         string
	DeleteMode       string

	User struct {
		ID         int64      `json:"id"`
		Email      string     `json:"email"`
		Name       string     `json:"name"`
		Role       UserRole   `json:"role"`
		VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
		DeletedAt  *time.Time `json:"deletedAt,omitempty"`
		CreatedAt  time.Time  `json:"createdAt"`
	}

	SavingsGoal struct {
		Type  GoalType `json:"type"`
		Value float64  `json:"value"`
	}

	Household struct {
		ID          int64       `json:"id"`
		Name        string      `json:"name"`
		OwnerID     int64       `json:"ownerId"`
		InviteCode  string      `json:"inviteCode,omitempty"`
		SavingsGoal SavingsGoal `json:"savingsGoal"`
		DeletedAt   *time.Time  `json:"deletedAt,omitempty"`
		CreatedAt   time.Time   `json:"createdAt"`
	}

	Member struct {
		HouseholdID int64      `json:"householdId"`
		UserID      int64      `json:"userId"`
		Role        MemberRole `json:"role"`
		IsDefault   bool       `json:"isDefault"`
		CreatedAt   time.Time  `json:"createdAt"`
	}

	Savings struct {
		HouseholdID int64     `json:"householdId"`
		Balance     Money     `json:"balance"`
		LastUpdated time.Time `json:"lastUpdated"`
	}

	Category struct {
		ID          int64  `json:"id"`
		HouseholdID int64  `json:"householdId"`
		Name        string `json:"name"`
		Color       string `json:"color"`
	}

	Expense struct {
		ID                int64       `json:"id"`
		HouseholdID       int64       `json:"householdId"`
		CategoryID        int64       `json:"categoryId"`
		Name              string      `json:"name"`
		Amount            Money       `json:"amount"`
		Paid              Money       `json:"paid"`
		Type              ExpenseType `json:"type"`
		Month             Period      `json:"month"`
		Date              Date        `json:"date"`
		IsPaidWithSavings bool        `json:"isPaidWithSavings"`
		CreatedAt         time.Time   `json:"createdAt"`
		UpdatedAt         time.Time   `json:"updatedAt"`
	}

	Income struct {
		ID          int64     `json:"id"`
		HouseholdID int64     `json:"householdId"`
		Amount      Money     `json:"amount"`
		Date        Date      `json:"date"`
		Category    string    `json:"category"`
		Description string    `json:"description"`
		Type        string    `json:"type"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	Loan struct {
		ID               int64            `json:"id"`
		HouseholdID      int64            `json:"householdId"`
		Type             LoanType         `json:"type"`
		PersonName       string           `json:"personName"`
		Amount           Money            `json:"amount"`
		Date             Date             `json:"date"`
		DueDate          *Date            `json:"dueDate,omitempty"`
		Installments     int              `json:"installments"`
		InterestRate     float64          `json:"interestRate"`
		InterestType     InterestType     `json:"interestType"`
		PaymentFrequency PaymentFrequency `json:"paymentFrequency"`
		Status           LoanStatus       `json:"status"`
		// RemainingOverride pins the outstanding balance at RemainingOverrideAt.
		RemainingOverride   *Money        `json:"remainingBalance,omitempty"`
		RemainingOverrideAt *time.Time    `json:"remainingBalanceAt,omitempty"`
		Payments            []LoanPayment `json:"payments,omitempty"`
		CreatedAt           time.Time     `json:"createdAt"`
		UpdatedAt           time.Time     `json:"updatedAt"`
	}

	LoanPayment struct {
		ID        int64     `json:"id"`
		LoanID    int64     `json:"loanId"`
		Amount    Money     `json:"amount"`
		Date      Date      `json:"date"`
		Notes     string    `json:"notes,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Notification struct {
		ID          int64      `json:"id"`
		UserID      int64      `json:"userId"`
		HouseholdID int64      `json:"householdId"`
		LoanID      int64      `json:"loanId"`
		Kind        string     `json:"kind"`
		Message     string     `json:"message"`
		DueDate     Date       `json:"dueDate"`
		CreatedAt   time.Time  `json:"createdAt"`
		ReadAt      *time.Time `json:"readAt,omitempty"`
	}
)

var (
	ErrEmptyName     = errors.New("empty name")
	ErrNameTooLong   = errors.New("name too long (max 200 characters)")
	ErrInvalidType   = errors.New("invalid type")
	ErrInvalidPeriod = errors.New("invalid period")
)

func (t ExpenseType) Valid() bool { return t == Fijo || t == Variable }

func (t LoanType) Valid() bool { return t == Lent || t == Borrowed }

func (t InterestType) Valid() bool { return t == SimpleInterest || t == EffectiveAnnualInterest }

func (f PaymentFrequency) Valid() bool { return f == Monthly || f == Biweekly || f == Weekly }

func (o SavingsOp) Valid() bool { return o == SavingsAdd || o == SavingsSubtract || o == SavingsSet }

func (m DeleteMode) Valid() bool { return m == SoftDelete || m == HardDelete }

// CanManage reports whether the role may perform household-admin actions
// (invite, rename, settings, promote).
func (r MemberRole) CanManage() bool { return r == RoleOwner || r == RoleAdmin }

func (r UserRole) IsAdmin() bool { return r == UserAdmin || r == UserSuperAdmin }

// MaxNameLength bounds names in bytes.
const MaxNameLength = 200

// ValidateName rejects blank names and names over MaxNameLength bytes.
func ValidateName(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return invalidInput(ErrEmptyName)
	}
	if len(name) > MaxNameLength {
		return invalidInput(ErrNameTooLong)
	}
	return nil
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

func (g SavingsGoal) Validate() error {
	switch g.Type {
	case GoalNone:
		return nil
	case GoalPercent:
		if g.Value < 0 || g.Value > 100 {
			return fmt.Errorf("%w: percent goal must be between 0 and 100", ErrInvalidAmount)
		}
	case GoalFixed:
		if g.Value < 0 {
			return fmt.Errorf("%w: fixed goal must not be negative", ErrInvalidAmount)
		}
	default:
		return invalidInput(fmt.Errorf("savings goal type %q", g.Type))
	}
	return nil
}

// Target returns the amount the household aims to save in a period with the
// given income.
func (g SavingsGoal) Target(income Money) Money {
	switch g.Type {
	case GoalPercent:
		return MoneyFromFloat(income.Euros() * g.Value / 100)
	case GoalFixed:
		return MoneyFromFloat(g.Value)
	default:
		return Money{}
	}
}

func (c Category) Validate() error {
	return ValidateName(c.Name)
}

func (e Expense) Validate() error {
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	if e.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if e.Paid.Cents < 0 {
		return fmt.Errorf("%w: paid must not be negative", ErrInvalidAmount)
	}
	if !e.Type.Valid() {
		return invalidInput(fmt.Errorf("%w %q: must be Fijo or Variable", ErrInvalidType, e.Type))
	}
	if e.CategoryID <= 0 {
		return invalidInput(errors.New("category is required"))
	}
	if err := e.Month.Validate(); err != nil {
		return err
	}
	return e.Date.Validate()
}

func (i Income) Validate() error {
	if i.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if len(i.Description) > MaxNameLength {
		return invalidInput(errors.New("description too long (max 200 characters)"))
	}
	return i.Date.Validate()
}

func (l Loan) Validate() error {
	if err := ValidateName(l.PersonName); err != nil {
		return err
	}
	if l.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if !l.Type.Valid() {
		return invalidInput(fmt.Errorf("%w %q: must be lent or borrowed", ErrInvalidType, l.Type))
	}
	if l.Installments < 1 {
		return invalidInput(errors.New("installments must be at least 1"))
	}
	if l.InterestRate < 0 {
		return fmt.Errorf("%w: interest rate must not be negative", ErrInvalidAmount)
	}
	if !l.InterestType.Valid() {
		return invalidInput(fmt.Errorf("interest type %q", l.InterestType))
	}
	if !l.PaymentFrequency.Valid() {
		return invalidInput(fmt.Errorf("payment frequency %q", l.PaymentFrequency))
	}
	if err := l.Date.Validate(); err != nil {
		return err
	}
	if l.DueDate != nil {
		if err := l.DueDate.Validate(); err != nil {
			return err
		}
	}
	return nil
}
