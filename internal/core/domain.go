package core

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RatingNone Rating = ""
	RatingGood Rating = "○"
	RatingFair Rating = "△"
	RatingBad  Rating = "✖"
)

// FixedCostMemo is the memo stamped on every auto-posted fixed-cost expense.
const FixedCostMemo = "固定費自動計上"

type (
	// Rating is the optional self-assessment attached to an expense.
	Rating string

	Expense struct {
		ID              string    `json:"id"`
		Date            string    `json:"date"` // YYYY-MM-DD
		CategoryID      string    `json:"category_id"`
		PaymentMethodID string    `json:"payment_method_id"`
		Amount          int64     `json:"amount"`
		Description     string    `json:"description"`
		Rating          Rating    `json:"rating,omitempty"`
		Memo            string    `json:"memo"`
		Deleted         bool      `json:"deleted"`
		IsFixed         bool      `json:"is_fixed"`
		FixedCostID     string    `json:"fixed_cost_id,omitempty"`
		CreatedAt       time.Time `json:"created_at"`
		UpdatedAt       time.Time `json:"updated_at"`
	}

	Income struct {
		ID        string    `json:"id"`
		Date      string    `json:"date"`
		SourceID  string    `json:"source_id"`
		Amount    int64     `json:"amount"`
		Memo      string    `json:"memo"`
		Deleted   bool      `json:"deleted"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	Category struct {
		ID        string    `json:"id"`
		MajorName string    `json:"major_name"`
		MinorName string    `json:"minor_name,omitempty"` // empty means no refinement
		SortOrder int       `json:"sort_order"`
		IsActive  bool      `json:"is_active"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	PaymentMethod struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		SortOrder int       `json:"sort_order"`
		IsActive  bool      `json:"is_active"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	IncomeSource struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		SortOrder int       `json:"sort_order"`
		IsActive  bool      `json:"is_active"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// FixedCost is a monthly template that materializes into one Expense.
	FixedCost struct {
		ID              string    `json:"id"`
		Name            string    `json:"name"`
		CategoryID      string    `json:"category_id"`
		PaymentMethodID string    `json:"payment_method_id"`
		Amount          int64     `json:"amount"`
		IsActive        bool      `json:"is_active"`
		CreatedAt       time.Time `json:"created_at"`
		UpdatedAt       time.Time `json:"updated_at"`
	}

	// CategoryMapping remembers which category a CSV label was mapped to.
	CategoryMapping struct {
		ID          string    `json:"id"`
		CSVCategory string    `json:"csv_category"`
		CategoryID  string    `json:"category_id"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}
)

var (
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidYearMonth     = errors.New("invalid year-month")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidRating        = errors.New("invalid rating")
	ErrEmptyName            = errors.New("empty name")
	ErrMissingCategory      = errors.New("missing category")
	ErrMissingPaymentMethod = errors.New("missing payment method")
	ErrMissingSource        = errors.New("missing income source")
)

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// IsValid reports whether r is one of the known ratings or absent.
func (r Rating) IsValid() bool {
	switch r {
	case RatingNone, RatingGood, RatingFair, RatingBad:
		return true
	default:
		return false
	}
}

// ValidateDay checks a YYYY-MM-DD calendar day.
func ValidateDay(day string) error {
	if !dayPattern.MatchString(day) {
		return ErrInvalidDate
	}
	if _, err := time.Parse(DayLayout, day); err != nil {
		return ErrInvalidDate
	}
	return nil
}

func (e Expense) Validate() error {
	if err := ValidateDay(e.Date); err != nil {
		return err
	}
	if strings.TrimSpace(e.CategoryID) == "" {
		return ErrMissingCategory
	}
	if strings.TrimSpace(e.PaymentMethodID) == "" {
		return ErrMissingPaymentMethod
	}
	if e.Amount < 0 {
		return ErrInvalidAmount
	}
	if !e.Rating.IsValid() {
		return ErrInvalidRating
	}
	return nil
}

func (i Income) Validate() error {
	if err := ValidateDay(i.Date); err != nil {
		return err
	}
	if strings.TrimSpace(i.SourceID) == "" {
		return ErrMissingSource
	}
	if i.Amount < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.MajorName) == "" {
		return ErrEmptyName
	}
	return nil
}

func (p PaymentMethod) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (s IncomeSource) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (f FixedCost) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(f.CategoryID) == "" {
		return ErrMissingCategory
	}
	if strings.TrimSpace(f.PaymentMethodID) == "" {
		return ErrMissingPaymentMethod
	}
	if f.Amount < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Label renders "major (minor)" or just the major name.
func (c Category) Label() string {
	if c.MinorName == "" {
		return c.MajorName
	}
	return c.MajorName + " (" + c.MinorName + ")"
}
