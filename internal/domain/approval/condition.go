package approval

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Field names a property of the expense or its employee that a condition reads
type Field string

const (
	FieldAmount     Field = "amount"
	FieldCategory   Field = "category"
	FieldDepartment Field = "department"
	FieldRole       Field = "role"
)

// IsValid reports whether the field is one of the supported fields
func (f Field) IsValid() bool {
	switch f {
	case FieldAmount, FieldCategory, FieldDepartment, FieldRole:
		return true
	}
	return false
}

// Operator is the comparison applied between a field and a condition value
type Operator string

const (
	OpEquals      Operator = "equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
)

// IsValid reports whether the operator is one of the supported operators
func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpGreaterThan, OpLessThan, OpContains:
		return true
	}
	return false
}

// Subject is the view of an expense and its employee that rules match against
type Subject struct {
	Amount     decimal.Decimal
	Category   string
	Department string
	Role       string
}

// NewSubject builds a Subject; employee may be nil when unknown
func NewSubject(expense *entity.Expense, employee *entity.User) Subject {
	s := Subject{
		Amount:   expense.Amount,
		Category: expense.Category,
	}
	if employee != nil {
		s.Department = employee.Department
		s.Role = employee.Role
	}
	return s
}

func (s Subject) text(f Field) string {
	switch f {
	case FieldAmount:
		return s.Amount.String()
	case FieldCategory:
		return s.Category
	case FieldDepartment:
		return s.Department
	case FieldRole:
		return s.Role
	}
	return ""
}

// EvaluateCondition applies one condition to the subject. Unknown fields or
// operators never match. Numeric operators only apply to the amount field;
// text comparisons are case-insensitive.
func EvaluateCondition(c entity.Condition, s Subject) bool {
	field := Field(c.Field)
	if !field.IsValid() {
		return false
	}

	switch Operator(c.Operator) {
	case OpEquals:
		if field == FieldAmount {
			v, err := decimal.NewFromString(strings.TrimSpace(c.Value))
			return err == nil && s.Amount.Equal(v)
		}
		return strings.EqualFold(s.text(field), strings.TrimSpace(c.Value))

	case OpGreaterThan, OpLessThan:
		if field != FieldAmount {
			return false
		}
		v, err := decimal.NewFromString(strings.TrimSpace(c.Value))
		if err != nil {
			return false
		}
		if Operator(c.Operator) == OpGreaterThan {
			return s.Amount.GreaterThan(v)
		}
		return s.Amount.LessThan(v)

	case OpContains:
		return strings.Contains(strings.ToLower(s.text(field)), strings.ToLower(c.Value))
	}

	return false
}

// EvaluateConditions reports whether every condition holds. An empty list holds.
func EvaluateConditions(conds []entity.Condition, s Subject) bool {
	for _, c := range conds {
		if !EvaluateCondition(c, s) {
			return false
		}
	}
	return true
}
