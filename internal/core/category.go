package core

import (
	"errors"
	"strings"
)

// ErrUnknownCategory is returned for category strings outside the closed sets below.
var ErrUnknownCategory = errors.New("unknown category")

type TaskCategory string

const (
	TaskPersonal     TaskCategory = "personal"
	TaskProfessional TaskCategory = "professional"
	TaskHealth       TaskCategory = "health"
	TaskStudy        TaskCategory = "study"
	TaskFamily       TaskCategory = "family"
	TaskFinancial    TaskCategory = "financial"
)

// TaskCategories lists every task category in display order.
var TaskCategories = []TaskCategory{
	TaskPersonal,
	TaskProfessional,
	TaskHealth,
	TaskStudy,
	TaskFamily,
	TaskFinancial,
}

type ExpenseCategory string

const (
	ExpenseFood          ExpenseCategory = "food"
	ExpenseTransport     ExpenseCategory = "transport"
	ExpenseSubscriptions ExpenseCategory = "subscriptions"
	ExpenseGroceries     ExpenseCategory = "groceries"
	ExpenseLeisure       ExpenseCategory = "leisure"
	ExpenseHealth        ExpenseCategory = "health"
	ExpenseOther         ExpenseCategory = "other"
)

var ExpenseCategories = []ExpenseCategory{
	ExpenseFood,
	ExpenseTransport,
	ExpenseSubscriptions,
	ExpenseGroceries,
	ExpenseLeisure,
	ExpenseHealth,
	ExpenseOther,
}

// ParseTaskCategory matches s against the task categories, ignoring case and surrounding space.
func ParseTaskCategory(s string) (TaskCategory, error) {
	c := TaskCategory(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", ErrUnknownCategory
	}
	return c, nil
}

func ParseExpenseCategory(s string) (ExpenseCategory, error) {
	c := ExpenseCategory(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", ErrUnknownCategory
	}
	return c, nil
}

func (c TaskCategory) Valid() bool {
	for _, v := range TaskCategories {
		if c == v {
			return true
		}
	}
	return false
}

func (c ExpenseCategory) Valid() bool {
	for _, v := range ExpenseCategories {
		if c == v {
			return true
		}
	}
	return false
}

func (c TaskCategory) String() string    { return string(c) }
func (c ExpenseCategory) String() string { return string(c) }
