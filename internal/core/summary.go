package core

// CategoryAmount represents an expense amount aggregated by category.
type CategoryAmount struct {
	Category ExpenseCategory `json:"category"`
	Amount   Money           `json:"amount"`
	Count    int             `json:"count"`
}

// CategoryTasks is the task count and summed duration of one category.
type CategoryTasks struct {
	Category TaskCategory `json:"category"`
	Count    int          `json:"count"`
	Minutes  int          `json:"minutes"`
}

// DayAmount is the expense total of one calendar day.
type DayAmount struct {
	Date  Date
	Total Money
}
