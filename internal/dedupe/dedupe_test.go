package dedupe_test

import (
	"math/rand"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"personal-analytics/internal/core"
	"personal-analytics/internal/dedupe"
)

func task(id, title string, minutes int) core.Task {
	return core.Task{
		ExternalID:      id,
		Title:           title,
		Category:        core.TaskStudy,
		CompletedAt:     time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		DurationMinutes: minutes,
	}
}

func expense(day int, desc string, cents int64) core.Expense {
	return core.Expense{
		Date:        core.NewDate(2025, 1, day),
		Category:    core.ExpenseFood,
		Description: desc,
		Amount:      core.Money{Cents: cents},
	}
}

func taskIDs(tasks []core.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ExternalID)
	}
	return ids
}

func expenseKeys(es []core.Expense) []core.ExpenseKey {
	keys := make([]core.ExpenseKey, 0, len(es))
	for _, e := range es {
		keys = append(keys, e.Key())
	}
	return keys
}

func TestTasks(t *testing.T) {
	Convey("Given tasks sharing an external id", t, func() {
		in := []core.Task{
			task("2", "read", 30),
			task("1", "Clean house", 45),
			task("1", "Clean house again", 60),
		}

		Convey("When deduplicating", func() {
			res := dedupe.Tasks(in)

			Convey("Then one record per id remains and the last occurrence wins", func() {
				So(taskIDs(res.Records), ShouldResemble, []string{"1", "2"})
				So(res.Records[0].Title, ShouldEqual, "Clean house again")
				So(res.Records[0].DurationMinutes, ShouldEqual, 60)
				So(res.Dropped, ShouldEqual, 1)
			})
		})
	})

	Convey("Given an empty input", t, func() {
		res := dedupe.Tasks(nil)

		Convey("Then the result is empty", func() {
			So(res.Records, ShouldBeEmpty)
			So(res.Dropped, ShouldEqual, 0)
		})
	})
}

func TestExpenses(t *testing.T) {
	Convey("Given two expenses with an identical identity key", t, func() {
		in := []core.Expense{
			expense(2, "lunch", 1250),
			expense(2, "lunch", 1250),
			expense(2, "lunch", 1300),
		}

		Convey("When deduplicating", func() {
			res := dedupe.Expenses(in)

			Convey("Then the exact duplicate is removed", func() {
				So(len(res.Records), ShouldEqual, 2)
				So(res.Dropped, ShouldEqual, 1)
			})
		})
	})
}

func TestOrderIndependence(t *testing.T) {
	Convey("Given a shuffled input", t, func() {
		tasks := []core.Task{
			task("a", "x", 1), task("b", "y", 2), task("c", "z", 3),
			task("a", "x", 1), task("c", "z", 3),
		}
		expenses := []core.Expense{
			expense(1, "bus", 300), expense(3, "pizza", 2000), expense(1, "bus", 300),
			expense(2, "", 0), expense(3, "pizza", 2000),
		}

		wantTasks := taskIDs(dedupe.Tasks(tasks).Records)
		wantExpenses := expenseKeys(dedupe.Expenses(expenses).Records)

		r := rand.New(rand.NewSource(42))
		for i := 0; i < 20; i++ {
			r.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
			r.Shuffle(len(expenses), func(i, j int) { expenses[i], expenses[j] = expenses[j], expenses[i] })

			So(taskIDs(dedupe.Tasks(tasks).Records), ShouldResemble, wantTasks)
			So(expenseKeys(dedupe.Expenses(expenses).Records), ShouldResemble, wantExpenses)
		}
	})
}
