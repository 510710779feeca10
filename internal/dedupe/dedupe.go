// Package dedupe removes duplicate records by grouping them on an identity key.
//
// Output is ordered by key, so the result for a given set of keys does not
// depend on the physical order of the input rows.
package dedupe

import (
	"sort"

	"personal-analytics/internal/core"
)

// Policy decides which record of a key group survives.
type Policy int

const (
	// KeepLast keeps the last occurrence of each key.
	KeepLast Policy = iota
	// KeepFirst keeps the first occurrence of each key.
	KeepFirst
)

// Result is the deduplicated records plus the number of rows dropped.
type Result[T any] struct {
	Records []T
	Dropped int
}

// ByKey groups records by key and keeps one record per group according to policy.
func ByKey[T any, K comparable](records []T, key func(T) K, less func(a, b K) bool, policy Policy) Result[T] {
	groups := make(map[K]T, len(records))
	for _, r := range records {
		k := key(r)
		if _, seen := groups[k]; seen && policy == KeepFirst {
			continue
		}
		groups[k] = r
	}

	keys := make([]K, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k])
	}
	return Result[T]{Records: out, Dropped: len(records) - len(out)}
}

// Tasks collapses tasks sharing an external id. The most recent row in the input wins.
func Tasks(tasks []core.Task) Result[core.Task] {
	return ByKey(tasks,
		func(t core.Task) string { return t.ExternalID },
		func(a, b string) bool { return a < b },
		KeepLast)
}

// Expenses removes exact duplicates. Identical keys mean identical records, so any one is kept.
func Expenses(expenses []core.Expense) Result[core.Expense] {
	return ByKey(expenses,
		func(e core.Expense) core.ExpenseKey { return e.Key() },
		func(a, b core.ExpenseKey) bool { return a.Less(b) },
		KeepFirst)
}
