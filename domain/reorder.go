package domain

// moveWithin removes the element at from and reinserts it at to, in place.
// Callers validate both indices first.
func moveWithin[T any](items []T, from, to int) {
	if from == to {
		return
	}
	item := items[from]
	if from < to {
		copy(items[from:to], items[from+1:to+1])
	} else {
		copy(items[to+1:from+1], items[to:from])
	}
	items[to] = item
}

// insertAt returns items with v inserted at idx (0 <= idx <= len(items)).
func insertAt[T any](items []T, idx int, v T) []T {
	items = append(items, v)
	copy(items[idx+1:], items[idx:])
	items[idx] = v
	return items
}

// removeAt returns items without the element at idx.
func removeAt[T any](items []T, idx int) []T {
	return append(items[:idx], items[idx+1:]...)
}

// validMove reports whether a same-container move between from and to fits a
// list of length n.
func validMove(n, from, to int) bool {
	return from >= 0 && from < n && to >= 0 && to < n
}
