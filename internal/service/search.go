package service

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Filter returns the items whose Text or Name contains query, compared with
// Unicode case folding. A blank query returns every item.
func Filter(items []Item, query string) []Item {
	query = strings.TrimSpace(query)
	if query == "" {
		return append([]Item(nil), items...)
	}

	fold := cases.Fold()
	needle := fold.String(query)

	var matched []Item
	for _, item := range items {
		if strings.Contains(fold.String(item.Text), needle) || strings.Contains(fold.String(item.Name), needle) {
			matched = append(matched, item)
		}
	}
	return matched
}

// Search filters items for each query received on queries, emitting a result
// only after no new query has arrived for delay. A pending query is flushed
// when queries is closed. The returned channel is closed when queries is
// closed or ctx ends.
func Search(ctx context.Context, items []Item, queries <-chan string, delay time.Duration) <-chan []Item {
	out := make(chan []Item)

	go func() {
		defer close(out)

		timer := time.NewTimer(delay)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		var pending string
		var hasPending bool

		emit := func() bool {
			hasPending = false
			select {
			case out <- Filter(items, pending):
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case q, ok := <-queries:
				if !ok {
					if hasPending {
						emit()
					}
					return
				}
				pending, hasPending = q, true
				timer.Stop()
				timer.Reset(delay)
			case <-timer.C:
				if hasPending && !emit() {
					return
				}
			}
		}
	}()

	return out
}
