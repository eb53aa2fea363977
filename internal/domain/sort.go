package domain

import "sort"

// SortItems orders items by status list, then order, then creation time and
// id so that ties are stable. Unknown statuses sort after every known list.
func SortItems(items []Item, mediaType MediaType) {
	sort.SliceStable(items, func(i, j int) bool {
		return compareItems(items[i], items[j], mediaType) < 0
	})
}

func compareItems(a, b Item, mediaType MediaType) int {
	if ra, rb := sortRank(mediaType, a.Status), sortRank(mediaType, b.Status); ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch {
	case a.Order < b.Order:
		return -1
	case a.Order > b.Order:
		return 1
	case a.CreatedAt.Before(b.CreatedAt):
		return -1
	case a.CreatedAt.After(b.CreatedAt):
		return 1
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func sortRank(mediaType MediaType, s Status) int {
	if r := mediaType.StatusRank(s); r >= 0 {
		return r
	}
	return len(mediaType.Statuses())
}
