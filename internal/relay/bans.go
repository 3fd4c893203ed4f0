package relay

import "sort"

// BanSet holds users denied service.
type BanSet map[int64]struct{}

// Add bans userID. It reports false if the user was already banned.
func (b BanSet) Add(userID int64) bool {
	if _, ok := b[userID]; ok {
		return false
	}
	b[userID] = struct{}{}
	return true
}

// Remove lifts the ban on userID. It reports false if there was none.
func (b BanSet) Remove(userID int64) bool {
	if _, ok := b[userID]; !ok {
		return false
	}
	delete(b, userID)
	return true
}

func (b BanSet) Contains(userID int64) bool {
	_, ok := b[userID]
	return ok
}

// List returns the banned ids in ascending order.
func (b BanSet) List() []int64 {
	ids := make([]int64, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
