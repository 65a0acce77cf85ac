package core

import "sort"

// VoteTally maps player id to vote count for one award category.
type VoteTally map[string]int

// Vote adjusts a player's count by delta, clamping at zero. A count that
// reaches zero removes the nomination entirely.
func (t VoteTally) Vote(playerID string, delta int) {
	n := t[playerID] + delta
	if n <= 0 {
		delete(t, playerID)
		return
	}
	t[playerID] = n
}

// Winners returns every player sharing the maximum vote count, restricted
// to the selected roster, provided that maximum is greater than zero.
// Co-leaders are not tie-broken further. The result is sorted by id so
// callers get a deterministic order.
func (t VoteTally) Winners(selected map[string]bool) []string {
	max := 0
	var winners []string
	for id, count := range t {
		if !selected[id] {
			continue
		}
		switch {
		case count > max:
			max = count
			winners = winners[:0]
			winners = append(winners, id)
		case count == max && max > 0:
			winners = append(winners, id)
		}
	}
	sort.Strings(winners)
	return winners
}

// ApplyVoting resolves both award categories over the working session
// data: every co-leader receives the category's fixed bonus and tag.
//
// The pass is idempotent: previously applied MOTM/DOTD tags and their
// bonus amounts are stripped first, so finalizing voting a second time
// never double-charges.
func ApplyVoting(data map[string]*SessionEntry, motm, dotd VoteTally, selected map[string]bool) {
	for _, entry := range data {
		if HasTag(entry.Tags, TagManOfMatch) {
			entry.Added = entry.Added.Sub(ManOfMatchBonus)
			entry.Tags = RemoveTag(entry.Tags, TagManOfMatch)
		}
		if HasTag(entry.Tags, TagDickOfDay) {
			entry.Added = entry.Added.Sub(DickOfDayBonus)
			entry.Tags = RemoveTag(entry.Tags, TagDickOfDay)
		}
	}

	for _, id := range motm.Winners(selected) {
		if entry, ok := data[id]; ok {
			entry.Added = entry.Added.Add(ManOfMatchBonus)
			entry.Tags = append(entry.Tags, TagManOfMatch)
		}
	}
	for _, id := range dotd.Winners(selected) {
		if entry, ok := data[id]; ok {
			entry.Added = entry.Added.Add(DickOfDayBonus)
			entry.Tags = append(entry.Tags, TagDickOfDay)
		}
	}
}
