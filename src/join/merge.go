package join

// MergeLists merges two sorted, duplicate-free identity lists into one sorted,
// duplicate-free list. delta reports whether the result differs from at least
// one of the inputs. When the union holds more than max identities, the result
// keeps the max lowest ones and overflow is set.
func MergeLists(a, b []NodeID, max int) (merged []NodeID, delta bool, overflow bool) {
	merged = make([]NodeID, 0, len(a)+len(b))
	equal := 0

	ia, ib := 0, 0
	for ia < len(a) || ib < len(b) {
		switch {
		case ia >= len(a) || (ib < len(b) && b[ib] < a[ia]):
			merged = append(merged, b[ib])
			ib++
		case ib >= len(b) || a[ia] < b[ib]:
			merged = append(merged, a[ia])
			ia++
		default:
			merged = append(merged, a[ia])
			equal++
			ia++
			ib++
		}
	}

	if len(merged) > max {
		merged = merged[:max]
		overflow = true
	}
	delta = overflow || equal != len(merged)

	return merged, delta, overflow
}

// MergeData merges the received join record rx into the local record tx.
// changed reports that tx and rx differed in a way the peer should hear about,
// delta that the join list itself changed. Commit-assigned indices are only
// meaningful after a commit, so a merged list drops them.
func MergeData(tx, rx *Data) (changed bool, delta bool) {
	if tx.Overflow != rx.Overflow {
		tx.Overflow = true
		changed = true
	}

	if tx.NodeCount != rx.NodeCount {
		if rx.NodeCount > tx.NodeCount {
			tx.NodeCount = rx.NodeCount
		}
		changed = true
	}

	if !sameList(tx.Pending(), rx.Pending()) {
		merged, d, overflow := MergeLists(tx.Pending(), rx.Pending(), tx.ListLen())
		if overflow {
			tx.Overflow = true
		}

		for i := range tx.Slots {
			tx.Slots[i] = 0
			tx.Indices[i] = 0
		}
		copy(tx.Slots, merged)
		tx.SlotCount = uint8(len(merged))

		delta = d
		changed = true
	}

	return changed, delta
}

func sameList(a, b []NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
