package core

// NextID computes the neighboring track id in the active ordering with
// wraparound. It deliberately does not skip invalid ids: playability is the
// resolver's concern, index arithmetic is this one's. RepeatOne never
// reaches the navigator; the caller replays the current id itself.
func NextID(detail *PlaylistDetail, currentID int64, mode PlayMode, dir Direction) int64 {
	order := detail.Order(mode)
	if len(order) == 0 {
		return 0
	}

	current := -1
	for i, id := range order {
		if id == currentID {
			current = i
			break
		}
	}
	if current == -1 {
		return order[0]
	}

	next := (current + int(dir) + len(order)) % len(order)
	return order[next]
}
