package settlement

import "navLedger/internal/model"

// SelectBatch takes at most limit entries from eligible, which must be
// ordered by pool then queue position. Pools are merged by the eligibleAt of
// their current head, so each pool contributes a prefix of its own queue.
func SelectBatch(eligible []model.RedemptionQueueEntry, limit int) []model.RedemptionQueueEntry {
	if limit <= 0 || len(eligible) == 0 {
		return nil
	}

	var (
		order  []string
		queues = make(map[string][]model.RedemptionQueueEntry)
	)
	for _, entry := range eligible {
		if _, ok := queues[entry.PoolID]; !ok {
			order = append(order, entry.PoolID)
		}
		queues[entry.PoolID] = append(queues[entry.PoolID], entry)
	}

	batch := make([]model.RedemptionQueueEntry, 0, min(limit, len(eligible)))
	for len(batch) < limit {
		best := ""
		for _, poolID := range order {
			q := queues[poolID]
			if len(q) == 0 {
				continue
			}
			if best == "" || before(q[0], queues[best][0]) {
				best = poolID
			}
		}
		if best == "" {
			break
		}
		batch = append(batch, queues[best][0])
		queues[best] = queues[best][1:]
	}
	return batch
}

func before(a, b model.RedemptionQueueEntry) bool {
	if !a.EligibleAt.Equal(b.EligibleAt) {
		return a.EligibleAt.Before(b.EligibleAt)
	}
	if !a.RequestedAt.Equal(b.RequestedAt) {
		return a.RequestedAt.Before(b.RequestedAt)
	}
	return a.PoolID < b.PoolID
}
