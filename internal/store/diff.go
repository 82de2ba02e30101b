package store

// Diff compares two metric sets keyed by project and name. higherIsBetter
// decides the direction of a change; a metric missing from prev is "new".
func Diff(prev, curr []ReportMetric, higherIsBetter func(name string) bool) []MetricDelta {
	type key struct{ project, name string }
	prevMap := make(map[key]float64, len(prev))
	for _, m := range prev {
		prevMap[key{m.Project, m.MetricName}] = m.MetricValue
	}

	deltas := make([]MetricDelta, 0, len(curr))
	for _, m := range curr {
		prevVal, seen := prevMap[key{m.Project, m.MetricName}]
		delta := m.MetricValue - prevVal

		direction := DirectionUnchanged
		switch {
		case !seen:
			direction = DirectionNew
		case delta != 0:
			better := higherIsBetter == nil || higherIsBetter(m.MetricName)
			if (delta > 0) == better {
				direction = DirectionImproved
			} else {
				direction = DirectionRegressed
			}
		}

		deltas = append(deltas, MetricDelta{
			Project:   m.Project,
			Name:      m.MetricName,
			Previous:  prevVal,
			Current:   m.MetricValue,
			Delta:     delta,
			Direction: direction,
		})
	}
	return deltas
}

// DiffSnapshots loads the metrics of two snapshots and compares them.
func (db *DB) DiffSnapshots(prev, curr *Snapshot, higherIsBetter func(string) bool) (*SnapshotDiff, error) {
	diff := &SnapshotDiff{Previous: prev, Current: curr}
	if curr == nil {
		return diff, nil
	}
	currMetrics, err := db.GetReportMetrics(curr.ID)
	if err != nil {
		return nil, err
	}
	var prevMetrics []ReportMetric
	if prev != nil {
		if prevMetrics, err = db.GetReportMetrics(prev.ID); err != nil {
			return nil, err
		}
	}
	diff.Deltas = Diff(prevMetrics, currMetrics, higherIsBetter)
	return diff, nil
}
