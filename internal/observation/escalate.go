package observation

// Escalate maps (current severity, recurrence count) to the new severity
// when a recurring finding is detected. Pure and total: it never errors.
//
// Rules:
//   - count <= 1: unchanged (first occurrence is not a recurrence)
//   - count == 2: one level up, capped at CRITICAL
//   - count >= 3: always CRITICAL regardless of starting level
//
// Out-of-range counts (negative) and unknown severities are treated as the
// most conservative case and escalate to CRITICAL.
func Escalate(current Severity, occurrenceCount int) Severity {
	switch {
	case occurrenceCount >= 0 && occurrenceCount <= 1:
		return current
	case occurrenceCount == 2:
		rank, ok := severityRank[current]
		if !ok {
			return SeverityCritical
		}
		if rank+1 >= len(severityByRank) {
			return SeverityCritical
		}
		return severityByRank[rank+1]
	default:
		return SeverityCritical
	}
}
