package rules

const (
	lowEfficiency      = 0.8
	highEfficiency     = 1.2
	highScrapRate      = 0.1
	setupOverrunFactor = 1.5
)

// Recommend 给出优化建议,仅供参考,不阻断任何操作
func (e *Engine) Recommend(s Snapshot) []string {
	recs := []string{}

	if eff, ok := s.ProcessingEfficiency(); ok {
		switch {
		case eff < lowEfficiency:
			recs = append(recs, "Consider process optimization - efficiency below 80%")
		case eff > highEfficiency:
			recs = append(recs, "Consider updating standard times - consistently exceeding targets")
		}
	}

	if rate, ok := s.ScrapRate(); ok && rate > highScrapRate {
		recs = append(recs, "High scrap rate detected - review quality processes")
	}

	if s.TTargetSetupMin != nil && s.TActualSetupMin != nil && *s.TTargetSetupMin > 0 &&
		*s.TActualSetupMin > *s.TTargetSetupMin*setupOverrunFactor {
		recs = append(recs, "Setup time significantly over target - consider SMED techniques")
	}
	return recs
}
