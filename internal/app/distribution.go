package app

import (
	"fmt"
	"strings"

	"identity-map-service/internal/domain"
)

// Distribution is a question's answer breakdown as fixed-precision
// percentages of respondents.
type Distribution struct {
	QuestionID  string            `json:"questionId"`
	Respondents int64             `json:"respondents"`
	Percentages map[string]string `json:"percentages"`
}

// FormatDistribution turns raw stats into percentages. For single-choice
// questions every declared option appears, including zero-count ones; for
// combinations the options are whatever the tallies have observed. A
// question with no respondents yields an empty distribution, never a
// division error. Reserved types have no vote-tally semantics and report
// ErrUnsupportedDistribution.
func FormatDistribution(q domain.Question, stats domain.QuestionStats) (Distribution, error) {
	if !q.Type.Tallyable() {
		return Distribution{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedDistribution, q.Type)
	}

	dist := Distribution{
		QuestionID:  q.ID,
		Respondents: stats.Respondents,
		Percentages: make(map[string]string),
	}
	if stats.Respondents == 0 {
		return dist, nil
	}

	if q.Type == domain.SingleChoice {
		for _, opt := range q.Options {
			count := stats.VoteCounts[domain.OptionFieldPrefix+opt]
			dist.Percentages[opt] = formatPercentage(count, stats.Respondents)
		}
		return dist, nil
	}

	for field, count := range stats.VoteCounts {
		if opt, ok := strings.CutPrefix(field, domain.ComboFieldPrefix); ok {
			dist.Percentages[opt] = formatPercentage(count, stats.Respondents)
		}
	}
	return dist, nil
}

func formatPercentage(count, respondents int64) string {
	return fmt.Sprintf("%.2f%%", float64(count)/float64(respondents)*100)
}
