package threadmgr

import (
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
)

// maxKeptRatings bounds the ratings history folded into relevance_score.
const maxKeptRatings = 10

// RateContext records explicit feedback on whether a thread's injected
// context was useful, then recomputes relevance_score as the fraction of
// the kept ratings that were useful (default 1.0 with no ratings).
func (m *Manager) RateContext(id string, useful bool, reason string) (*model.Thread, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetThread(id)
	if err != nil {
		return nil, err
	}

	t.Ratings = append(t.Ratings, model.Rating{Useful: useful, Timestamp: time.Now(), Reason: reason})
	if len(t.Ratings) > maxKeptRatings {
		t.Ratings = t.Ratings[len(t.Ratings)-maxKeptRatings:]
	}
	t.RelevanceScore = relevanceFromRatings(t.Ratings)

	if err := m.store.PutThread(t); err != nil {
		return nil, err
	}
	return t, nil
}

func relevanceFromRatings(ratings []model.Rating) float64 {
	if len(ratings) == 0 {
		return 1.0
	}
	var useful int
	for _, r := range ratings {
		if r.Useful {
			useful++
		}
	}
	return float64(useful) / float64(len(ratings))
}
