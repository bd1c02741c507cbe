package dataset

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

// StratifiedSplit moves about fraction of each label's rows to the
// validation set. Labels with a single row stay in training. The split is
// reproducible for a seed and both halves keep the input order.
func StratifiedSplit(rows []models.Row, fraction float64, seed uint64) (train, validation []models.Row) {
	if fraction <= 0 || len(rows) == 0 {
		return slices.Clone(rows), nil
	}
	fraction = min(fraction, 1)

	rng := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	var order []string
	byLabel := make(map[string][]int)
	for i, row := range rows {
		if _, ok := byLabel[row.Label]; !ok {
			order = append(order, row.Label)
		}
		byLabel[row.Label] = append(byLabel[row.Label], i)
	}

	held := make(map[int]bool)
	for _, label := range order {
		idx := byLabel[label]
		if len(idx) < 2 {
			continue
		}
		n := int(math.Round(float64(len(idx)) * fraction))
		n = max(1, min(n, len(idx)-1))
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		for _, i := range idx[:n] {
			held[i] = true
		}
	}

	for i, row := range rows {
		if held[i] {
			validation = append(validation, row)
		} else {
			train = append(train, row)
		}
	}
	return train, validation
}
