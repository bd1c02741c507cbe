// Package prompt holds the pure parts of prompt evolution: turning model
// output into labels, scoring predictions, analysing errors, building and
// canonicalizing prompt templates, and the epsilon-greedy prompt pool.
//
// # Extraction
//
//	ex, _ := prompt.NewLabelExtractor(models.Vocabulary{"pos", "neg"})
//	ex.Extract("The answer is POS.") // "pos"
//	ex.Extract("positive")           // "" (no whole-word match)
//
// # Scoring and analysis
//
//	m, _ := prompt.CalculateMetrics(trueLabels, predicted, vocab)
//	summary, _ := prompt.AnalyzeErrors(dataset, result)
//
// # Selection
//
//	pool := prompt.NewPool(seed)
//	pool.Add(initial, 0.6)
//	next, _ := prompt.SelectPrompt(pool, 0.1)
//
// Nothing in this package performs I/O; the services package drives it.
package prompt
