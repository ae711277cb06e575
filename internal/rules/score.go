package rules

// PutScored writes results followed by auto_score and scored_rules. scored_rules is always the set's fixed count so that a
// failed extraction still yields a failure rate of exactly 1.
func PutScored[A any](fields Fields, rs RuleSet[A], results []Result) {
	Put(fields, results, rs.Ternary)
	passed, _ := Tally(results)
	fields.Int("auto_score", passed)
	fields.Int("scored_rules", rs.ScoredCount())
}

// PutOutcomes writes outcome results followed by outcome_score, the number that passed.
func PutOutcomes[A any](fields Fields, rs RuleSet[A], results []Result) {
	Put(fields, results, false)
	passed, _ := Tally(results)
	fields.Int("outcome_score", passed)
}
