package schedule

// ShouldEvaluate reports whether evaluation runs after the given round.
// Rounds are 1-based. A period of 1 evaluates every round; callers
// replace a zero period with their default before asking.
func ShouldEvaluate(round, final, period uint64) bool {
	if period <= 1 {
		return true
	}

	return round == 1 || round%period == 1 || round == final
}

// EvaluationRounds lists every round in 1..final that triggers evaluation.
func EvaluationRounds(final, period uint64) []uint64 {
	var rounds []uint64
	for r := uint64(1); r <= final; r++ {
		if ShouldEvaluate(r, final, period) {
			rounds = append(rounds, r)
		}
	}

	return rounds
}
