package app

// scoreDelta computes the points awarded for one submission: faster
// correct answers score higher, wrong answers score zero. The clamp
// tolerates client clock skew reporting timeTaken past the limit.
func scoreDelta(correct bool, timeLimitSeconds, timeTakenSeconds int) int {
	if !correct {
		return 0
	}
	delta := timeLimitSeconds - timeTakenSeconds
	if delta < 0 {
		return 0
	}
	return delta
}
