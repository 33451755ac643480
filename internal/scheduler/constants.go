package scheduler

const (
	// EvaluationRunSubject triggers an immediate evaluation over NATS request/reply
	EvaluationRunSubject = "evaluation.run"

	evaluationJobName = "evaluation"
	cleanupJobName    = "cleanup"
)
