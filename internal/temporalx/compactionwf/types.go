package compactionwf

const (
	WorkflowName    = "memory_compaction"
	ActivityCompact = "memory_compact"

	// ErrTypeNonRetryable tags failures that another attempt cannot fix.
	ErrTypeNonRetryable = "CompactionNonRetryable"
)

type Input struct {
	ConversationID string `json:"conversation_id"`
	Source         string `json:"source"`
}

type Result struct {
	Status        string `json:"status"`
	ThroughSeq    int64  `json:"through_seq"`
	SummarizedSeq int64  `json:"summarized_seq"`
}

func WorkflowID(conversationID string) string {
	return "compaction-" + conversationID
}
