package crawl

// TaskState is the lifecycle position of one page task.
//
//	Pending -> Fetching -> Failed
//	                    -> Fetched -> Parsing -> Failed
//	                                          -> Merged
type TaskState int

const (
	TaskPending TaskState = iota
	TaskFetching
	TaskFetched
	TaskParsing
	TaskMerged
	TaskFailed
)

// String returns the state name.
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskFetching:
		return "fetching"
	case TaskFetched:
		return "fetched"
	case TaskParsing:
		return "parsing"
	case TaskMerged:
		return "merged"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s TaskState) Terminal() bool {
	return s == TaskMerged || s == TaskFailed
}
