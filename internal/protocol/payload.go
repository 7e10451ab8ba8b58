package protocol

// SpawnPayload is the data carried by an inbound "spawn" message.
type SpawnPayload struct {
	UserCount       int64            `msgpack:"user_count"`
	SpawnRate       float64          `msgpack:"spawn_rate"`
	UserClassCounts map[string]int64 `msgpack:"user_classes_count,omitempty"`
}

// HeartbeatPayload is the data carried by an outbound "heartbeat" message.
type HeartbeatPayload struct {
	State           string  `msgpack:"state"`
	CurrentCPUUsage float64 `msgpack:"current_cpu_usage"`
	Count           int64   `msgpack:"count"`
}

// SpawningCompletePayload is the data carried by an outbound
// "spawning_complete" message.
type SpawningCompletePayload struct {
	UserCount int64 `msgpack:"user_count"`
}

// ClientReadyPayload is the data carried by an outbound "client_ready"
// message.
type ClientReadyPayload struct {
	Version int `msgpack:"version"`
}

// ExceptionPayload is the data carried by an outbound "exception" message
// for an unhandled error escaping user task code.
type ExceptionPayload struct {
	Msg       string `msgpack:"msg"`
	Traceback string `msgpack:"traceback"`
}

// StatsEntryPayload is the wire-visible, stripped serializable form of a
// StatsEntry, per spec.md §6.
type StatsEntryPayload struct {
	Name                  string           `msgpack:"name"`
	Method                string           `msgpack:"method"`
	LastRequestTimestamp  float64          `msgpack:"last_request_timestamp"`
	StartTime             float64          `msgpack:"start_time"`
	NumRequests           int64            `msgpack:"num_requests"`
	NumNoneRequests       int64            `msgpack:"num_none_requests"`
	NumFailures           int64            `msgpack:"num_failures"`
	TotalResponseTime     float64          `msgpack:"total_response_time"`
	MaxResponseTime       float64          `msgpack:"max_response_time"`
	MinResponseTime       *float64         `msgpack:"min_response_time"`
	TotalContentLength    int64            `msgpack:"total_content_length"`
	ResponseTimes         map[int64]int64  `msgpack:"response_times"`
	NumRequestsPerSecond  map[int64]int64  `msgpack:"num_reqs_per_sec"`
	NumFailuresPerSecond  map[int64]int64  `msgpack:"num_fail_per_sec"`
}

// StatsErrorPayload is the wire-visible form of a StatsError bucket.
type StatsErrorPayload struct {
	Method      string `msgpack:"method"`
	Name        string `msgpack:"name"`
	ErrorText   string `msgpack:"error"`
	Occurrences int64  `msgpack:"occurrences"`
}

// StatsPayload is the data carried by an outbound "stats" message.
type StatsPayload struct {
	Stats      []StatsEntryPayload          `msgpack:"stats"`
	StatsTotal StatsEntryPayload             `msgpack:"stats_total"`
	Errors     map[string]StatsErrorPayload `msgpack:"errors"`
	UserCount  int64                        `msgpack:"user_count"`
}
