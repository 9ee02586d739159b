package model

// ResultStatus is the lifecycle state of one node or step within a run
type ResultStatus string

const (
	StatusPending ResultStatus = "pending"
	StatusRunning ResultStatus = "running"
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// Terminal reports whether the status will not change again during the run
func (s ResultStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// ExecutionResult is the outcome of one chain step or workflow node
type ExecutionResult struct {
	ID       string       `json:"id"` // step or node id
	Request  Request      `json:"request"`
	Response *Response    `json:"response,omitempty"`
	Error    string       `json:"error,omitempty"`
	Status   ResultStatus `json:"status"`
}

// Clone returns a copy that shares no mutable state with r
func (r ExecutionResult) Clone() ExecutionResult {
	out := r
	out.Request = r.Request.Clone()
	if r.Response != nil {
		resp := *r.Response
		resp.Headers = make(map[string]string, len(r.Response.Headers))
		for k, v := range r.Response.Headers {
			resp.Headers[k] = v
		}
		out.Response = &resp
	}
	return out
}
