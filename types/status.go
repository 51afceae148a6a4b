package types

// StatusResponse is the JSON response for GET /api/status
type StatusResponse struct {
	Phase     CyclePhase         `json:"phase"`
	Config    CycleConfig        `json:"config"`
	Running   bool               `json:"running"`
	NextRunAt string             `json:"next_run_at,omitempty"`
	Logs      []ActivityLogEntry `json:"logs"`
	Posts     []GeneratedPost    `json:"posts"`
	Error     string             `json:"error,omitempty"`
}
