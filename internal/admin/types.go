package admin

// OverviewResponse is the JSON response for GET /admin/api/v1/overview.
type OverviewResponse struct {
	Version      string `json:"version"`
	GoVersion    string `json:"go_version"`
	Uptime       string `json:"uptime"`
	UsageEnabled bool   `json:"usage_enabled"`
	StorageType  string `json:"storage_type,omitempty"`
}
