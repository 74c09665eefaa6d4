package gateway

// ChatRequest 聊天请求
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatResponse 聊天响应
type ChatResponse struct {
	Answer string `json:"answer"`
}

// 健康状态
const (
	StatusHealthy          = "healthy"
	StatusUnhealthy        = "unhealthy"
	StatusUpstreamNotReady = "upstream_not_ready"
)

// HealthReport 健康检查报告
//
// UpstreamStatus 为上游返回的 JSON 对象，失败时为字符串 "unhealthy"。
type HealthReport struct {
	GatewayStatus  string `json:"gateway_status"`
	UpstreamStatus any    `json:"upstream_status"`
	UpstreamURL    string `json:"upstream_url"`
	OverallStatus  string `json:"overall_status"`
	Error          string `json:"error,omitempty"`
}

// InfoPayload 根路径返回的服务说明
type InfoPayload struct {
	Message     string            `json:"message"`
	Version     string            `json:"version"`
	UpstreamURL string            `json:"upstream_url"`
	Endpoints   map[string]string `json:"endpoints"`
}

// ErrorBody 失败请求的响应体
type ErrorBody struct {
	Detail string `json:"detail"`
	Error  Kind   `json:"error"`
}
