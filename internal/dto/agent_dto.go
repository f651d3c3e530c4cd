package dto

// AgentInfoResponse exposes the resolved actor identity for the credential
// used on the request.
type AgentInfoResponse struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	AgentName   string `json:"agent_name"`
	IsAgent     bool   `json:"is_agent"`
	DisplayName string `json:"display_name"`
}
