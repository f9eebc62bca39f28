package api

// LoginRequest represents the request body for the login endpoint
type LoginRequest struct {
	TenantCode string `json:"tenantCode"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

// LoginResponse represents the response from the login endpoint
type LoginResponse struct {
	UserID      string `json:"userId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// VerifyResponse represents the response from the session verify endpoint
type VerifyResponse struct {
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// InitiateResponse represents the response from the chat initiate endpoint
type InitiateResponse struct {
	Message   *string `json:"message"`
	SessionID string  `json:"sessionId,omitempty"`
}

// ChatPart is one user turn in a chat request
type ChatPart struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

// ChatRequest represents the request body for the chat endpoint
type ChatRequest struct {
	Messages []ChatPart `json:"messages"`
}

// ChatResponse represents the response from the chat endpoint
type ChatResponse struct {
	Response *string `json:"response"`
	Type     string  `json:"type,omitempty"`
}

// errorBody is the shape the backend uses for failures
type errorBody struct {
	Detail string `json:"detail"`
}
