package api

import (
	"board-api/domain"
)

const (
	postOperationMaxSize = 64 * 1024  // 64 KiB
	boardBodyMaxSize     = 512 * 1024 // 512 KiB
	smallBodyMaxSize     = 16 * 1024  // 16 KiB

	idempotencyKeyHeader = "Idempotency-Key"
)

// error body of every failed request
type errorResponse struct {
	Err string `json:"err"`
}

// /POST /api/boards/:id/operations response body
type operationResponse struct {
	Board   *domain.Board `json:"board"`
	Changed bool          `json:"changed"`
}

// /POST /api/boards/:id/messages request body
type messageRequest struct {
	Txt string `json:"txt"`
}

// /POST /api/auth/login response body
type loginResponse struct {
	*domain.User
	Token string `json:"token"`
}
