package driven

import "github.com/custodia-labs/applicant-sync/internal/core/domain"

// AuthAdapter signs and validates operator tokens for the HTTP API.
type AuthAdapter interface {
	GenerateToken(claims *domain.OperatorClaims) (string, error)
	ParseToken(token string) (*domain.OperatorClaims, error)
}
