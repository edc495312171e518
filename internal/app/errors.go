package app

import "fmt"

// Error codes surfaced to API clients. Each maps to exactly one HTTP status
// at the edge; the service layer attaches both when it constructs the error.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeInvalidBody    = "INVALID_BODY"
	CodeInvalidTerms   = "INVALID_TERMS"
	CodeNotFound       = "NOT_FOUND"
	CodeConnRequired   = "CONNECTION_REQUIRED"
	CodeConnInactive   = "CONNECTION_INACTIVE"
	CodeDuplicateDeal  = "DUPLICATE_ACTIVE_DEAL"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeWrongTurn      = "WRONG_TURN"
	CodeDealExpired    = "DEAL_EXPIRED"
	CodeBadTransition  = "INVALID_TRANSITION"
	CodeConcurrentEdit = "CONCURRENT_MODIFICATION"
	CodeServerError    = "SERVER_ERROR"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
