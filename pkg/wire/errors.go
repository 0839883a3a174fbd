package wire

import "errors"

// Error codes surfaced to callers as structured error responses.
const (
	CodeMethodNotFound        = "METHOD_NOT_FOUND"
	CodePermissionDenied      = "PERMISSION_DENIED"
	CodeApprovalTimeout       = "APPROVAL_TIMEOUT"
	CodeStaleApproval         = "STALE_APPROVAL"
	CodeInvalidState          = "INVALID_STATE"
	CodeTimeout               = "TIMEOUT"
	CodeTransportDisconnected = "TRANSPORT_DISCONNECTED"
	CodeSessionClosed         = "SESSION_CLOSED"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeTransportError        = "TRANSPORT_ERROR"
	CodeWalletNotFound        = "WALLET_NOT_FOUND"
	CodeInternalError         = "INTERNAL_ERROR"
)

// RouterError is a structured error carrying a wire-level code.
type RouterError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RouterError) Error() string {
	return e.Code + ": " + e.Message
}

// NewRouterError creates a new RouterError.
func NewRouterError(code, message string) *RouterError {
	return &RouterError{Code: code, Message: message}
}

// ErrorCode extracts the wire code from err, or INTERNAL_ERROR for
// errors that are not RouterErrors.
func ErrorCode(err error) string {
	var re *RouterError
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeInternalError
}

// OkResponse builds a success response correlated to id.
func OkResponse(id string, result []byte) *Response {
	return &Response{ID: id, Ok: true, Result: result}
}

// ErrResponse builds an error response correlated to id.
func ErrResponse(id, code, message string) *Response {
	return &Response{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
	}
}

// ErrorToResponse converts err into an error response for id, preserving
// the code and data of RouterErrors.
func ErrorToResponse(id string, err error) *Response {
	var re *RouterError
	if errors.As(err, &re) {
		return &Response{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:    re.Code,
				Message: re.Message,
				Data:    re.Data,
			},
		}
	}
	return ErrResponse(id, CodeInternalError, err.Error())
}
