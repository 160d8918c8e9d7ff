package handler

// ErrorResponse is the envelope every failing endpoint returns:
// {"error":{"code":"...","message":"..."}}. Codes are stable machine-readable
// identifiers; messages are for humans and may change.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Code: code, Message: message}}
}
