// Package response provides the unified {code, message, data} envelope used
// by the docrag HTTP surface.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docrag/pkg/utils/errors"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// Response is the unified API response structure.
type Response struct {
	// Code is the business error code (0 = success)
	Code int `json:"code"`

	// Message is a human-readable message
	Message string `json:"message"`

	// Data contains the response payload (nil for errors)
	Data interface{} `json:"data,omitempty"`

	// RequestID is the unique request identifier for tracing
	RequestID string `json:"request_id,omitempty"`

	httpCode int
}

// Success creates a successful response with data.
func Success(data interface{}) *Response {
	return &Response{
		Code:     0,
		Message:  "success",
		Data:     data,
		httpCode: http.StatusOK,
	}
}

// Err creates an error response from an Errno.
func Err(e *errors.Errno) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{
		Code:     e.Code,
		Message:  errorMessage(e),
		httpCode: e.HTTPStatus(),
	}
}

// FromError converts any error into an error response.
func FromError(err error) *Response {
	return Err(errors.FromError(err))
}

// errorMessage appends the cause so callers see what failed downstream.
func errorMessage(e *errors.Errno) string {
	if cause := e.Unwrap(); cause != nil {
		return e.MessageEN + ": " + cause.Error()
	}
	return e.MessageEN
}

// WithRequestID adds request ID to the response.
func (r *Response) WithRequestID(requestID string) *Response {
	r.RequestID = requestID
	return r
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Code == 0
}

// HTTPStatus returns the HTTP status code for this response.
func (r *Response) HTTPStatus() int {
	if r.httpCode != 0 {
		return r.httpCode
	}
	if r.Code == 0 {
		return http.StatusOK
	}
	if e, ok := errors.Lookup(r.Code); ok {
		return e.HTTPStatus()
	}

	switch errors.GetCategory(r.Code) {
	case errors.CategoryRequest:
		return http.StatusBadRequest
	case errors.CategoryResource:
		return http.StatusNotFound
	case errors.CategoryTimeout:
		return http.StatusGatewayTimeout
	case errors.CategoryNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write renders r on c with its HTTP status and the request id, if any.
func Write(c *gin.Context, r *Response) {
	if id := c.GetString(RequestIDKey); id != "" && r.RequestID == "" {
		r.RequestID = id
	}
	c.JSON(r.HTTPStatus(), r)
}

// OK writes a success response.
func OK(c *gin.Context, data interface{}) {
	Write(c, Success(data))
}

// Fail writes the error response for err.
func Fail(c *gin.Context, err error) {
	Write(c, FromError(err))
}
