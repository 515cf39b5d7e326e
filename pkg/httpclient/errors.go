package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/checkout-saga/pkg/errors"
)

// maxErrorBody bounds how much of a downstream error body is read and quoted.
const maxErrorBody = 1 << 20

// DownstreamErrorResponse mirrors the {"error": {...}} envelope written by
// httputil.WriteError in every service of the platform.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// translates it into an error. Structured bodies keep their code and message;
// anything else is mapped by status code alone with the raw body as message.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil && downstream.Error != nil {
		return mapDownstreamError(resp.StatusCode, downstream.Error.Code, downstream.Error.Message, serviceName)
	}

	msg := strings.TrimSpace(string(bodyBytes))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return mapDownstreamError(resp.StatusCode, "", msg, serviceName)
}

// mapDownstreamError translates a downstream status and error code into an
// error that keeps the downstream semantics.
func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName+" resource", message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualifiedMsg)
	case status == http.StatusGone:
		return apperrors.Gone(qualifiedMsg)
	case status == http.StatusUnprocessableEntity:
		return apperrors.Unprocessable(qualifiedMsg)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualifiedMsg)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message)
	default:
		if code == "" {
			code = strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
		}
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
		}
	}
}
