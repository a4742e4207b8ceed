package shared

import (
	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorBody is the deny payload returned by the admission path.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	RetryAfter *int   `json:"retryAfter,omitempty"`
}

var jsonAPI = sonic.Config{
	UseNumber:            true,
	EscapeHTML:           false,
	SortMapKeys:          false,
	CompactMarshaler:     true,
	NoQuoteTextMarshaler: true,
	NoNullSliceOrMap:     true,
}.Froze()

// JSONMarshal is plugged into fiber.Config so every response goes through sonic.
func JSONMarshal(v interface{}) ([]byte, error) {
	return jsonAPI.Marshal(v)
}

func JSONUnmarshal(data []byte, v interface{}) error {
	return jsonAPI.Unmarshal(data, v)
}

var (
	successResponse       = mustMarshal(Response{Code: 200, Message: "Success"})
	notFoundResponse      = mustMarshal(Response{Code: 404, Message: "Not Found"})
	internalErrorResponse = mustMarshal(Response{Code: 500, Message: "Internal Server Error"})
)

func mustMarshal(v interface{}) []byte {
	b, _ := jsonAPI.Marshal(v)
	return b
}

func ResponseJSON(c *fiber.Ctx, httpCode int, message string, data interface{}) error {
	if data == nil {
		switch {
		case httpCode == fiber.StatusOK && message == "Success":
			return sendRaw(c, httpCode, successResponse)
		case httpCode == fiber.StatusNotFound && message == "Not Found":
			return sendRaw(c, httpCode, notFoundResponse)
		case httpCode == fiber.StatusInternalServerError && message == "Internal Server Error":
			return sendRaw(c, httpCode, internalErrorResponse)
		}
	}

	return c.Status(httpCode).JSON(Response{
		Code:    httpCode,
		Message: message,
		Data:    data,
	})
}

func sendRaw(c *fiber.Ctx, httpCode int, body []byte) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(httpCode).Send(body)
}

func ResponseOK(c *fiber.Ctx, data interface{}) error {
	return ResponseJSON(c, fiber.StatusOK, "Success", data)
}

func ResponseNotFound(c *fiber.Ctx) error {
	return ResponseJSON(c, fiber.StatusNotFound, "Not Found", nil)
}

// ResponseDenied writes the admission deny payload.
func ResponseDenied(c *fiber.Ctx, httpCode int, message string) error {
	return c.Status(httpCode).JSON(ErrorBody{StatusCode: httpCode, Message: message})
}

// ResponseRateLimited writes a 429 with the retry hint in both body and header.
func ResponseRateLimited(c *fiber.Ctx, message string, retryAfter int) error {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return c.Status(fiber.StatusTooManyRequests).JSON(ErrorBody{
		StatusCode: fiber.StatusTooManyRequests,
		Message:    message,
		RetryAfter: &retryAfter,
	})
}

// ResponseError renders an admission AppError as a deny payload.
func ResponseError(c *fiber.Ctx, appErr *AppError) error {
	if appErr.StatusCode == fiber.StatusTooManyRequests {
		return ResponseRateLimited(c, appErr.Message, appErr.RetryAfter)
	}
	return ResponseDenied(c, appErr.StatusCode, appErr.Message)
}
