package response

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const (
	MsgBadInput     = "Bad input arguments"
	MsgUnauthorized = "Unable to get authorization"
	MsgInternal     = "Internal server error"
)

// Response is the error envelope shared by every endpoint.
type Response struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

type Message struct {
	Message string `json:"message"`
}

func Error(status int, msg string) Response {
	return Response{
		Error:  msg,
		Status: status,
	}
}

func OK(msg string) Message {
	return Message{Message: msg}
}

func ValidationError(status int, errs validator.ValidationErrors) Response {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "max":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is too long", err.Field()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return Response{
		Error:  MsgBadInput + ": " + strings.Join(errMsgs, ", "),
		Status: status,
	}
}

// Render writes an error envelope with the given status.
func Render(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, Error(status, msg))
}
