package response

import (
	"log"
	"time"

	"atelier/internal/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// FieldError is one entry of an error envelope.
type FieldError struct {
	Detail string `json:"detail"`
	Attr   string `json:"attr,omitempty"`
}

func Success(c *gin.Context, statusCode int, code, detail string, data interface{}) {
	c.JSON(statusCode, gin.H{
		"code":      code,
		"detail":    detail,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Error converts a pipeline error into the wire envelope. The underlying
// cause, if any, is logged server-side only.
func Error(c *gin.Context, err *apperror.Error) {
	if err.Err != nil {
		log.Printf("request_failed kind=%s code=%s path=%s cause=%q",
			err.Kind, err.Code, c.Request.URL.Path, err.Err.Error())
	}

	errType := "server_error"
	if err.ClientFacing() {
		errType = "client_error"
	}

	c.JSON(err.Status(), gin.H{
		"type":      errType,
		"code":      err.Code,
		"errors":    []FieldError{{Detail: err.Detail, Attr: err.Attr}},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ValidationErrors renders a 400 with one entry per offending field.
func ValidationErrors(c *gin.Context, fields map[string]string) {
	entries := make([]FieldError, 0, len(fields))
	for attr, detail := range fields {
		entries = append(entries, FieldError{Detail: detail, Attr: attr})
	}

	e := apperror.New(apperror.Validation, "validation_error", "invalid request")
	c.JSON(e.Status(), gin.H{
		"type":      "client_error",
		"code":      e.Code,
		"errors":    entries,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
