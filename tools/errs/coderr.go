package errs

import (
	"strconv"
	"strings"
)

// API-facing error codes rendered by the query service.
var (
	ErrArgs         = NewCodeError(1001, "invalid argument")
	ErrNoPermission = NewCodeError(1002, "no permission")
	ErrNotFound     = NewCodeError(1003, "record not found")
	ErrInternal     = NewCodeError(1500, "internal server error")
	ErrTokenInvalid = NewCodeError(1401, "token invalid or expired")
)

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

func (e CodeError) Is(err error) bool {
	other, ok := err.(CodeError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

func (e CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}
