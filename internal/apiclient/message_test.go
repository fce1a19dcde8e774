package apiclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", ``, ""},
		{"not json", `<html>`, ""},
		{"message wins", `{"detail":"d","message":"m","error":"e"}`, "m"},
		{"detail before error", `{"error":"e","detail":"d"}`, "d"},
		{"error string", `{"error":"e"}`, "e"},
		{"error object", `{"success":false,"error":{"code":"VALIDATION","message":"name too long"}}`, "name too long"},
		{"blank message skipped", `{"message":"  ","detail":"d"}`, "d"},
		{"field error list", `{"field_name":["is required"]}`, "is required"},
		{"field error string", `{"email":"already taken"}`, "already taken"},
		{"fields in sorted order", `{"zeta":["z"],"alpha":["a"]}`, "a"},
		{"non field errors", `{"non_field_errors":["bad pair"],"alpha":["a"]}`, "bad pair"},
		{"errors array of objects", `{"errors":[{"field":"x","message":"x is bad"}]}`, "x is bad"},
		{"top level array", `["first","second"]`, "first"},
		{"top level string", `"plain"`, "plain"},
		{"nothing readable", `{"code":42,"success":false}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMessage([]byte(tt.body)))
		})
	}
}

func TestKindForStatus(t *testing.T) {
	tests := map[int]Kind{
		401: KindUnauthenticated,
		403: KindForbidden,
		404: KindNotFound,
		500: KindServerError,
		503: KindServerError,
		400: KindValidation,
		422: KindValidation,
		429: KindValidation,
		302: KindRequestFailed,
	}
	for status, want := range tests {
		assert.Equal(t, want, kindForStatus(status), "status %d", status)
	}
}

func TestErrorPredicates(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewError(KindNetworkUnreachable, "GET /x/", "", cause)

	assert.Equal(t, GenericMessage(KindNetworkUnreachable), err.Message)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindNetworkUnreachable, KindOf(err))
	assert.True(t, IsKind(err, KindNetworkUnreachable))
	assert.False(t, IsKind(nil, KindNetworkUnreachable))
	assert.Equal(t, Kind(""), KindOf(cause))
	assert.Equal(t, "dial tcp: refused", MessageOf(cause))
	assert.Equal(t, "", MessageOf(nil))
	assert.Contains(t, err.Error(), "GET /x/")

	withStatus := &Error{Kind: KindForbidden, Status: 403, Message: "no", Op: "GET /y/"}
	assert.Equal(t, "GET /y/: Forbidden (HTTP 403): no", withStatus.Error())
}

func TestIsMultipart(t *testing.T) {
	assert.False(t, isMultipart(nil))
	assert.False(t, isMultipart(map[string]string{"a": "b"}))
	assert.False(t, isMultipart([]interface{}{NewFile("a", nil)}))
	assert.True(t, isMultipart(NewFile("a", nil)))
	assert.True(t, isMultipart(&Form{}))
	assert.True(t, isMultipart(map[string]interface{}{"a": 1, "f": NewFile("a", nil)}))
	assert.True(t, isMultipart(map[string]*File{"f": NewFile("a", nil)}))
}
