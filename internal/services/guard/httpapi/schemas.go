package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/omnisign/sessionguard/internal/platform/errors"
	"github.com/xeipuuv/gojsonschema"
)

const maxBodyBytes = 64 << 10

// PIN format is deliberately left to the session machine so its errors carry
// the localized PIN message.
const onboardSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["pin", "pinConfirm"],
  "properties": {
    "company":    {"type": "string", "maxLength": 256},
    "fullName":   {"type": "string", "maxLength": 256},
    "phone":      {"type": "string", "maxLength": 64},
    "email":      {"type": "string", "maxLength": 320},
    "pin":        {"type": "string", "maxLength": 16},
    "pinConfirm": {"type": "string", "maxLength": 16}
  }
}`

const profileEditSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "company":        {"type": "string", "maxLength": 256},
    "fullName":       {"type": "string", "maxLength": 256},
    "phone":          {"type": "string", "maxLength": 64},
    "email":          {"type": "string", "maxLength": 320},
    "timeoutMinutes": {"type": "integer"},
    "newPin":         {"type": "string", "maxLength": 16},
    "currentPin":     {"type": "string", "maxLength": 16}
  }
}`

const pinUnlockSchema = `{
  "type": "object",
  "required": ["pin"],
  "properties": {
    "pin": {"type": "string", "maxLength": 16}
  }
}`

const forgotPINSchema = `{
  "type": "object",
  "required": ["confirmed"],
  "properties": {
    "confirmed": {"type": "boolean"}
  }
}`

const capabilitySchema = `{
  "type": "object",
  "required": ["available"],
  "properties": {
    "available": {"type": "boolean"}
  }
}`

const credentialSchema = `{
  "type": "object",
  "required": ["id", "type", "response"],
  "properties": {
    "id":       {"type": "string", "minLength": 1},
    "rawId":    {"type": "string"},
    "type":     {"type": "string", "enum": ["public-key"]},
    "response": {"type": "object"}
  }
}`

var (
	onboardValidator     = mustSchema("onboard", onboardSchema)
	profileEditValidator = mustSchema("profile edit", profileEditSchema)
	pinUnlockValidator   = mustSchema("pin unlock", pinUnlockSchema)
	forgotPINValidator   = mustSchema("forgot pin", forgotPINSchema)
	capabilityValidator  = mustSchema("capability", capabilitySchema)
	credentialValidator  = mustSchema("credential", credentialSchema)
)

func mustSchema(name, source string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("compile %s schema: %v", name, err))
	}
	return schema
}

// invalidRequest carries schema violations for the response body.
type invalidRequest struct {
	cause   *errors.Error
	details []string
}

func (e *invalidRequest) Error() string {
	return e.cause.Error()
}

func (e *invalidRequest) Unwrap() error {
	return e.cause
}

// readBody reads r's JSON body and validates it against schema. dst may be
// nil when the caller wants only the raw bytes. Only application/json is
// accepted.
func readBody(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, dst any) ([]byte, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil, errors.New(errors.CodeInvalidRequest, "content type must be application/json")
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidRequest, "read request body", err)
	}
	if len(raw) == 0 {
		return nil, errors.New(errors.CodeInvalidRequest, "request body is required")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidRequest, "request body is not valid json", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, violation := range result.Errors() {
			details = append(details, violation.String())
		}
		return nil, &invalidRequest{
			cause:   errors.New(errors.CodeInvalidRequest, "request body failed validation"),
			details: details,
		}
	}

	if dst != nil {
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, errors.Wrap(errors.CodeInvalidRequest, "decode request body", err)
		}
	}
	return raw, nil
}
