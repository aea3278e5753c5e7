package validators

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/library-loans-backend/pkg/errors"
)

// MaxBodyBytes caps JSON request bodies; lending payloads are a few hundred bytes.
const MaxBodyBytes = 1 << 20

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their json names so details match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
			return name
		}
		return f.Name
	})
	return v
}()

// ruleMessages phrases validator tags for clients. Rules with a parameter get
// it appended.
var ruleMessages = map[string]string{
	"required": "is required",
	"min":      "must be at least",
	"max":      "must be at most",
	"gte":      "must be greater than or equal to",
	"lte":      "must be less than or equal to",
	"email":    "must be a valid email",
	"uuid":     "must be a valid uuid",
	"uuid4":    "must be a valid uuid",
}

// DecodeJSONBody reads exactly one JSON object into dest and runs its validate
// tags. Unknown fields, trailing data and bodies over MaxBodyBytes are
// rejected with VALIDATION_ERROR.
func DecodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errBodyRequired()
	}
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	defer func() { _, _ = io.Copy(io.Discard, body) }()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	if err := validate.Struct(dest); err != nil {
		return fieldErrors(err)
	}
	return nil
}

func errBodyRequired() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "request body is required")
}

func decodeError(err error) error {
	if errors.Is(err, io.EOF) {
		return errBodyRequired()
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large").
			WithDetails(map[string]any{"limit_bytes": tooLarge.Limit})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
		WithDetails(map[string]any{"error": err.Error()})
}

func fieldErrors(err error) error {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(invalid))
	for _, fe := range invalid {
		msg, ok := ruleMessages[fe.Tag()]
		switch {
		case !ok:
			msg = "is invalid"
		case fe.Param() != "":
			msg += " " + fe.Param()
		}
		details[fe.Field()] = msg
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}
