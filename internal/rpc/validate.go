package rpc

import (
	"reflect"
	"strings"

	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// Decode reads argument i into out and runs its validate tags.
func (a Args) Decode(i int, out any) error {
	if err := a.Object(i, out); err != nil {
		return err
	}
	if err := validate.Struct(out); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return BadArgs(err.Error())
		}
		fields := map[string]string{}
		for _, fieldErr := range errs {
			fields[fieldErr.Namespace()] = fieldErr.Tag()
		}
		return pkgerrors.New(pkgerrors.CodeValidation, badArgsMessage).WithDetails(map[string]any{"fields": fields})
	}
	return nil
}
