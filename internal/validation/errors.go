package validation

import (
	"errors"
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
)

// FieldErrors flattens validator errors into json field name -> message.
// messages is looked up by "field.tag", then by "tag"; the first failing
// rule of a field wins.
func FieldErrors(err error, messages map[string]string) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		if err != nil {
			out["error"] = err.Error()
		}
		return out
	}
	for _, fe := range ve {
		field := fe.Field()
		if _, seen := out[field]; seen {
			continue
		}
		if msg, ok := messages[field+"."+fe.Tag()]; ok {
			out[field] = msg
			continue
		}
		if msg, ok := messages[fe.Tag()]; ok {
			out[field] = msg
			continue
		}
		out[field] = fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
	return out
}
