package seed

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/go-playground/validator.v9"
)

var check = validator.New()

var traitName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func init() {
	err := check.RegisterValidation("trait", func(fl validator.FieldLevel) bool {
		return traitName.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("Register custom validator: %v", err))
	}
}

var formats = map[string]string{
	"required":         "%s is required",
	"required_without": "%s is required when %s is not set",
	"trait":            "trait %q must be lower snake case",
	"min":              "%s must be at least %s",
	"max":              "%s must be at most %s",
}

// An InputError is returned when a seed input is invalid.
type InputError struct {
	Record string // company[0], job[3], ...
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Record, e.Reason)
}

func validate(record string, v interface{}) error {
	err := check.Struct(v)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &InputError{Record: record, Reason: err.Error()}
	}
	fe := errs[0]
	field := strings.ToLower(fe.Field())
	var reason string
	switch fe.Tag() {
	case "required":
		reason = fmt.Sprintf(formats["required"], field)
	case "required_without":
		reason = fmt.Sprintf(formats["required_without"], field, strings.ToLower(fe.Param()))
	case "trait":
		reason = fmt.Sprintf(formats["trait"], fe.Value())
	case "min", "max":
		reason = fmt.Sprintf(formats[fe.Tag()], fe.Field(), fe.Param())
	default:
		reason = fmt.Sprintf("%s failed on %q", field, fe.Tag())
	}
	return &InputError{Record: record, Reason: reason}
}

func validateInputs(companies []CompanyInput, jobs []JobInput) error {
	names := make(map[string]int, len(companies))
	for i, c := range companies {
		rec := fmt.Sprintf("company[%d]", i)
		if err := validate(rec, c); err != nil {
			return err
		}
		if prev, ok := names[c.Name]; ok {
			return &InputError{Record: rec, Reason: fmt.Sprintf("name %q already used by company[%d]", c.Name, prev)}
		}
		names[c.Name] = i
	}
	titles := make(map[string]int, len(jobs))
	for i, j := range jobs {
		rec := fmt.Sprintf("job[%d]", i)
		if err := validate(rec, j); err != nil {
			return err
		}
		if prev, ok := titles[j.Title]; ok {
			return &InputError{Record: rec, Reason: fmt.Sprintf("title %q already used by job[%d]", j.Title, prev)}
		}
		titles[j.Title] = i
	}
	return nil
}
