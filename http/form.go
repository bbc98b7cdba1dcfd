package http

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sagarc03/burndrop"
)

type uploadForm struct {
	TTL          time.Duration `form:"ttl" validate:"gte=0"`
	Password     string        `form:"password" validate:"max=72"`
	MaxDownloads *int          `form:"max_downloads" validate:"omitempty,min=1"`
}

var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	return v
}

// parseUploadForm reads the text fields of an upload. The ttl field takes a
// Go duration ("90m", "6h"); a bare number is a count of hours.
func parseUploadForm(values map[string][]string) (uploadForm, error) {
	field := func(name string) string {
		if v := values[name]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	var form uploadForm

	if raw := field("ttl"); raw != "" {
		ttl, err := parseTTL(raw)
		if err != nil {
			return form, fmt.Errorf("%w: invalid ttl %q", burndrop.ErrInvalidInput, raw)
		}
		form.TTL = ttl
	}

	if raw := field("max_downloads"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return form, fmt.Errorf("%w: invalid max_downloads %q", burndrop.ErrInvalidInput, raw)
		}
		form.MaxDownloads = &n
	}

	if v := values["password"]; len(v) > 0 {
		form.Password = v[0]
	}

	if err := formValidator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return form, fmt.Errorf("%w: %s", burndrop.ErrInvalidInput, describe(verrs))
		}
		return form, fmt.Errorf("%w: %w", burndrop.ErrInvalidInput, err)
	}

	return form, nil
}

func parseTTL(raw string) (time.Duration, error) {
	if hours, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if hours < 0 || hours > math.MaxInt64/int64(time.Hour) {
			return 0, fmt.Errorf("ttl of %d hours is out of range", hours)
		}
		return time.Duration(hours) * time.Hour, nil
	}
	return time.ParseDuration(raw)
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}
