package httphandler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

var validate = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
})

// validationMessages maps validator tags to message templates. %s is the
// field name, the optional second %s the tag parameter.
var validationMessages = map[string]string{
	"required":    "%s is required",
	"required_if": "%s is required",
	"email":       "%s must be a valid email address",
	"min":         "%s must be at least %s characters",
	"max":         "%s must be at most %s characters",
	"oneof":       "%s must be one of: %s",
	"url":         "%s must be a valid URL",
	"gt":          "%s must be greater than %s",
}

// decodeJSON reads the request body into dst and validates it. The returned
// message is safe to send to the client.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) (string, bool) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return "request body is required", false
		}
		return "invalid JSON body", false
	}

	if err := validate().Struct(dst); err != nil {
		return validationMessage(err), false
	}
	return "", true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "invalid request"
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		tmpl, ok := validationMessages[fe.Tag()]
		switch {
		case !ok:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		case strings.Count(tmpl, "%s") == 2:
			msgs = append(msgs, fmt.Sprintf(tmpl, fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf(tmpl, fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}

// decodeAndValidate decodes the body and writes a 400 on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	msg, ok := decodeJSON(w, r, dst)
	if !ok {
		writeError(w, http.StatusBadRequest, codeValidation, msg)
	}
	return ok
}

// decodeOptional behaves like decodeAndValidate but accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body")
		return false
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return true
	}
	if err := json.Unmarshal(data, dst); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body")
		return false
	}
	if err := validate().Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, validationMessage(err))
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter and writes a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid "+name)
		return 0, false
	}
	return id, true
}

// pageFromQuery reads page and pageSize. Missing or malformed values fall
// back to the defaults.
func pageFromQuery(r *http.Request) model.Page {
	q := r.URL.Query()
	number, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	if size == 0 {
		size, _ = strconv.Atoi(q.Get("page_size"))
	}
	return model.Page{Number: number, Size: size}.Normalize()
}

// kpiFilterFromQuery parses the KPI filter query parameters. Dates accept
// RFC 3339 or YYYY-MM-DD; a date-only "to" covers the whole day.
func kpiFilterFromQuery(r *http.Request) (model.KPIFilter, error) {
	q := r.URL.Query()
	var f model.KPIFilter

	from, err := parseDate(q.Get("from"), false)
	if err != nil {
		return f, fmt.Errorf("from: %w", err)
	}
	to, err := parseDate(q.Get("to"), true)
	if err != nil {
		return f, fmt.Errorf("to: %w", err)
	}
	if from != nil && to != nil && to.Before(*from) {
		return f, errors.New("to must not be before from")
	}
	f.From, f.To = from, to

	ids := []struct {
		name string
		dst  **int64
	}{
		{"repository_id", &f.RepositoryID},
		{"developer_id", &f.DeveloperID},
		{"team_id", &f.TeamID},
		{"role_id", &f.RoleID},
		{"stack_id", &f.StackID},
	}
	for _, p := range ids {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return f, fmt.Errorf("%s must be a positive integer", p.name)
		}
		*p.dst = &id
	}
	return f, nil
}

func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, errors.New("must be RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
