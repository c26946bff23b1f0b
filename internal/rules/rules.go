// Package rules checks field values against the "|"-separated validation
// rules a column may declare, e.g. "required|email|max:120". Each rule is
// translated into a go-playground/validator tag.
package rules

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"entity-loader/internal/common"
)

// Characters the validator tag grammar reserves inside parameters.
const (
	hexComma = "0x2C"
	hexPipe  = "0x7C"
)

var (
	validate = newValidate()
	patterns sync.Map // pattern -> *regexp.Regexp
)

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	for tag, fn := range map[string]validator.Func{
		"integer": isInteger,
		"date":    isDate,
		"regex":   matchesPattern,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s validation: %v", tag, err))
		}
	}

	return v
}

// Rule is one parsed validation rule.
type Rule struct {
	Name string
	Arg  string

	tag     string
	limit   float64
	allowed []string
}

// Set is a parsed validation rule string.
type Set []Rule

// Parse parses a rule string into validator tags. Unknown rules and bad
// parameters are errors. Regex patterns may contain "|" only as the last
// rule of the string.
func Parse(s string) (Set, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var set Set

	rest := s
	for rest != "" {
		var part string

		if strings.HasPrefix(strings.TrimSpace(rest), "regex:") {
			part, rest = rest, ""
		} else {
			part, rest, _ = strings.Cut(rest, "|")
		}

		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		r, err := parseRule(part)
		if err != nil {
			return nil, err
		}

		set = append(set, r)
	}

	return set, nil
}

// Names returns the rule names, in order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, r := range s {
		names[i] = r.Name
	}

	return names
}

// Tag returns the validator tag the rules translate to. Bounds on strings
// and lists are made integral when checked.
func (s Set) Tag() string {
	tags := make([]string, len(s))
	for i, r := range s {
		tags[i] = r.tag
	}

	return strings.Join(tags, ",")
}

// Required reports whether the set contains the required rule.
func (s Set) Required() bool {
	for _, r := range s {
		if r.Name == "required" {
			return true
		}
	}

	return false
}

// Check runs every rule and returns the failure messages. Rules other than
// required are skipped for blank values.
func (s Set) Check(v any) []string {
	var msgs []string

	blank := common.IsBlank(v)

	for _, r := range s {
		if blank && r.Name != "required" {
			continue
		}

		if msg := r.check(v); msg != "" {
			msgs = append(msgs, msg)
		}
	}

	return msgs
}

func (r Rule) check(v any) string {
	value, tag := r.subject(v)

	err := validate.Var(value, tag)
	if err == nil {
		return ""
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err.Error()
	}

	return r.message(errs[0])
}

// subject shapes v for the validator: strings are compared trimmed, numbers
// as float64 so bounds may be fractional.
func (r Rule) subject(v any) (any, string) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}

	switch r.Name {
	case "required", "date":
		return v, r.tag
	case "min", "max":
		return r.bound(v)
	case "numeric", "integer":
		if f, ok := toNumber(v); ok {
			return f, r.tag
		}
	}

	return common.Stringify(v), r.tag
}

// bound picks the tag parameter for the kind of v: strings compare by rune
// count and lists by length, both with an integral limit.
func (r Rule) bound(v any) (any, string) {
	switch val := v.(type) {
	case string:
		return val, r.Name + "=" + r.intLimit()
	case []any:
		return val, r.Name + "=" + r.intLimit()
	}

	f, ok := toNumber(v)
	if !ok {
		return common.Stringify(v), "numeric"
	}

	return f, r.tag
}

func (r Rule) intLimit() string {
	if r.Name == "min" {
		return strconv.FormatFloat(math.Ceil(r.limit), 'f', 0, 64)
	}

	return strconv.FormatFloat(math.Floor(r.limit), 'f', 0, 64)
}

func (r Rule) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "numeric":
		return "must be numeric"
	case "integer":
		return "must be an integer"
	case "date":
		return "must be a date"
	case "oneof":
		return "must be one of " + strings.Join(r.allowed, ", ")
	case "regex":
		return "must match " + r.Arg
	case "min", "max":
		unit := ""

		switch fe.Kind() {
		case reflect.String:
			unit = " characters"
		case reflect.Slice:
			unit = " items"
		}

		word := "least"
		if fe.Tag() == "max" {
			word = "most"
		}

		limit := strconv.FormatFloat(r.limit, 'f', -1, 64)
		if unit != "" {
			limit = fe.Param()
		}

		return fmt.Sprintf("must be at %s %s%s", word, limit, unit)
	}

	return fmt.Sprintf("failed the %s rule", fe.Tag())
}

func parseRule(part string) (Rule, error) {
	name, arg, _ := strings.Cut(part, ":")
	name = strings.ToLower(strings.TrimSpace(name))

	r := Rule{Name: name, Arg: arg}

	switch name {
	case "required", "email", "numeric", "integer", "date":
		r.tag = name
	case "min", "max":
		limit, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: expected a number, got %q", name, arg)
		}

		r.limit = limit
		r.tag = name + "=" + strconv.FormatFloat(limit, 'f', -1, 64)
	case "in":
		if strings.TrimSpace(arg) == "" {
			return Rule{}, fmt.Errorf("rule in: at least one value is required")
		}

		var quoted []string
		for _, a := range strings.Split(arg, ",") {
			a = strings.TrimSpace(a)
			r.allowed = append(r.allowed, a)
			quoted = append(quoted, "'"+a+"'")
		}

		r.tag = "oneof=" + strings.Join(quoted, " ")
	case "regex":
		if _, err := compile(arg); err != nil {
			return Rule{}, fmt.Errorf("rule regex: %w", err)
		}

		r.tag = "regex=" + strings.NewReplacer(",", hexComma, "|", hexPipe).Replace(arg)
	default:
		return Rule{}, fmt.Errorf("unknown validation rule %q", name)
	}

	return r, nil
}

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	patterns.Store(pattern, re)

	return re, nil
}

func matchesPattern(fl validator.FieldLevel) bool {
	re, err := compile(fl.Param())
	if err != nil {
		return false
	}

	return re.MatchString(fl.Field().String())
}

func isInteger(fl validator.FieldLevel) bool {
	f := fl.Field()

	switch {
	case f.CanInt():
		return true
	case f.CanFloat():
		return f.Float() == math.Trunc(f.Float())
	}

	_, err := strconv.ParseInt(f.String(), 10, 64)

	return err == nil
}

func isDate(fl validator.FieldLevel) bool {
	if _, ok := fl.Field().Interface().(time.Time); ok {
		return true
	}

	s := common.Stringify(fl.Field().Interface())
	for _, layout := range []string{time.DateOnly, time.DateTime, time.RFC3339} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}

	return false
}

func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(common.Stringify(v)), 64)

	return f, err == nil
}
