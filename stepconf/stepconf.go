// Package stepconf fills configuration structs from environment variables.
//
// Fields are bound with an env struct tag: `env:"NAME"` optionally followed by
// constraints, for example `env:"NAME,required"` or `env:"NAME,opt[api,s3]"`.
// An unset or empty variable keeps the field's current value, so defaults can be
// preset before parsing.
package stepconf

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// ErrNotStructPtr indicates a type is not a pointer to a struct.
var ErrNotStructPtr = errors.New("must be a pointer to a struct")

// ParseError occurs when a struct field cannot be set.
type ParseError struct {
	Field string
	Value string
	Err   error
}

// Error implements builtin errors.Error.
func (e *ParseError) Error() string {
	segments := []string{e.Field}
	if e.Value != "" {
		segments = append(segments, e.Value)
	}
	segments = append(segments, e.Err.Error())
	return strings.Join(segments, ": ")
}

// Unwrap ...
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Secret variables are not shown in the printed output.
type Secret string

const secret = "*****"

// String implements fmt.Stringer.String.
// When a Secret is printed, it's masking the underlying string with asterisks.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return secret
}

// EnvGetter ...
type EnvGetter interface {
	Get(key string) string
}

// Parse populates a struct with the retrieved values from environment variables
// described by struct tags and applies the defined validations.
func Parse(input interface{}, envGetter EnvGetter) error {
	v := reflect.ValueOf(input)
	if v.Kind() != reflect.Ptr {
		return ErrNotStructPtr
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrNotStructPtr
	}

	var errs []string
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		tag, ok := field.Tag.Lookup("env")
		if !ok {
			continue
		}
		key, constraint := parseTag(tag)
		value := envGetter.Get(key)

		if err := setField(v.Field(i), value, constraint); err != nil {
			errs = append(errs, (&ParseError{Field: field.Name, Value: value, Err: err}).Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to parse config:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func parseTag(tag string) (string, string) {
	if !strings.Contains(tag, ",") {
		return tag, ""
	}
	i := strings.Index(tag, ",")
	return tag[:i], tag[i+1:]
}

func setField(field reflect.Value, value, constraint string) error {
	if err := validateConstraint(value, constraint); err != nil {
		return err
	}
	if value == "" {
		return nil
	}

	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		field = field.Elem()
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := parseBool(value)
		if err != nil {
			return errors.New("can't convert to bool")
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return errors.New("can't convert to int")
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return errors.New("can't convert to float")
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("type is not supported (%s)", field.Type())
		}
		field.Set(reflect.ValueOf(SplitList(value)))
	default:
		return fmt.Errorf("type is not supported (%s)", field.Kind())
	}
	return nil
}

func validateConstraint(value, constraint string) error {
	switch {
	case constraint == "":
	case constraint == "required":
		if value == "" {
			return errors.New("required variable is not present")
		}
	case constraint == "file", constraint == "dir":
		if err := checkPath(value, constraint == "dir"); err != nil {
			return err
		}
	case strings.HasPrefix(constraint, "opt[") && strings.HasSuffix(constraint, "]"):
		if !contains(value, constraint) {
			return errors.New("value is not in value options")
		}
	default:
		return fmt.Errorf("invalid constraint (%s)", constraint)
	}
	return nil
}

// SplitList splits a list value on '|' and newlines, trimming the items and dropping empty ones.
func SplitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == '|' || r == '\n'
	})

	items := make([]string, 0, len(fields))
	for _, f := range fields {
		if item := strings.TrimSpace(f); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseBool(userInput string) (bool, error) {
	if userInput == "" {
		return false, errors.New("no string to parse")
	}
	userInput = strings.TrimSpace(userInput)

	lowercased := strings.ToLower(userInput)
	if lowercased == "yes" || lowercased == "y" {
		return true, nil
	}
	if lowercased == "no" || lowercased == "n" {
		return false, nil
	}

	return strconv.ParseBool(lowercased)
}

func checkPath(path string, dir bool) error {
	file, err := os.Stat(path)
	if err != nil {
		return errors.New("path does not exist")
	}

	if dir && !file.IsDir() {
		return errors.New("not a directory")
	}

	return nil
}

// contains reports whether s is within the value options, where value options
// are parsed from opt, which format's is opt[item1,item2,item3]. If an option
// contains commas, it should be single quoted (eg. opt[item1,'item2,item3']).
func contains(s, opt string) bool {
	opt = strings.TrimSuffix(strings.TrimPrefix(opt, "opt["), "]")
	var valueOpts []string
	if strings.Contains(opt, "'") {
		// The single quotes separate the options with comma and without comma
		// Eg. "a,b,'c,d',e" will results "a,b," "c,d" and ",e" strings.
		for _, s := range strings.Split(opt, "'") {
			switch {
			case s == "," || s == "":
			case !strings.HasPrefix(s, ",") && !strings.HasSuffix(s, ","):
				// If a string doesn't starts nor ends with a comma it means it's an option which
				// contains comma, so we just append it to valueOpts as it is. Eg. "c,d" from above.
				valueOpts = append(valueOpts, s)
			default:
				// If a string starts or ends with comma it means that it contains options without comma.
				// So we split the string at commas to get the options. Eg. "a,b," and ",e" from above.
				valueOpts = append(valueOpts, strings.Split(strings.Trim(s, ","), ",")...)
			}
		}
	} else {
		valueOpts = strings.Split(opt, ",")
	}
	for _, valOpt := range valueOpts {
		if valOpt == s {
			return true
		}
	}
	return false
}
