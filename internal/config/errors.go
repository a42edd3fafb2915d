package config

import "fmt"

// FieldError 指出哪个配置项、取值为何不合法。TOML 键与环境变量共用同一个字段名。
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s=%s: %s", e.Field, e.Value, e.Reason)
}

func newFieldError(field string, value any, reason string) error {
	return FieldError{Field: field, Value: fmt.Sprint(value), Reason: reason}
}
