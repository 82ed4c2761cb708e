package socket

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator 获取共享的 validator 实例，字段名取 json tag
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Schema 事件数据的结构约束
type Schema interface {
	// Parse 返回解析后的值；不符合时返回问题列表
	Parse(value any) (any, []Issue)
}

// StructSchema 基于结构体 tag 的 schema，解析结果为 *T
type StructSchema[T any] struct{}

// Struct 创建结构体 schema
func Struct[T any]() Schema {
	return StructSchema[T]{}
}

// Parse 解码并校验
func (StructSchema[T]) Parse(value any) (any, []Issue) {
	var out *T
	switch v := value.(type) {
	case *T:
		if v == nil {
			return nil, []Issue{{Path: []string{}, Message: "payload is required"}}
		}
		out = v
	case T:
		out = &v
	case nil:
		return nil, []Issue{{Path: []string{}, Message: "payload is required"}}
	default:
		out = new(T)
		if issue := decodeInto(v, out); issue != nil {
			return nil, []Issue{*issue}
		}
	}

	if err := getValidator().Struct(out); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return nil, translateIssues(fieldErrs)
		}
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return nil, []Issue{{Path: []string{}, Message: err.Error()}}
		}
	}
	return out, nil
}

// decodeInto 将任意结构化值转换为目标类型
func decodeInto(v any, out any) *Issue {
	var raw []byte
	switch data := v.(type) {
	case json.RawMessage:
		raw = data
	case []byte:
		raw = data
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return &Issue{Path: []string{}, Message: "payload is not encodable"}
		}
		raw = b
	}

	if err := json.Unmarshal(raw, out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			path := []string{}
			if typeErr.Field != "" {
				path = strings.Split(typeErr.Field, ".")
			}
			if len(path) == 0 {
				return &Issue{Path: path, Message: fmt.Sprintf("expected %s, got %s", kindName(typeErr.Type), typeErr.Value)}
			}
			return &Issue{Path: path, Message: fmt.Sprintf("%s must be %s, got %s", path[len(path)-1], kindName(typeErr.Type), typeErr.Value)}
		}
		return &Issue{Path: []string{}, Message: "payload must be a JSON object"}
	}
	return nil
}

func kindName(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map:
		return "object"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Pointer:
		return kindName(t.Elem())
	default:
		return "number"
	}
}

var issueTemplates = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"uuid":     "%s must be a valid UUID",
	"uuid4":    "%s must be a valid UUID",
	"url":      "%s must be a valid URL",
}

var issueTemplatesWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

// translateIssues 将 validator 错误转为字段路径 + 可读消息
func translateIssues(errs validator.ValidationErrors) []Issue {
	issues := make([]Issue, 0, len(errs))
	for _, fe := range errs {
		path := strings.Split(fe.Namespace(), ".")
		if len(path) > 1 {
			path = path[1:]
		}
		issues = append(issues, Issue{Path: path, Message: translateFieldError(fe)})
	}
	return issues
}

func translateFieldError(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()
	if tpl, ok := issueTemplates[tag]; ok {
		return fmt.Sprintf(tpl, field)
	}
	if tpl, ok := issueTemplatesWithParam[tag]; ok {
		return fmt.Sprintf(tpl, field, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}

// ============ 校验服务 ============

// Validator 事件数据校验服务
type Validator struct{}

// NewValidator 创建校验服务
func NewValidator() *Validator {
	return &Validator{}
}

// Validate 校验入参，失败返回 *ValidationError
func (v *Validator) Validate(schema Schema, raw any, event string) (any, error) {
	if schema == nil {
		return raw, nil
	}
	parsed, issues := schema.Parse(raw)
	if len(issues) > 0 {
		return nil, &ValidationError{
			Event:   event,
			Message: fmt.Sprintf("Validation failed for event %q", event),
			Details: issues,
		}
	}
	return parsed, nil
}

// ValidateAck 校验应答数据，失败返回 *AckValidationError
func (v *Validator) ValidateAck(schema Schema, value any, event string) (any, error) {
	if schema == nil {
		return value, nil
	}
	parsed, issues := schema.Parse(value)
	if len(issues) > 0 {
		return nil, &AckValidationError{
			Event:   event,
			Message: fmt.Sprintf("Acknowledgment validation failed for event %q", event),
			Details: issues,
		}
	}
	return parsed, nil
}

// ParseEventData 尽力解码事件数据，永不失败
//
// 已结构化的值原样返回；字符串仅当能解码为对象或数组时才会被替换，
// 因此对任意输入重复调用结果不变。
func ParseEventData(raw any) any {
	switch v := raw.(type) {
	case json.RawMessage:
		return parseBytes(v)
	case []byte:
		return parseBytes(v)
	case string:
		return parseString(v)
	default:
		return raw
	}
}

func parseBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return string(b)
	}
	if s, ok := decoded.(string); ok {
		return parseString(s)
	}
	return decoded
}

func parseString(s string) any {
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return s
	}
	switch decoded.(type) {
	case map[string]any, []any:
		return decoded
	default:
		return s
	}
}
