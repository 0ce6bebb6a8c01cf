package httpapi

// Result 前端统一响应包（code/type/message/result）
// 成功 code=2000；业务失败 code=-1，type 区分 error 与 warning
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

const (
	resultTypeSuccess = "success"
	resultTypeError   = "error"
	resultTypeWarning = "warning"
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: resultTypeSuccess, Message: "ok", Result: result}
}

// Fail 非预期错误（存储、触发服务不可用等）
func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: resultTypeError, Message: message}
}

// Warn 可预期的业务拒绝（状态不允许、未授权、设置无效）
func Warn(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: resultTypeWarning, Message: message}
}
