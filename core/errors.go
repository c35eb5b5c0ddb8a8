package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 使用场景：
//   - registry 错误：NOT_FOUND（没有可用的模型目录）
//   - feature/model 错误：INVALID_INPUT（产物格式错误、输入列缺失）
//   - predict 错误：包装任意阶段的失败，Stage 记录出错阶段
//   - store/docstore 错误：NOT_FOUND, UNAVAILABLE
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "INVALID_INPUT"）
	Message string // 错误消息
	Module  string // 模块名称（如 "registry", "predict"）
	Stage   string // 出错阶段（可选，如 "resolve", "transform"）
	Err     error  // 原始错误（可选）
}

func (e *DomainError) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = e.Module + "[" + e.Stage + "]: " + msg
	}
	if e.Err != nil {
		if msg == "" {
			return e.Err.Error()
		}
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 返回原始错误，支持 errors.Is / errors.As。
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is 按 Module + Code 比较，便于 errors.Is(err, ErrModelNotFound)。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Module == e.Module && t.Code == e.Code && t.Stage == "" && t.Err == nil
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中最外层的 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapError 用领域错误包装 err，保留原始错误链。
func WrapError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
)

// 模块名称常量
const (
	ModuleStore    = "store"
	ModuleRegistry = "registry"
	ModuleDataset  = "dataset"
	ModuleFeature  = "feature"
	ModuleModel    = "model"
	ModulePredict  = "predict"
	ModuleDocStore = "docstore"
)

// ErrModelNotFound 表示模型仓库中没有可用的模型版本
var ErrModelNotFound = NewDomainError(ModuleRegistry, ErrorCodeNotFound, "registry: model is not available")

// code 沿错误链查找第一个 DomainError 的错误代码
func code(err error) string {
	for err != nil {
		if d, ok := err.(*DomainError); ok {
			if d.Code != ErrorCodeInternalError {
				return d.Code
			}
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// IsNotFound 检查错误链中是否存在 NOT_FOUND
func IsNotFound(err error) bool {
	return code(err) == ErrorCodeNotFound
}

// IsNotSupported 检查错误链中是否存在 NOT_SUPPORTED
func IsNotSupported(err error) bool {
	return code(err) == ErrorCodeNotSupported
}

// IsUnavailable 检查错误链中是否存在 UNAVAILABLE
func IsUnavailable(err error) bool {
	return code(err) == ErrorCodeUnavailable
}

// IsInvalidInput 检查错误链中是否存在 INVALID_INPUT
func IsInvalidInput(err error) bool {
	return code(err) == ErrorCodeInvalidInput
}
