package errs

import "net/http"

// 业务错误码
const (
	ServerInternalError = 500

	AuthenticationError  = 1001 // 凭证缺失/无效/过期/角色不符
	ArgsError            = 1002 // 输入参数非法
	RecordNotFoundError  = 1004 // 记录不存在
	NotAParticipantError = 1005 // 非会话成员（对外表现为 not found）

	StorageUnavailableError = 1500 // 存储不可用
)

var (
	ErrServerInternal     = NewCodeError(ServerInternalError, "server internal error")
	ErrAuthentication     = NewCodeError(AuthenticationError, "authentication failed")
	ErrInvalidInput       = NewCodeError(ArgsError, "invalid input")
	ErrNotFound           = NewCodeError(RecordNotFoundError, "not found")
	ErrNotAParticipant    = NewCodeError(NotAParticipantError, "not found")
	ErrStorageUnavailable = NewCodeError(StorageUnavailableError, "storage unavailable")
)

func init() {
	_ = DefaultCodeRelation.Add(RecordNotFoundError, NotAParticipantError)
}

// HTTPStatus 将错误映射为 HTTP 状态码；非 CodeError 一律 500
func HTTPStatus(err error) int {
	ce, ok := AsCode(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ce.Code {
	case AuthenticationError:
		return http.StatusUnauthorized
	case ArgsError:
		return http.StatusBadRequest
	case RecordNotFoundError, NotAParticipantError:
		return http.StatusNotFound
	case StorageUnavailableError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Storage 把底层存储错误归类为 StorageUnavailable；已是 CodeError 的原样返回
func Storage(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	if _, ok := AsCode(err); ok {
		return err
	}
	return ErrStorageUnavailable.WrapMsg(msg+": "+err.Error(), kv...)
}
