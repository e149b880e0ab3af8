package global

// Msg REST 统一响应包
type Msg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Success(data any) *Msg {
	return &Msg{
		Code: 0,
		Msg:  "ok",
		Data: data,
	}
}

func Failure(code int, msg string) *Msg {
	return &Msg{
		Code: code,
		Msg:  msg,
	}
}
