package global

import "strings"

// 各中间件上的 key / subject 约定

// RouteKey redis 中用户 -> 所在节点的路由键：pm:route:<user>
func RouteKey(userID string) string {
	return "pm:route:" + userID
}

// NodeSubject 节点投递 subject：<prefix>.<node>
func NodeSubject(prefix, nodeID string) string {
	return strings.TrimSuffix(prefix, ".") + "." + sanitizeToken(nodeID)
}

// PushKey 推送请求的 Kafka key，按接收人分区保证同一用户有序
func PushKey(userID string) string {
	return "user:" + userID
}

// nats subject token 不能含空白与 '.' '*' '>'
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
