package storage

import (
	"context"
	"errors"
	"time"

	"PMobility/global"

	"github.com/redis/go-redis/v9"
)

// RouteTable 记录 user -> 网关节点，供跨节点投递寻址
// key: pm:route:<userId>  value: nodeId  TTL 由 Refresh 续期
type RouteTable struct {
	rdb    redis.Cmdable
	nodeID string
	ttl    time.Duration
}

const defaultRouteTTL = 2 * time.Minute

// 只有值仍是本节点时才删除，避免误删已迁移到别的节点的路由
// KEYS[1] = route key  ARGV[1] = nodeId
const luaReleaseIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseScript = redis.NewScript(luaReleaseIfOwner)

func NewRouteTable(rdb redis.Cmdable, nodeID string, ttl time.Duration) *RouteTable {
	if ttl <= 0 {
		ttl = defaultRouteTTL
	}
	return &RouteTable{rdb: rdb, nodeID: nodeID, ttl: ttl}
}

func (t *RouteTable) NodeID() string     { return t.nodeID }
func (t *RouteTable) TTL() time.Duration { return t.ttl }

// Claim 把用户路由指向本节点（后连接者覆盖）
func (t *RouteTable) Claim(ctx context.Context, userID string) error {
	return t.rdb.Set(ctx, global.RouteKey(userID), t.nodeID, t.ttl).Err()
}

// Refresh 批量续期本节点持有的路由
func (t *RouteTable) Refresh(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := t.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, u := range userIDs {
			p.Set(ctx, global.RouteKey(u), t.nodeID, t.ttl)
		}
		return nil
	})
	return err
}

// Release 仅当路由仍属于本节点时删除
func (t *RouteTable) Release(ctx context.Context, userID string) (bool, error) {
	n, err := releaseScript.Run(ctx, t.rdb, []string{global.RouteKey(userID)}, t.nodeID).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Lookup 返回用户所在节点；不存在时 ok=false
func (t *RouteTable) Lookup(ctx context.Context, userID string) (node string, ok bool, err error) {
	v, err := t.rdb.Get(ctx, global.RouteKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
