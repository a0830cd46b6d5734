package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"pickup_reserve/internal/apperr"
	rediskey "pickup_reserve/pkg/redis"
	"pickup_reserve/pkg/resp"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// luaRateLimit：Redis 滑动窗口限流 Lua 脚本（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前时间戳，ARGV[2]=窗口开始时间戳，ARGV[3]=窗口秒数，
// ARGV[4]=本次请求成员，ARGV[5]=窗口内上限
// 返回：当前窗口内的请求数（超限返回 -1）
var luaRateLimit = rd.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

-- 删除窗口外的旧记录
redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`)

// maxPeekBytes 限制为取限流维度而预读的 body 大小。
const maxPeekBytes = 64 << 10

// RedisRateLimit Redis 分布式限流（Lua 原子操作）。
// 每个请求同时计入客户端 IP 与 body 里的身份（line_user_id > phone_number），任一超限即拒绝。
func RedisRateLimit(rdb rd.Scripter, limit int, window time.Duration) gin.HandlerFunc {
	windowSec := int64(window.Seconds())
	if windowSec < 1 {
		windowSec = 1
	}
	return func(c *gin.Context) {
		for _, key := range limitKeys(c) {
			now := time.Now()
			member := fmt.Sprintf("%d-%d", now.Unix(), now.UnixNano())
			res, err := luaRateLimit.Run(c.Request.Context(), rdb, []string{key},
				now.Unix(), now.Unix()-windowSec, windowSec, member, limit).Int()
			if err != nil {
				// Redis 出错时放行（降级策略）
				log.Printf("rate limit redis error key=%s: %v", key, err)
				continue
			}
			if res < 0 {
				resp.Abort(c, apperr.RateLimited())
				return
			}
		}
		c.Next()
	}
}

// LocalRateLimit 进程内令牌桶限流，未配置 Redis 时使用；多实例部署时各自计数。
func LocalRateLimit(limit int, window time.Duration) gin.HandlerFunc {
	l := newLocalLimiter(limit, window)
	return func(c *gin.Context) {
		now := time.Now()
		for _, key := range limitKeys(c) {
			if !l.allow(key, now) {
				resp.Abort(c, apperr.RateLimited())
				return
			}
		}
		c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type localLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	every     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
}

func newLocalLimiter(limit int, window time.Duration) *localLimiter {
	if limit < 1 {
		limit = 1
	}
	return &localLimiter{
		visitors: make(map[string]*visitor),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		idle:     window * 10,
	}
}

func (l *localLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 顺带清理长时间不活跃的 key
	if now.Sub(l.lastSweep) > l.idle {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// limitKeys 返回本次请求要计数的键：客户端 IP 总是计入，
// body 里的身份由客户端提供、可随意更换，只作为额外维度。
func limitKeys(c *gin.Context) []string {
	keys := []string{rediskey.RateLimitKey(rediskey.SubjectIP, c.ClientIP())}
	if subj, id := subject(c); subj != rediskey.SubjectIP {
		keys = append(keys, rediskey.RateLimitKey(subj, id))
	}
	return keys
}

// subject 从请求 body 中挑选限流维度（不消耗 body，可重复读）。
func subject(c *gin.Context) (string, string) {
	var req struct {
		LineUserID  string `json:"line_user_id"`
		PhoneNumber string `json:"phone_number"`
	}
	if body, err := peekBody(c); err == nil && len(body) > 0 {
		// 解析失败时按 IP 限流，交给后续 handler 报校验错误
		_ = json.Unmarshal(body, &req)
	}
	if id := strings.TrimSpace(req.LineUserID); id != "" {
		return rediskey.SubjectLine, id
	}
	if phone := strings.TrimSpace(req.PhoneNumber); phone != "" {
		return rediskey.SubjectPhone, phone
	}
	return rediskey.SubjectIP, c.ClientIP()
}

func peekBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	head, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPeekBytes))
	if err != nil {
		return nil, err
	}
	// 重置 body，让后续 handler 能继续读（超出部分原样拼回）
	c.Request.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), c.Request.Body), c.Request.Body}
	return head, nil
}
