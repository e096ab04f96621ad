package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"tenant-iam/backend/internal/loginattempt/domain"
	sessiondomain "tenant-iam/backend/internal/session/domain"
)

// RedisRepository stores login attempts in Redis. Each attempt is a JSON value;
// sorted sets scored by creation time (unix ms) index attempts per tenant by
// email, IP address, and user, with separate sets for failed attempts.
type RedisRepository struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisRepository returns a Redis-backed login attempt repository. Keys are
// namespaced under prefix ("loginattempt" when empty).
func NewRedisRepository(rdb *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "loginattempt"
	}
	return &RedisRepository{rdb: rdb, prefix: prefix}
}

func (r *RedisRepository) tenantsKey() string { return r.prefix + ":tenants" }

// key joins the prefix and segments with ':'. Segments are query-escaped so a ':' inside a
// tenant id, email or IPv6 address cannot make two different keys collide.
func (r *RedisRepository) key(segments ...string) string {
	var b strings.Builder
	b.WriteString(r.prefix)
	for _, s := range segments {
		b.WriteByte(':')
		b.WriteString(url.QueryEscape(s))
	}
	return b.String()
}

func (r *RedisRepository) attemptKey(tenantID, id string) string {
	return r.key(tenantID, "attempt", id)
}
func (r *RedisRepository) allKey(tenantID string) string { return r.key(tenantID, "all") }
func (r *RedisRepository) emailKey(tenantID, email string) string {
	return r.key(tenantID, "email", email)
}
func (r *RedisRepository) ipKey(tenantID, ip string) string { return r.key(tenantID, "ip", ip) }
func (r *RedisRepository) userKey(tenantID, userID string) string {
	return r.key(tenantID, "user", userID)
}
func (r *RedisRepository) failedEmailKey(tenantID, email string) string {
	return r.key(tenantID, "failed", "email", email)
}
func (r *RedisRepository) failedIPKey(tenantID, ip string) string {
	return r.key(tenantID, "failed", "ip", ip)
}

type attemptRecord struct {
	ID            string                      `json:"id"`
	TenantID      string                      `json:"tenant_id"`
	UserID        string                      `json:"user_id,omitempty"`
	Email         string                      `json:"email"`
	Status        string                      `json:"status"`
	Type          string                      `json:"type"`
	IPAddress     string                      `json:"ip_address,omitempty"`
	UserAgent     string                      `json:"user_agent,omitempty"`
	DeviceType    string                      `json:"device_type,omitempty"`
	Browser       string                      `json:"browser,omitempty"`
	OS            string                      `json:"os,omitempty"`
	Location      *sessiondomain.LocationInfo `json:"location,omitempty"`
	FailureReason string                      `json:"failure_reason,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
}

func toRecord(a *domain.LoginAttempt) attemptRecord {
	d := a.Device()
	return attemptRecord{
		ID: a.ID(), TenantID: a.TenantID(), UserID: a.UserID(), Email: a.Email(),
		Status: string(a.Status()), Type: string(a.Type()),
		IPAddress: d.IPAddress, UserAgent: d.UserAgent, DeviceType: d.DeviceType, Browser: d.Browser, OS: d.OS,
		Location: a.Location(), FailureReason: a.FailureReason(), CreatedAt: a.CreatedAt(),
	}
}

func (rec attemptRecord) toDomain() *domain.LoginAttempt {
	return domain.Restore(rec.ID, domain.NewAttemptParams{
		UserID:   rec.UserID,
		TenantID: rec.TenantID,
		Email:    rec.Email,
		Status:   domain.Status(rec.Status),
		Type:     domain.Type(rec.Type),
		Device: sessiondomain.DeviceInfo{
			UserAgent: rec.UserAgent, IPAddress: rec.IPAddress,
			DeviceType: rec.DeviceType, Browser: rec.Browser, OS: rec.OS,
		},
		Location:      rec.Location,
		FailureReason: rec.FailureReason,
		CreatedAt:     rec.CreatedAt,
	})
}

func score(t time.Time) float64 { return float64(t.UnixMilli()) }

func minScore(since time.Time) string { return strconv.FormatInt(since.UnixMilli(), 10) }

// indexKeys returns every sorted set the attempt is a member of.
func (r *RedisRepository) indexKeys(rec attemptRecord) []string {
	keys := []string{r.allKey(rec.TenantID), r.emailKey(rec.TenantID, rec.Email)}
	if rec.IPAddress != "" {
		keys = append(keys, r.ipKey(rec.TenantID, rec.IPAddress))
	}
	if rec.UserID != "" {
		keys = append(keys, r.userKey(rec.TenantID, rec.UserID))
	}
	if rec.Status == string(domain.StatusFailed) {
		keys = append(keys, r.failedEmailKey(rec.TenantID, rec.Email))
		if rec.IPAddress != "" {
			keys = append(keys, r.failedIPKey(rec.TenantID, rec.IPAddress))
		}
	}
	return keys
}

func (r *RedisRepository) Save(ctx context.Context, a *domain.LoginAttempt) error {
	rec := toRecord(a)
	data, err := json.Marshal(rec)
	if err != nil {
		return oops.Code("LOGIN_ATTEMPT_SAVE_FAILED").With("attempt_id", rec.ID).Wrap(err)
	}
	z := redis.Z{Score: score(rec.CreatedAt), Member: rec.ID}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.attemptKey(rec.TenantID, rec.ID), data, 0)
	for _, k := range r.indexKeys(rec) {
		pipe.ZAdd(ctx, k, z)
	}
	pipe.SAdd(ctx, r.tenantsKey(), rec.TenantID)
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("LOGIN_ATTEMPT_SAVE_FAILED").
			With("attempt_id", rec.ID).
			With("tenant_id", rec.TenantID).
			Wrap(err)
	}
	return nil
}

func (r *RedisRepository) GetRecentFailedAttempts(ctx context.Context, tenantID, email string, since time.Time) ([]*domain.LoginAttempt, error) {
	return r.rangeSince(ctx, tenantID, r.failedEmailKey(tenantID, email), since)
}

func (r *RedisRepository) GetRecentFailedAttemptsByIP(ctx context.Context, tenantID, ip string, since time.Time) ([]*domain.LoginAttempt, error) {
	return r.rangeSince(ctx, tenantID, r.failedIPKey(tenantID, ip), since)
}

func (r *RedisRepository) CountFailedAttemptsByEmail(ctx context.Context, tenantID, email string, since time.Time) (int, error) {
	return r.countSince(ctx, r.failedEmailKey(tenantID, email), since)
}

func (r *RedisRepository) CountByIPAddress(ctx context.Context, tenantID, ip string, since time.Time) (int, error) {
	return r.countSince(ctx, r.ipKey(tenantID, ip), since)
}

func (r *RedisRepository) FindByEmail(ctx context.Context, tenantID, email string, limit int) ([]*domain.LoginAttempt, error) {
	return r.newest(ctx, tenantID, r.emailKey(tenantID, email), limit)
}

func (r *RedisRepository) FindByUserID(ctx context.Context, tenantID, userID string, limit int) ([]*domain.LoginAttempt, error) {
	return r.newest(ctx, tenantID, r.userKey(tenantID, userID), limit)
}

func (r *RedisRepository) DeleteOldAttempts(ctx context.Context, tenantID string, before time.Time) (int, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, r.allKey(tenantID), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPT_DELETE_FAILED").With("operation", "delete old").Wrap(err)
	}
	return r.deleteIDs(ctx, tenantID, ids)
}

func (r *RedisRepository) DeleteByUserID(ctx context.Context, tenantID, userID string) (int, error) {
	ids, err := r.rdb.ZRange(ctx, r.userKey(tenantID, userID), 0, -1).Result()
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPT_DELETE_FAILED").With("operation", "delete by user").Wrap(err)
	}
	return r.deleteIDs(ctx, tenantID, ids)
}

func (r *RedisRepository) DeleteByEmail(ctx context.Context, tenantID, email string) (int, error) {
	ids, err := r.rdb.ZRange(ctx, r.emailKey(tenantID, email), 0, -1).Result()
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPT_DELETE_FAILED").With("operation", "delete by email").Wrap(err)
	}
	return r.deleteIDs(ctx, tenantID, ids)
}

func (r *RedisRepository) ListTenantIDs(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, r.tenantsKey()).Result()
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").With("operation", "list tenants").Wrap(err)
	}
	return ids, nil
}

func (r *RedisRepository) rangeSince(ctx context.Context, tenantID, key string, since time.Time) ([]*domain.LoginAttempt, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: minScore(since), Max: "+inf"}).Result()
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").With("key", key).Wrap(err)
	}
	return r.load(ctx, tenantID, ids)
}

func (r *RedisRepository) countSince(ctx context.Context, key string, since time.Time) (int, error) {
	n, err := r.rdb.ZCount(ctx, key, minScore(since), "+inf").Result()
	if err != nil {
		return 0, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").With("key", key).Wrap(err)
	}
	return int(n), nil
}

func (r *RedisRepository) newest(ctx context.Context, tenantID, key string, limit int) ([]*domain.LoginAttempt, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.rdb.ZRevRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").With("key", key).Wrap(err)
	}
	return r.load(ctx, tenantID, ids)
}

// load fetches attempts in id order. Ids whose payload has vanished are skipped.
func (r *RedisRepository) load(ctx context.Context, tenantID string, ids []string) ([]*domain.LoginAttempt, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.attemptKey(tenantID, id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, oops.Code("LOGIN_ATTEMPT_QUERY_FAILED").With("operation", "load").Wrap(err)
	}
	out := make([]*domain.LoginAttempt, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec attemptRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, oops.Code("LOGIN_ATTEMPT_DECODE_FAILED").Wrap(err)
		}
		out = append(out, rec.toDomain())
	}
	return out, nil
}

func (r *RedisRepository) deleteIDs(ctx context.Context, tenantID string, ids []string) (int, error) {
	deleted := 0
	for _, id := range ids {
		key := r.attemptKey(tenantID, id)
		data, err := r.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// Payload already gone; drop the dangling index entry.
			if err := r.rdb.ZRem(ctx, r.allKey(tenantID), id).Err(); err != nil {
				return deleted, oops.Code("LOGIN_ATTEMPT_DELETE_FAILED").With("attempt_id", id).Wrap(err)
			}
			continue
		}
		if err != nil {
			return deleted, oops.Code("LOGIN_ATTEMPT_DELETE_FAILED").With("attempt_id", id).Wrap(err)
		}
		var rec attemptRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return deleted, oops.Code("LOGIN_ATTEMPT_DECODE_FAILED").With("attempt_id", id).Wrap(err)
		}
		pipe := r.rdb.TxPipeline()
		pipe.Del(ctx, key)
		for _, k := range r.indexKeys(rec) {
			pipe.ZRem(ctx, k, id)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return deleted, oops.Code("LOGIN_ATTEMPT_DELETE_FAILED").With("attempt_id", id).Wrap(err)
		}
		deleted++
	}
	return deleted, nil
}
