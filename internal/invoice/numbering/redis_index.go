package numbering

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
)

// redisIndex stores each org's order as a sorted set scored by sequence,
// with creation times in a companion hash.
type redisIndex struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisIndex(client redis.UniversalClient, prefix string, ttl time.Duration) Index {
	if prefix == "" {
		prefix = "billbook"
	}
	return &redisIndex{client: client, prefix: prefix, ttl: ttl}
}

func (r *redisIndex) Backend() string { return "redis" }

func (r *redisIndex) orderKey(orgID snowflake.ID) string {
	return fmt.Sprintf("%s:invoice_order:%d", r.prefix, orgID)
}

func (r *redisIndex) createdKey(orgID snowflake.ID) string {
	return fmt.Sprintf("%s:invoice_created:%d", r.prefix, orgID)
}

func (r *redisIndex) Lookup(ctx context.Context, orgID, invoiceID snowflake.ID) (Entry, bool, error) {
	member := invoiceID.String()

	var score *redis.FloatCmd
	var created *redis.StringCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		score = pipe.ZScore(ctx, r.orderKey(orgID), member)
		created = pipe.HGet(ctx, r.createdKey(orgID), member)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	nanos, err := strconv.ParseInt(created.Val(), 10, 64)
	if err != nil {
		return Entry{}, false, nil
	}
	return Entry{
		InvoiceID: invoiceID,
		CreatedAt: time.Unix(0, nanos).UTC(),
		Sequence:  int64(score.Val()),
	}, true, nil
}

// Append only extends an ordering that is already loaded.
func (r *redisIndex) Append(ctx context.Context, orgID snowflake.ID, entry Entry) error {
	exists, err := r.client.Exists(ctx, r.orderKey(orgID)).Result()
	if err != nil || exists == 0 {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, r.orderKey(orgID), redis.Z{Score: float64(entry.Sequence), Member: entry.InvoiceID.String()})
		pipe.HSet(ctx, r.createdKey(orgID), entry.InvoiceID.String(), entry.CreatedAt.UnixNano())
		return nil
	})
	return err
}

func (r *redisIndex) Remove(ctx context.Context, orgID, invoiceID snowflake.ID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, r.orderKey(orgID), invoiceID.String())
		pipe.HDel(ctx, r.createdKey(orgID), invoiceID.String())
		return nil
	})
	return err
}

func (r *redisIndex) Replace(ctx context.Context, orgID snowflake.ID, entries []Entry) error {
	orderKey, createdKey := r.orderKey(orgID), r.createdKey(orgID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, orderKey, createdKey)
		if len(entries) == 0 {
			return nil
		}
		members := make([]redis.Z, 0, len(entries))
		created := make(map[string]any, len(entries))
		for _, entry := range entries {
			id := entry.InvoiceID.String()
			members = append(members, redis.Z{Score: float64(entry.Sequence), Member: id})
			created[id] = entry.CreatedAt.UnixNano()
		}
		pipe.ZAdd(ctx, orderKey, members...)
		pipe.HSet(ctx, createdKey, created)
		if r.ttl > 0 {
			pipe.Expire(ctx, orderKey, r.ttl)
			pipe.Expire(ctx, createdKey, r.ttl)
		}
		return nil
	})
	return err
}
