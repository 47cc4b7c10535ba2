package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/omhash/internal/db"
)

// HGetAll returns all fields of a hash. A missing key yields an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	cmd := s.b().Hgetall().Key(key).Build()
	m, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Key: key, Err: err}
	}
	return m, nil
}

// HUpdate runs WATCH, HKEYS, then HDEL and HSET inside MULTI/EXEC on a
// dedicated connection. An aborted EXEC is retried; once retries are
// exhausted db.ErrConflict is returned.
func (s *Store) HUpdate(ctx context.Context, key string, u db.HashUpdate) error {
	for attempt := 0; attempt < s.retries; attempt++ {
		var committed bool
		err := s.client.Dedicated(func(c rueidis.DedicatedClient) error {
			var err error
			committed, err = s.tryUpdate(ctx, c, key, u)
			return err
		})
		if err != nil {
			return &db.Error{Op: db.OpHUpdate, Key: key, Err: err}
		}
		if committed {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return &db.Error{Op: db.OpHUpdate, Key: key, Err: err}
		}
	}
	return &db.Error{Op: db.OpHUpdate, Key: key, Err: db.ErrConflict}
}

func (s *Store) tryUpdate(ctx context.Context, c rueidis.DedicatedClient, key string, u db.HashUpdate) (bool, error) {
	if err := c.Do(ctx, c.B().Watch().Key(key).Build()).Error(); err != nil {
		return false, fmt.Errorf("watch: %w", err)
	}

	var deletes []string
	if u.Deletes != nil {
		existing, err := c.Do(ctx, c.B().Hkeys().Key(key).Build()).AsStrSlice()
		if err != nil {
			c.Do(ctx, c.B().Unwatch().Build())
			return false, fmt.Errorf("hkeys: %w", err)
		}
		deletes = u.Deletes(existing)
	}

	if len(deletes) == 0 && len(u.Set) == 0 {
		c.Do(ctx, c.B().Unwatch().Build())
		return true, nil
	}

	cmds := make(rueidis.Commands, 0, 4)
	cmds = append(cmds, c.B().Multi().Build())
	if len(deletes) > 0 {
		cmds = append(cmds, c.B().Hdel().Key(key).Field(deletes...).Build())
	}
	if len(u.Set) > 0 {
		cmds = append(cmds, buildHSet(c.B(), key, u.Set))
	}
	cmds = append(cmds, c.B().Exec().Build())

	results := c.DoMulti(ctx, cmds...)
	for _, res := range results[:len(results)-1] {
		if err := res.Error(); err != nil {
			return false, err
		}
	}
	if err := results[len(results)-1].Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Del deletes a key.
func (s *Store) Del(ctx context.Context, key string) error {
	cmd := s.b().Del().Key(key).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpDel, Key: key, Err: err}
	}
	return nil
}

// Exists checks if a key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	cmd := s.b().Exists().Key(key).Build()
	count, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Key: key, Err: err}
	}
	return count > 0, nil
}

// Scan iterates keys matching a pattern.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(100).Build()
		res, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		keys = append(keys, res.Elements...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

func buildHSet(b rueidis.Builder, key string, fields map[string]string) rueidis.Completed {
	cmd := b.Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	return cmd.Build()
}
