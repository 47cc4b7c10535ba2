package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/omhash/internal/db"
	"github.com/kailas-cloud/omhash/internal/query"
)

// Search runs a rendered query via FT.SEARCH.
func (s *Store) Search(ctx context.Context, index string, q *query.Query) (*db.SearchResult, error) {
	args, err := buildSearchArgs(index, q)
	if err != nil {
		return nil, err
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Key: index, Err: err}
	}

	scoreAlias := ""
	if q.KNN != nil {
		scoreAlias = q.KNN.ScoreAlias
	}
	return parseSearchResult(raw, scoreAlias)
}

func buildSearchArgs(index string, q *query.Query) ([]string, error) {
	if index == "" {
		return nil, errors.New("index name is required")
	}
	if q == nil {
		return nil, errors.New("query is required")
	}

	args := []string{index, q.String()}

	if len(q.Return) > 0 {
		fields := q.Return
		if q.KNN != nil {
			fields = append(append([]string(nil), fields...), q.KNN.ScoreAlias)
		}
		args = append(args, "RETURN", strconv.Itoa(len(fields)))
		args = append(args, fields...)
	}

	if q.SortBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		args = append(args, "SORTBY", q.SortBy, dir)
	}

	args = append(args, "LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit))

	if params := q.Params(); len(params) > 0 {
		args = append(args, "PARAMS", strconv.Itoa(len(params)))
		args = append(args, params...)
	}

	return append(args, "DIALECT", "2"), nil
}

// --- Result parsing ---

func parseSearchResult(raw []rueidis.RedisMessage, scoreAlias string) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/2)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		if scoreAlias != "" {
			if scoreStr, ok := entry.Fields[scoreAlias]; ok {
				if s, err := strconv.ParseFloat(scoreStr, 64); err == nil {
					entry.Score = s
				}
				delete(entry.Fields, scoreAlias)
			}
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
