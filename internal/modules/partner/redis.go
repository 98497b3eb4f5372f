// README: Partner store backed by Redis GEO for presence and Postgres for the registry.
package partner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sparkle/internal/types"
)

const (
	partnerGeoKey = "partner:geo"
	seenKeyPrefix = "partner:%s:seen"
)

type RedisStore struct {
	redis *redis.Client
	db    *pgxpool.Pool
}

func NewRedisStore(rdb *redis.Client, db *pgxpool.Pool) *RedisStore {
	return &RedisStore{redis: rdb, db: db}
}

func (s *RedisStore) Create(ctx context.Context, p *Partner) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO partners (id, name, status, rating, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		string(p.ID), p.Name, string(p.Status), p.Rating, p.CreatedAt,
	)
	return err
}

func (s *RedisStore) Get(ctx context.Context, id types.ID) (*Partner, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, name, status, rating, created_at FROM partners WHERE id = $1`,
		string(id),
	)
	var p Partner
	err := row.Scan(&p.ID, &p.Name, &p.Status, &p.Rating, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RedisStore) SetStatus(ctx context.Context, id types.ID, status Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE partners SET status = $1 WHERE id = $2`,
		string(status), string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

type seenEntry struct {
	Lat float64   `json:"lat"`
	Lng float64   `json:"lng"`
	At  time.Time `json:"at"`
}

func (s *RedisStore) SetLocation(ctx context.Context, id types.ID, pos types.Point, at time.Time) error {
	body, err := json.Marshal(seenEntry{Lat: pos.Lat, Lng: pos.Lng, At: at})
	if err != nil {
		return err
	}
	pipe := s.redis.Pipeline()
	pipe.GeoAdd(ctx, partnerGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	})
	pipe.Set(ctx, seenKey(id), body, presenceTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) LastLocation(ctx context.Context, id types.ID) (types.Point, time.Time, error) {
	val, err := s.redis.Get(ctx, seenKey(id)).Result()
	if err == redis.Nil {
		return types.Point{}, time.Time{}, ErrNoLocation
	}
	if err != nil {
		return types.Point{}, time.Time{}, err
	}
	var e seenEntry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return types.Point{}, time.Time{}, err
	}
	return types.Point{Lat: e.Lat, Lng: e.Lng}, e.At, nil
}

func (s *RedisStore) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error) {
	q := &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}
	if limit > 0 {
		q.Count = limit
	}
	results, err := s.redis.GeoSearch(ctx, partnerGeoKey, q).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

func (s *RedisStore) RemovePresence(ctx context.Context, id types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, partnerGeoKey, string(id))
	pipe.Del(ctx, seenKey(id))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO partner_location_snapshots (partner_id, lat, lng, recorded_at)
        VALUES ($1, $2, $3, $4)`,
		string(snap.PartnerID), snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
	)
	return err
}

func seenKey(id types.ID) string {
	return fmt.Sprintf(seenKeyPrefix, string(id))
}
