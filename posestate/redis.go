package posestate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func poseKey(cellID string) string {
	return fmt.Sprintf("pickpoint:cell:%s:pose", cellID)
}

func sessionKey(cellID string) string {
	return fmt.Sprintf("pickpoint:cell:%s:session", cellID)
}

const allCellsKey = "pickpoint:cells"

func (r *RedisStore) SetPose(ctx context.Context, pose *CellPose) error {
	data, err := json.Marshal(pose)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, poseKey(pose.CellID), data, 0)
	pipe.SAdd(ctx, allCellsKey, pose.CellID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetPose(ctx context.Context, cellID string) (*CellPose, error) {
	data, err := r.client.Get(ctx, poseKey(cellID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pose CellPose
	return &pose, json.Unmarshal(data, &pose)
}

func (r *RedisStore) SetSession(ctx context.Context, mirror *SessionMirror) error {
	data, err := json.Marshal(mirror)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, sessionKey(mirror.CellID), data, 0)
	pipe.SAdd(ctx, allCellsKey, mirror.CellID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetSession(ctx context.Context, cellID string) (*SessionMirror, error) {
	data, err := r.client.Get(ctx, sessionKey(cellID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var mirror SessionMirror
	return &mirror, json.Unmarshal(data, &mirror)
}

func (r *RedisStore) ListCellIDs(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, allCellsKey).Result()
}

func (r *RedisStore) RemoveCell(ctx context.Context, cellID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, poseKey(cellID), sessionKey(cellID))
	pipe.SRem(ctx, allCellsKey, cellID)
	_, err := pipe.Exec(ctx)
	return err
}
