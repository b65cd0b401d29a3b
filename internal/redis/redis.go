package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/notes-bin/aigallery/internal/model"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(addr, password string, db, poolSize int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	_, err := client.Ping(context.Background()).Result()
	if err != nil {
		return nil, err
	}
	slog.Info("Connected to Redis", "addr", addr)
	return &Client{client}, nil
}

// CreateUser stores a new user and reports false when the username is taken.
func (c *Client) CreateUser(ctx context.Context, user *model.User) (bool, error) {
	data, err := json.Marshal(storedUser{User: *user, Password: user.Password})
	if err != nil {
		return false, err
	}
	return c.SetNX(ctx, userKey(user.Username), data, 0).Result()
}

func (c *Client) GetUser(ctx context.Context, username string) (*model.User, error) {
	data, err := c.Get(ctx, userKey(username)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var su storedUser
	if err := json.Unmarshal(data, &su); err != nil {
		return nil, err
	}
	user := su.User
	user.Password = su.Password
	return &user, nil
}

// storedUser keeps the password hash, which model.User hides from JSON.
type storedUser struct {
	model.User
	Password string `json:"password"`
}

// RevokeToken blacklists a session id until its token would have expired.
func (c *Client) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.Set(ctx, fmt.Sprintf("revoked:%s", jti), 1, ttl).Err()
}

func (c *Client) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.Exists(ctx, fmt.Sprintf("revoked:%s", jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Client) SaveUploadStatus(ctx context.Context, st *model.UploadStatus, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.Set(ctx, uploadKey(st.ID), data, ttl).Err()
}

func (c *Client) GetUploadStatus(ctx context.Context, id string) (*model.UploadStatus, error) {
	data, err := c.Get(ctx, uploadKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st model.UploadStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func userKey(username string) string { return fmt.Sprintf("user:%s", username) }

func uploadKey(id string) string { return fmt.Sprintf("upload:%s", id) }
