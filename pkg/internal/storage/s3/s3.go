// Package s3 处理对象存储操作，SourceMap 归档写入这里.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yeisme/sourcelens/pkg/configs"
	nlog "github.com/yeisme/sourcelens/pkg/log"
)

// Client 包装 MinIO 客户端.
type Client struct {
	*minio.Client
	bucket string
}

// New 初始化 MinIO 客户端，若 bucket 不存在则尝试创建.
func New(ctx context.Context, cfg *configs.S3Config) (*Client, error) {
	endpoint, secure := cfg.HostAndSecure()

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	cli.SetAppInfo(configs.AppName, configs.AppVersion)

	exists, err := cli.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.BucketName, err)
	}

	if !exists {
		if err := cli.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.BucketName, err)
		}

		nlog.Logger().Info().Str("bucket", cfg.BucketName).Msg("bucket created")
	}

	nlog.Logger().Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.BucketName).Msg("s3 connected")

	return &Client{Client: cli, bucket: cfg.BucketName}, nil
}

// Bucket 返回默认桶名.
func (c *Client) Bucket() string {
	return c.bucket
}

// PutBytes 写入对象，返回对象 ETag.
func (c *Client) PutBytes(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error) {
	info, err := c.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return info.ETag, nil
}

// GetBytes 读取对象全部内容.
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}

	return data, nil
}

// DeletePrefix 删除前缀下的全部对象，返回删除数量.
func (c *Client) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objectsCh := make(chan minio.ObjectInfo)
	listed := 0

	go func() {
		defer close(objectsCh)

		for obj := range c.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				continue
			}

			listed++
			objectsCh <- obj
		}
	}()

	failed := 0

	var firstErr error

	for rerr := range c.RemoveObjects(ctx, c.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		failed++

		if firstErr == nil {
			firstErr = fmt.Errorf("remove object %s: %w", rerr.ObjectName, rerr.Err)
		}
	}

	return listed - failed, firstErr
}

// HealthCheck 通过检查默认桶验证连接.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.BucketExists(ctx, c.bucket)
	return err
}

// Close 关闭 S3 客户端连接（无实际操作，接口兼容）.
func (c *Client) Close() error {
	return nil
}
