package imagehost

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ibis-bot/ibis/internal/logger"
)

// MinioConfig holds connection settings for a self-hosted bucket backend.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PublicURL string
}

// Minio stores hosted images in an object bucket. The delete hash is the
// object key.
type Minio struct {
	mc     *minio.Client
	bucket string
	public string
	http   *http.Client
}

func NewMinio(cfg MinioConfig) (*Minio, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "ibis-images"
	}

	return &Minio{
		mc:     mc,
		bucket: bucket,
		public: cfg.PublicURL,
		http:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Init creates the image bucket if it doesn't exist.
func (m *Minio) Init(ctx context.Context) error {
	exists, err := m.mc.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}

	if !exists {
		if err := m.mc.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.bucket, err)
		}
		logger.Info("bucket created", "bucket", m.bucket)
	}

	return nil
}

func (m *Minio) Upload(ctx context.Context, sourceURL string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return Image{}, err
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("fetch source image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("%w: source returned %d", ErrUploadFailed, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := uuid.NewString() + path.Ext(sourceURL)
	_, err = m.mc.PutObject(ctx, m.bucket, key, resp.Body, resp.ContentLength, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Image{}, fmt.Errorf("upload %s/%s: %w", m.bucket, key, err)
	}

	logger.Debug("image rehosted", "bucket", m.bucket, "key", key)
	return Image{
		URL:        fmt.Sprintf("%s/%s/%s", m.public, m.bucket, key),
		DeleteHash: key,
	}, nil
}

func (m *Minio) Delete(ctx context.Context, deleteHash string) error {
	if deleteHash == "" {
		return nil
	}
	if err := m.mc.RemoveObject(ctx, m.bucket, deleteHash, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", m.bucket, deleteHash, err)
	}
	return nil
}

// Download fetches a hosted image back, for re-attaching it to a message.
func (m *Minio) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.mc.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", m.bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", m.bucket, key, err)
	}
	return data, nil
}

// Healthy checks if the backend is reachable.
func (m *Minio) Healthy(ctx context.Context) bool {
	_, err := m.mc.BucketExists(ctx, m.bucket)
	return err == nil
}
