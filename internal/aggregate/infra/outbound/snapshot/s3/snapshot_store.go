package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	aggDomain "github.com/davicafu/eventlab/internal/aggregate/domain"
)

// Config agrupa los parámetros de conexión con S3 (o un endpoint compatible).
type Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	Prefix    string // prefijo de las keys, ej. "snapshots"
}

// SnapshotStoreS3 guarda cada snapshot como un objeto JSON en S3,
// en la key <prefix>/<aggregate_type>/<aggregate_id>.json.
type SnapshotStoreS3 struct {
	cfg Config
	s3  *s3.Client
}

func NewSnapshotStoreS3(ctx context.Context, cfg Config) (*SnapshotStoreS3, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "snapshots"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: cfg.Region}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &SnapshotStoreS3{cfg: cfg, s3: client}, nil
}

func (s *SnapshotStoreS3) objectKey(aggregateType, aggregateID string) string {
	return fmt.Sprintf("%s/%s/%s.json", s.cfg.Prefix, aggregateType, aggregateID)
}

func (s *SnapshotStoreS3) Save(ctx context.Context, snap aggDomain.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return &aggDomain.SnapshotError{Err: err}
	}

	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.objectKey(snap.AggregateType, snap.AggregateID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return &aggDomain.SnapshotError{Err: err}
	}
	return nil
}

func (s *SnapshotStoreS3) Load(ctx context.Context, aggregateType, aggregateID string) (aggDomain.Snapshot, error) {
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(aggregateType, aggregateID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return aggDomain.Snapshot{}, aggDomain.ErrSnapshotNotFound
		}
		return aggDomain.Snapshot{}, &aggDomain.SnapshotError{Err: err}
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return aggDomain.Snapshot{}, &aggDomain.SnapshotError{Err: err}
	}

	var snap aggDomain.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return aggDomain.Snapshot{}, &aggDomain.SnapshotError{Err: err}
	}
	return snap, nil
}

func (s *SnapshotStoreS3) Delete(ctx context.Context, aggregateType, aggregateID string) error {
	_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(aggregateType, aggregateID)),
	})
	if err != nil {
		return &aggDomain.SnapshotError{Err: err}
	}
	return nil
}

// Verificación en tiempo de compilación.
var _ aggDomain.SnapshotStore = (*SnapshotStoreS3)(nil)
