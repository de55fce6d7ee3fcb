package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const UploadURLExpiry = time.Hour

var allowedMediaTypes = map[string]struct{}{
	"jpg": {}, "png": {}, "mp4": {}, "mov": {},
}

type StorageService interface {
	UploadURL(ctx context.Context, ext string) (*transfer.UploadURL, error)
	Upload(ctx context.Context, file []byte) (string, error)
	PublicURL(key string) string
}

type storageService struct {
	cfg config.S3
	// mediaURL is the public host objects are served from.
	mediaURL string

	once    sync.Once
	client  *s3.Client
	initErr error
}

func NewStorageService(cfg *config.Config) StorageService {
	return &storageService{cfg: cfg.S3, mediaURL: cfg.MediaPublicURL}
}

// s3Client builds the client on first use and reuses it afterwards.
func (s *storageService) s3Client(ctx context.Context) (*s3.Client, error) {
	s.once.Do(func() {
		if s.cfg.BucketName == "" {
			s.initErr = models.NewInternalServerError("object store is not configured", nil)
			return
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.cfg.AccessKey, s.cfg.SecretKey, "")),
			awsconfig.WithRegion(s.cfg.Region),
		)
		if err != nil {
			slog.Info(err.Error())
			s.initErr = models.NewInternalServerError("failed to load object store config", err)
			return
		}
		s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if s.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(s.cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
	})
	return s.client, s.initErr
}

// UploadURL presigns a PUT for a fresh object key so browsers can upload
// directly to the bucket.
func (s *storageService) UploadURL(ctx context.Context, ext string) (*transfer.UploadURL, error) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "jpeg"
	}
	if _, ok := allowedMediaTypes[ext]; !ok && ext != "jpeg" {
		return nil, models.NewValidationError(fmt.Sprintf("file type %s is not allowed", ext))
	}

	client, err := s.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	key, err := utils.GenerateObjectKey("." + ext)
	if err != nil {
		slog.Info(err.Error())
		return nil, models.NewInternalServerError("failed to generate file name", err)
	}

	presigned, err := s3.NewPresignClient(client).PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(UploadURLExpiry))
	if err != nil {
		slog.Info(err.Error())
		return nil, models.NewInternalServerError("failed to presign upload", err)
	}

	return &transfer.UploadURL{
		URL:       presigned.URL,
		FileName:  key,
		PublicURL: s.PublicURL(key),
	}, nil
}

// Upload stores file under a random key after sniffing its type and returns
// the key.
func (s *storageService) Upload(ctx context.Context, file []byte) (string, error) {
	if len(file) == 0 {
		return "", models.NewValidationError("file is empty")
	}

	kind, err := filetype.Match(file)
	if err != nil || kind == types.Unknown {
		return "", models.NewValidationError("unsupported file type")
	}
	if _, ok := allowedMediaTypes[kind.Extension]; !ok {
		return "", models.NewValidationError(fmt.Sprintf("file type %s is not allowed", kind.Extension))
	}

	client, err := s.s3Client(ctx)
	if err != nil {
		return "", err
	}

	key, err := utils.GenerateObjectKey("." + kind.Extension)
	if err != nil {
		slog.Info(err.Error())
		return "", models.NewInternalServerError("failed to generate file name", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(kind.MIME.Value),
	})
	if err != nil {
		slog.Info(err.Error())
		return "", models.NewInternalServerError("failed to upload file", err)
	}

	log.Printf("Uploaded %s (%s, %d bytes)", key, kind.MIME.Value, len(file))
	return key, nil
}

func (s *storageService) PublicURL(key string) string {
	return mediaURL(s.mediaURL, key)
}
