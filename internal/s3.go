package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var newS3Client = func(ctx context.Context) (s3Putter, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

// output is a destination for formatted rows. Close commits what was
// written; Abort discards it.
type output interface {
	io.Writer
	Close() error
	Abort() error
}

// openOutput returns stdout for an empty destination or "-", an S3 object
// writer for s3:// URLs and a local file otherwise.
func openOutput(ctx context.Context, dest string, format string, logger *zap.Logger) (output, error) {
	if dest == "" || dest == "-" {
		return stdoutOutput{os.Stdout}, nil
	}

	if strings.HasPrefix(dest, "s3://") {
		u, err := url.Parse(dest)
		if err != nil {
			return nil, err
		}
		bucket := u.Host
		key := strings.TrimPrefix(u.Path, "/")
		if bucket == "" || key == "" {
			return nil, fmt.Errorf("expected s3://bucket/key, got %q", dest)
		}

		client, err := newS3Client(ctx)
		if err != nil {
			return nil, err
		}

		logger.Debug("writing output to s3", zap.String("bucket", bucket), zap.String("key", key))
		return &s3Writer{ctx: ctx, client: client, bucket: bucket, key: key, contentType: contentTypes[format]}, nil
	}

	logger.Debug("writing output to file", zap.String("path", dest))
	f, err := os.Create(dest)
	if err != nil {
		return nil, err
	}
	return fileOutput{f}, nil
}

var contentTypes = map[string]string{
	"text": "text/plain",
	"json": "application/json",
	"csv":  "text/csv",
}

// s3Writer buffers everything and uploads the object on Close.
type s3Writer struct {
	bytes.Buffer

	ctx         context.Context
	client      s3Putter
	bucket      string
	key         string
	contentType string
}

func (w *s3Writer) Close() error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.Bytes()),
	}
	if w.contentType != "" {
		input.ContentType = aws.String(w.contentType)
	}

	_, err := w.client.PutObject(w.ctx, input)
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", w.bucket, w.key, err)
	}
	return nil
}

// Abort drops the buffer without uploading anything.
func (w *s3Writer) Abort() error {
	w.Reset()
	return nil
}

type fileOutput struct {
	*os.File
}

// Abort removes the partially written file.
func (f fileOutput) Abort() error {
	f.File.Close()
	return os.Remove(f.Name())
}

// stdoutOutput cannot take back what was already printed.
type stdoutOutput struct {
	io.Writer
}

func (stdoutOutput) Close() error { return nil }

func (stdoutOutput) Abort() error { return nil }
