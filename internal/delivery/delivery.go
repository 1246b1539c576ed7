// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package delivery hands off a finished master zip to wherever the
// customer downloads it from: either a filesystem path under a
// delivery root or a presigned S3 URL, behind a single interface plus
// a kind-dispatched constructor.
package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nerc-arf/scops/internal/scopsconfig"
)

// Backend delivers a local file and reports the reference the
// customer should be given (a path or URL), the "delivered zip"
// mentioned in the completion email.
type Backend interface {
	Deliver(ctx context.Context, localPath string) (string, error)
}

// New selects an S3-backed or filesystem-backed delivery backend
// based on whether scopsconfig.Keys.S3Bucket is set.
func New(cfg scopsconfig.ProgramConfig) (Backend, error) {
	if cfg.S3Bucket != "" {
		return newS3Backend(cfg)
	}
	return &FsBackend{Root: cfg.DeliveryRoot}, nil
}

// FsBackend copies the delivered file into a flat delivery root,
// named after the source file, and returns the resulting path.
type FsBackend struct {
	Root string
}

func (b *FsBackend) Deliver(ctx context.Context, localPath string) (string, error) {
	if err := os.MkdirAll(b.Root, 0o755); err != nil {
		return "", fmt.Errorf("delivery: creating %s: %w", b.Root, err)
	}

	dest := filepath.Join(b.Root, filepath.Base(localPath))
	if err := copyFile(localPath, dest); err != nil {
		return "", fmt.Errorf("delivery: copying %s to %s: %w", localPath, dest, err)
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// S3Backend uploads the delivered file to a bucket and returns a
// presigned GET URL.
type S3Backend struct {
	client  *s3.Client
	bucket  string
	expires time.Duration
}

func newS3Backend(cfg scopsconfig.ProgramConfig) (*S3Backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("delivery: loading aws config: %w", err)
	}

	return &S3Backend{
		client:  s3.NewFromConfig(awsCfg),
		bucket:  cfg.S3Bucket,
		expires: 30 * 24 * time.Hour,
	}, nil
}

func (b *S3Backend) Deliver(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("delivery: opening %s: %w", localPath, err)
	}
	defer f.Close()

	key := filepath.Base(localPath)
	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return "", fmt.Errorf("delivery: uploading %s to s3://%s/%s: %w", localPath, b.bucket, key, err)
	}

	presigner := s3.NewPresignClient(b.client, s3.WithPresignExpires(b.expires))
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("delivery: presigning s3://%s/%s: %w", b.bucket, key, err)
	}

	return req.URL, nil
}
