/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package archive ships terminal sync logs to S3 as gzipped JSON lines
// before they are pruned from Postgres.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/blnkfinance/storesync/config"
	"github.com/blnkfinance/storesync/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Uploader is satisfied by *s3manager.Uploader.
type Uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

type Archiver struct {
	uploader Uploader
	bucket   string
}

// NewS3Archiver builds an archiver from the archive configuration. Static
// keys are used when set; otherwise the default AWS credential chain applies.
func NewS3Archiver(cfg config.ArchiveConfig) (*Archiver, error) {
	if cfg.S3BucketName == "" {
		return nil, errors.New("archive bucket is not configured")
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.S3Region)}
	if cfg.AwsAccessKeyId != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AwsAccessKeyId, cfg.AwsSecretAccessKey, "")
	}
	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create aws session")
	}
	return NewArchiver(s3manager.NewUploader(sess), cfg.S3BucketName), nil
}

func NewArchiver(uploader Uploader, bucket string) *Archiver {
	return &Archiver{uploader: uploader, bucket: bucket}
}

// ObjectKey is where one account's batch archived at cutoff is stored. The
// first log id keeps successive batches of a single run apart.
func ObjectKey(accountID string, cutoff time.Time, firstLogID string) string {
	return fmt.Sprintf("sync-logs/%s/%s/%d-%s.jsonl.gz", accountID, cutoff.UTC().Format("2006-01-02"), cutoff.UTC().Unix(), firstLogID)
}

// Archive uploads logs for one account and returns the object key.
func (a *Archiver) Archive(ctx context.Context, accountID string, cutoff time.Time, logs []model.SyncLog) (string, error) {
	if len(logs) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	if err := WriteGzipJSONL(&buf, logs); err != nil {
		return "", err
	}

	key := ObjectKey(accountID, cutoff, logs[0].LogID)
	_, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "upload %s", key)
	}

	logrus.WithFields(logrus.Fields{
		"account_id": accountID,
		"key":        key,
		"count":      len(logs),
	}).Info("archived sync logs")
	return key, nil
}

// WriteGzipJSONL writes one JSON document per line, gzip compressed.
func WriteGzipJSONL(w io.Writer, logs []model.SyncLog) error {
	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	for i := range logs {
		if err := enc.Encode(&logs[i]); err != nil {
			_ = gz.Close()
			return errors.Wrap(err, "encode sync log")
		}
	}
	return gz.Close()
}
