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

package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/blnkfinance/storesync/config"
	"github.com/blnkfinance/storesync/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureUploader struct {
	input *s3manager.UploadInput
	body  []byte
	err   error
}

func (c *captureUploader) UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	c.input = input
	if c.err != nil {
		return nil, c.err
	}
	b, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	c.body = b
	return &s3manager.UploadOutput{Location: "s3://bucket/" + *input.Key}, nil
}

func sampleLogs() []model.SyncLog {
	started := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	return []model.SyncLog{
		{LogID: "log_1", AccountID: "acct_1", Scope: "entity:products", Status: model.SyncStatusSuccess, ItemsProcessed: 40, StartedAt: started},
		{LogID: "log_2", AccountID: "acct_1", Scope: model.LogScopeStock, Status: model.SyncStatusFailed, ItemsFailed: 1, StartedAt: started},
	}
}

func TestArchive_UploadsGzippedJSONL(t *testing.T) {
	up := &captureUploader{}
	a := NewArchiver(up, "storesync-archive")
	cutoff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	key, err := a.Archive(context.Background(), "acct_1", cutoff, sampleLogs())
	require.NoError(t, err)
	assert.Equal(t, "sync-logs/acct_1/2024-03-01/1709251200-log_1.jsonl.gz", key)
	assert.Equal(t, "storesync-archive", *up.input.Bucket)
	assert.Equal(t, "gzip", *up.input.ContentEncoding)

	gz, err := gzip.NewReader(bytes.NewReader(up.body))
	require.NoError(t, err)
	scanner := bufio.NewScanner(gz)
	var ids []string
	for scanner.Scan() {
		var l model.SyncLog
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &l))
		ids = append(ids, l.LogID)
	}
	assert.Equal(t, []string{"log_1", "log_2"}, ids)
}

func TestArchive_EmptyBatchSkipsUpload(t *testing.T) {
	up := &captureUploader{}
	key, err := NewArchiver(up, "b").Archive(context.Background(), "acct_1", time.Now(), nil)
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Nil(t, up.input)
}

func TestArchive_UploadError(t *testing.T) {
	up := &captureUploader{err: errors.New("access denied")}
	_, err := NewArchiver(up, "b").Archive(context.Background(), "acct_1", time.Now(), sampleLogs())
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3Archiver_RequiresBucket(t *testing.T) {
	_, err := NewS3Archiver(config.ArchiveConfig{})
	assert.Error(t, err)

	a, err := NewS3Archiver(config.ArchiveConfig{S3BucketName: "b", S3Region: "us-east-1", S3Endpoint: "http://localhost:9000", AwsAccessKeyId: "k", AwsSecretAccessKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "b", a.bucket)
}
