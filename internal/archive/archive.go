package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

// Archive stores execution results as JSON objects in a bucket, keyed by
// workflow and run: <prefix><workflowID>/<runID>.json
type Archive struct {
	bucket *blob.Bucket
	prefix string
}

var ErrNotFound = errors.New("archived result not found")

// Open opens a bucket URL such as mem://, file:///var/yodo or
// s3://bucket?region=eu-west-1
func Open(ctx context.Context, bucketURL, prefix string) (*Archive, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return &Archive{bucket: bucket, prefix: prefix}, nil
}

func (a *Archive) Put(
	ctx context.Context, workflowID, runID string, res *workflow.Result,
) (string, error) {
	key := a.keyFor(workflowID, runID)
	data, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	opts := &blob.WriterOptions{ContentType: "application/json"}
	if err := a.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return "", err
	}
	return key, nil
}

func (a *Archive) Get(
	ctx context.Context, workflowID, runID string,
) (*workflow.Result, error) {
	data, err := a.bucket.ReadAll(ctx, a.keyFor(workflowID, runID))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var res workflow.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Runs lists the archived run IDs of a workflow
func (a *Archive) Runs(ctx context.Context, workflowID string) ([]string, error) {
	dir := a.prefix + workflowID + "/"
	iter := a.bucket.List(&blob.ListOptions{Prefix: dir})
	var res []string
	for {
		obj, err := iter.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return res, nil
			}
			return nil, err
		}
		name := strings.TrimPrefix(obj.Key, dir)
		res = append(res, strings.TrimSuffix(name, ".json"))
	}
}

func (a *Archive) Close() error {
	return a.bucket.Close()
}

func (a *Archive) keyFor(workflowID, runID string) string {
	return a.prefix + workflowID + "/" + runID + ".json"
}
