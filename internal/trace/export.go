package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/me/coopsched/pkg/model"
)

// exportPage is the number of events read per ListEvents call.
const exportPage = 500

// exportRecord is one JSON line of an export. The first line carries the
// run, every following line one event.
type exportRecord struct {
	Kind  string       `json:"kind"`
	Run   *model.Run   `json:"run,omitempty"`
	Event *model.Event `json:"event,omitempty"`
}

// ExportRun writes the run and all of its events to w as JSON lines and
// returns the number of events written.
func ExportRun(ctx context.Context, st Store, runID string, w io.Writer) (int, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return 0, fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return 0, model.NewNotFoundError("run", runID)
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(exportRecord{Kind: "run", Run: run}); err != nil {
		return 0, err
	}

	written := 0
	for {
		events, total, err := st.ListEvents(ctx, runID, model.ListOptions{Limit: exportPage, Offset: written})
		if err != nil {
			return written, fmt.Errorf("list events: %w", err)
		}
		for i := range events {
			if err := enc.Encode(exportRecord{Kind: "event", Event: &events[i]}); err != nil {
				return written, err
			}
			written++
		}
		if len(events) == 0 || written >= total {
			return written, nil
		}
	}
}

// S3Target names an object location.
type S3Target struct {
	Bucket string
	Key    string
}

// ParseS3URL parses "s3://bucket/key". A key ending in "/" or a bare bucket
// gets "<runID>.jsonl" appended.
func ParseS3URL(raw, runID string) (S3Target, error) {
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return S3Target{}, fmt.Errorf("s3 url %q: want s3://bucket/key", raw)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return S3Target{}, fmt.Errorf("s3 url %q: missing bucket", raw)
	}
	if key == "" || strings.HasSuffix(key, "/") {
		key += runID + ".jsonl"
	}
	return S3Target{Bucket: bucket, Key: key}, nil
}

// S3Config selects the object store. Empty fields fall back to the AWS
// environment and shared config files.
type S3Config struct {
	Region   string
	Endpoint string // custom endpoint, e.g. a MinIO server; implies path-style addressing
}

// NewS3Uploader builds an uploader from the default AWS credential chain.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*manager.Uploader, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return manager.NewUploader(client), nil
}

// UploadRun exports a run and stores it as one JSON-lines object.
func UploadRun(ctx context.Context, st Store, runID string, up *manager.Uploader, target S3Target) (int, error) {
	var buf bytes.Buffer
	n, err := ExportRun(ctx, st, runID, &buf)
	if err != nil {
		return n, err
	}
	_, err = up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(target.Bucket),
		Key:         aws.String(target.Key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return n, fmt.Errorf("upload s3://%s/%s: %w", target.Bucket, target.Key, err)
	}
	return n, nil
}
