package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/brettbedarf/remotefs"
	"github.com/brettbedarf/remotefs/config"
	"github.com/brettbedarf/remotefs/internal/util"
)

// S3API is the subset of *s3.Client the S3 backend calls.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Client implements [remotefs.Session] over a bucket. Ids are object keys;
// directory ids end in "/" and exist either as common prefixes or as empty
// marker objects.
type S3Client struct {
	api    S3API
	bucket string
	root   string
}

var _ remotefs.Session = (*S3Client)(nil)

// OpenS3 builds an S3 client from cfg.S3. Static keys are used when set;
// otherwise the default AWS credential chain applies.
func OpenS3(ctx context.Context, cfg *config.Config) (remotefs.Session, error) {
	sc := cfg.S3
	if sc.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(sc.Region))
	if sc.AccessKeyID != "" && sc.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(sc.AccessKeyID, sc.SecretAccessKey, "")
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
		}
		o.UsePathStyle = sc.UsePathStyle || sc.Endpoint != ""
	})

	util.GetLogger("S3.Open").Info().Str("bucket", sc.Bucket).Str("prefix", sc.Prefix).Str("region", sc.Region).Msg("Using S3 bucket")
	return NewS3Client(client, sc.Bucket, sc.Prefix), nil
}

func NewS3Client(api S3API, bucket, prefix string) *S3Client {
	return &S3Client{api: api, bucket: bucket, root: dirKey(prefix)}
}

// dirKey turns a prefix into a directory id: no leading slash, one trailing slash.
func dirKey(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (c *S3Client) RootID() string    { return c.root }
func (c *S3Client) AccountID() string { return "s3://" + c.bucket + "/" + c.root }
func (c *S3Client) Close() error      { return nil }

func (c *S3Client) ListChildren(ctx context.Context, parentID string) ([]remotefs.RemoteObject, error) {
	out := []remotefs.RemoteObject{}
	err := c.list(ctx, parentID, func(page *s3.ListObjectsV2Output) {
		for _, cp := range page.CommonPrefixes {
			out = append(out, dirObject(aws.ToString(cp.Prefix), parentID))
		}
		for _, obj := range page.Contents {
			if aws.ToString(obj.Key) == parentID {
				// directory marker of the parent itself
				continue
			}
			out = append(out, fileObject(obj, parentID))
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindChildren lists under parentID+name and keeps only exact matches, a file
// key first and then a directory prefix.
func (c *S3Client) FindChildren(ctx context.Context, parentID, name string) ([]remotefs.RemoteObject, error) {
	fileKey := parentID + name
	var files, dirs []remotefs.RemoteObject
	err := c.list(ctx, fileKey, func(page *s3.ListObjectsV2Output) {
		for _, obj := range page.Contents {
			if aws.ToString(obj.Key) == fileKey {
				files = append(files, fileObject(obj, parentID))
			}
		}
		for _, cp := range page.CommonPrefixes {
			if aws.ToString(cp.Prefix) == fileKey+"/" {
				dirs = append(dirs, dirObject(fileKey+"/", parentID))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return append(files, dirs...), nil
}

func (c *S3Client) list(ctx context.Context, prefix string, fn func(*s3.ListObjectsV2Output)) error {
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return s3Error("list", prefix, err)
		}
		fn(page)
	}
	return nil
}

// GetObject heads file keys. Directory ids are synthesized since S3 has no
// directory metadata.
func (c *S3Client) GetObject(ctx context.Context, id string) (*remotefs.RemoteObject, error) {
	if id == c.root || strings.HasSuffix(id, "/") {
		obj := dirObject(id, parentKey(id))
		return &obj, nil
	}
	head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, s3Error("head", id, err)
	}
	copyable := true
	obj := remotefs.RemoteObject{
		ID:         id,
		Name:       baseName(id),
		MimeType:   aws.ToString(head.ContentType),
		Copyable:   &copyable,
		Size:       head.ContentLength,
		ModifiedAt: head.LastModified,
		ParentIDs:  []string{parentKey(id)},
	}
	return &obj, nil
}

func (c *S3Client) OpenRange(ctx context.Context, id string, start, end int64) (io.ReadCloser, error) {
	// S3 range is inclusive
	rangeStr := fmt.Sprintf("bytes=%d-", start)
	if end >= 0 {
		rangeStr = fmt.Sprintf("bytes=%d-%d", start, end)
	}
	result, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(id),
		Range:  aws.String(rangeStr),
	})
	if err != nil {
		// offset at or beyond the end of the object
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		return nil, s3Error("get", id, err)
	}
	return result.Body, nil
}

// CreateFolder writes an empty directory marker object.
func (c *S3Client) CreateFolder(ctx context.Context, parentID, name string) (*remotefs.RemoteObject, error) {
	key := parentID + name + "/"
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return nil, s3Error("put", key, err)
	}
	obj := dirObject(key, parentID)
	return &obj, nil
}

func s3Error(op, key string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return remotefs.NotFound(key)
	}
	return remotefs.Transport(op, err)
}

func dirObject(key, parentID string) remotefs.RemoteObject {
	notCopyable := false
	return remotefs.RemoteObject{
		ID:        key,
		Name:      baseName(key),
		MimeType:  remotefs.FolderMimeType,
		Copyable:  &notCopyable,
		ParentIDs: []string{parentID},
	}
}

func fileObject(obj types.Object, parentID string) remotefs.RemoteObject {
	copyable := true
	key := aws.ToString(obj.Key)
	return remotefs.RemoteObject{
		ID:         key,
		Name:       baseName(key),
		MimeType:   "application/octet-stream",
		Copyable:   &copyable,
		Size:       obj.Size,
		ModifiedAt: obj.LastModified,
		ParentIDs:  []string{parentID},
	}
}

func baseName(key string) string {
	key = strings.TrimSuffix(key, "/")
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

func parentKey(key string) string {
	key = strings.TrimSuffix(key, "/")
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i+1]
	}
	return ""
}
