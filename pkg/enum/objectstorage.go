package enum

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"golang.org/x/sync/errgroup"

	"github.com/noseyparker-go/noseyparker/pkg/types"
)

// ObjectStorageConfig points an ObjectStorageEnumerator at a bucket or
// container and an optional key/blob name prefix. Exactly one of Bucket
// (S3) or Container (Azure Blob) should be set.
type ObjectStorageConfig struct {
	// Bucket, if set, enumerates an S3 bucket using the default AWS
	// credential chain (environment, shared config, IMDS).
	Bucket string

	// Region is the AWS region to use for S3. Ignored for Azure.
	Region string

	// AssumeRoleARN, if set, exchanges the default credentials for
	// temporary ones via STS AssumeRole before listing the bucket.
	AssumeRoleARN string

	// Container, if set, enumerates an Azure Blob container. AccountURL
	// must also be set (e.g. https://<account>.blob.core.windows.net).
	Container  string
	AccountURL string

	// Prefix restricts enumeration to keys/blobs starting with this
	// string. Empty means the whole bucket or container.
	Prefix string

	// MaxObjectSize skips objects larger than this many bytes (0 = no limit).
	MaxObjectSize int64
}

// ObjectStorageEnumerator reads blobs out of an S3 bucket or an Azure Blob
// container, a third flavor of "walk a tree of content" alongside the
// filesystem and git enumerators. It ingests bytes from a store the caller
// already has credentials for; it does not discover buckets or containers.
type ObjectStorageEnumerator struct {
	cfg ObjectStorageConfig
}

// NewObjectStorageEnumerator creates an enumerator for the bucket or
// container named in cfg.
func NewObjectStorageEnumerator(cfg ObjectStorageConfig) *ObjectStorageEnumerator {
	return &ObjectStorageEnumerator{cfg: cfg}
}

// objectEntry is a listed object awaiting download.
type objectEntry struct {
	key  string
	size int64
}

// Enumerate lists the configured bucket or container and downloads each
// object under Prefix, emitting one ExtendedProvenance blob per object. List
// and download run as separate phases, same shape as FilesystemEnumerator.
func (e *ObjectStorageEnumerator) Enumerate(ctx context.Context, callback func(content []byte, blobID types.BlobID, prov types.Provenance) error) error {
	switch {
	case e.cfg.Bucket != "":
		return e.enumerateS3(ctx, callback)
	case e.cfg.Container != "":
		return e.enumerateAzure(ctx, callback)
	default:
		return fmt.Errorf("object storage enumerator: neither Bucket nor Container configured")
	}
}

func (e *ObjectStorageEnumerator) enumerateS3(ctx context.Context, callback func(content []byte, blobID types.BlobID, prov types.Provenance) error) error {
	var optFns []func(*awsconfig.LoadOptions) error
	optFns = append(optFns, awsconfig.WithRegion(e.cfg.Region))
	if key, secret := os.Getenv("NP_AWS_ACCESS_KEY_ID"), os.Getenv("NP_AWS_SECRET_ACCESS_KEY"); key != "" && secret != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, secret, os.Getenv("NP_AWS_SESSION_TOKEN"))))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return fmt.Errorf("loading AWS credentials: %w", err)
	}

	if e.cfg.AssumeRoleARN != "" {
		stsClient := sts.NewFromConfig(awsCfg)
		provider := stscreds(stsClient, e.cfg.AssumeRoleARN)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	client := s3.NewFromConfig(awsCfg)

	var entries []objectEntry
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(e.cfg.Bucket),
		Prefix: aws.String(e.cfg.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing s3://%s/%s: %w", e.cfg.Bucket, e.cfg.Prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			size := aws.ToInt64(obj.Size)
			if e.cfg.MaxObjectSize > 0 && size > e.cfg.MaxObjectSize {
				continue
			}
			entries = append(entries, objectEntry{key: *obj.Key, size: size})
		}
	}

	return e.downloadAll(ctx, entries, func(ctx context.Context, key string) ([]byte, error) {
		out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(e.cfg.Bucket), Key: aws.String(key)})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	}, func(key string) types.Provenance {
		return types.ExtendedProvenance{Payload: map[string]interface{}{
			"kind":   "s3",
			"bucket": e.cfg.Bucket,
			"key":    key,
		}}
	}, callback)
}

func (e *ObjectStorageEnumerator) enumerateAzure(ctx context.Context, callback func(content []byte, blobID types.BlobID, prov types.Provenance) error) error {
	account := os.Getenv("NP_AZURE_STORAGE_ACCOUNT")
	key := os.Getenv("NP_AZURE_STORAGE_KEY")
	if account == "" || key == "" {
		return fmt.Errorf("NP_AZURE_STORAGE_ACCOUNT and NP_AZURE_STORAGE_KEY must be set to scan an azblob container")
	}
	cred, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return fmt.Errorf("building azure shared key credential: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(e.cfg.AccountURL, cred, nil)
	if err != nil {
		return fmt.Errorf("creating azure blob client: %w", err)
	}

	var entries []objectEntry
	pager := client.NewListBlobsFlatPager(e.cfg.Container, &azblob.ListBlobsFlatOptions{Prefix: &e.cfg.Prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing azblob container %s: %w", e.cfg.Container, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			var size int64
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			if e.cfg.MaxObjectSize > 0 && size > e.cfg.MaxObjectSize {
				continue
			}
			entries = append(entries, objectEntry{key: *item.Name, size: size})
		}
	}

	return e.downloadAll(ctx, entries, func(ctx context.Context, key string) ([]byte, error) {
		resp, err := client.DownloadStream(ctx, e.cfg.Container, key, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return io.ReadAll(resp.Body)
	}, func(key string) types.Provenance {
		return types.ExtendedProvenance{Payload: map[string]interface{}{
			"kind":      "azblob",
			"container": e.cfg.Container,
			"key":       key,
		}}
	}, callback)
}

// downloadAll fans downloads of entries out across a worker pool, invoking
// callback for each fetched object. fetch retrieves one object's bytes;
// prov builds its provenance record.
func (e *ObjectStorageEnumerator) downloadAll(
	ctx context.Context,
	entries []objectEntry,
	fetch func(ctx context.Context, key string) ([]byte, error),
	prov func(key string) types.Provenance,
	callback func(content []byte, blobID types.BlobID, prov types.Provenance) error,
) error {
	numWorkers := runtime.NumCPU()
	if numWorkers < 1 {
		numWorkers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	keysCh := make(chan objectEntry, numWorkers*2)

	g.Go(func() error {
		defer close(keysCh)
		for _, entry := range entries {
			select {
			case keysCh <- entry:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < numWorkers; i++ {
		g.Go(func() error {
			for entry := range keysCh {
				content, err := fetch(gctx, entry.key)
				if err != nil {
					return fmt.Errorf("fetching %s: %w", entry.key, err)
				}
				blobID := types.ComputeBlobID(content)
				if err := callback(content, blobID, prov(entry.key)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// stscreds adapts an sts.Client into an aws.CredentialsProvider that
// assumes roleARN on every refresh.
func stscreds(client *sts.Client, roleARN string) aws.CredentialsProviderFunc {
	return func(ctx context.Context) (aws.Credentials, error) {
		out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
			RoleArn:         aws.String(roleARN),
			RoleSessionName: aws.String("noseyparker-scan"),
		})
		if err != nil {
			return aws.Credentials{}, fmt.Errorf("assuming role %s: %w", roleARN, err)
		}
		return aws.Credentials{
			AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
			SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
			SessionToken:    aws.ToString(out.Credentials.SessionToken),
			CanExpire:       true,
			Expires:         aws.ToTime(out.Credentials.Expiration),
		}, nil
	}
}
