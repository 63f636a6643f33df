//go:build e2e

package e2e

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"

	"github.com/DrSkyle/layerline/pkg/ledger"
	"github.com/DrSkyle/layerline/pkg/platform"
	"github.com/DrSkyle/layerline/pkg/storage"
)

// TestPlatformAgainstLocalStack is a hermetic test: it brings its own cloud.
// Requires Docker.
func TestPlatformAgainstLocalStack(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping e2e test in short mode")
	}

	ctx := context.Background()

	container, err := localstack.RunContainer(ctx,
		testcontainers.WithImage("localstack/localstack:3.0"),
	)
	if err != nil {
		t.Fatalf("Failed to start LocalStack: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	}()

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "")
	if err != nil {
		t.Fatalf("Failed to get endpoint: %v", err)
	}

	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:           "http://" + endpoint,
			SigningRegion: "us-east-1",
		}, nil
	})

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithEndpointResolverWithOptions(customResolver),
		awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     "test",
				SecretAccessKey: "test",
				SessionToken:    "test",
			}, nil
		})),
	)
	if err != nil {
		t.Fatalf("Failed to load SDK config: %v", err)
	}

	t.Run("PublishLayerAssignsIncreasingVersions", func(t *testing.T) {
		api := platform.NewLambda(cfg)

		first, err := api.PublishLayer(ctx, platform.PublishLayerInput{
			Name:    "billing-shared",
			Runtime: "python3.12",
			Archive: layerZip(t, "a = 1\n"),
		})
		if err != nil {
			t.Fatalf("first publish: %v", err)
		}

		second, err := api.PublishLayer(ctx, platform.PublishLayerInput{
			Name:    "billing-shared",
			Runtime: "python3.12",
			Archive: layerZip(t, "a = 2\n"),
		})
		if err != nil {
			t.Fatalf("second publish: %v", err)
		}

		if second.Version <= first.Version {
			t.Errorf("versions not increasing: %d then %d", first.Version, second.Version)
		}
		if second.ARN == "" {
			t.Error("missing layer ARN")
		}
	})

	t.Run("DynamoLedgerAdvance", func(t *testing.T) {
		ddb := dynamodb.NewFromConfig(cfg)
		_, err := ddb.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String("layerline-versions"),
			AttributeDefinitions: []ddbtypes.AttributeDefinition{
				{AttributeName: aws.String("project"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			},
			KeySchema: []ddbtypes.KeySchemaElement{
				{AttributeName: aws.String("project"), KeyType: ddbtypes.KeyTypeHash},
			},
			BillingMode: ddbtypes.BillingModePayPerRequest,
		})
		if err != nil {
			t.Fatalf("create table: %v", err)
		}

		backend := &ledger.DynamoBackend{Client: ddb, Table: "layerline-versions"}
		client := ledger.NewClient(backend)

		if _, err := client.Advance(ctx, "billing", "hash-a", "arn:1", 1); err != nil {
			t.Fatalf("first advance: %v", err)
		}

		// Same hash again: version must not move.
		state, err := client.Advance(ctx, "billing", "hash-a", "arn:other", 2)
		if err != nil {
			t.Fatalf("idempotent advance: %v", err)
		}
		if state.Version != 1 {
			t.Errorf("version = %d, want 1", state.Version)
		}

		state, err = client.Advance(ctx, "billing", "hash-b", "arn:2", 2)
		if err != nil {
			t.Fatalf("second advance: %v", err)
		}
		if state.Version != 2 {
			t.Errorf("version = %d, want 2", state.Version)
		}
	})

	t.Run("S3ArtifactStoreRoundTrip", func(t *testing.T) {
		s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) { o.UsePathStyle = true })
		_, err := s3Client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String("layerline-artifacts"),
		})
		if err != nil {
			t.Fatalf("create bucket: %v", err)
		}

		store := &storage.S3Store{Client: s3Client, Bucket: "layerline-artifacts", Prefix: "layerline"}
		payload := layerZip(t, "b = 3\n")

		if err := store.Put(ctx, "artifacts/billing-shared/abc.zip", payload); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := store.Get(ctx, "artifacts/billing-shared/abc.zip")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Error("payload mismatch after round trip")
		}

		ok, err := store.Exists(ctx, "artifacts/billing-shared/abc.zip")
		if err != nil || !ok {
			t.Errorf("Exists = %v, %v", ok, err)
		}

		// List keys are store-relative, same contract as the local store:
		// the "layerline" placement prefix must not leak out.
		keys, err := store.List(ctx, "artifacts/")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(keys) != 1 || keys[0] != "artifacts/billing-shared/abc.zip" {
			t.Errorf("List = %v, want [artifacts/billing-shared/abc.zip]", keys)
		}
	})
}

func layerZip(t *testing.T, content string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("python/shared/__init__.py")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
