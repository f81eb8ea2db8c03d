package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const scriptContentType = "application/typescript"

// MinIOConfig contains MinIO connection settings
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
}

// ScriptArchive keeps a copy of every generated script in object storage
// under scripts/<project>/<file>
type ScriptArchive struct {
	client     *minio.Client
	bucketName string
}

// NewScriptArchive creates a MinIO backed archive
func NewScriptArchive(cfg MinIOConfig) (*ScriptArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	return &ScriptArchive{
		client:     client,
		bucketName: cfg.BucketName,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (a *ScriptArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucketName)
	if err != nil {
		return fmt.Errorf("checking bucket existence: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
	}
	return nil
}

// ScriptKey is the object key for a script file of a project
func ScriptKey(projectID, fileName string) string {
	return path.Join("scripts", projectID, fileName)
}

// PutScript uploads the script and returns its s3:// URI
func (a *ScriptArchive) PutScript(ctx context.Context, key, content string) (string, error) {
	data := []byte(content)
	_, err := a.client.PutObject(ctx, a.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: scriptContentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading script: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucketName, key), nil
}

// GetScript downloads a previously archived script
func (a *ScriptArchive) GetScript(ctx context.Context, key string) (string, error) {
	obj, err := a.client.GetObject(ctx, a.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("getting script: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	return string(data), nil
}

// ListScripts lists archived script keys of a project
func (a *ScriptArchive) ListScripts(ctx context.Context, projectID string) ([]string, error) {
	var keys []string
	objectCh := a.client.ListObjects(ctx, a.bucketName, minio.ListObjectsOptions{
		Prefix:    path.Join("scripts", projectID) + "/",
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, object.Err
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}
