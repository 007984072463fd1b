package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	gcs "cloud.google.com/go/storage"
	"github.com/yoockh/interviewstream/internal/models"
	"github.com/yoockh/interviewstream/internal/utils"
)

// GCSDestination writes artifacts to recordings/<session>/<producer>/<file>.
type GCSDestination struct {
	client *gcs.Client
	bucket string
	prefix string
	public bool
}

func NewGCSDestination(ctx context.Context, bucket string, public bool) (*GCSDestination, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSDestination{client: c, bucket: bucket, prefix: "recordings", public: public}, nil
}

func (d *GCSDestination) Close() error { return d.client.Close() }

func (d *GCSDestination) Name() string { return "gcs" }

func ObjectName(prefix string, u Upload) string {
	return path.Join(prefix, u.SessionID, u.ProducerID, u.FileName)
}

func (d *GCSDestination) Put(ctx context.Context, u Upload) (*models.UploadAck, error) {
	const op = "GCSDestination.Put"

	name := ObjectName(d.prefix, u)
	obj := d.client.Bucket(d.bucket).Object(name)

	w := obj.NewWriter(ctx)
	w.ContentType = u.ContentType
	w.Metadata = map[string]string{
		"session_id": u.SessionID,
		"user_id":    u.ProducerID,
	}

	n, err := io.Copy(w, u.Body)
	if err != nil {
		_ = w.Close()
		return nil, utils.E(utils.CodeUnavailable, op, "failed to write object", err)
	}
	if err := w.Close(); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to finalize object", err)
	}

	if d.public {
		if err := obj.ACL().Set(ctx, gcs.AllUsers, gcs.RoleReader); err != nil {
			return nil, utils.E(utils.CodeUnavailable, op, "failed to set object acl", err)
		}
	}

	loc := fmt.Sprintf("gs://%s/%s", d.bucket, name)
	if d.public {
		loc = fmt.Sprintf("https://storage.googleapis.com/%s/%s", d.bucket, name)
	}
	return &models.UploadAck{
		Location: loc,
		Raw: map[string]any{
			"bucket": d.bucket,
			"object": name,
			"size":   n,
		},
	}, nil
}
