package objstore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// S3Backend is a read-mostly remote mirror of loose objects, each
// stored under its hex id as the S3 key. It plugs in as an
// objstore.Backend via WithRemote, consulted after the loose directory
// and local packs but before alternates.
type S3Backend struct {
	bucket string
	region string
	client *s3.S3
}

// NewS3Backend creates a backend against the given bucket/region. The
// client is established lazily on first use.
func NewS3Backend(bucket, region string) *S3Backend {
	return &S3Backend{bucket: bucket, region: region}
}

func (b *S3Backend) ensureClient() error {
	if b.client != nil {
		return nil
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(b.region)})
	if err != nil {
		return err
	}
	b.client = s3.New(sess)
	return nil
}

func (b *S3Backend) Get(id objid.ID) (RawObject, error) {
	if err := b.ensureClient(); err != nil {
		return RawObject{}, err
	}
	out, err := b.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id.Hex()),
	})
	if err != nil {
		if rf, ok := err.(awserr.RequestFailure); ok && rf.StatusCode() == http.StatusNotFound {
			return RawObject{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return RawObject{}, errors.Wrapf(err, "s3 get %s", id)
	}
	defer func() {
		if err := out.Body.Close(); err != nil {
			log.WithField("id", id.Hex()).Warning("Could not close S3 response body")
		}
	}()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return RawObject{}, err
	}
	return parseLooseRecord(id, raw)
}

func (b *S3Backend) Has(id objid.ID) (bool, error) {
	if err := b.ensureClient(); err != nil {
		return false, err
	}
	_, err := b.client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id.Hex()),
	})
	if err != nil {
		if rf, ok := err.(awserr.RequestFailure); ok && rf.StatusCode() == http.StatusNotFound {
			return false, nil
		}
		return false, errors.Wrapf(err, "s3 head %s", id)
	}
	return true, nil
}

// ForEach lists every key in the bucket and decodes it as an id,
// skipping any key that is not 40 hex characters (e.g. unrelated
// objects sharing the bucket).
func (b *S3Backend) ForEach(fn func(objid.ID) error) error {
	if err := b.ensureClient(); err != nil {
		return err
	}
	var outerErr error
	err := b.client.ListObjectsPages(&s3.ListObjectsInput{Bucket: aws.String(b.bucket)},
		func(page *s3.ListObjectsOutput, lastPage bool) bool {
			for _, obj := range page.Contents {
				id, err := objid.HexToID(aws.StringValue(obj.Key))
				if err != nil {
					continue
				}
				if err := fn(id); err != nil {
					outerErr = err
					return false
				}
			}
			return true
		})
	if outerErr != nil {
		return outerErr
	}
	return err
}

// Put stores the loose-record encoding of kind+data under its id,
// mirroring the shape loose files use so Get can reuse parseLooseRecord.
// S3Backend is otherwise treated as read-only by Store (it is not
// registered as a Writer); Put exists for out-of-band archival jobs,
// e.g. pushing the local loose directory to the bucket.
func (b *S3Backend) Put(kind string, data []byte) (objid.ID, error) {
	if err := b.ensureClient(); err != nil {
		return objid.Nil, err
	}
	id := objid.Hash(kind, data)
	body := append([]byte(fmt.Sprintf("%s %d\x00", kind, len(data))), data...)
	_, err := b.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id.Hex()),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return objid.Nil, errors.Wrapf(err, "s3 put %s", id)
	}
	return id, nil
}
