// Package imagehost rehosts user-supplied images so keyword replies never
// depend on the original link staying alive. Uploads return an opaque delete
// credential that the editing flow uses to revoke the copy when its response
// is removed.
package imagehost

import (
	"context"
	"errors"
)

// Image is one hosted copy of a source picture.
type Image struct {
	URL        string
	DeleteHash string
}

var ErrUploadFailed = errors.New("image upload failed")

// Host uploads source images and deletes them again by their delete hash.
type Host interface {
	Upload(ctx context.Context, sourceURL string) (Image, error)
	Delete(ctx context.Context, deleteHash string) error
}
