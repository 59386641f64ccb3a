// Package filestore checks uploaded credential artifacts in object storage
// and issues short-lived download links for reviewers.
package filestore

import (
	"fmt"
	"net/url"
	"strings"

	dErrors "credlife/pkg/domain-errors"
)

// Object is what the store reports about a referenced file.
type Object struct {
	Bucket      string
	Key         string
	SizeBytes   int64
	ContentType string
}

// ParseURI splits an s3://bucket/key reference.
func ParseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", dErrors.New(dErrors.CodePolicyViolation, fmt.Sprintf("file reference %q is not an s3:// URI", uri))
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", dErrors.New(dErrors.CodePolicyViolation, fmt.Sprintf("file reference %q has no object key", uri))
	}
	return u.Host, key, nil
}
