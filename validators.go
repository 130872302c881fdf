package alwaysstatic

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	cachekey "github.com/always-cache/always-static/pkg/cache-key"
	intent "github.com/always-cache/always-static/pkg/request-intent"
	"github.com/always-cache/always-static/rfc9110"
)

// validators returns the Last-Modified and entity tag of the resolved variant.
//
// With an ETag store, the tag is the strong sha256 of the variant content,
// hashed on the disk pool once per file version. Without one, it is a weak
// tag derived from size and modification time.
func (a *AlwaysStatic) validators(ctx context.Context, out *intent.Output) (rfc9110.Validators, error) {
	version := cachekey.VersionOf(out.Path, out.Info)
	v := rfc9110.Validators{LastModified: out.LastModified()}
	weak := rfc9110.ETag{Tag: version.Weak(), Weak: true}
	if a.etags == nil {
		v.ETag = &weak
		return v, nil
	}

	key := version.Key()
	if stored, ok, err := a.etags.Get(key); err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("Could not retrieve etag")
		v.ETag = &weak
		return v, nil
	} else if ok {
		etag, err := rfc9110.ParseETag(stored)
		if err == nil {
			v.ETag = &etag
			return v, nil
		}
		a.log.Warn().Str("key", key).Str("etag", stored).Msg("Ignoring malformed stored etag")
	}

	var sum []byte
	var hashErr error
	err := a.pool.Do(ctx, func() {
		sum, hashErr = hashFile(out)
	})
	if err != nil {
		return v, err
	}
	if hashErr != nil {
		a.log.Warn().Err(hashErr).Str("path", out.Path).Msg("Could not hash variant")
		v.ETag = &weak
		return v, nil
	}
	etag := rfc9110.ETag{Tag: base64.RawURLEncoding.EncodeToString(sum)}
	v.ETag = &etag

	// older versions of the variant are never asked for again
	if err := a.etags.PurgePrefix(cachekey.Prefix(out.Path)); err != nil {
		a.log.Error().Err(err).Str("path", out.Path).Msg("Could not purge old etags")
	}
	if err := a.etags.Put(key, etag.String()); err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("Could not store etag")
	}
	return v, nil
}

// hashFile reads through ReadAt, leaving the file offset untouched.
func hashFile(out *intent.Output) ([]byte, error) {
	h := sha256.New()
	n, err := io.Copy(h, io.NewSectionReader(out.File, 0, out.Size()))
	if err != nil {
		return nil, err
	}
	if n != out.Size() {
		return nil, fmt.Errorf("file changed while hashing: read %d of %d bytes", n, out.Size())
	}
	return h.Sum(nil), nil
}
