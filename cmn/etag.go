package cmn

import "strings"

// UnquoteETag strips the surrounding double quotes an object store places
// around an ETag, so that values read from headers compare equal to values
// read back from custom metadata. Ported from the reference implementation's
// s3_utils helper; every ETag comparison in the engine goes through this.
func UnquoteETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// ETagEqual compares two ETags after quote-normalization.
func ETagEqual(a, b string) bool {
	return UnquoteETag(a) == UnquoteETag(b)
}
