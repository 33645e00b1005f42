package manifest

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	segmentMarker     = "seg"
	numberPlaceholder = "$Number$"
)

// ErrUnrecognizedSegmentURL is returned for fragment URLs without a segment marker.
var ErrUnrecognizedSegmentURL = errors.New("unrecognized segment url")

// MediaPattern turns one observed segment URL into a numbered template:
// everything before the segment marker of the file name is kept, the number
// is replaced by $Number$, and the observed extension and query are kept.
//
//	https://h/a/seg-12.m4f -> https://h/a/seg-$Number$.m4f
func MediaPattern(segURL string) (string, error) {
	u, err := url.Parse(segURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnrecognizedSegmentURL, err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("%w: %q is not absolute", ErrUnrecognizedSegmentURL, segURL)
	}
	ext := path.Ext(u.Path)
	if ext == "" {
		return "", fmt.Errorf("%w: no extension in %q", ErrUnrecognizedSegmentURL, u.Path)
	}

	query := u.RawQuery
	u.RawQuery = ""
	u.Fragment = ""
	s := u.String()
	dir := strings.LastIndex(s, "/") + 1
	stem := strings.TrimSuffix(s[dir:], ext)
	i := strings.LastIndex(stem, segmentMarker)
	if i < 0 {
		return "", fmt.Errorf("%w: no %q in %q", ErrUnrecognizedSegmentURL, segmentMarker, s[dir:])
	}

	pattern := s[:dir+i] + segmentMarker + "-" + numberPlaceholder + ext
	if query != "" {
		pattern += "?" + query
	}
	return pattern, nil
}
