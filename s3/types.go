// Package s3 defines the S3 wire-protocol representations produced by the
// proxy: the ListBucketResult document, the error envelope, and the ETag
// and timestamp conventions S3 clients expect.
package s3

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"
)

// Xmlns is the namespace S3 uses for all response documents.
const Xmlns = "http://s3.amazonaws.com/doc/2006-03-01/"

// TimeFormatISO8601Millis is the LastModified format in list responses,
// millisecond precision as emitted by AWS.
const TimeFormatISO8601Millis = "2006-01-02T15:04:05.000Z"

// StorageClassStandard is reported for every object; the proxy does not
// track storage tiers.
const StorageClassStandard = "STANDARD"

// xmlHeader is prepended to every serialized document.
const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Object is a single Contents entry in a ListBucketResult.
type Object struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

// ListBucketResult is the ListObjectsV2 response document.
// CommonPrefixes is never populated; delimiter grouping is out of scope.
type ListBucketResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Xmlns       string   `xml:"xmlns,attr"`
	Name        string   `xml:"Name"`
	Prefix      string   `xml:"Prefix"`
	MaxKeys     int      `xml:"MaxKeys"`
	IsTruncated bool     `xml:"IsTruncated"`
	Contents    []Object `xml:"Contents"`
}

// Error is the S3 error envelope. Resource and RequestId are always
// emitted empty so the document has the full shape clients parse.
type Error struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource"`
	RequestID string   `xml:"RequestId"`
}

// WriteXML serializes v as an S3 XML document with the given status.
// Serialization failure here is an internal bug signal; the caller gets
// the error back but the client connection has already received a header.
func WriteXML(w http.ResponseWriter, status int, v any) error {
	body, err := xml.Marshal(v)
	if err != nil {
		return fmt.Errorf("xml serialization failed: %w", err)
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xmlHeader))
	_, _ = w.Write(body)
	return nil
}

// WriteError writes the S3 error envelope for the given code and message.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	_ = WriteXML(w, status, Error{Code: code, Message: message})
}

// ContentETag derives an entity tag from the object payload, matching the
// MD5 convention S3 uses for single-part uploads.
func ContentETag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// StableETag derives an entity tag for an object whose content is not at
// hand. It is a function of the provider key, size and modification time
// only, so repeated reads of an unchanged object always agree.
func StableETag(key string, size int64, lastModified time.Time) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%d|%d", key, size, lastModified.UnixNano())))
	return hex.EncodeToString(sum[:])
}

// Quote wraps an entity tag in the double quotes the wire format requires.
func Quote(etag string) string {
	return `"` + etag + `"`
}
