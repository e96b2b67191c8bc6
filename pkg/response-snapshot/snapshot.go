// Package snapshot converts HTTP responses to and from their
// HTTP/1.1 wire-format representation, so they can be stored as
// opaque byte slices in a cache partition.
package snapshot

import (
	"bufio"
	"bytes"
	"net/http"
)

// Marshal converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response.
// The response body is consumed in the process and replaced with
// an equivalent body, so the response stays usable by the caller.
func Marshal(res *http.Response) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	bts := buf.Bytes()
	// reading the serialized bytes back gives us a fresh body to hand out
	clone, err := Unmarshal(bts, res.Request)
	if err != nil {
		return nil, err
	}
	res.Body = clone.Body
	return bts, nil
}

// Unmarshal converts a wire-format byte slice back to a http.Response.
// The request is attached to the response and may be nil.
func Unmarshal(b []byte, req *http.Request) (*http.Response, error) {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
	if err != nil {
		return nil, err
	}
	return res, nil
}
