package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/LuSP19/xkcd-comics/pkg/models"
)

const XKCDBaseURL = "https://xkcd.com"

// XKCD reads comic metadata and images from the xkcd JSON API.
type XKCD struct {
	client  *Client
	BaseURL string
}

func NewXKCD(client *Client) *XKCD {
	return &XKCD{
		client:  client,
		BaseURL: XKCDBaseURL,
	}
}

// LatestNum returns the id of the newest comic, which is also the largest
// valid id.
func (x *XKCD) LatestNum(ctx context.Context) (int, error) {
	const op = "xkcd latest"
	var info models.XKCDInfo
	if err := x.client.getJSON(ctx, op, x.endpoint("info.0.json"), &info); err != nil {
		return 0, err
	}
	if info.Num < 1 {
		return 0, &MalformedResponseError{Op: op, Field: "num"}
	}
	return info.Num, nil
}

// comicInfo tells an absent alt apart from an empty one.
type comicInfo struct {
	Num   int     `json:"num"`
	Title string  `json:"title"`
	Alt   *string `json:"alt"`
	Img   string  `json:"img"`
}

// Comic fetches the metadata of comic id. The alt text may be empty but
// must be present.
func (x *XKCD) Comic(ctx context.Context, id int) (models.XKCDInfo, error) {
	op := fmt.Sprintf("xkcd comic %d", id)
	var info comicInfo
	if err := x.client.getJSON(ctx, op, x.endpoint(fmt.Sprintf("%d/info.0.json", id)), &info); err != nil {
		return models.XKCDInfo{}, err
	}
	switch {
	case info.Img == "":
		return models.XKCDInfo{}, &MalformedResponseError{Op: op, Field: "img"}
	case info.Alt == nil:
		return models.XKCDInfo{}, &MalformedResponseError{Op: op, Field: "alt"}
	}
	return models.XKCDInfo{Num: info.Num, Title: info.Title, Alt: *info.Alt, Img: info.Img}, nil
}

// Download streams the body at imageURL into w, failing once more than
// limit bytes arrive.
func (x *XKCD) Download(ctx context.Context, imageURL string, w io.Writer, limit int64) (int64, error) {
	const op = "xkcd image"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: build request: %w", op, err)
	}

	resp, err := x.client.doRequest(op, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	dst := &recordingWriter{w: w}
	n, err := copyWithLimit(dst, resp.Body, limit)
	if dst.err != nil {
		return n, fmt.Errorf("%s: write image: %w", op, dst.err)
	}
	if err != nil {
		return n, &NetworkError{Op: op, URL: redactURL(imageURL), Err: err}
	}
	return n, nil
}

// recordingWriter keeps the first write error so local I/O failures are not
// reported as network errors.
type recordingWriter struct {
	w   io.Writer
	err error
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	n, err := r.w.Write(p)
	if err != nil && r.err == nil {
		r.err = err
	}
	return n, err
}

func (x *XKCD) endpoint(path string) string {
	return strings.TrimRight(x.BaseURL, "/") + "/" + path
}
