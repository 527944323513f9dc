package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/LuSP19/xkcd-comics/pkg/models"
)

const (
	VKBaseURL         = "https://api.vk.com"
	DefaultAPIVersion = "5.131"
)

// Envelope is the result of every VK method call: exactly one of Response
// and Error is set.
type Envelope[T any] struct {
	Response *T        `json:"response"`
	Error    *APIError `json:"error"`
}

// Result converts the envelope into a value or a typed error.
func (e Envelope[T]) Result(op string) (T, error) {
	var zero T
	if e.Error != nil {
		return zero, e.Error
	}
	if e.Response == nil {
		return zero, &MalformedResponseError{Op: op, Field: "response"}
	}
	return *e.Response, nil
}

// VK calls the VK API on behalf of a community. Method calls are sent as
// form POSTs so the access token never ends up in a URL.
type VK struct {
	client  *Client
	BaseURL string
	creds   models.Credentials
}

func NewVK(client *Client, creds models.Credentials) *VK {
	return &VK{
		client:  client,
		BaseURL: VKBaseURL,
		creds:   creds,
	}
}

func (v *VK) GetWallUploadServer(ctx context.Context) (models.UploadServer, error) {
	const method = "photos.getWallUploadServer"
	srv, err := call[models.UploadServer](ctx, v, method, nil)
	if err != nil {
		return models.UploadServer{}, err
	}
	if srv.UploadURL == "" {
		return models.UploadServer{}, &MalformedResponseError{Op: method, Field: "upload_url"}
	}
	return srv, nil
}

// uploadResponse uses pointers so that absent fields can be told apart
// from zero values.
type uploadResponse struct {
	Server *int      `json:"server"`
	Photo  *string   `json:"photo"`
	Hash   *string   `json:"hash"`
	Error  *APIError `json:"error"`
}

// UploadPhoto posts the image as multipart form data to the single-use
// upload URL returned by GetWallUploadServer.
func (v *VK) UploadPhoto(ctx context.Context, uploadURL, filename string, image io.Reader) (models.UploadTicket, error) {
	const op = "photo upload"

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		return models.UploadTicket{}, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return models.UploadTicket{}, fmt.Errorf("%s: read image: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return models.UploadTicket{}, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &body)
	if err != nil {
		return models.UploadTicket{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := v.client.doRequest(op, req)
	if err != nil {
		return models.UploadTicket{}, err
	}
	defer resp.Body.Close()

	var result uploadResponse
	if err := decodeBody(op, resp.Body, &result); err != nil {
		return models.UploadTicket{}, err
	}
	if result.Error != nil {
		return models.UploadTicket{}, result.Error
	}

	switch {
	case result.Server == nil:
		return models.UploadTicket{}, &MalformedResponseError{Op: op, Field: "server"}
	case result.Photo == nil || *result.Photo == "" || *result.Photo == "[]":
		return models.UploadTicket{}, &MalformedResponseError{Op: op, Field: "photo"}
	case result.Hash == nil || *result.Hash == "":
		return models.UploadTicket{}, &MalformedResponseError{Op: op, Field: "hash"}
	}
	return models.UploadTicket{Server: *result.Server, Photo: *result.Photo, Hash: *result.Hash}, nil
}

type savedPhoto struct {
	ID      *int64 `json:"id"`
	OwnerID *int64 `json:"owner_id"`
}

func (v *VK) SaveWallPhoto(ctx context.Context, t models.UploadTicket) (models.SavedPhotoRef, error) {
	const method = "photos.saveWallPhoto"
	params := url.Values{
		"server": {strconv.Itoa(t.Server)},
		"photo":  {t.Photo},
		"hash":   {t.Hash},
	}
	saved, err := call[[]savedPhoto](ctx, v, method, params)
	if err != nil {
		return models.SavedPhotoRef{}, err
	}
	switch {
	case len(saved) == 0:
		return models.SavedPhotoRef{}, &MalformedResponseError{Op: method, Field: "response[0]"}
	case saved[0].ID == nil:
		return models.SavedPhotoRef{}, &MalformedResponseError{Op: method, Field: "response[0].id"}
	case saved[0].OwnerID == nil:
		return models.SavedPhotoRef{}, &MalformedResponseError{Op: method, Field: "response[0].owner_id"}
	}
	return models.SavedPhotoRef{OwnerID: *saved[0].OwnerID, MediaID: *saved[0].ID}, nil
}

// WallPost publishes message with the saved photo attached on the group wall,
// on behalf of the group.
func (v *VK) WallPost(ctx context.Context, ref models.SavedPhotoRef, message string) (models.Post, error) {
	params := url.Values{
		"owner_id":    {v.creds.WallOwnerID()},
		"from_group":  {"1"},
		"attachments": {ref.Attachment()},
		"message":     {message},
	}
	return call[models.Post](ctx, v, "wall.post", params)
}

// call runs one VK method and decodes its envelope.
func call[T any](ctx context.Context, v *VK, method string, params url.Values) (T, error) {
	var zero T
	form := url.Values{}
	for k, vals := range params {
		form[k] = vals
	}
	form.Set("group_id", strconv.FormatInt(v.creds.GroupID, 10))
	form.Set("access_token", v.creds.AccessToken)
	form.Set("v", v.creds.APIVersion)

	endpoint := strings.TrimRight(v.BaseURL, "/") + "/method/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return zero, fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.doRequest(method, req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	var env Envelope[T]
	if err := decodeBody(method, resp.Body, &env); err != nil {
		return zero, err
	}
	return env.Result(method)
}
