package models

import (
	"fmt"
	"strconv"
)

type Comic struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Caption   string `json:"caption"`
	ImageURL  string `json:"imageUrl"`
	ImagePath string `json:"imagePath"` // temp file, removed when the comic scope ends
}

type Credentials struct {
	GroupID     int64
	AccessToken string
	APIVersion  string
}

// WallOwnerID is the owner_id of the group wall. Group walls use negative ids.
func (c Credentials) WallOwnerID() string {
	return "-" + strconv.FormatInt(c.GroupID, 10)
}

type UploadTicket struct {
	Server int    `json:"server"`
	Photo  string `json:"photo"`
	Hash   string `json:"hash"`
}

type SavedPhotoRef struct {
	OwnerID int64 `json:"owner_id"`
	MediaID int64 `json:"id"`
}

// Attachment renders the reference accepted by wall.post.
func (r SavedPhotoRef) Attachment() string {
	return fmt.Sprintf("photo%d_%d", r.OwnerID, r.MediaID)
}

type Post struct {
	PostID int64 `json:"post_id"`
}

// API Responses

type XKCDInfo struct {
	Num   int    `json:"num"`
	Title string `json:"title"`
	Alt   string `json:"alt"`
	Img   string `json:"img"`
}

type UploadServer struct {
	UploadURL string `json:"upload_url"`
	AlbumID   int64  `json:"album_id"`
	UserID    int64  `json:"user_id"`
}
