package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/LuSP19/xkcd-comics/internal/downloader"
	"github.com/LuSP19/xkcd-comics/internal/logging"
	"github.com/LuSP19/xkcd-comics/pkg/models"
)

// ErrDeclined is returned when the confirmation gate refuses to publish.
var ErrDeclined = errors.New("publishing declined")

// ErrComicOutOfRange is returned when a pinned comic id is past the newest
// comic.
var ErrComicOutOfRange = errors.New("comic id out of range")

type ComicSource interface {
	LatestNum(ctx context.Context) (int, error)
	Comic(ctx context.Context, id int) (models.XKCDInfo, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (*downloader.Artifact, error)
}

// Platform is the wall photo handshake plus the final post.
type Platform interface {
	GetWallUploadServer(ctx context.Context) (models.UploadServer, error)
	UploadPhoto(ctx context.Context, uploadURL, filename string, image io.Reader) (models.UploadTicket, error)
	SaveWallPhoto(ctx context.Context, t models.UploadTicket) (models.SavedPhotoRef, error)
	WallPost(ctx context.Context, ref models.SavedPhotoRef, message string) (models.Post, error)
}

// Picker returns a uniformly random int in [0, n).
type Picker func(n int) int

type Options struct {
	// ComicID pins the comic instead of picking one at random. Zero means random.
	ComicID int
	// DryRun stops after the comic is fetched.
	DryRun bool
	// Inspect sees the comic while its image is still on disk, dry run included.
	Inspect func(models.Comic)
	// Confirm, when set, runs before any platform call.
	Confirm func(models.Comic) (bool, error)
}

type Result struct {
	Comic     models.Comic
	Photo     models.SavedPhotoRef
	Post      models.Post
	Published bool
}

type ComicService struct {
	comics   ComicSource
	images   ImageFetcher
	platform Platform
	pick     Picker
	log      *logging.Logger
}

func NewComicService(comics ComicSource, images ImageFetcher, platform Platform, log *logging.Logger) *ComicService {
	return &ComicService{
		comics:   comics,
		images:   images,
		platform: platform,
		pick:     rand.Intn,
		log:      logging.OrNop(log),
	}
}

// WithPicker replaces the random source, mostly for tests.
func (s *ComicService) WithPicker(p Picker) *ComicService {
	s.pick = p
	return s
}

// PickComicID returns an id in [1, latest].
func (s *ComicService) PickComicID(latest int) int {
	return s.pick(latest) + 1
}

// WithRandomComic fetches a comic and hands it to fn. The image file exists
// only for the duration of fn and is removed on every return path.
func (s *ComicService) WithRandomComic(ctx context.Context, id int, fn func(models.Comic) error) error {
	latest, err := s.comics.LatestNum(ctx)
	if err != nil {
		return fmt.Errorf("get latest comic: %w", err)
	}
	if id == 0 {
		id = s.PickComicID(latest)
	} else if id < 1 || id > latest {
		return fmt.Errorf("%w: %d is not in [1, %d]", ErrComicOutOfRange, id, latest)
	}

	info, err := s.comics.Comic(ctx, id)
	if err != nil {
		return fmt.Errorf("get comic %d: %w", id, err)
	}

	img, err := s.images.Fetch(ctx, info.Img)
	if err != nil {
		return fmt.Errorf("download comic %d image: %w", id, err)
	}
	defer func() {
		if err := img.Release(); err != nil {
			s.log.Warn("failed to remove temp image", "path", img.Path, "error", err)
		}
	}()

	s.log.Debug("comic fetched", "comic_id", id, "latest", latest, "bytes", img.Size)
	return fn(models.Comic{
		ID:        id,
		Title:     info.Title,
		Caption:   info.Alt,
		ImageURL:  info.Img,
		ImagePath: img.Path,
	})
}

// Upload runs the three legs of the wall photo handshake in order. A failed
// leg stops the chain; the upload URL is single use, so there is no resume.
func (s *ComicService) Upload(ctx context.Context, comic models.Comic) (models.SavedPhotoRef, error) {
	srv, err := s.platform.GetWallUploadServer(ctx)
	if err != nil {
		return models.SavedPhotoRef{}, fmt.Errorf("get upload server: %w", err)
	}

	f, err := os.Open(comic.ImagePath)
	if err != nil {
		return models.SavedPhotoRef{}, fmt.Errorf("open comic image: %w", err)
	}
	defer f.Close()

	ticket, err := s.platform.UploadPhoto(ctx, srv.UploadURL, filepath.Base(comic.ImagePath), f)
	if err != nil {
		return models.SavedPhotoRef{}, fmt.Errorf("upload photo: %w", err)
	}
	s.log.Debug("photo uploaded", "server", ticket.Server)

	ref, err := s.platform.SaveWallPhoto(ctx, ticket)
	if err != nil {
		return models.SavedPhotoRef{}, fmt.Errorf("save wall photo: %w", err)
	}
	s.log.Debug("photo saved", "attachment", ref.Attachment())
	return ref, nil
}

// Publish posts the caption with the saved photo to the group wall. A
// failure leaves the saved photo orphaned; it is not deleted.
func (s *ComicService) Publish(ctx context.Context, ref models.SavedPhotoRef, caption string) (models.Post, error) {
	post, err := s.platform.WallPost(ctx, ref, caption)
	if err != nil {
		return models.Post{}, fmt.Errorf("post to wall: %w", err)
	}
	return post, nil
}

// Run does one fetch, upload and publish cycle.
func (s *ComicService) Run(ctx context.Context, opts Options) (Result, error) {
	var res Result
	err := s.WithRandomComic(ctx, opts.ComicID, func(comic models.Comic) error {
		res.Comic = comic
		s.log.Info("comic selected", "comic_id", comic.ID, "title", comic.Title)
		if opts.Inspect != nil {
			opts.Inspect(comic)
		}

		if opts.DryRun {
			s.log.Info("dry run, skipping upload")
			return nil
		}
		if opts.Confirm != nil {
			ok, err := opts.Confirm(comic)
			if err != nil {
				return fmt.Errorf("confirm: %w", err)
			}
			if !ok {
				return ErrDeclined
			}
		}

		ref, err := s.Upload(ctx, comic)
		if err != nil {
			return err
		}
		res.Photo = ref

		post, err := s.Publish(ctx, ref, comic.Caption)
		if err != nil {
			return err
		}
		res.Post = post
		res.Published = true
		s.log.Info("comic published", "comic_id", comic.ID, "post_id", post.PostID, "attachment", ref.Attachment())
		return nil
	})
	return res, err
}
