package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/snapflow/snapflow/internal/models"
	"github.com/snapflow/snapflow/internal/repository"
)

var ErrAssetNotFound = errors.New("media asset doesn't exist")

// Uploader is the storage backend for media files. Satisfied by
// R2Service.
type Uploader interface {
	UploadToR2(ctx context.Context, key string, file []byte, filetype string) error
	PublicURL(key string) string
}

type MediaService interface {
	Upload(ctx context.Context, userID int64, file *multipart.FileHeader) (*models.MediaAsset, error)
	AssetInfo(ctx context.Context, assetID, userID int64) (*models.MediaAsset, error)
	Remove(ctx context.Context, userID, assetID int64) error
}

type mediaService struct {
	ma repository.MediaAssetRepository
	up Uploader
}

func NewMediaService(ma repository.MediaAssetRepository, up Uploader) MediaService {
	return &mediaService{ma: ma, up: up}
}

var allowedMediaTypes = map[string]struct{}{
	"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {},
}

func (s *mediaService) Upload(ctx context.Context, userID int64, file *multipart.FileHeader) (*models.MediaAsset, error) {
	fileContent, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer fileContent.Close()

	fileBytes, err := io.ReadAll(fileContent)
	if err != nil {
		return nil, fmt.Errorf("error reading file content: %w", err)
	}

	fileType, err := filetype.Match(fileBytes)
	if err != nil || fileType == types.Unknown {
		return nil, ValidationError{Field: "file", Reason: "unsupported file type"}
	}
	if _, ok := allowedMediaTypes[fileType.Extension]; !ok {
		return nil, ValidationError{Field: "file", Reason: fmt.Sprintf("file type %s is not allowed", fileType.Extension)}
	}

	key, err := gonanoid.New()
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}

	if err := s.up.UploadToR2(ctx, key, fileBytes, fileType.MIME.Value); err != nil {
		return nil, fmt.Errorf("error uploading file: %w", err)
	}

	asset := models.MediaAsset{
		UserID:   userID,
		FileName: key,
		FileType: fileType.MIME.Value,
		FileSize: int64(len(fileBytes)),
		FileURL:  s.up.PublicURL(key),
	}

	assetID, err := s.ma.Create(ctx, nil, &asset)
	if err != nil {
		return nil, fmt.Errorf("error saving media file: %w", err)
	}
	asset.ID = assetID

	return &asset, nil
}

func (s *mediaService) AssetInfo(ctx context.Context, assetID, userID int64) (*models.MediaAsset, error) {
	asset, err := s.ma.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil || asset.UserID != userID {
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

func (s *mediaService) Remove(ctx context.Context, userID, assetID int64) error {
	asset, err := s.ma.GetByID(ctx, assetID)
	if err != nil {
		return err
	}
	if asset == nil || asset.UserID != userID {
		return ErrAssetNotFound
	}
	return s.ma.Remove(ctx, assetID)
}
