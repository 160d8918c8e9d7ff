package service

import (
	"context"
	"errors"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/fleamarket-app/backend/internal/model"
	"github.com/fleamarket-app/backend/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BlobStore is the narrow object-storage contract the listing surface needs.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

type ListingService interface {
	Create(ctx context.Context, sellerUID, title, description string, price uint, category string) (*model.Listing, error)
	Get(ctx context.Context, id uint64) (*model.Listing, error)
	List(ctx context.Context, limit, offset int) ([]model.Listing, int64, error)
	ListMine(ctx context.Context, sellerUID string) ([]model.Listing, error)
	AttachImage(ctx context.Context, listingID uint64, sellerUID, fileName, contentType string, r io.Reader) (string, error)
}

type listingService struct {
	repo  repository.ListingRepository
	blobs BlobStore
}

func NewListingService(repo repository.ListingRepository, blobs BlobStore) ListingService {
	return &listingService{repo: repo, blobs: blobs}
}

func (s *listingService) Create(ctx context.Context, sellerUID, title, description string, price uint, category string) (*model.Listing, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if sellerUID == "" {
		return nil, errors.New("seller is required")
	}
	if title == "" || len(title) > 120 {
		return nil, errors.New("invalid title")
	}
	if description == "" {
		return nil, errors.New("invalid description")
	}
	listing := &model.Listing{
		SellerUID:   sellerUID,
		Title:       title,
		Description: description,
		Price:       price,
		Category:    strings.TrimSpace(category),
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *listingService) Get(ctx context.Context, id uint64) (*model.Listing, error) {
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return listing, nil
}

func (s *listingService) List(ctx context.Context, limit, offset int) ([]model.Listing, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

func (s *listingService) ListMine(ctx context.Context, sellerUID string) ([]model.Listing, error) {
	return s.repo.ListBySeller(ctx, sellerUID)
}

// AttachImage stores the image under listings/{id}/ and records its public
// URL as the listing thumbnail. Only the seller may upload.
func (s *listingService) AttachImage(ctx context.Context, listingID uint64, sellerUID, fileName, contentType string, r io.Reader) (string, error) {
	if s.blobs == nil {
		return "", errors.New("blob store not configured")
	}
	listing, err := s.Get(ctx, listingID)
	if err != nil {
		return "", err
	}
	if listing.SellerUID != sellerUID {
		return "", ErrForbidden
	}
	ext := strings.ToLower(path.Ext(fileName))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
	default:
		return "", errors.New("unsupported image type")
	}
	key := ObjectKey("listings", strconv.FormatUint(listingID, 10), uuid.New().String()+ext)
	if err := s.blobs.Upload(ctx, key, contentType, r); err != nil {
		return "", err
	}
	url := s.blobs.PublicURL(key)
	if err := s.repo.UpdateThumbURL(ctx, listingID, url); err != nil {
		return "", err
	}
	return url, nil
}

// ObjectKey builds the canonical object path {namespace}/{ownerId}/{file}.
func ObjectKey(namespace, ownerID, fileName string) string {
	return namespace + "/" + ownerID + "/" + fileName
}
