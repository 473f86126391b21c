package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mactabak/internal/domain"
	"mactabak/internal/metrics"
	"mactabak/internal/publisher"
	"mactabak/internal/repository"
)

// ImageRemover deletes a stored product photo.
type ImageRemover interface {
	Remove(ref string) error
}

// ProductInput is the admin form. Pointer fields are left untouched on update
// when absent.
type ProductInput struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	Category    *string `json:"category"`
	Price       *int64  `json:"price"`
	Unit        *string `json:"unit"`
	Weight      *int64  `json:"weight"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
	IsAvailable *bool   `json:"isAvailable"`
	Stock       *int64  `json:"stock"`
}

type Stats struct {
	Products   int64                 `json:"products"`
	Categories int                   `json:"categories"`
	Users      int64                 `json:"users"`
	Orders     repository.OrderStats `json:"orders"`
	ByCategory map[string]int        `json:"byCategory"`
}

type CatalogService struct {
	logger    *zap.Logger
	products  *repository.ProductRepository
	orders    *repository.OrderRepository
	users     *repository.UserRepository
	images    ImageRemover
	publisher publisher.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewCatalogService(
	logger *zap.Logger,
	products *repository.ProductRepository,
	orders *repository.OrderRepository,
	users *repository.UserRepository,
	images ImageRemover,
	pub publisher.Publisher,
	m *metrics.Metrics,
) *CatalogService {
	return &CatalogService{
		logger:    logger,
		products:  products,
		orders:    orders,
		users:     users,
		images:    images,
		publisher: pub,
		metrics:   m,
		now:       time.Now,
	}
}

func (s *CatalogService) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	return s.products.List(ctx, f)
}

func (s *CatalogService) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.products.Get(ctx, id)
}

func (s *CatalogService) Create(ctx context.Context, in ProductInput) (domain.Product, error) {
	now := s.now()
	p := domain.Product{
		ID:          strings.TrimSpace(in.ID),
		IsAvailable: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if err := apply(&p, in); err != nil {
		return domain.Product{}, err
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	if err := s.products.Create(ctx, p); err != nil {
		return domain.Product{}, err
	}
	s.logger.Info("product created", zap.String("product_id", p.ID), zap.String("name", p.Name))
	s.publish(ctx)
	return p, nil
}

func (s *CatalogService) Update(ctx context.Context, id string, in ProductInput) (domain.Product, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	oldImage := p.Image
	if err := apply(&p, in); err != nil {
		return domain.Product{}, err
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}
	p.UpdatedAt = s.now()
	if err := s.products.Update(ctx, p); err != nil {
		return domain.Product{}, err
	}
	if oldImage != "" && oldImage != p.Image {
		s.removeImage(oldImage)
	}
	s.logger.Info("product updated", zap.String("product_id", p.ID))
	s.publish(ctx)
	return p, nil
}

func (s *CatalogService) Delete(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.products.Delete(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	s.removeImage(p.Image)
	s.logger.Info("product deleted", zap.String("product_id", p.ID))
	s.publish(ctx)
	return p, nil
}

// Publish exports the whole catalog. Unlike the automatic publish after a
// mutation, the error is returned.
func (s *CatalogService) Publish(ctx context.Context) (int, error) {
	all, err := s.products.List(ctx, domain.ProductFilter{})
	if err != nil {
		return 0, err
	}
	err = s.publisher.Publish(ctx, all)
	s.metrics.Publishes.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (s *CatalogService) publish(ctx context.Context) {
	if _, err := s.Publish(ctx); err != nil {
		s.logger.Warn("catalog publish failed", zap.Error(err))
	}
}

func (s *CatalogService) removeImage(ref string) {
	if ref == "" || s.images == nil {
		return
	}
	if err := s.images.Remove(ref); err != nil {
		s.logger.Warn("remove product image", zap.String("image", ref), zap.Error(err))
	}
}

func (s *CatalogService) Stats(ctx context.Context) (Stats, error) {
	all, err := s.products.List(ctx, domain.ProductFilter{})
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Products:   int64(len(all)),
		Categories: len(domain.Categories),
		ByCategory: map[string]int{},
	}
	for _, p := range all {
		st.ByCategory[p.Category]++
	}
	if st.Users, err = s.users.Count(ctx); err != nil {
		return Stats{}, err
	}
	if st.Orders, err = s.orders.Stats(ctx); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func apply(p *domain.Product, in ProductInput) error {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Unit != nil {
		u, ok := domain.ParseUnit(*in.Unit)
		if !ok {
			return domain.NewValidationError("неизвестная единица измерения: %s", *in.Unit)
		}
		p.Unit = u
	}
	if p.Unit == "" {
		p.Unit = domain.UnitPiece
	}
	if in.Weight != nil {
		w := *in.Weight
		p.Weight = &w
	}
	if p.Unit == domain.UnitPiece && in.Weight == nil {
		p.Weight = nil
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Image != nil {
		p.Image = *in.Image
	}
	if in.IsAvailable != nil {
		p.IsAvailable = *in.IsAvailable
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	return nil
}
