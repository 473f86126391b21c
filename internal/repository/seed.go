package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"mactabak/internal/domain"
)

//go:embed seed_products.json
var seedProducts []byte

// SeedCatalog fills an empty catalog with the starter assortment and returns
// the number of inserted products.
func (r *ProductRepository) SeedCatalog(ctx context.Context) (int, error) {
	n, err := r.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	var products []domain.Product
	if err := json.Unmarshal(seedProducts, &products); err != nil {
		return 0, fmt.Errorf("decode seed catalog: %w", err)
	}

	now := time.Now().UTC()
	for i, p := range products {
		// keep seed order stable under the default created_at sort
		p.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		p.UpdatedAt = p.CreatedAt
		p.IsAvailable = true
		p.Stock = 100
		if err := r.Create(ctx, p); err != nil {
			return i, err
		}
	}
	return len(products), nil
}
