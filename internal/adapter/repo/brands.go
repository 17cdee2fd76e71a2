package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/supabase-community/supabase-go"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/infra"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/sqlinline"
)

// BrandRepositoryPG reads brands from the brands table.
type BrandRepositoryPG struct {
	db infra.SQLExecutor
}

func NewBrandRepository(db infra.SQLExecutor) *BrandRepositoryPG {
	return &BrandRepositoryPG{db: db}
}

func (r *BrandRepositoryPG) GetBrand(ctx context.Context, brandID string) (*domain.Brand, error) {
	var b domain.Brand
	err := r.db.QueryRow(ctx, sqlinline.QSelectBrand, brandID).Scan(
		&b.ID,
		&b.Name,
		&b.Tagline,
		&b.Website,
		&b.PrimaryColor,
		&b.SecondaryColor,
		&b.AccentColor,
		&b.TextColor,
		&b.BackgroundColor,
		&b.HeadingFont,
		&b.BodyFont,
		&b.LogoURL,
		&b.LogoDarkURL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBrandNotFound, brandID)
	}
	if err != nil {
		return nil, fmt.Errorf("repo: select brand: %w", err)
	}
	return &b, nil
}

// rowFetcher returns the raw PostgREST JSON array for rows matching id.
type rowFetcher func(ctx context.Context, table, id string) ([]byte, error)

// BrandRepositorySupabase reads brands over the Supabase REST API.
type BrandRepositorySupabase struct {
	fetch rowFetcher
	table string
}

// NewBrandRepositorySupabase connects with the project url and service key.
func NewBrandRepositorySupabase(projectURL, serviceKey string) (*BrandRepositorySupabase, error) {
	if strings.TrimSpace(projectURL) == "" || strings.TrimSpace(serviceKey) == "" {
		return nil, errors.New("repo: supabase url and service key are required")
	}
	client, err := supabase.NewClient(projectURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("repo: supabase client: %w", err)
	}
	fetch := func(_ context.Context, table, id string) ([]byte, error) {
		data, _, err := client.From(table).
			Select("*", "exact", false).
			Eq("id", id).
			Execute()
		return data, err
	}
	return &BrandRepositorySupabase{fetch: fetch, table: "brands"}, nil
}

func (r *BrandRepositorySupabase) GetBrand(ctx context.Context, brandID string) (*domain.Brand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := r.fetch(ctx, r.table, brandID)
	if err != nil {
		return nil, fmt.Errorf("repo: query supabase brands: %w", err)
	}
	var brands []domain.Brand
	if err := json.Unmarshal(data, &brands); err != nil {
		return nil, fmt.Errorf("repo: parse supabase brands: %w", err)
	}
	if len(brands) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrBrandNotFound, brandID)
	}
	return &brands[0], nil
}

// MemoryBrandRepository serves brands registered in process.
type MemoryBrandRepository struct {
	mu     sync.RWMutex
	brands map[string]domain.Brand
}

// NewMemoryBrandRepository returns a repository seeded with brands.
func NewMemoryBrandRepository(seed ...domain.Brand) *MemoryBrandRepository {
	r := &MemoryBrandRepository{brands: make(map[string]domain.Brand, len(seed))}
	for _, b := range seed {
		r.Put(b)
	}
	return r
}

// DemoBrand is the brand available out of the box in memory mode.
var DemoBrand = domain.Brand{
	ID:              "demo",
	Name:            "Northwind Outfitters",
	Tagline:         "Gear for every trail",
	Website:         "https://northwind.example.com",
	PrimaryColor:    "#1f6feb",
	SecondaryColor:  "#0d1117",
	AccentColor:     "#f78166",
	TextColor:       "#ffffff",
	BackgroundColor: "#0b1d3a",
	HeadingFont:     "Montserrat",
	BodyFont:        "Inter",
}

func (r *MemoryBrandRepository) Put(b domain.Brand) {
	r.mu.Lock()
	r.brands[b.ID] = b
	r.mu.Unlock()
}

func (r *MemoryBrandRepository) GetBrand(_ context.Context, brandID string) (*domain.Brand, error) {
	r.mu.RLock()
	b, ok := r.brands[brandID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBrandNotFound, brandID)
	}
	return &b, nil
}

var (
	_ domain.BrandRepository = (*BrandRepositoryPG)(nil)
	_ domain.BrandRepository = (*BrandRepositorySupabase)(nil)
	_ domain.BrandRepository = (*MemoryBrandRepository)(nil)
)
