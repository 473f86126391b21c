package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"mactabak/internal/domain"
	"mactabak/traits/database"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.InitDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func weight(g int64) *int64 { return &g }

func TestProductRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(newTestDB(t))

	now := time.Now().UTC()
	p := domain.Product{
		ID: "storm", Name: "Шторм Storm", Category: "standard", Price: 1700,
		Unit: domain.UnitWeight, Weight: weight(200), IsAvailable: true, Stock: 100,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.Get(ctx, "storm")
	require.NoError(t, err)
	require.Equal(t, p.Name, got.Name)
	require.Equal(t, domain.UnitWeight, got.Unit)
	require.NotNil(t, got.Weight)
	require.Equal(t, int64(200), *got.Weight)
	require.True(t, got.IsAvailable)

	got.Price = 1800
	got.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.Get(ctx, "storm")
	require.NoError(t, err)
	require.Equal(t, int64(1800), got.Price)

	deleted, err := repo.Delete(ctx, "storm")
	require.NoError(t, err)
	require.Equal(t, "storm", deleted.ID)

	_, err = repo.Get(ctx, "storm")
	require.True(t, domain.IsNotFound(err))

	err = repo.Update(ctx, got)
	require.True(t, domain.IsNotFound(err))
}

func TestProductRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(newTestDB(t))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	products := []domain.Product{
		{ID: "a", Name: "Шторм Storm", Category: "standard", Price: 1700, Unit: domain.UnitWeight, Weight: weight(200), IsAvailable: true},
		{ID: "b", Name: "Кофе Coffee", Category: "aromatic", Price: 2200, Unit: domain.UnitWeight, Weight: weight(200), IsAvailable: true, Description: "Ароматный бленд"},
		{ID: "c", Name: "Тампер", Category: "tamper", Price: 300, Unit: domain.UnitPiece, IsAvailable: false},
	}
	for i, p := range products {
		p.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		p.UpdatedAt = p.CreatedAt
		require.NoError(t, repo.Create(ctx, p))
	}

	ids := func(ps []domain.Product) []string {
		out := make([]string, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	all, err := repo.List(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids(all))

	byCat, err := repo.List(ctx, domain.ProductFilter{Category: "aromatic"})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, ids(byCat))

	allCat, err := repo.List(ctx, domain.ProductFilter{Category: "all"})
	require.NoError(t, err)
	require.Len(t, allCat, 3)

	search, err := repo.List(ctx, domain.ProductFilter{Search: "АРОМАТ"})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, ids(search))

	asc, err := repo.List(ctx, domain.ProductFilter{Sort: domain.SortPriceAsc})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, ids(asc))

	desc, err := repo.List(ctx, domain.ProductFilter{Sort: domain.SortPriceDesc})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a", "c"}, ids(desc))

	newest, err := repo.List(ctx, domain.ProductFilter{Sort: domain.SortNew})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b", "a"}, ids(newest))

	available, err := repo.List(ctx, domain.ProductFilter{AvailableOnly: true})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids(available))
}

func TestSeedCatalogOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewProductRepository(newTestDB(t))

	n, err := repo.SeedCatalog(ctx)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	again, err := repo.SeedCatalog(ctx)
	require.NoError(t, err)
	require.Zero(t, again)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(n), count)
}

func sampleOrder(id, number string) *domain.Order {
	now := time.Now().UTC()
	o := &domain.Order{
		ID:          id,
		OrderNumber: number,
		UserID:      42,
		Status:      domain.StatusPending,
		Items: []domain.LineItem{
			{ProductID: "storm", Name: "Шторм Storm", Price: 1700, Quantity: 5, Weight: 200, Unit: domain.UnitWeight, Total: 8500},
			{ProductID: "tamper", Name: "Тампер", Price: 300, Quantity: 1, Unit: domain.UnitPiece, Total: 300},
		},
		Customer: domain.Customer{
			FullName: "Иван Петров", Phone: "+79990000000", City: "Казань",
			Address: "ул. Баумана, 1", DeliveryMethod: "СДЭК", DeliveryPrice: 400,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.CalculateTotal()
	return o
}

func TestOrderRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(newTestDB(t))

	o := sampleOrder("o-1", "Т1")
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	require.Equal(t, "Т1", got.OrderNumber)
	require.Equal(t, o.Total, got.Total)
	require.Equal(t, int64(400), got.Customer.DeliveryPrice)
	require.Len(t, got.Items, 2)
	require.Equal(t, "storm", got.Items[0].ProductID)
	require.Equal(t, domain.UnitWeight, got.Items[0].Unit)
	require.Nil(t, got.PaidAt)

	// order numbers are unique
	dup := sampleOrder("o-2", "Т1")
	require.Error(t, repo.Create(ctx, dup))

	_, err = repo.Get(ctx, "missing")
	require.True(t, domain.IsNotFound(err))
}

func TestOrderRepositorySaveStatusAndStats(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(newTestDB(t))

	o := sampleOrder("o-1", "Т7")
	require.NoError(t, repo.Create(ctx, o))
	require.NoError(t, repo.Create(ctx, sampleOrder("o-2", "Т12")))

	o.ApplyStatus(domain.StatusPaid, time.Now().UTC())
	require.NoError(t, repo.SaveStatus(ctx, *o))

	got, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), st.Total)
	require.Equal(t, int64(1), st.ByStatus["paid"])
	require.Equal(t, o.Total, st.Revenue)

	maxSeq, err := repo.MaxSequence(ctx, "Т")
	require.NoError(t, err)
	require.Equal(t, int64(12), maxSeq)

	orders, err := repo.ListByUser(ctx, 42)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Len(t, orders[0].Items, 2)

	missing := domain.Order{ID: "nope", Status: domain.StatusPaid}
	require.True(t, domain.IsNotFound(repo.SaveStatus(ctx, missing)))
}

func TestOrderRepositoryMaxSequenceMatchesPrefixLiterally(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(newTestDB(t))

	require.NoError(t, repo.Create(ctx, sampleOrder("o-1", "A_5")))
	require.NoError(t, repo.Create(ctx, sampleOrder("o-2", "AB900")))
	require.NoError(t, repo.Create(ctx, sampleOrder("o-3", "A%7")))

	maxSeq, err := repo.MaxSequence(ctx, "A_")
	require.NoError(t, err)
	require.Equal(t, int64(5), maxSeq)

	maxSeq, err = repo.MaxSequence(ctx, "A%")
	require.NoError(t, err)
	require.Equal(t, int64(7), maxSeq)

	maxSeq, err = repo.MaxSequence(ctx, "Т")
	require.NoError(t, err)
	require.Zero(t, maxSeq)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	now := time.Now().UTC()
	require.NoError(t, repo.Touch(ctx, domain.User{TelegramID: 7, Username: "ivan", FirstName: "Иван", LastActivity: now}))
	require.NoError(t, repo.SaveData(ctx, 7, domain.SavedData{FullName: "Иван Петров", City: "Москва"}))
	require.NoError(t, repo.SaveData(ctx, 7, domain.SavedData{FullName: "Иван Петров", City: "Тула"}))

	u, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "ivan", u.Username)
	require.Equal(t, "Тула", u.SavedData.City)

	// saving data for an unknown user creates it
	require.NoError(t, repo.SaveData(ctx, 8, domain.SavedData{Phone: "+7"}))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, err = repo.Get(ctx, 99)
	require.True(t, domain.IsNotFound(err))
}

func runConcurrent(t *testing.T, c Counter, n int) []int64 {
	t.Helper()
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out []int64
	)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := c.Next(context.Background(), OrderNumberCounter)
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			out = append(out, seq)
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func expectedSequence(from, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(from + i)
	}
	return out
}

func TestSQLCounterConcurrent(t *testing.T) {
	c := NewSQLCounter(newTestDB(t))
	got := runConcurrent(t, c, 50)
	require.Equal(t, expectedSequence(1, 50), got)
}

func TestSQLCounterSeed(t *testing.T) {
	ctx := context.Background()
	c := NewSQLCounter(newTestDB(t))

	require.NoError(t, c.Seed(ctx, OrderNumberCounter, 41))
	require.NoError(t, c.Seed(ctx, OrderNumberCounter, 10))
	seq, err := c.Next(ctx, OrderNumberCounter)
	require.NoError(t, err)
	require.Equal(t, int64(42), seq)
}

func TestRedisCounterConcurrent(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewRedisCounter(client)
	got := runConcurrent(t, c, 50)
	require.Equal(t, expectedSequence(1, 50), got)
}

func TestRedisCounterSeed(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	c := NewRedisCounter(client)

	require.NoError(t, c.Seed(ctx, OrderNumberCounter, 100))
	require.NoError(t, c.Seed(ctx, OrderNumberCounter, 5))
	seq, err := c.Next(ctx, OrderNumberCounter)
	require.NoError(t, err)
	require.Equal(t, int64(101), seq)
}

func testCartStore(t *testing.T, store CartStore) {
	ctx := context.Background()

	_, err := store.Get(ctx, 1)
	require.True(t, domain.IsNotFound(err))

	cart := domain.Cart{UserID: 1, Items: []domain.CartItem{{ProductID: "storm", Quantity: 5}}, UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.Save(ctx, cart))

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, cart.Items, got.Items)

	require.NoError(t, store.Clear(ctx, 1))
	_, err = store.Get(ctx, 1)
	require.True(t, domain.IsNotFound(err))
}

func TestRedisCartRepository(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewRedisCartRepository(client)
	testCartStore(t, repo)

	require.NoError(t, repo.Save(context.Background(), domain.Cart{UserID: 2, Items: []domain.CartItem{{ProductID: "x", Quantity: 1}}}))
	mr.FastForward(CartTTL + time.Second)
	_, err := repo.Get(context.Background(), 2)
	require.True(t, domain.IsNotFound(err))
}

func TestSQLCartRepository(t *testing.T) {
	repo := NewSQLCartRepository(newTestDB(t))
	testCartStore(t, repo)

	stale := domain.Cart{UserID: 3, Items: []domain.CartItem{{ProductID: "x", Quantity: 1}}, UpdatedAt: time.Now().UTC().Add(-CartTTL - time.Minute)}
	require.NoError(t, repo.Save(context.Background(), stale))
	_, err := repo.Get(context.Background(), 3)
	require.True(t, domain.IsNotFound(err), fmt.Sprint(err))
}
