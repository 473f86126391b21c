package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mactabak/config"
	"mactabak/internal/auth"
	"mactabak/internal/domain"
	"mactabak/internal/media"
	"mactabak/internal/metrics"
	"mactabak/internal/notify"
	"mactabak/internal/payment"
	"mactabak/internal/publisher"
	"mactabak/internal/repository"
	"mactabak/internal/service"
	"mactabak/traits/database"
)

const testAdminID = int64(800703982)

type mockMessenger struct {
	mock.Mock
}

func (m *mockMessenger) SendMessage(ctx context.Context, chatID int64, msg notify.Message) error {
	return m.Called(chatID, msg).Error(0)
}

func (m *mockMessenger) SendPhoto(ctx context.Context, chatID int64, photoPath string, msg notify.Message) error {
	return m.Called(chatID, photoPath, msg).Error(0)
}

// recordingQR keeps the payloads of generated codes.
type recordingQR struct {
	*payment.Generator
	mu    sync.Mutex
	codes []payment.Code
}

func (r *recordingQR) Generate(o domain.Order) (payment.Code, error) {
	c, err := r.Generator.Generate(o)
	if err == nil {
		r.mu.Lock()
		r.codes = append(r.codes, c)
		r.mu.Unlock()
	}
	return c, err
}

type testServer struct {
	srv       *httptest.Server
	messenger *mockMessenger
	qr        *recordingQR
	tokens    *auth.TokenIssuer
	users     *repository.UserRepository
	carts     repository.CartStore
	cfg       *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := database.InitDatabase(filepath.Join(dir, "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		Port:        "0",
		AdminID:     testAdminID,
		MiniAppUrl:  "https://shop.example",
		PublicUrl:   "https://api.example",
		OrderPrefix: "Т",
	}

	products := repository.NewProductRepository(db)
	_, err = products.SeedCatalog(context.Background())
	require.NoError(t, err)
	orders := repository.NewOrderRepository(db)
	users := repository.NewUserRepository(db)
	carts := repository.NewSQLCartRepository(db)

	m := &mockMessenger{}
	qr := &recordingQR{Generator: payment.NewGenerator(zap.NewNop(), payment.Requisites{
		Name: "ИП Перекрестов", Account: "40802810000000000001", BankName: "Modulbank", BIC: "044525092", INN: "770000000000",
	}, filepath.Join(dir, "qr"), time.Hour)}
	dispatcher := notify.NewDispatcher(zap.NewNop(), m, qr, testAdminID, cfg.MiniAppUrl, "shop@example.com")

	met := metrics.New()
	images := media.NewImageStore(filepath.Join(dir, "uploads"))
	tokens := auth.NewTokenIssuer("secret", time.Hour)

	orderSvc := service.NewOrderService(zap.NewNop(), orders, users, products,
		repository.NewSQLCounter(db), carts, dispatcher, met, cfg.OrderPrefix)
	catalogSvc := service.NewCatalogService(zap.NewNop(), products, orders, users, images, publisher.NopPublisher{}, met)

	h := NewHandler(zap.NewNop(), cfg, orderSvc, catalogSvc, images, tokens, met)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, messenger: m, qr: qr, tokens: tokens, users: users, carts: carts, cfg: cfg}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func createdOrder(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	order, ok := body["order"].(map[string]any)
	require.True(t, ok, "response has no order object: %v", body)
	return order
}

func orderBody(city string, items ...map[string]any) map[string]any {
	return map[string]any{
		"userId": 555,
		"items":  items,
		"customer": map[string]any{
			"fullName": "Иван Петров", "phone": "+79990000000", "city": city,
			"address": "ул. Ленина, 1", "deliveryMethod": "Почта России", "deliveryPrice": 500,
		},
	}
}

func TestCreateOrderMoscow(t *testing.T) {
	ts := newTestServer(t)
	ts.messenger.On("SendMessage", testAdminID, mock.MatchedBy(func(m notify.Message) bool {
		return strings.Contains(m.Text, "НОВЫЙ ЗАКАЗ №Т1")
	})).Return(nil).Once()
	ts.messenger.On("SendMessage", int64(555), mock.Anything).Return(nil).Once()

	code, body := ts.do(t, http.MethodPost, "/api/order", orderBody("Москва",
		map[string]any{"id": "storm", "name": "Шторм Storm", "price": 1700, "quantity": 5, "weight": 200, "unit": "вес"},
	), "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["success"])
	created := createdOrder(t, body)
	require.Equal(t, "Т1", created["orderNumber"])
	require.Equal(t, true, created["isFromMoscow"])
	ts.messenger.AssertExpectations(t)
	require.Empty(t, ts.qr.codes)

	code, body = ts.do(t, http.MethodGet, "/api/order/"+created["id"].(string), nil, "")
	require.Equal(t, http.StatusOK, code)
	order := body["order"].(map[string]any)
	require.EqualValues(t, 9000, order["total"])
	require.Equal(t, "pending", order["status"])
}

func TestCreateOrderOutsideMoscowSendsPaymentQR(t *testing.T) {
	ts := newTestServer(t)
	ts.messenger.On("SendPhoto", int64(555), mock.AnythingOfType("string"), mock.Anything).Return(nil).Once()

	code, body := ts.do(t, http.MethodPost, "/api/order", orderBody("Paris",
		map[string]any{"id": "machine-led1", "name": "Машинка", "price": 1000, "quantity": 1, "unit": "штука"},
	), "")
	require.Equal(t, http.StatusOK, code)
	created := createdOrder(t, body)
	require.Equal(t, false, created["isFromMoscow"])
	ts.messenger.AssertExpectations(t)

	require.Len(t, ts.qr.codes, 1)
	payload := ts.qr.codes[0].Payload.String()
	require.Contains(t, payload, "Sum=150000")
	require.Contains(t, payload, "Purpose=Оплата заказа "+created["orderNumber"].(string))
	require.True(t, strings.HasPrefix(payload, "ST00012|"))
}

func TestCreateOrderSucceedsWhenTelegramFails(t *testing.T) {
	ts := newTestServer(t)
	ts.messenger.On("SendPhoto", mock.Anything, mock.Anything, mock.Anything).Return(assertErr("Forbidden: bot was blocked by the user"))

	code, body := ts.do(t, http.MethodPost, "/api/order", orderBody("Казань",
		map[string]any{"name": "Гильзы", "price": 300, "quantity": 1},
	), "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["success"])
}

func TestCreateOrderRejectsOverflowingQuantity(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodPost, "/api/order", orderBody("Москва",
		map[string]any{"name": "Шторм", "price": 2, "quantity": int64(1) << 62, "weight": 4, "unit": "weight"},
	), "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "слишком большое количество товара", body["error"])
	ts.messenger.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestNotifyManagerWithPostedOrder(t *testing.T) {
	ts := newTestServer(t)
	ts.messenger.On("SendMessage", testAdminID, mock.MatchedBy(func(m notify.Message) bool {
		return strings.Contains(m.Text, "НОВЫЙ ЗАКАЗ №Т7") && strings.Contains(m.Text, "ИТОГО: 9000₽")
	})).Return(nil).Once()

	posted := orderBody("Москва",
		map[string]any{"id": "storm", "name": "Шторм", "price": 1700, "quantity": 5, "weight": 200, "unit": "вес"},
	)
	posted["orderNumber"] = "Т7"
	code, body := ts.do(t, http.MethodPost, "/api/notify-manager", map[string]any{"order": posted}, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["success"])
	ts.messenger.AssertExpectations(t)

	code, _ = ts.do(t, http.MethodPost, "/api/notify-manager", map[string]any{}, "")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestCreateOrderWeightMinimum(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodPost, "/api/order", orderBody("Москва",
		map[string]any{"id": "storm", "name": "Шторм", "price": 1700, "quantity": 2, "weight": 200, "unit": "weight"},
	), "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "Минимальный объём заказа по весовым товарам от 1 кг", body["error"])
	ts.messenger.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestGetOrderNotFound(t *testing.T) {
	ts := newTestServer(t)
	code, body := ts.do(t, http.MethodGet, "/api/order/missing", nil, "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, false, body["success"])
}

func TestUpdateOrderStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.messenger.On("SendPhoto", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	_, body := ts.do(t, http.MethodPost, "/api/order", orderBody("Paris",
		map[string]any{"name": "Гильзы", "price": 300, "quantity": 1},
	), "")
	id := createdOrder(t, body)["id"].(string)

	code, body := ts.do(t, http.MethodPost, "/api/order/update", map[string]any{"orderId": id, "status": "shipped"}, "")
	require.Equal(t, http.StatusOK, code)
	order := body["order"].(map[string]any)
	require.Equal(t, "shipped", order["status"])
	require.NotEmpty(t, order["shippedAt"])

	code, _ = ts.do(t, http.MethodPost, "/api/order/update", map[string]any{"orderId": id, "status": "teleported"}, "")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestWebhookPaymentConfirmed(t *testing.T) {
	ts := newTestServer(t)
	ts.messenger.On("SendPhoto", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	_, body := ts.do(t, http.MethodPost, "/api/order", orderBody("Paris",
		map[string]any{"name": "Гильзы", "price": 300, "quantity": 1},
	), "")
	id := createdOrder(t, body)["id"].(string)

	ts.messenger.On("SendMessage", int64(555), mock.Anything).Return(nil).Once()
	ts.messenger.On("SendMessage", testAdminID, mock.Anything).Return(nil).Once()
	code, _ := ts.do(t, http.MethodPost, "/webhook", map[string]any{
		"action": "payment_confirmed",
		"data":   map[string]any{"orderId": id, "userId": 555},
	}, "")
	require.Equal(t, http.StatusOK, code)
	ts.messenger.AssertExpectations(t)

	_, body = ts.do(t, http.MethodGet, "/api/order/"+id, nil, "")
	require.Equal(t, "paid", body["order"].(map[string]any)["status"])

	code, _ = ts.do(t, http.MethodPost, "/webhook", map[string]any{"action": "something_else"}, "")
	require.Equal(t, http.StatusOK, code)
}

func TestUserSavedDataAndCart(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodPut, "/api/cart/555", map[string]any{
		"items": []map[string]any{{"productId": "storm", "quantity": 5}},
	}, "")
	require.Equal(t, http.StatusOK, code)

	code, body = ts.do(t, http.MethodGet, "/api/cart/555", nil, "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["cart"].(map[string]any)["items"], 1)

	code, _ = ts.do(t, http.MethodGet, "/api/user/555", nil, "")
	require.Equal(t, http.StatusNotFound, code)

	ts.messenger.On("SendPhoto", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	_, _ = ts.do(t, http.MethodPost, "/api/order", orderBody("Paris",
		map[string]any{"name": "Гильзы", "price": 300, "quantity": 1},
	), "")

	code, body = ts.do(t, http.MethodGet, "/api/user/555", nil, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Paris", body["savedData"].(map[string]any)["city"])

	code, body = ts.do(t, http.MethodGet, "/api/cart/555", nil, "")
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, body["cart"].(map[string]any)["items"])

	code, body = ts.do(t, http.MethodGet, "/api/user/555/orders", nil, "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["orders"], 1)

	code, _ = ts.do(t, http.MethodGet, "/api/user/abc", nil, "")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestPublicCatalog(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/api/products?category=standard&sort=price_desc")
	require.NoError(t, err)
	defer resp.Body.Close()
	var products []domain.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
	require.Len(t, products, 3)
	require.Equal(t, "winston", products[0].ID)

	resp2, err := http.Get(ts.srv.URL + "/api/categories")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var cats []domain.Category
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&cats))
	require.Len(t, cats, len(domain.Categories))
}

func TestAdminRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, http.MethodGet, "/api/admin/products", nil, "")
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = ts.do(t, http.MethodGet, "/api/admin/products", nil, "garbage")
	require.Equal(t, http.StatusUnauthorized, code)

	stranger, err := ts.tokens.Issue(42)
	require.NoError(t, err)
	code, _ = ts.do(t, http.MethodGet, "/api/admin/products", nil, stranger)
	require.Equal(t, http.StatusForbidden, code)

	token, err := ts.tokens.Issue(testAdminID)
	require.NoError(t, err)
	resp, err := http.Get(ts.srv.URL + "/api/admin/stats?token=" + token)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminProductCRUD(t *testing.T) {
	ts := newTestServer(t)
	token, err := ts.tokens.Issue(testAdminID)
	require.NoError(t, err)

	code, body := ts.do(t, http.MethodPost, "/api/admin/product", map[string]any{
		"id": "tamper-brass", "name": "Тампер латунный", "category": "tamper", "price": 900, "unit": "piece",
	}, token)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "tamper-brass", body["product"].(map[string]any)["id"])

	code, body = ts.do(t, http.MethodPut, "/api/admin/product/tamper-brass", map[string]any{
		"price": 950, "isAvailable": false,
	}, token)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 950, body["product"].(map[string]any)["price"])

	code, body = ts.do(t, http.MethodGet, "/api/admin/product/tamper-brass", nil, token)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, false, body["product"].(map[string]any)["isAvailable"])

	code, body = ts.do(t, http.MethodPost, "/api/admin/product", map[string]any{
		"name": "Без категории", "category": "unknown", "price": 1,
	}, token)
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, body["error"], "категория")

	code, _ = ts.do(t, http.MethodDelete, "/api/admin/product/tamper-brass", nil, token)
	require.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, http.MethodDelete, "/api/admin/product/tamper-brass", nil, token)
	require.Equal(t, http.StatusNotFound, code)

	code, body = ts.do(t, http.MethodPost, "/api/admin/sync", nil, token)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 12, body["products"])
}

func TestAdminProductMultipartUpload(t *testing.T) {
	ts := newTestServer(t)
	token, err := ts.tokens.Issue(testAdminID)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("name", "Трубка вишня"))
	require.NoError(t, w.WriteField("category", "pipes"))
	require.NoError(t, w.WriteField("price", "4500"))
	require.NoError(t, w.WriteField("unit", "штука"))
	part, err := w.CreateFormFile("photo", "pipe.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/admin/product", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Product domain.Product `json:"product"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, strings.HasPrefix(body.Product.Image, media.URLPrefix))

	img, err := http.Get(ts.srv.URL + body.Product.Image)
	require.NoError(t, err)
	defer img.Body.Close()
	require.Equal(t, http.StatusOK, img.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])

	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), `mactabak_http_requests_total{route="/api/health",status="200"} 1`)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
