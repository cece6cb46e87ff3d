package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/stocklog/stocklog/internal/db"
	"github.com/stocklog/stocklog/internal/model"
	"github.com/stocklog/stocklog/internal/store"
)

const testJWTSecret = "test-secret"

func setupTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	database := db.NewTestDB(t)
	router := NewRouter(database, testJWTSecret)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	// Create admin user.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	store.CreateUser(ctx, database, "admin@example.com", "admin", string(hash), true)

	return server, login(t, server, "admin@example.com", "password")
}

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	token := loginResp["token"]
	if token == "" {
		t.Fatal("empty token from login")
	}
	return token
}

// registerAndLogin creates a regular (non-admin) account through the public
// registration endpoint and returns its token.
func registerAndLogin(t *testing.T, server *httptest.Server, email, username string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"username": username,
		"password": "password123",
	})
	resp, err := http.Post(server.URL+"/api/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: %d", resp.StatusCode)
	}
	return login(t, server, email, "password123")
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func createItem(t *testing.T, server *httptest.Server, token string, body map[string]any) model.Item {
	t.Helper()
	req, _ := authRequest("POST", server.URL+"/api/items", token, body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create item request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create item: expected 201, got %d", resp.StatusCode)
	}
	var item model.Item
	json.NewDecoder(resp.Body).Decode(&item)
	return item
}

func TestLoginEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	// Test invalid credentials.
	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedAccess(t *testing.T) {
	database := db.NewTestDB(t)
	router := NewRouter(database, testJWTSecret)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp, _ := http.Get(server.URL + "/api/items")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	server, token := setupTestServer(t)

	req, _ := authRequest("POST", server.URL+"/api/auth/logout", token, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Revoked token must no longer authenticate.
	req, _ = authRequest("GET", server.URL+"/api/auth/profile", token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestItemsAPIFlow(t *testing.T) {
	server, token := setupTestServer(t)

	item := createItem(t, server, token, map[string]any{
		"name":     "Laptop",
		"quantity": 10,
		"price":    "999.99",
	})
	if item.Quantity != 10 {
		t.Errorf("expected quantity 10, got %d", item.Quantity)
	}

	// List items.
	req, _ := authRequest("GET", server.URL+"/api/items", token, nil)
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var items []model.Item
	json.NewDecoder(resp.Body).Decode(&items)
	resp.Body.Close()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	// Update with a quantity change and a reason.
	req, _ = authRequest("PUT", server.URL+"/api/items/"+itoa(item.ID), token, map[string]any{
		"name":     "Laptop",
		"quantity": 7,
		"price":    "999.99",
		"reason":   "Sold three units",
	})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	var updateResp struct {
		Item      model.Item       `json:"item"`
		ChangeLog *model.ChangeLog `json:"change_log"`
	}
	json.NewDecoder(resp.Body).Decode(&updateResp)
	resp.Body.Close()

	if updateResp.Item.Quantity != 7 {
		t.Errorf("expected quantity 7 after update, got %d", updateResp.Item.Quantity)
	}
	if updateResp.ChangeLog == nil {
		t.Fatal("expected a change-log entry in the update response")
	}
	if updateResp.ChangeLog.ChangeQuantity == nil || *updateResp.ChangeLog.ChangeQuantity != -3 {
		t.Errorf("expected change_quantity -3, got %v", updateResp.ChangeLog.ChangeQuantity)
	}
	if updateResp.ChangeLog.Reason != "Sold three units" {
		t.Errorf("unexpected reason %q", updateResp.ChangeLog.Reason)
	}

	// History for the item.
	req, _ = authRequest("GET", server.URL+"/api/items/"+itoa(item.ID)+"/logs", token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("item logs: expected 200, got %d", resp.StatusCode)
	}
	var logs []model.ChangeLog
	json.NewDecoder(resp.Body).Decode(&logs)
	resp.Body.Close()
	if len(logs) != 1 {
		t.Errorf("expected 1 log entry, got %d", len(logs))
	}

	// Delete the item; its history goes with it.
	req, _ = authRequest("DELETE", server.URL+"/api/items/"+itoa(item.ID), token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = authRequest("GET", server.URL+"/api/items/"+itoa(item.ID), token, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdjustEndpoint(t *testing.T) {
	server, token := setupTestServer(t)

	item := createItem(t, server, token, map[string]any{
		"name":     "Cable",
		"quantity": 5,
		"price":    "3.50",
	})

	req, _ := authRequest("POST", server.URL+"/api/items/"+itoa(item.ID)+"/adjust", token, map[string]any{
		"change_quantity": -2,
		"reason":          "Damaged stock",
	})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("adjust: expected 200, got %d", resp.StatusCode)
	}
	var adjustResp struct {
		Item      model.Item       `json:"item"`
		ChangeLog *model.ChangeLog `json:"change_log"`
	}
	json.NewDecoder(resp.Body).Decode(&adjustResp)
	resp.Body.Close()

	if adjustResp.Item.Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", adjustResp.Item.Quantity)
	}
	if adjustResp.ChangeLog == nil || adjustResp.ChangeLog.ChangeQuantity == nil ||
		*adjustResp.ChangeLog.ChangeQuantity != -2 {
		t.Error("expected a -2 quantity delta in the change log")
	}

	// Over-decrementing is rejected.
	req, _ = authRequest("POST", server.URL+"/api/items/"+itoa(item.ID)+"/adjust", token, map[string]any{
		"change_quantity": -10,
		"reason":          "Impossible removal",
	})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for negative result, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The failed adjustment must not have left a log entry behind.
	req, _ = authRequest("GET", server.URL+"/api/items/"+itoa(item.ID)+"/logs", token, nil)
	resp, _ = http.DefaultClient.Do(req)
	var logs []model.ChangeLog
	json.NewDecoder(resp.Body).Decode(&logs)
	resp.Body.Close()
	if len(logs) != 1 {
		t.Errorf("expected 1 log entry, got %d", len(logs))
	}
}

func TestOwnerScoping(t *testing.T) {
	server, adminToken := setupTestServer(t)
	userToken := registerAndLogin(t, server, "user@example.com", "user")

	adminItem := createItem(t, server, adminToken, map[string]any{
		"name":     "Server Rack",
		"quantity": 2,
		"price":    "1200",
	})
	userItem := createItem(t, server, userToken, map[string]any{
		"name":     "Keyboard",
		"quantity": 4,
		"price":    "45.00",
	})

	// A regular user only sees their own items in listings.
	req, _ := authRequest("GET", server.URL+"/api/items", userToken, nil)
	resp, _ := http.DefaultClient.Do(req)
	var items []model.Item
	json.NewDecoder(resp.Body).Decode(&items)
	resp.Body.Close()
	if len(items) != 1 || items[0].Name != "Keyboard" {
		t.Errorf("expected only the user's own item, got %d items", len(items))
	}

	// An administrator sees everything.
	req, _ = authRequest("GET", server.URL+"/api/items", adminToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	items = nil
	json.NewDecoder(resp.Body).Decode(&items)
	resp.Body.Close()
	if len(items) != 2 {
		t.Errorf("expected admin to see 2 items, got %d", len(items))
	}

	// Reading another account's item is allowed.
	req, _ = authRequest("GET", server.URL+"/api/items/"+itoa(adminItem.ID), userToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 reading another owner's item, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Modifying it is not.
	req, _ = authRequest("PUT", server.URL+"/api/items/"+itoa(adminItem.ID), userToken, map[string]any{
		"name":     "Server Rack",
		"quantity": 0,
		"price":    "1200",
	})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for non-owner update, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = authRequest("DELETE", server.URL+"/api/items/"+itoa(adminItem.ID), userToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for non-owner delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// An administrator may modify anyone's item.
	req, _ = authRequest("POST", server.URL+"/api/items/"+itoa(userItem.ID)+"/adjust", adminToken, map[string]any{
		"change_quantity": 1,
	})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for admin adjusting user's item, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCategoryWritesRequireAdmin(t *testing.T) {
	server, adminToken := setupTestServer(t)
	userToken := registerAndLogin(t, server, "user@example.com", "user")

	req, _ := authRequest("POST", server.URL+"/api/categories", userToken, map[string]string{
		"name": "Electronics",
	})
	resp, _ := http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for user creating category, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = authRequest("POST", server.URL+"/api/categories", adminToken, map[string]string{
		"name": "Electronics",
	})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for admin creating category, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Reading categories is open to any authenticated user.
	req, _ = authRequest("GET", server.URL+"/api/categories", userToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 listing categories, got %d", resp.StatusCode)
	}
	var cats []model.Category
	json.NewDecoder(resp.Body).Decode(&cats)
	resp.Body.Close()
	if len(cats) != 1 {
		t.Errorf("expected 1 category, got %d", len(cats))
	}
}

func TestLowStockEndpoint(t *testing.T) {
	server, token := setupTestServer(t)

	threshold := int64(5)
	item := createItem(t, server, token, map[string]any{
		"name":                "Screws",
		"quantity":            10,
		"price":               "0.10",
		"low_stock_threshold": threshold,
	})
	createItem(t, server, token, map[string]any{
		"name":     "Nails",
		"quantity": 1,
		"price":    "0.05",
	})

	req, _ := authRequest("GET", server.URL+"/api/items/low-stock", token, nil)
	resp, _ := http.DefaultClient.Do(req)
	var items []model.Item
	json.NewDecoder(resp.Body).Decode(&items)
	resp.Body.Close()
	if len(items) != 0 {
		t.Fatalf("expected no low-stock items, got %d", len(items))
	}

	// Drop the monitored item below its threshold.
	req, _ = authRequest("POST", server.URL+"/api/items/"+itoa(item.ID)+"/adjust", token, map[string]any{
		"change_quantity": -7,
		"reason":          "Bulk order shipped",
	})
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("adjust: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = authRequest("GET", server.URL+"/api/items/low-stock", token, nil)
	resp, _ = http.DefaultClient.Do(req)
	items = nil
	json.NewDecoder(resp.Body).Decode(&items)
	resp.Body.Close()
	if len(items) != 1 || items[0].Name != "Screws" {
		t.Errorf("expected only the monitored item to be low stock, got %d items", len(items))
	}
}

func TestChangeLogListScoping(t *testing.T) {
	server, adminToken := setupTestServer(t)
	userToken := registerAndLogin(t, server, "user@example.com", "user")

	adminItem := createItem(t, server, adminToken, map[string]any{
		"name":     "Monitor",
		"quantity": 3,
		"price":    "150",
	})
	userItem := createItem(t, server, userToken, map[string]any{
		"name":     "Mouse",
		"quantity": 6,
		"price":    "20",
	})

	for _, c := range []struct {
		id    int64
		token string
	}{
		{adminItem.ID, adminToken},
		{userItem.ID, userToken},
	} {
		req, _ := authRequest("POST", server.URL+"/api/items/"+itoa(c.id)+"/adjust", c.token, map[string]any{
			"change_quantity": -1,
		})
		resp, _ := http.DefaultClient.Do(req)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("adjust: expected 200, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	// The user's global log view only contains their own changes.
	req, _ := authRequest("GET", server.URL+"/api/logs", userToken, nil)
	resp, _ := http.DefaultClient.Do(req)
	var logs []model.ChangeLog
	json.NewDecoder(resp.Body).Decode(&logs)
	resp.Body.Close()
	if len(logs) != 1 {
		t.Fatalf("expected 1 log entry for user, got %d", len(logs))
	}
	if logs[0].ItemID != userItem.ID {
		t.Errorf("expected log for item %d, got %d", userItem.ID, logs[0].ItemID)
	}

	// The administrator sees all changes.
	req, _ = authRequest("GET", server.URL+"/api/logs", adminToken, nil)
	resp, _ = http.DefaultClient.Do(req)
	logs = nil
	json.NewDecoder(resp.Body).Decode(&logs)
	resp.Body.Close()
	if len(logs) != 2 {
		t.Errorf("expected 2 log entries for admin, got %d", len(logs))
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
