package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"items-api/internal/middleware"
	"items-api/internal/models"
)

// memStore is an in-memory ItemStore with the same semantics as the SQL
// repository, including the asymmetric patch merge.
type memStore struct {
	users  map[int64]*models.User
	items  map[int64]*models.Item
	order  []int64
	nextID int64
}

func newMemStore(users ...*models.User) *memStore {
	s := &memStore{
		users: map[int64]*models.User{},
		items: map[int64]*models.Item{},
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	return s.users[id], nil
}

func (s *memStore) CreateItem(_ context.Context, item *models.Item) error {
	s.nextID++
	item.ID = s.nextID
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	cp := *item
	s.items[item.ID] = &cp
	s.order = append(s.order, item.ID)
	return nil
}

func (s *memStore) ListItems(_ context.Context, offset, limit int) ([]models.Item, error) {
	var all []models.Item
	for _, id := range s.order {
		if it, ok := s.items[id]; ok {
			all = append(all, *it)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *memStore) ListUserItems(_ context.Context, userID int64) ([]models.Item, error) {
	var owned []models.Item
	for _, id := range s.order {
		if it, ok := s.items[id]; ok && it.UserID == userID {
			owned = append(owned, *it)
		}
	}
	return owned, nil
}

func (s *memStore) GetItem(_ context.Context, itemID, userID int64) (*models.Item, error) {
	it, ok := s.items[itemID]
	if !ok || it.UserID != userID {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (s *memStore) UpdateItem(_ context.Context, itemID, userID int64, upd *models.ItemUpdate) (*models.Item, error) {
	it, ok := s.items[itemID]
	if !ok || it.UserID != userID {
		return nil, nil
	}
	if upd.Title != nil && *upd.Title != "" {
		it.Title = *upd.Title
	}
	if upd.Description != nil && *upd.Description != "" {
		it.Description = *upd.Description
	}
	if upd.Done != nil {
		it.Done = *upd.Done
	}
	it.UpdatedAt = time.Now()
	cp := *it
	return &cp, nil
}

func (s *memStore) DeleteItem(_ context.Context, itemID, userID int64) (bool, error) {
	it, ok := s.items[itemID]
	if !ok || it.UserID != userID {
		return false, nil
	}
	delete(s.items, itemID)
	return true, nil
}

// captureSink records published events.
type captureSink struct {
	events []models.ItemEvent
}

func (c *captureSink) PublishItemEvent(_ context.Context, ev *models.ItemEvent) error {
	c.events = append(c.events, *ev)
	return nil
}

var (
	admin = &models.User{ID: 1, Username: "admin", IsAdmin: true, Active: true}
	alice = &models.User{ID: 5, Username: "alice", Active: true}
	bob   = &models.User{ID: 7, Username: "bob", Active: true}
)

func newTestRouter(ic *ItemController, caller *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if caller != nil {
			c.Set(middleware.UserKey, caller)
		}
	})
	r.GET("/items", ic.GetItems)
	r.POST("/users/:user_id/items", ic.CreateItem)
	r.GET("/users/:user_id/items", ic.GetUserItems)
	r.GET("/users/:user_id/items/:item_id", ic.GetItem)
	r.PATCH("/users/:user_id/items/:item_id", ic.PatchItem)
	r.DELETE("/users/:user_id/items/:item_id", ic.DeleteItem)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Item    *models.Item  `json:"item"`
	Items   []models.Item `json:"items"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func seedItem(t *testing.T, s *memStore, userID int64, title string, done bool) *models.Item {
	t.Helper()
	it := &models.Item{Title: title, Description: "d:" + title, Done: done, UserID: userID}
	require.NoError(t, s.CreateItem(context.Background(), it))
	return it
}

func TestCreateItemAsOwner(t *testing.T) {
	store := newMemStore(alice)
	r := newTestRouter(New(store, nil), alice)

	w := do(r, http.MethodPost, "/users/5/items", `{"title":"Buy milk","description":"2%","done":false}`)
	require.Equal(t, http.StatusCreated, w.Code)
	env := decode(t, w)
	assert.Equal(t, "Success", env.Status)
	assert.Equal(t, "Item created successfully!", env.Message)
	require.NotNil(t, env.Item)
	assert.Equal(t, "Buy milk", env.Item.Title)
	assert.Equal(t, "2%", env.Item.Description)
	assert.False(t, env.Item.Done)
	assert.Equal(t, int64(5), env.Item.UserID)
	assert.NotZero(t, env.Item.ID)
}

func TestCreateItemAdminForOtherUser(t *testing.T) {
	store := newMemStore(admin, alice)
	r := newTestRouter(New(store, nil), admin)

	w := do(r, http.MethodPost, "/users/5/items", `{"title":"Buy milk","description":"2%","done":false}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(5), decode(t, w).Item.UserID)
}

func TestCreateItemForbiddenCrossUser(t *testing.T) {
	store := newMemStore(alice, bob)
	r := newTestRouter(New(store, nil), bob)

	w := do(r, http.MethodPost, "/users/5/items", `{"title":"Buy milk","description":"2%","done":false}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "necessary rights")
	assert.Empty(t, store.items)
}

func TestCreateItemUserNotFound(t *testing.T) {
	store := newMemStore(admin)
	r := newTestRouter(New(store, nil), admin)

	w := do(r, http.MethodPost, "/users/99/items", `{"title":"t","description":"d","done":true}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "User with id 99 not found!")
	assert.Empty(t, store.items, "no row may be created for a missing user")
}

func TestCreateItemValidation(t *testing.T) {
	store := newMemStore(alice)
	r := newTestRouter(New(store, nil), alice)

	tests := []struct {
		name string
		body string
	}{
		{"missing done", `{"title":"t","description":"d"}`},
		{"missing title", `{"description":"d","done":false}`},
		{"wrong type", `{"title":5,"description":"d","done":false}`},
		{"not json", `not-json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/users/5/items", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		})
	}
	assert.Empty(t, store.items)
}

func TestPathParamValidation(t *testing.T) {
	store := newMemStore(admin)
	r := newTestRouter(New(store, nil), admin)

	for _, path := range []string{"/users/0/items", "/users/-3/items", "/users/abc/items"} {
		w := do(r, http.MethodPost, path, `{"title":"t","description":"d","done":false}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, path)
	}
	w := do(r, http.MethodGet, "/users/5/items/0", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestListItemsAdminOnly(t *testing.T) {
	store := newMemStore(admin, alice)
	seedItem(t, store, 5, "a", false)

	// Non-admin is refused even though some of the items are their own.
	w := do(newTestRouter(New(store, nil), alice), http.MethodGet, "/items", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(newTestRouter(New(store, nil), admin), http.MethodGet, "/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, "Items retrieved successfully!", env.Message)
	assert.Len(t, env.Items, 1)
}

func TestListItemsEmptyStore(t *testing.T) {
	store := newMemStore(admin)
	r := newTestRouter(New(store, nil), admin)

	w := do(r, http.MethodGet, "/items", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestListItemsPagination(t *testing.T) {
	store := newMemStore(admin, alice)
	for i := 0; i < 15; i++ {
		seedItem(t, store, 5, fmt.Sprintf("item-%02d", i), false)
	}
	r := newTestRouter(New(store, nil), admin)

	// Default limit is 10.
	w := do(r, http.MethodGet, "/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w).Items, 10)

	w = do(r, http.MethodGet, "/items?offset=10&limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Len(t, env.Items, 5)
	assert.Equal(t, "item-10", env.Items[0].Title)

	// Pagination is pushed to storage, so an offset past the end is an
	// empty page and signals no content.
	w = do(r, http.MethodGet, "/items?offset=100", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestListItemsQueryValidation(t *testing.T) {
	store := newMemStore(admin)
	r := newTestRouter(New(store, nil), admin)

	for _, q := range []string{"offset=-1", "limit=0", "offset=x", "limit=y"} {
		w := do(r, http.MethodGet, "/items?"+q, "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, q)
	}
}

func TestListUserItemsNoContent(t *testing.T) {
	store := newMemStore(alice)
	r := newTestRouter(New(store, nil), alice)

	w := do(r, http.MethodGet, "/users/5/items", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestListUserItemsOffsetPastEnd(t *testing.T) {
	store := newMemStore(alice)
	seedItem(t, store, 5, "only", false)
	r := newTestRouter(New(store, nil), alice)

	// The user owns items, so an offset past the collection is an empty
	// 200 list, not 204.
	w := do(r, http.MethodGet, "/users/5/items?offset=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.NotNil(t, env.Items)
	assert.Empty(t, env.Items)
	assert.Contains(t, w.Body.String(), `"items":[]`)
}

func TestListUserItemsPagination(t *testing.T) {
	store := newMemStore(admin, alice, bob)
	for i := 0; i < 12; i++ {
		seedItem(t, store, 5, fmt.Sprintf("alice-%02d", i), false)
	}
	seedItem(t, store, 7, "bob-item", false)

	r := newTestRouter(New(store, nil), admin)
	w := do(r, http.MethodGet, "/users/5/items?offset=5&limit=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	require.Len(t, env.Items, 3)
	assert.Equal(t, "alice-05", env.Items[0].Title)
	for _, it := range env.Items {
		assert.Equal(t, int64(5), it.UserID)
	}
}

func TestListUserItemsAuthz(t *testing.T) {
	store := newMemStore(alice, bob)
	seedItem(t, store, 5, "a", false)

	w := do(newTestRouter(New(store, nil), bob), http.MethodGet, "/users/5/items", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(newTestRouter(New(store, nil), alice), http.MethodGet, "/users/99/items", "")
	assert.Equal(t, http.StatusForbidden, w.Code, "missing target user still fails authz first for non-admins")
}

func TestGetItem(t *testing.T) {
	store := newMemStore(admin, alice, bob)
	it := seedItem(t, store, 5, "mine", true)

	r := newTestRouter(New(store, nil), alice)
	w := do(r, http.MethodGet, fmt.Sprintf("/users/5/items/%d", it.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, "Item retrieved successfully!", env.Message)
	assert.Equal(t, it.ID, env.Item.ID)
	assert.True(t, env.Item.Done)
}

func TestGetItemWrongOwner(t *testing.T) {
	store := newMemStore(admin, alice, bob)
	it := seedItem(t, store, 7, "bobs", false)

	// The item exists but belongs to bob; scoped to alice it is not found.
	r := newTestRouter(New(store, nil), admin)
	w := do(r, http.MethodGet, fmt.Sprintf("/users/5/items/%d", it.ID), "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf("Item with id %d for user with id 5 not found!", it.ID))
}

func TestGetItemUserNotFound(t *testing.T) {
	store := newMemStore(admin)
	r := newTestRouter(New(store, nil), admin)

	w := do(r, http.MethodGet, "/users/42/items/1", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "User with id 42 not found!")
}

func TestPatchItemMerge(t *testing.T) {
	store := newMemStore(alice)
	it := seedItem(t, store, 5, "original", true)
	r := newTestRouter(New(store, nil), alice)
	path := fmt.Sprintf("/users/5/items/%d", it.ID)

	// An empty title is ignored rather than clearing the field.
	w := do(r, http.MethodPatch, path, `{"title":""}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "original", decode(t, w).Item.Title)

	// done: false applies even though it is falsy.
	w = do(r, http.MethodPatch, path, `{"done":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, "Item patched successfully!", env.Message)
	assert.False(t, env.Item.Done)
	assert.Equal(t, "original", env.Item.Title)

	w = do(r, http.MethodPatch, path, `{"title":"renamed","description":"new"}`)
	require.Equal(t, http.StatusOK, w.Code)
	env = decode(t, w)
	assert.Equal(t, "renamed", env.Item.Title)
	assert.Equal(t, "new", env.Item.Description)
	assert.False(t, env.Item.Done)
}

func TestPatchItemNotFound(t *testing.T) {
	store := newMemStore(alice)
	r := newTestRouter(New(store, nil), alice)

	w := do(r, http.MethodPatch, "/users/5/items/33", `{"title":"x"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Item with id 33 for user with id 5 not found!")
}

func TestPatchItemValidation(t *testing.T) {
	store := newMemStore(alice)
	it := seedItem(t, store, 5, "t", false)
	r := newTestRouter(New(store, nil), alice)

	w := do(r, http.MethodPatch, fmt.Sprintf("/users/5/items/%d", it.ID), `{"done":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDeleteItem(t *testing.T) {
	store := newMemStore(alice)
	it := seedItem(t, store, 5, "gone", false)
	r := newTestRouter(New(store, nil), alice)
	path := fmt.Sprintf("/users/5/items/%d", it.ID)

	w := do(r, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, "Item deleted successfully!", env.Message)
	assert.Nil(t, env.Item)
	assert.NotContains(t, w.Body.String(), `"item"`)

	// Delete then get is not found.
	w = do(r, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoundTrip(t *testing.T) {
	store := newMemStore(alice)
	r := newTestRouter(New(store, nil), alice)

	w := do(r, http.MethodPost, "/users/5/items", `{"title":"Buy milk","description":"2%","done":true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w).Item

	w = do(r, http.MethodGet, fmt.Sprintf("/users/5/items/%d", created.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w).Item
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.Description, got.Description)
	assert.Equal(t, created.Done, got.Done)
}

func TestWriteEventsPublished(t *testing.T) {
	store := newMemStore(alice)
	sink := &captureSink{}
	r := newTestRouter(New(store, sink), alice)

	w := do(r, http.MethodPost, "/users/5/items", `{"title":"t","description":"d","done":false}`)
	require.Equal(t, http.StatusCreated, w.Code)
	itemID := decode(t, w).Item.ID
	path := fmt.Sprintf("/users/5/items/%d", itemID)

	require.Equal(t, http.StatusOK, do(r, http.MethodPatch, path, `{"done":true}`).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodDelete, path, "").Code)

	require.Len(t, sink.events, 3)
	actions := []string{sink.events[0].Action, sink.events[1].Action, sink.events[2].Action}
	sort.Strings(actions)
	assert.Equal(t, []string{"created", "deleted", "updated"}, actions)
	for _, ev := range sink.events {
		assert.Equal(t, itemID, ev.ItemID)
		assert.Equal(t, int64(5), ev.UserID)
		assert.Equal(t, alice.ID, ev.ActorID)
		assert.NotEmpty(t, ev.EventID)
	}
}
