package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"items-api/internal/auth"
	"items-api/internal/cache"
	"items-api/internal/database"
	"items-api/internal/middleware"
	"items-api/internal/models"
	"items-api/pkg/logger"
)

const (
	msgForbidden     = "Given user does not have the necessary rights for this operation!"
	msgItemCreated   = "Item created successfully!"
	msgItemsFetched  = "Items retrieved successfully!"
	msgItemFetched   = "Item retrieved successfully!"
	msgItemPatched   = "Item patched successfully!"
	msgItemDeleted   = "Item deleted successfully!"
	defaultPageLimit = 10
)

// ItemStore is the persistence surface the handlers need.
type ItemStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateItem(ctx context.Context, item *models.Item) error
	ListItems(ctx context.Context, offset, limit int) ([]models.Item, error)
	ListUserItems(ctx context.Context, userID int64) ([]models.Item, error)
	GetItem(ctx context.Context, itemID, userID int64) (*models.Item, error)
	UpdateItem(ctx context.Context, itemID, userID int64, upd *models.ItemUpdate) (*models.Item, error)
	DeleteItem(ctx context.Context, itemID, userID int64) (bool, error)
}

// EventSink receives item change notifications after successful writes.
type EventSink interface {
	PublishItemEvent(ctx context.Context, ev *models.ItemEvent) error
}

// ItemController binds the item CRUD operations to a store and an optional
// event sink.
type ItemController struct {
	store  ItemStore
	events EventSink
}

// New returns an ItemController. events may be nil to disable publication.
func New(store ItemStore, events EventSink) *ItemController {
	return &ItemController{store: store, events: events}
}

var listItemsGroup singleflight.Group

func currentUser(c *gin.Context) *models.User {
	v, _ := c.Get(middleware.UserKey)
	u, _ := v.(*models.User)
	return u
}

// pathID parses a path parameter that must be a positive integer. Writes a
// 422 and returns false otherwise.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": fmt.Sprintf("Path parameter %s must be a positive integer!", name),
		})
		return 0, false
	}
	return id, true
}

// pagination parses offset (>= 0, default 0) and limit (>= 1, default 10).
// Writes a 422 and returns false on out-of-range or non-integer values.
func pagination(c *gin.Context) (offset, limit int, ok bool) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Query parameter offset must be a non-negative integer!"})
		return 0, 0, false
	}
	limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Query parameter limit must be a positive integer!"})
		return 0, 0, false
	}
	return offset, limit, true
}

func userNotFound(c *gin.Context, userID int64) {
	c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("User with id %d not found!", userID)})
}

func itemNotFound(c *gin.Context, itemID, userID int64) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": fmt.Sprintf("Item with id %d for user with id %d not found!", itemID, userID),
	})
}

// requireUser verifies the target user exists. Writes the 404/500 response
// itself and returns false when the handler should stop.
func (ic *ItemController) requireUser(c *gin.Context, userID int64) bool {
	user, err := ic.store.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve user"})
		return false
	}
	if user == nil {
		userNotFound(c, userID)
		return false
	}
	return true
}

func (ic *ItemController) publish(ctx context.Context, action string, item *models.Item, actor *models.User) {
	if ic.events == nil {
		return
	}
	ev := &models.ItemEvent{
		EventID:    uuid.New().String(),
		Action:     action,
		ItemID:     item.ID,
		UserID:     item.UserID,
		ActorID:    actor.ID,
		OccurredAt: time.Now(),
	}
	if err := ic.events.PublishItemEvent(ctx, ev); err != nil {
		logger.Error(ctx, "Item event publish failed", "error", err, "action", action, "item_id", item.ID)
	}
}

// CreateItem handles POST /users/:user_id/items.
func (ic *ItemController) CreateItem(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	caller := currentUser(c)
	if !auth.CanAccess(caller, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": msgForbidden})
		return
	}
	var body models.ItemBase
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if !ic.requireUser(c, userID) {
		return
	}
	item := &models.Item{
		Title:       *body.Title,
		Description: *body.Description,
		Done:        *body.Done,
		UserID:      userID,
	}
	ctx := c.Request.Context()
	if err := ic.store.CreateItem(ctx, item); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create item"})
		return
	}
	ic.publish(ctx, "created", item, caller)
	c.JSON(http.StatusCreated, gin.H{
		"status":  "Success",
		"message": msgItemCreated,
		"item":    item,
	})
}

// GetItems handles GET /items. Admin only; pagination is pushed to storage,
// and pages are served from Redis when possible (cache misses coalesced per
// page so a cold cache causes one query, not one per request).
func (ic *ItemController) GetItems(c *gin.Context) {
	caller := currentUser(c)
	if caller == nil || !caller.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": msgForbidden})
		return
	}
	offset, limit, ok := pagination(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if b, hit := cache.GetRawPage(ctx, offset, limit); hit {
		c.JSON(http.StatusOK, gin.H{
			"status":  "Success",
			"message": msgItemsFetched,
			"items":   json.RawMessage(b),
		})
		return
	}
	v, err, _ := listItemsGroup.Do(cache.PageKey(offset, limit), func() (interface{}, error) {
		return ic.store.ListItems(context.Background(), offset, limit)
	})
	if err != nil {
		if ctx.Err() != nil || isContextErr(err) {
			return
		}
		logger.Error(ctx, "GetItems store failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get items"})
		return
	}
	items := v.([]models.Item)
	if len(items) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	b, err := json.Marshal(items)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get items"})
		return
	}
	go cache.SetRawPageAsync(offset, limit, b)
	c.JSON(http.StatusOK, gin.H{
		"status":  "Success",
		"message": msgItemsFetched,
		"items":   json.RawMessage(b),
	})
}

// GetUserItems handles GET /users/:user_id/items. The user's full collection
// is loaded and paginated in memory: a user with zero items yields 204, while
// an offset past the end of a non-empty collection yields 200 with an empty
// list.
func (ic *ItemController) GetUserItems(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if !auth.CanAccess(currentUser(c), userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": msgForbidden})
		return
	}
	offset, limit, ok := pagination(c)
	if !ok {
		return
	}
	if !ic.requireUser(c, userID) {
		return
	}
	items, err := ic.store.ListUserItems(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get items"})
		return
	}
	if len(items) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	page := []models.Item{}
	if offset < len(items) {
		end := offset + limit
		if end > len(items) {
			end = len(items)
		}
		page = items[offset:end]
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "Success",
		"message": msgItemsFetched,
		"items":   page,
	})
}

// GetItem handles GET /users/:user_id/items/:item_id.
func (ic *ItemController) GetItem(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}
	if !auth.CanAccess(currentUser(c), userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": msgForbidden})
		return
	}
	if !ic.requireUser(c, userID) {
		return
	}
	item, err := ic.store.GetItem(c.Request.Context(), itemID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get item"})
		return
	}
	if item == nil {
		itemNotFound(c, itemID, userID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "Success",
		"message": msgItemFetched,
		"item":    item,
	})
}

// PatchItem handles PATCH /users/:user_id/items/:item_id. Title and
// description only replace the stored value when supplied non-empty; done
// applies whenever present, including false.
func (ic *ItemController) PatchItem(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}
	caller := currentUser(c)
	if !auth.CanAccess(caller, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": msgForbidden})
		return
	}
	var body models.ItemUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if !ic.requireUser(c, userID) {
		return
	}
	ctx := c.Request.Context()
	item, err := ic.store.UpdateItem(ctx, itemID, userID, &body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update item"})
		return
	}
	if item == nil {
		itemNotFound(c, itemID, userID)
		return
	}
	ic.publish(ctx, "updated", item, caller)
	c.JSON(http.StatusOK, gin.H{
		"status":  "Success",
		"message": msgItemPatched,
		"item":    item,
	})
}

// DeleteItem handles DELETE /users/:user_id/items/:item_id.
func (ic *ItemController) DeleteItem(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}
	caller := currentUser(c)
	if !auth.CanAccess(caller, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": msgForbidden})
		return
	}
	if !ic.requireUser(c, userID) {
		return
	}
	ctx := c.Request.Context()
	deleted, err := ic.store.DeleteItem(ctx, itemID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete item"})
		return
	}
	if !deleted {
		itemNotFound(c, itemID, userID)
		return
	}
	ic.publish(ctx, "deleted", &models.Item{ID: itemID, UserID: userID}, caller)
	c.JSON(http.StatusOK, gin.H{
		"status":  "Success",
		"message": msgItemDeleted,
	})
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Health returns 200 if the process is alive. Used by load balancers.
func Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Ready returns 200 if DB and Redis are reachable. Used by K8s readiness probes.
func Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if cache.Client(ctx) == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
		return
	}
	db := database.DB(ctx)
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
		return
	}
	if err := db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database ping failed"})
		return
	}
	c.String(http.StatusOK, "OK")
}
