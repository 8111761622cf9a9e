package export

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/omnifeed/feed-export-service/internal/catalog"
	"github.com/omnifeed/feed-export-service/internal/model"
)

// fakeRepo serves a fixed product list through the catalog boundary.
type fakeRepo struct {
	products []*model.Product
	bookIDs  []string

	countErr error
	openErr  error
}

func (r *fakeRepo) Count(context.Context) (int64, error) {
	return int64(len(r.products)), r.countErr
}

func (r *fakeRepo) Products(context.Context) (catalog.Cursor, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	return &fakeCursor{products: r.products}, nil
}

func (r *fakeRepo) PriceBookIDs(context.Context) ([]string, error) {
	return r.bookIDs, nil
}

type fakeCursor struct {
	mu       sync.Mutex
	products []*model.Product
	pos      int
	closed   int
}

func (c *fakeCursor) Next(ctx context.Context) (*model.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos >= len(c.products) {
		return nil, io.EOF
	}
	p := c.products[c.pos]
	c.pos++
	return p, nil
}

func (c *fakeCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// fakeNotifier records the completion events it receives.
type fakeNotifier struct {
	mu     sync.Mutex
	events []fakeEvent
}

type fakeEvent struct {
	runID      string
	exportType string
	path       string
	rows       int64
	status     string
}

func (n *fakeNotifier) FeedCompleted(_ context.Context, runID, exportType, path string, rows int64, status string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, fakeEvent{runID: runID, exportType: exportType, path: path, rows: rows, status: status})
	return nil
}
