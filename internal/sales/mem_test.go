package sales

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emporia/console/internal/shared"
)

type memRepo struct {
	mu     sync.Mutex
	orders map[int64]Order
	quotes map[int64]Quote
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[int64]Order{}, quotes: map[int64]Quote{}}
}

func (m *memRepo) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(o.Number+" "+o.CustomerName), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, f.Offset, f.Limit), len(out), nil
}

func (m *memRepo) GetOrder(ctx context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *memRepo) UpdateOrderStatus(ctx context.Context, id int64, from, to OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrInvalidStatus
	}
	o.Status = to
	m.orders[id] = o
	return nil
}

func (m *memRepo) CountOrders(ctx context.Context, status OrderStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) ListQuotes(ctx context.Context, f QuoteFilter) ([]Quote, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Quote
	for _, q := range m.quotes {
		if f.Status != "" && q.Status != f.Status {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, f.Offset, f.Limit), len(out), nil
}

func (m *memRepo) GetQuote(ctx context.Context, id int64) (Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return Quote{}, ErrNotFound
	}
	return q, nil
}

func (m *memRepo) CreateQuote(ctx context.Context, q Quote) (Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	q.ID = m.nextID
	q.CreatedAt = time.Now().UTC()
	q.UpdatedAt = q.CreatedAt
	m.quotes[q.ID] = q
	return q, nil
}

func (m *memRepo) UpdateDraftQuote(ctx context.Context, id int64, q Quote) (Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.quotes[id]
	if !ok {
		return Quote{}, ErrNotFound
	}
	if cur.Status != QuoteDraft {
		return Quote{}, ErrQuoteLocked
	}
	q.ID, q.Number, q.Status, q.CreatedBy, q.CreatedAt = cur.ID, cur.Number, cur.Status, cur.CreatedBy, cur.CreatedAt
	q.UpdatedAt = time.Now().UTC()
	m.quotes[id] = q
	return q, nil
}

func (m *memRepo) SetQuoteStatus(ctx context.Context, id int64, from, to QuoteStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return ErrNotFound
	}
	if q.Status != from {
		return ErrInvalidStatus
	}
	q.Status = to
	m.quotes[id] = q
	return nil
}

func (m *memRepo) DeleteQuote(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return ErrNotFound
	}
	if q.Status == QuoteSent || q.Status == QuoteAccepted {
		return ErrQuoteLocked
	}
	delete(m.quotes, id)
	return nil
}

func (m *memRepo) CountOpenQuotes(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, q := range m.quotes {
		if q.Status == QuoteDraft || q.Status == QuoteSent {
			n++
		}
	}
	return n, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type auditSpy struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *auditSpy) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditSpy) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}
