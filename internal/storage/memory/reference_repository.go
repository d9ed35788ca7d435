package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/orderfx/internal/domain"
)

// ReferenceRepository хранит набор существующих ID клиентов, платежей или корзин.
type ReferenceRepository struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewReferenceRepository создаёт репозиторий с заранее известными ID.
func NewReferenceRepository(ids ...int64) *ReferenceRepository {
	r := &ReferenceRepository{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		r.ids[id] = struct{}{}
	}
	return r
}

// Add регистрирует ID.
func (r *ReferenceRepository) Add(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[id] = struct{}{}
}

// Remove удаляет ID.
func (r *ReferenceRepository) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, id)
}

// ExistsByID сообщает, зарегистрирован ли ID.
func (r *ReferenceRepository) ExistsByID(id int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok, nil
}

// NewReferenceRepositories создаёт пустые in-memory проверки для клиентов, платежей и корзин.
func NewReferenceRepositories() (domain.ReferenceRepositories, *ReferenceRepository, *ReferenceRepository, *ReferenceRepository) {
	customers := NewReferenceRepository()
	payments := NewReferenceRepository()
	carts := NewReferenceRepository()
	return domain.ReferenceRepositories{
		Customers: customers,
		Payments:  payments,
		Carts:     carts,
	}, customers, payments, carts
}

var _ domain.ExistenceChecker = (*ReferenceRepository)(nil)
