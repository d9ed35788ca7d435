package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderVersionConflict, если ID уже занят.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id int64) (Order, error)
	// List возвращает все заказы, упорядоченные по ID.
	List() ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// ExistenceChecker проверяет наличие связанной сущности (клиента, платежа, корзины) по ID.
type ExistenceChecker interface {
	ExistsByID(id int64) (bool, error)
}

// ReferenceRepositories группирует проверки связанных с заказом агрегатов.
type ReferenceRepositories struct {
	Customers ExistenceChecker
	Payments  ExistenceChecker
	Carts     ExistenceChecker
}
