package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/frozen-haven/api/internal/domain"
	pfirestore "github.com/frozen-haven/api/internal/platform/firestore"
	"github.com/frozen-haven/api/internal/repositories"
)

const (
	productsCollection       = "products"
	stockMovementsCollection = "stockMovements"
)

// ProductRepository stores the catalog and its stock movement ledger.
type ProductRepository struct {
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{provider: provider}, nil
}

// Get loads a single product by document id.
func (r *ProductRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorInvalidMovement, "product id is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, wrapStockError("products.get", err)
	}

	snap, err := client.Collection(productsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Product{}, productNotFound(id, err)
		}
		return domain.Product{}, wrapStockError("products.get", err)
	}

	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// GetMany loads the requested products keyed by id. Missing ids are absent from the result.
func (r *ProductRepository) GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapStockError("products.getMany", err)
	}

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, client.Collection(productsCollection).Doc(id))
	}
	if len(refs) == 0 {
		return map[string]domain.Product{}, nil
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, wrapStockError("products.getMany", err)
	}

	products := make(map[string]domain.Product, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return products, nil
}

// List returns catalog entries ordered by title.
func (r *ProductRepository) List(ctx context.Context, query repositories.ProductListQuery) ([]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapStockError("products.list", err)
	}

	q := client.Collection(productsCollection).Query
	if query.ActiveOnly {
		q = q.Where("active", "==", true)
	}
	if category := strings.TrimSpace(query.Category); category != "" {
		q = q.Where("category", "==", category)
	}
	q = q.OrderBy("title", firestore.Asc)
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapStockError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}
	return products, nil
}

// ApplyMovements applies every movement inside one transaction. Reads happen
// before writes as Firestore requires; movements for the same product are
// folded over the running stock value so a multi-line order is checked as a
// whole.
func (r *ProductRepository) ApplyMovements(ctx context.Context, movements []domain.StockMovement) ([]domain.StockMovement, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	if err := validateMovements(movements); err != nil {
		return nil, err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapStockError("stock.applyMovements", err)
	}

	var applied []domain.StockMovement
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		var txErr error
		applied, txErr = applyMovementsTx(client, tx, movements)
		return txErr
	})
	if err != nil {
		return nil, wrapStockError("stock.applyMovements", err)
	}
	return applied, nil
}

func validateMovements(movements []domain.StockMovement) error {
	if len(movements) == 0 {
		return repositories.NewStockError(repositories.StockErrorInvalidMovement, "at least one movement is required", nil)
	}
	for _, m := range movements {
		if strings.TrimSpace(m.ID) == "" {
			return repositories.NewStockError(repositories.StockErrorInvalidMovement, "movement id is required", nil)
		}
		if strings.TrimSpace(m.ProductID) == "" {
			return repositories.NewStockError(repositories.StockErrorInvalidMovement, "movement product id is required", nil)
		}
		if !m.Type.Valid() {
			return repositories.NewStockError(repositories.StockErrorInvalidMovement, fmt.Sprintf("unknown movement type %q", m.Type), nil)
		}
		if m.Quantity < 0 || (m.Type != domain.MovementAdjustment && m.Quantity == 0) {
			return repositories.NewStockError(repositories.StockErrorInvalidMovement, fmt.Sprintf("movement quantity %d is not allowed", m.Quantity), nil)
		}
	}
	return nil
}

// applyMovementsTx reads every touched product, folds the movements over the
// running stock values and stages the writes. All reads happen before any
// write as Firestore transactions require, so callers may stage further
// writes (but no reads) afterwards.
func applyMovementsTx(client *firestore.Client, tx *firestore.Transaction, movements []domain.StockMovement) ([]domain.StockMovement, error) {
	productRefs := make(map[string]*firestore.DocumentRef)
	productDocs := make(map[string]productDocument)
	for _, m := range movements {
		if _, ok := productRefs[m.ProductID]; ok {
			continue
		}
		ref := client.Collection(productsCollection).Doc(m.ProductID)
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, productNotFound(m.ProductID, err)
			}
			return nil, err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", m.ProductID, err)
		}
		productRefs[m.ProductID] = ref
		productDocs[m.ProductID] = doc
	}

	applied := make([]domain.StockMovement, len(movements))
	for i, m := range movements {
		doc := productDocs[m.ProductID]
		previous := doc.Stock

		var next int
		switch m.Type {
		case domain.MovementIn:
			next = previous + m.Quantity
		case domain.MovementOut:
			if previous < m.Quantity {
				return nil, &repositories.StockError{
					Code:      repositories.StockErrorInsufficient,
					Message:   fmt.Sprintf("insufficient stock for %s", m.ProductID),
					ProductID: m.ProductID,
					Available: previous,
					Requested: m.Quantity,
				}
			}
			next = previous - m.Quantity
		case domain.MovementAdjustment:
			next = m.Quantity
		}

		doc.Stock = next
		doc.UpdatedAt = m.CreatedAt.UTC()
		productDocs[m.ProductID] = doc

		m.PreviousStock = previous
		m.NewStock = next
		applied[i] = m
	}

	for productID, doc := range productDocs {
		if err := tx.Set(productRefs[productID], doc); err != nil {
			return nil, err
		}
	}
	for _, m := range applied {
		movementRef := client.Collection(stockMovementsCollection).Doc(m.ID)
		if err := tx.Create(movementRef, newMovementDocument(m)); err != nil {
			return nil, err
		}
	}
	return applied, nil
}

// ListMovements returns ledger entries newest first.
func (r *ProductRepository) ListMovements(ctx context.Context, query repositories.MovementListQuery) ([]domain.StockMovement, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapStockError("stock.listMovements", err)
	}

	q := client.Collection(stockMovementsCollection).Query
	if productID := strings.TrimSpace(query.ProductID); productID != "" {
		q = q.Where("productId", "==", productID)
	}
	q = q.OrderBy("createdAt", firestore.Desc)
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var movements []domain.StockMovement
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapStockError("stock.listMovements", err)
		}
		var doc movementDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode movement %s: %w", snap.Ref.ID, err)
		}
		movements = append(movements, doc.toDomain(snap.Ref.ID))
	}
	return movements, nil
}

// ListLowStock returns active products with stock at or below the threshold.
func (r *ProductRepository) ListLowStock(ctx context.Context, threshold, limit int) ([]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	if threshold < 0 {
		threshold = 0
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapStockError("stock.listLowStock", err)
	}

	q := client.Collection(productsCollection).Query.
		Where("active", "==", true).
		Where("stock", "<=", threshold).
		OrderBy("stock", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapStockError("stock.listLowStock", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}
	return products, nil
}

// SetImageURL patches the product image after a completed upload.
func (r *ProductRepository) SetImageURL(ctx context.Context, productID, imageURL string, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return repositories.NewStockError(repositories.StockErrorInvalidMovement, "product id is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return wrapStockError("products.setImageURL", err)
	}

	_, err = client.Collection(productsCollection).Doc(productID).Update(ctx, []firestore.Update{
		{Path: "imageUrl", Value: strings.TrimSpace(imageURL)},
		{Path: "updatedAt", Value: now.UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return productNotFound(productID, err)
		}
		return wrapStockError("products.setImageURL", err)
	}
	return nil
}

// Document shapes -----------------------------------------------------------

type productDocument struct {
	Title       string    `firestore:"title"`
	Description string    `firestore:"description"`
	Category    string    `firestore:"category"`
	Unit        string    `firestore:"unit"`
	Price       float64   `firestore:"price"`
	Stock       int       `firestore:"stock"`
	ImageURL    string    `firestore:"imageUrl"`
	Active      bool      `firestore:"active"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Unit:        d.Unit,
		Price:       d.Price,
		Stock:       d.Stock,
		ImageURL:    d.ImageURL,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type movementDocument struct {
	ProductID     string    `firestore:"productId"`
	Type          string    `firestore:"type"`
	Quantity      int       `firestore:"quantity"`
	PreviousStock int       `firestore:"previousStock"`
	NewStock      int       `firestore:"newStock"`
	Reason        string    `firestore:"reason"`
	Reference     string    `firestore:"reference,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

func newMovementDocument(m domain.StockMovement) movementDocument {
	return movementDocument{
		ProductID:     m.ProductID,
		Type:          string(m.Type),
		Quantity:      m.Quantity,
		PreviousStock: m.PreviousStock,
		NewStock:      m.NewStock,
		Reason:        strings.TrimSpace(m.Reason),
		Reference:     strings.TrimSpace(m.Reference),
		CreatedAt:     m.CreatedAt.UTC(),
	}
}

func (d movementDocument) toDomain(id string) domain.StockMovement {
	return domain.StockMovement{
		ID:            id,
		ProductID:     d.ProductID,
		Type:          domain.MovementType(d.Type),
		Quantity:      d.Quantity,
		PreviousStock: d.PreviousStock,
		NewStock:      d.NewStock,
		Reason:        d.Reason,
		Reference:     d.Reference,
		CreatedAt:     d.CreatedAt,
	}
}

func productNotFound(id string, err error) *repositories.StockError {
	return &repositories.StockError{
		Code:      repositories.StockErrorProductNotFound,
		Message:   fmt.Sprintf("product %s not found", id),
		ProductID: id,
		Err:       err,
	}
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
