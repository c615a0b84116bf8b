package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing/internal/apperr"
	"billing/internal/model"
	"billing/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DTOs
type BatchRequest struct {
	Label     string `json:"label"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	UnitCost  string `json:"unit_cost"`
	ExpiresAt string `json:"expires_at"` // RFC3339, optional
}

type CreateProductRequest struct {
	SKU     string `json:"sku"`
	Name    string `json:"name" binding:"required"`
	Type    string `json:"type" binding:"omitempty,oneof=good service"`
	Price   string `json:"price" binding:"required"`
	Cost    string `json:"cost"`
	TaxRate string `json:"tax_rate"`
}

type UpdateProductRequest struct {
	SKU     *string `json:"sku"`
	Name    *string `json:"name"`
	Price   *string `json:"price"`
	Cost    *string `json:"cost"`
	TaxRate *string `json:"tax_rate"`
}

// AdjustStockRequest receives inventory: a positive quantity adds a batch
// and raises the aggregate stock.
type AdjustStockRequest struct {
	Quantity int          `json:"quantity" binding:"required"`
	Batch    *BatchRequest `json:"batch"`
}

type ProductService interface {
	Create(ctx context.Context, tenantID string, req CreateProductRequest) (*model.Product, error)
	Update(ctx context.Context, tenantID, id string, req UpdateProductRequest) (*model.Product, error)
	Delete(ctx context.Context, tenantID, id string) error
	Get(ctx context.Context, tenantID, id string) (*model.Product, error)
	List(ctx context.Context, tenantID string, page, limit int, search string) ([]model.Product, int64, error)
	AdjustStock(ctx context.Context, tenantID, id string, req AdjustStockRequest) (*model.Product, error)
}

type productService struct {
	productRepo repository.ProductRepository
	txManager   repository.TransactionManager
}

func NewProductService(productRepo repository.ProductRepository, txManager repository.TransactionManager) ProductService {
	return &productService{productRepo: productRepo, txManager: txManager}
}

func (s *productService) Create(ctx context.Context, tenantID string, req CreateProductRequest) (*model.Product, error) {
	price, err := parseAmount(req.Price, "price")
	if err != nil {
		return nil, err
	}
	cost, err := parseAmount(req.Cost, "cost")
	if err != nil {
		return nil, err
	}
	taxRate, err := parseAmount(req.TaxRate, "tax_rate")
	if err != nil {
		return nil, err
	}

	productType := req.Type
	if productType == "" {
		productType = model.ItemTypeGood
	}

	product := &model.Product{
		ID:       uuid.New(),
		TenantID: tenantID,
		SKU:      req.SKU,
		Name:     req.Name,
		Type:     productType,
		Price:    price,
		Cost:     cost,
		TaxRate:  taxRate,
		Batches:  model.Batches{},
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

func (s *productService) Update(ctx context.Context, tenantID, id string, req UpdateProductRequest) (*model.Product, error) {
	productID, err := parseID(id, "product")
	if err != nil {
		return nil, err
	}

	product, err := s.findOwned(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}

	if req.SKU != nil {
		product.SKU = *req.SKU
	}
	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Price != nil {
		if product.Price, err = parseAmount(*req.Price, "price"); err != nil {
			return nil, err
		}
	}
	if req.Cost != nil {
		if product.Cost, err = parseAmount(*req.Cost, "cost"); err != nil {
			return nil, err
		}
	}
	if req.TaxRate != nil {
		if product.TaxRate, err = parseAmount(*req.TaxRate, "tax_rate"); err != nil {
			return nil, err
		}
	}

	if err := s.productRepo.Save(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return product, nil
}

func (s *productService) Delete(ctx context.Context, tenantID, id string) error {
	productID, err := parseID(id, "product")
	if err != nil {
		return err
	}
	if _, err := s.findOwned(ctx, tenantID, productID); err != nil {
		return err
	}
	return s.productRepo.Delete(ctx, productID)
}

func (s *productService) Get(ctx context.Context, tenantID, id string) (*model.Product, error) {
	productID, err := parseID(id, "product")
	if err != nil {
		return nil, err
	}
	return s.findOwned(ctx, tenantID, productID)
}

func (s *productService) List(ctx context.Context, tenantID string, page, limit int, search string) ([]model.Product, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.productRepo.List(ctx, tenantID, page, limit, search)
}

func (s *productService) AdjustStock(ctx context.Context, tenantID, id string, req AdjustStockRequest) (*model.Product, error) {
	productID, err := parseID(id, "product")
	if err != nil {
		return nil, err
	}
	if req.Quantity == 0 {
		return nil, apperr.InvalidArgument("quantity must be non-zero")
	}

	var result *model.Product
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product, findErr := s.productRepo.FindByIDForUpdate(txCtx, productID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperr.NotFound("product not found")
			}
			return fmt.Errorf("failed to read product: %w", findErr)
		}
		if product.TenantID != tenantID {
			return apperr.PermissionDenied("product belongs to another tenant")
		}
		if !product.IsGood() {
			return apperr.FailedPrecondition("services carry no stock")
		}

		product.Stock += req.Quantity
		if req.Quantity > 0 && req.Batch != nil {
			batch := model.Batch{
				Label:    req.Batch.Label,
				Quantity: req.Quantity,
			}
			if batch.UnitCost, findErr = parseAmount(req.Batch.UnitCost, "unit_cost"); findErr != nil {
				return findErr
			}
			if req.Batch.ExpiresAt != "" {
				expires, parseErr := time.Parse(time.RFC3339, req.Batch.ExpiresAt)
				if parseErr != nil {
					return apperr.InvalidArgument("invalid expires_at: %v", parseErr)
				}
				batch.ExpiresAt = &expires
			}
			product.Batches = append(product.Batches, batch)
		}

		if saveErr := s.productRepo.Save(txCtx, product); saveErr != nil {
			return fmt.Errorf("failed to adjust stock: %w", saveErr)
		}
		result = product
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *productService) findOwned(ctx context.Context, tenantID string, id uuid.UUID) (*model.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, fmt.Errorf("failed to read product: %w", err)
	}
	if product.TenantID != tenantID {
		return nil, apperr.PermissionDenied("product belongs to another tenant")
	}
	return product, nil
}
