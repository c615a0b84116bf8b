package service

import (
	"context"
	"errors"
	"fmt"

	"billing/internal/apperr"
	"billing/internal/model"
	"billing/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DTOs
type ClientRequest struct {
	Name    string `json:"name" binding:"required"`
	RNC     string `json:"rnc"`
	Email   string `json:"email" binding:"omitempty,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type ClientService interface {
	Create(ctx context.Context, tenantID string, req ClientRequest) (*model.Client, error)
	Update(ctx context.Context, tenantID, id string, req ClientRequest) (*model.Client, error)
	Delete(ctx context.Context, tenantID, id string) error
	Get(ctx context.Context, tenantID, id string) (*model.Client, error)
	List(ctx context.Context, tenantID string, page, limit int, search string) ([]model.Client, int64, error)
}

type clientService struct {
	clientRepo repository.ClientRepository
}

func NewClientService(clientRepo repository.ClientRepository) ClientService {
	return &clientService{clientRepo: clientRepo}
}

func (s *clientService) Create(ctx context.Context, tenantID string, req ClientRequest) (*model.Client, error) {
	client := &model.Client{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     req.Name,
		RNC:      req.RNC,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
	}
	if err := s.clientRepo.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (s *clientService) Update(ctx context.Context, tenantID, id string, req ClientRequest) (*model.Client, error) {
	client, err := s.findOwned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	client.Name = req.Name
	client.RNC = req.RNC
	client.Email = req.Email
	client.Phone = req.Phone
	client.Address = req.Address

	if err := s.clientRepo.Save(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return client, nil
}

func (s *clientService) Delete(ctx context.Context, tenantID, id string) error {
	client, err := s.findOwned(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return s.clientRepo.Delete(ctx, client.ID)
}

func (s *clientService) Get(ctx context.Context, tenantID, id string) (*model.Client, error) {
	return s.findOwned(ctx, tenantID, id)
}

func (s *clientService) List(ctx context.Context, tenantID string, page, limit int, search string) ([]model.Client, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.clientRepo.List(ctx, tenantID, page, limit, search)
}

func (s *clientService) findOwned(ctx context.Context, tenantID, id string) (*model.Client, error) {
	clientID, err := parseID(id, "client")
	if err != nil {
		return nil, err
	}

	client, err := s.clientRepo.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("client not found")
		}
		return nil, fmt.Errorf("failed to read client: %w", err)
	}
	if client.TenantID != tenantID {
		return nil, apperr.PermissionDenied("client belongs to another tenant")
	}
	return client, nil
}
