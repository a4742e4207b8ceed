package handlers

import (
	"context"

	"github.com/toolshare/admin_api/dto"
	"github.com/toolshare/admin_api/model"
)

type SecurityLogServiceInterface interface {
	List(ctx context.Context, query dto.SecurityLogQuery) (*dto.SecurityLogListResponse, error)
	Resolve(ctx context.Context, id, actorID, notes, ip string) (*model.SecurityLog, error)
	RecordAdminAction(ctx context.Context, actorID, ip, description string, metadata map[string]interface{})
}

type BlockedIPServiceInterface interface {
	List(ctx context.Context, query dto.BlockedIPListQuery) (*dto.BlockedIPListResponse, error)
	Status(ctx context.Context, ip string) (*dto.BlockStatusResponse, error)
	Block(ctx context.Context, req dto.BlockIPRequest, actorID, actorIP string) (*model.BlockedIP, error)
	Unblock(ctx context.Context, ip, actorID, actorIP string) error
}

type RateLimitServiceInterface interface {
	Stats() dto.RateLimitStats
	ResetIP(ip string) int
}
