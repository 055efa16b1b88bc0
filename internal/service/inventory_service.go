package service

import (
	"context"
	"fmt"
	"os"
	"strings"

	"innkeeper/internal/domain"
	"innkeeper/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// InventorySeed is the shape of the inventory file. Room.RoomTypeID refers to
// RoomType.ID inside the same file, not to database ids.
type InventorySeed struct {
	RoomTypes []models.RoomType `yaml:"room_types"`
	Rooms     []models.Room     `yaml:"rooms"`
}

// LoadInventoryFile parses the seed file.
func LoadInventoryFile(path string) (*InventorySeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory file: %w", err)
	}
	var seed InventorySeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse inventory file: %w", err)
	}
	return &seed, nil
}

type InventoryService struct {
	store  domain.InventoryStore
	logger *zerolog.Logger
}

func NewInventoryService(store domain.InventoryStore, logger *zerolog.Logger) *InventoryService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &InventoryService{store: store, logger: logger}
}

// Seed inserts whatever part of the seed is missing from the store.
func (s *InventoryService) Seed(ctx context.Context, seed *InventorySeed) (int, error) {
	if seed == nil {
		return 0, nil
	}
	created, err := s.store.SeedInventory(ctx, seed.RoomTypes, seed.Rooms)
	if err != nil {
		return 0, err
	}
	if created > 0 {
		s.logger.Info().Int("created", created).Msg("inventory seeded")
	}
	return created, nil
}

func (s *InventoryService) CreateRoomType(ctx context.Context, rt *models.RoomType) error {
	rt.Name = strings.TrimSpace(rt.Name)
	switch {
	case rt.Name == "":
		return validationError("name is required")
	case rt.BasePrice < 0:
		return validationError("base_price cannot be negative")
	case rt.MaxOccupancy < 0:
		return validationError("max_occupancy cannot be negative")
	}
	return s.store.CreateRoomType(ctx, rt)
}

func (s *InventoryService) GetRoomType(ctx context.Context, id int64) (*models.RoomType, error) {
	return s.store.GetRoomType(ctx, id)
}

func (s *InventoryService) ListRoomTypes(ctx context.Context) ([]*models.RoomType, error) {
	return s.store.ListRoomTypes(ctx)
}

func (s *InventoryService) DeleteRoomType(ctx context.Context, id int64) error {
	if err := s.store.DeleteRoomType(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("room_type_id", id).Msg("room type deleted")
	return nil
}

func (s *InventoryService) CreateRoom(ctx context.Context, room *models.Room) error {
	room.Number = strings.TrimSpace(room.Number)
	switch {
	case room.Number == "":
		return validationError("number is required")
	case room.RoomTypeID <= 0:
		return validationError("room_type_id is required")
	case room.Price < 0:
		return validationError("price cannot be negative")
	case room.Status == models.RoomOccupied:
		return validationError("a new room cannot start occupied")
	case room.Status != "" && !room.Status.IsValid():
		return validationError("invalid room status %q", room.Status)
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return err
	}
	s.logger.Info().Int64("room_id", room.ID).Str("number", room.Number).Msg("room created")
	return nil
}

func (s *InventoryService) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	return s.store.GetRoom(ctx, id)
}

// GetRoomByNumber resolves the number printed on the door.
func (s *InventoryService) GetRoomByNumber(ctx context.Context, number string) (*models.Room, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, validationError("room number is required")
	}
	return s.store.GetRoomByNumber(ctx, number)
}

func (s *InventoryService) ListRooms(ctx context.Context) ([]*models.Room, error) {
	return s.store.ListRooms(ctx)
}

// SetRoomStatus is the housekeeping action: maintenance, cleaning or back to
// available. Occupancy belongs to check-in and check-out.
func (s *InventoryService) SetRoomStatus(ctx context.Context, id int64, rawStatus, actor string) (*models.Room, error) {
	status, err := models.ParseRoomStatus(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	room, err := s.store.SetRoomStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("room_id", id).Str("status", string(status)).Str("actor", actor).Msg("room status changed")
	return room, nil
}

func (s *InventoryService) DeleteRoom(ctx context.Context, id int64) error {
	if err := s.store.DeleteRoom(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("room_id", id).Msg("room deleted")
	return nil
}
