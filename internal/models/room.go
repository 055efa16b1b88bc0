package models

import (
	"fmt"
	"strings"
	"time"
)

// RoomStatus is the physical occupancy label of a room.
type RoomStatus string

const (
	RoomAvailable   RoomStatus = "available"
	RoomOccupied    RoomStatus = "occupied"
	RoomMaintenance RoomStatus = "maintenance"
	RoomCleaning    RoomStatus = "cleaning"
)

func (s RoomStatus) IsValid() bool {
	switch s {
	case RoomAvailable, RoomOccupied, RoomMaintenance, RoomCleaning:
		return true
	}
	return false
}

func ParseRoomStatus(raw string) (RoomStatus, error) {
	s := RoomStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid room status: %q", raw)
	}
	return s, nil
}

type RoomType struct {
	ID           int64     `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	BasePrice    float64   `json:"base_price" yaml:"base_price"`
	MaxOccupancy int       `json:"max_occupancy" yaml:"max_occupancy"`
	Amenities    []string  `json:"amenities" yaml:"amenities"`
	Description  string    `json:"description" yaml:"description"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
}

type Room struct {
	ID          int64      `json:"id" yaml:"id"`
	Number      string     `json:"number" yaml:"number"`
	RoomTypeID  int64      `json:"room_type_id" yaml:"room_type_id"`
	Floor       int        `json:"floor" yaml:"floor"`
	Price       float64    `json:"price" yaml:"price"`
	Description string     `json:"description" yaml:"description"`
	Images      []string   `json:"images" yaml:"images"`
	Status      RoomStatus `json:"status" yaml:"status"`
	Version     int64      `json:"version" yaml:"-"`
	CreatedAt   time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"-"`

	// Type is populated by lookups that join room_types.
	Type *RoomType `json:"type,omitempty" yaml:"-"`
}

// EffectiveRate is the room's own price when positive, else the type's base price.
func (r *Room) EffectiveRate() float64 {
	if r.Price > 0 {
		return r.Price
	}
	if r.Type != nil {
		return r.Type.BasePrice
	}
	return 0
}

// Dashboard is the receptionist summary built after an overdue sweep.
type Dashboard struct {
	Date            string             `json:"date"`
	Swept           int                `json:"swept"`
	RoomsByStatus   map[RoomStatus]int `json:"rooms_by_status"`
	ArrivalsToday   int                `json:"arrivals_today"`
	DeparturesToday int                `json:"departures_today"`
	CheckedIn       int                `json:"checked_in"`
	OpenRefunds     int                `json:"open_refunds"`
}
