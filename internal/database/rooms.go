package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"innkeeper/internal/domain"
	"innkeeper/internal/models"
)

const roomColumns = `r.id, r.number, r.room_type_id, r.floor, r.price, r.description, r.images,
    r.status, r.version, r.created_at, r.updated_at,
    t.id, t.name, t.base_price, t.max_occupancy, t.amenities, t.description, t.created_at`

const roomFrom = ` FROM rooms r JOIN room_types t ON t.id = r.room_type_id`

func encodeList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeList(raw string) []string {
	var list []string
	if raw == "" {
		return list
	}
	_ = json.Unmarshal([]byte(raw), &list)
	return list
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var (
		room      models.Room
		rt        models.RoomType
		images    string
		amenities string
	)
	err := row.Scan(
		&room.ID, &room.Number, &room.RoomTypeID, &room.Floor, &room.Price, &room.Description, &images,
		&room.Status, &room.Version, &room.CreatedAt, &room.UpdatedAt,
		&rt.ID, &rt.Name, &rt.BasePrice, &rt.MaxOccupancy, &amenities, &rt.Description, &rt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	room.Images = decodeList(images)
	rt.Amenities = decodeList(amenities)
	room.Type = &rt
	return &room, nil
}

func scanRoomType(row rowScanner) (*models.RoomType, error) {
	var (
		rt        models.RoomType
		amenities string
	)
	if err := row.Scan(&rt.ID, &rt.Name, &rt.BasePrice, &rt.MaxOccupancy, &amenities, &rt.Description, &rt.CreatedAt); err != nil {
		return nil, err
	}
	rt.Amenities = decodeList(amenities)
	return &rt, nil
}

func (db *DB) CreateRoomType(ctx context.Context, rt *models.RoomType) error {
	query := `INSERT INTO room_types (name, base_price, max_occupancy, amenities, description, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, rt.Name, rt.BasePrice, rt.MaxOccupancy, encodeList(rt.Amenities), rt.Description, now)
	if err != nil {
		return fmt.Errorf("failed to create room type: %w", mapConstraintError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rt.ID = id
	rt.CreatedAt = now
	return nil
}

func (db *DB) GetRoomType(ctx context.Context, id int64) (*models.RoomType, error) {
	query := `SELECT id, name, base_price, max_occupancy, amenities, description, created_at FROM room_types WHERE id = ?`
	rt, err := scanRoomType(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room type: %w", err)
	}
	return rt, nil
}

func (db *DB) ListRoomTypes(ctx context.Context) ([]*models.RoomType, error) {
	query := `SELECT id, name, base_price, max_occupancy, amenities, description, created_at FROM room_types ORDER BY name`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list room types: %w", err)
	}
	defer rows.Close()

	var types []*models.RoomType
	for rows.Next() {
		rt, err := scanRoomType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room type: %w", err)
		}
		types = append(types, rt)
	}
	return types, rows.Err()
}

// DeleteRoomType removes a type nobody references; referenced types yield ErrRoomTypeInUse.
func (db *DB) DeleteRoomType(ctx context.Context, id int64) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		var refs int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE room_type_id = ?`, id).Scan(&refs); err != nil {
			return fmt.Errorf("failed to count rooms for type: %w", err)
		}
		if refs > 0 {
			return domain.ErrRoomTypeInUse
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM room_types WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete room type: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return domain.ErrRoomTypeNotFound
		}
		return nil
	})
}

func (db *DB) CreateRoom(ctx context.Context, room *models.Room) error {
	if room.Status == "" {
		room.Status = models.RoomAvailable
	}
	query := `INSERT INTO rooms (number, room_type_id, floor, price, description, images, status, version, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		room.Number, room.RoomTypeID, room.Floor, room.Price, room.Description,
		encodeList(room.Images), room.Status, now, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrRoomTypeNotFound
		}
		return fmt.Errorf("failed to create room: %w", mapConstraintError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	room.ID = id
	room.Version = 1
	room.CreatedAt = now
	room.UpdatedAt = now
	return nil
}

func (db *DB) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	return db.queryRoom(ctx, db.DB, `SELECT `+roomColumns+roomFrom+` WHERE r.id = ?`, id)
}

func (db *DB) GetRoomByNumber(ctx context.Context, number string) (*models.Room, error) {
	return db.queryRoom(ctx, db.DB, `SELECT `+roomColumns+roomFrom+` WHERE r.number = ?`, number)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) queryRoom(ctx context.Context, q queryRower, query string, args ...any) (*models.Room, error) {
	room, err := scanRoom(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func (db *DB) ListRooms(ctx context.Context) ([]*models.Room, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+roomColumns+roomFrom+` ORDER BY r.number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (db *DB) CountRoomsByStatus(ctx context.Context) (map[models.RoomStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM rooms GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count rooms: %w", err)
	}
	defer rows.Close()

	counts := map[models.RoomStatus]int{
		models.RoomAvailable:   0,
		models.RoomOccupied:    0,
		models.RoomMaintenance: 0,
		models.RoomCleaning:    0,
	}
	for rows.Next() {
		var (
			status models.RoomStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan room count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// SetRoomStatus is the staff maintenance action. Occupancy is owned by the
// booking lifecycle, so occupied rooms cannot be relabelled and no room can be
// marked occupied from here.
func (db *DB) SetRoomStatus(ctx context.Context, id int64, status models.RoomStatus) (*models.Room, error) {
	if status == models.RoomOccupied {
		return nil, fmt.Errorf("%w: occupied is set by check-in only", domain.ErrInvalidTransition)
	}

	var room *models.Room
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if err := lockRoom(ctx, tx, id); err != nil {
			return err
		}

		var checkedIn int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM bookings WHERE room_id = ? AND status = ?`, id, models.BookingCheckedIn,
		).Scan(&checkedIn)
		if err != nil {
			return fmt.Errorf("failed to count checked-in bookings: %w", err)
		}
		if checkedIn > 0 {
			return domain.ErrRoomOccupied
		}

		if err := setRoomStatus(ctx, tx, id, status); err != nil {
			return err
		}

		room, err = db.queryRoom(ctx, tx, `SELECT `+roomColumns+roomFrom+` WHERE r.id = ?`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// DeleteRoom refuses while any booking references the room.
func (db *DB) DeleteRoom(ctx context.Context, id int64) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if err := lockRoom(ctx, tx, id); err != nil {
			return err
		}
		var refs int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE room_id = ?`, id).Scan(&refs); err != nil {
			return fmt.Errorf("failed to count bookings for room: %w", err)
		}
		if refs > 0 {
			return domain.ErrRoomInUse
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		return nil
	})
}

// SeedInventory inserts room types (matched by name) and rooms (matched by
// number) that are not present yet. Existing rows are left alone so staff
// edits survive restarts.
func (db *DB) SeedInventory(ctx context.Context, types []models.RoomType, rooms []models.Room) (int, error) {
	created := 0
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		typeIDs := make(map[int64]int64, len(types))
		for _, rt := range types {
			var id int64
			err := tx.QueryRowContext(ctx, `SELECT id FROM room_types WHERE name = ?`, rt.Name).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				res, insErr := tx.ExecContext(ctx,
					`INSERT INTO room_types (name, base_price, max_occupancy, amenities, description, created_at)
                     VALUES (?, ?, ?, ?, ?, ?)`,
					rt.Name, rt.BasePrice, rt.MaxOccupancy, encodeList(rt.Amenities), rt.Description, time.Now())
				if insErr != nil {
					return fmt.Errorf("failed to seed room type %q: %w", rt.Name, insErr)
				}
				id, _ = res.LastInsertId()
				created++
			} else if err != nil {
				return fmt.Errorf("failed to look up room type %q: %w", rt.Name, err)
			}
			typeIDs[rt.ID] = id
		}

		for _, room := range rooms {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE number = ?`, room.Number).Scan(&exists); err != nil {
				return fmt.Errorf("failed to look up room %q: %w", room.Number, err)
			}
			if exists > 0 {
				continue
			}
			typeID, ok := typeIDs[room.RoomTypeID]
			if !ok {
				return fmt.Errorf("room %q: %w (seed id %d)", room.Number, domain.ErrRoomTypeNotFound, room.RoomTypeID)
			}
			status := room.Status
			if status == "" || status == models.RoomOccupied {
				status = models.RoomAvailable
			}
			now := time.Now()
			_, err := tx.ExecContext(ctx,
				`INSERT INTO rooms (number, room_type_id, floor, price, description, images, status, version, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
				room.Number, typeID, room.Floor, room.Price, room.Description, encodeList(room.Images), status, now, now)
			if err != nil {
				return fmt.Errorf("failed to seed room %q: %w", room.Number, err)
			}
			created++
		}
		return nil
	})
	return created, err
}

// lockRoom bumps the room version as the first write of a transaction. It is
// the explicit room lock and doubles as the existence check.
func lockRoom(ctx context.Context, tx *sql.Tx, roomID int64) error {
	result, err := tx.ExecContext(ctx, `UPDATE rooms SET version = version + 1 WHERE id = ?`, roomID)
	if err != nil {
		return fmt.Errorf("failed to lock room: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func setRoomStatus(ctx context.Context, tx *sql.Tx, roomID int64, status models.RoomStatus) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE rooms SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), roomID)
	if err != nil {
		return fmt.Errorf("failed to update room status: %w", mapConstraintError(err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}
