package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"server_monitor_bot/internal/access"
	"server_monitor_bot/internal/domain"
	"server_monitor_bot/internal/logging"
)

const mirrorWriteTimeout = 5 * time.Second

type accessCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

type registrationCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

type findCollection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// EntrySource yields the current state of a single user in the access store.
type EntrySource interface {
	Entry(id int64) (domain.AccessEntry, bool)
}

// AccessMirror writes access store changes through to MongoDB. Writes are
// serialized and always reflect the store state at write time, so the
// collection converges on the in-memory state even when changes race.
type AccessMirror struct {
	mu     sync.Mutex
	coll   accessCollection
	source EntrySource
	logger *logrus.Entry
}

// NewAccessMirror constructs an AccessMirror for the provided collection.
func NewAccessMirror(coll accessCollection, source EntrySource, logger *logrus.Entry) *AccessMirror {
	if logger == nil {
		logger = logging.Logger()
	}

	return &AccessMirror{
		coll:   coll,
		source: source,
		logger: logger,
	}
}

// AccessChanged implements access.Observer. Failures are logged; the
// in-memory store stays authoritative.
func (m *AccessMirror) AccessChanged(change access.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
	defer cancel()

	if err := m.Sync(ctx, change.UserID); err != nil {
		m.logger.WithFields(logging.Fields{
			"event":   "access_mirror_failed",
			"kind":    string(change.Kind),
			"user_id": change.UserID,
			"error":   err,
		}).Warn("failed to mirror access change")
	}
}

// Sync upserts or deletes the document for userID so that it matches the
// current store entry.
func (m *AccessMirror) Sync(ctx context.Context, userID int64) error {
	if m == nil || m.coll == nil || m.source == nil {
		return errors.New("access mirror is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.source.Entry(userID)
	if !ok {
		if _, err := m.coll.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
			return fmt.Errorf("delete access entry: %w", err)
		}
		m.logger.WithFields(logging.Fields{
			"event":   "access_mirror_delete",
			"user_id": userID,
		}).Debug("removed access entry")
		return nil
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"admin":      entry.Admin,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"user_id":    entry.UserID,
			"created_at": now,
		},
	}

	if _, err := m.coll.UpdateOne(ctx,
		bson.M{"user_id": userID},
		update,
		options.Update().SetUpsert(true),
	); err != nil {
		return fmt.Errorf("upsert access entry: %w", err)
	}

	m.logger.WithFields(logging.Fields{
		"event":   "access_mirror_upsert",
		"user_id": userID,
		"admin":   entry.Admin,
	}).Debug("mirrored access entry")
	return nil
}

// SyncAll mirrors every given entry, stopping at the first failure. Used at
// startup so configured seeds reach the collection.
func (m *AccessMirror) SyncAll(ctx context.Context, entries []domain.AccessEntry) error {
	for _, entry := range entries {
		if err := m.Sync(ctx, entry.UserID); err != nil {
			return err
		}
	}
	return nil
}

// RegistrationMirror inserts registrations into MongoDB. Existing documents
// are never overwritten, matching the store's first-write-wins rule.
type RegistrationMirror struct {
	coll   registrationCollection
	logger *logrus.Entry
}

// NewRegistrationMirror constructs a RegistrationMirror for the provided
// collection.
func NewRegistrationMirror(coll registrationCollection, logger *logrus.Entry) *RegistrationMirror {
	if logger == nil {
		logger = logging.Logger()
	}

	return &RegistrationMirror{
		coll:   coll,
		logger: logger,
	}
}

// Registered implements registration.Observer.
func (m *RegistrationMirror) Registered(reg domain.Registration) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
	defer cancel()

	if _, err := m.Insert(ctx, reg); err != nil {
		m.logger.WithFields(logging.Fields{
			"event":   "registration_mirror_failed",
			"user_id": reg.UserID,
			"error":   err,
		}).Warn("failed to mirror registration")
	}
}

// Insert stores reg unless a document for the user already exists. It reports
// whether a new document was created.
func (m *RegistrationMirror) Insert(ctx context.Context, reg domain.Registration) (bool, error) {
	if m == nil || m.coll == nil {
		return false, errors.New("registration mirror is not initialized")
	}
	if ctx == nil {
		return false, errors.New("context is required")
	}

	registeredAt := reg.RegisteredAt.UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":       reg.UserID,
			"display_name":  reg.DisplayName,
			"registered_at": registeredAt,
		},
	}

	result, err := m.coll.UpdateOne(ctx,
		bson.M{"user_id": reg.UserID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("insert registration: %w", err)
	}

	created := result != nil && result.UpsertedCount > 0
	if created {
		m.logger.WithFields(logging.Fields{
			"event":   "registration_mirrored",
			"user_id": reg.UserID,
		}).Info("mirrored registration")
	}
	return created, nil
}

// LoadAccess reads every persisted access entry.
func LoadAccess(ctx context.Context, coll findCollection) ([]domain.AccessEntry, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if coll == nil {
		return nil, errors.New("access collection is required")
	}

	cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find access entries: %w", err)
	}

	var entries []domain.AccessEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode access entries: %w", err)
	}
	return entries, nil
}

// LoadRegistrations reads every persisted registration, oldest first.
func LoadRegistrations(ctx context.Context, coll findCollection) ([]domain.Registration, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if coll == nil {
		return nil, errors.New("registrations collection is required")
	}

	cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "registered_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find registrations: %w", err)
	}

	var regs []domain.Registration
	if err := cursor.All(ctx, &regs); err != nil {
		return nil, fmt.Errorf("decode registrations: %w", err)
	}
	return regs, nil
}
