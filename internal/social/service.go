package social

import (
	"context"
	"log"
	"sync"

	"chatcore/internal/cerrors"
	"chatcore/internal/models"
	"chatcore/internal/recordstore"
)

// fanOutLimit bounds the parallel user lookups behind friend/blocked
// listings. The lookups are independent and order does not matter until
// the results are combined.
const fanOutLimit = 8

// Service maintains per-user friend and block sets. Relationship
// mutations are symmetric: a friendship exists on both users' records
// or on neither, and every cross-record change runs inside one record
// store transaction.
type Service interface {
	CreateUser(ctx context.Context, id, name, iconURL string) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID, name, iconURL string) (*models.User, error)

	AddFriend(ctx context.Context, selfID, targetID string) error
	BlockFriend(ctx context.Context, selfID, targetID string) error
	UnblockUser(ctx context.Context, selfID, targetID string) error

	ListFriends(ctx context.Context, selfID string) ([]*models.UserBasicInfo, error)
	ListBlocked(ctx context.Context, selfID string) ([]*models.UserBasicInfo, error)
}

type service struct {
	store *recordstore.Store
}

// NewService creates a new social graph service over the record store.
func NewService(store *recordstore.Store) Service {
	return &service{store: store}
}

// CreateUser writes a fresh user record. The id is externally issued
// (the session collaborator owns identity); ConflictError if taken.
func (s *service) CreateUser(ctx context.Context, id, name, iconURL string) (*models.User, error) {
	if id == "" {
		return nil, cerrors.Validationf("user id must not be empty")
	}
	if name == "" {
		return nil, cerrors.Validationf("user name must not be empty")
	}
	user := &models.User{
		Base:         models.Base{ID: id},
		Name:         name,
		IconURL:      iconURL,
		Friends:      []string{},
		Blocked:      []string{},
		Rooms:        []string{},
		UnreadCounts: map[string]int64{},
	}
	key := models.UserKey(id)
	err := s.store.Transact(ctx, []string{key}, func(tx *recordstore.Tx) error {
		if tx.Exists(key) {
			return cerrors.Conflictf("user %s already exists", id)
		}
		user.Touch(tx.Now())
		return tx.Put(key, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser reads one user record.
func (s *service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.store.GetJSON(ctx, models.UserKey(userID), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile changes name and icon URL; empty name is rejected, an
// empty iconURL clears the icon.
func (s *service) UpdateProfile(ctx context.Context, userID, name, iconURL string) (*models.User, error) {
	if name == "" {
		return nil, cerrors.Validationf("user name must not be empty")
	}
	key := models.UserKey(userID)
	var user models.User
	err := s.store.Transact(ctx, []string{key}, func(tx *recordstore.Tx) error {
		if err := tx.Get(key, &user); err != nil {
			return err
		}
		user.Name = name
		user.IconURL = iconURL
		user.Touch(tx.Now())
		return tx.Put(key, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AddFriend makes self and target mutual friends in one transaction.
// Fails with ValidationError on a self-target, NotFoundError if either
// user is absent, ConflictError if they are already friends.
func (s *service) AddFriend(ctx context.Context, selfID, targetID string) error {
	if selfID == targetID {
		return cerrors.Validationf("cannot add yourself as a friend")
	}
	selfKey, targetKey := models.UserKey(selfID), models.UserKey(targetID)
	return s.store.Transact(ctx, []string{selfKey, targetKey}, func(tx *recordstore.Tx) error {
		var self, target models.User
		if err := tx.Get(selfKey, &self); err != nil {
			return cerrors.NotFoundf("user %s", selfID)
		}
		if err := tx.Get(targetKey, &target); err != nil {
			return cerrors.NotFoundf("user %s", targetID)
		}
		if self.HasFriend(targetID) {
			return cerrors.Conflictf("%s is already a friend", targetID)
		}
		self.Friends = append(self.Friends, targetID)
		self.Touch(tx.Now())
		target.Friends = append(target.Friends, selfID)
		target.Touch(tx.Now())
		if err := tx.Put(selfKey, &self); err != nil {
			return err
		}
		return tx.Put(targetKey, &target)
	})
}

// BlockFriend removes the friendship from both sides and records target
// in self's blocked set. NotFoundError if target is not a friend.
func (s *service) BlockFriend(ctx context.Context, selfID, targetID string) error {
	selfKey, targetKey := models.UserKey(selfID), models.UserKey(targetID)
	return s.store.Transact(ctx, []string{selfKey, targetKey}, func(tx *recordstore.Tx) error {
		var self, target models.User
		if err := tx.Get(selfKey, &self); err != nil {
			return cerrors.NotFoundf("user %s", selfID)
		}
		if err := tx.Get(targetKey, &target); err != nil {
			return cerrors.NotFoundf("user %s", targetID)
		}
		if !self.HasFriend(targetID) {
			return cerrors.NotFoundf("%s is not a friend", targetID)
		}
		self.RemoveFriend(targetID)
		if !self.HasBlocked(targetID) {
			self.Blocked = append(self.Blocked, targetID)
		}
		self.Touch(tx.Now())
		target.RemoveFriend(selfID)
		target.Touch(tx.Now())
		if err := tx.Put(selfKey, &self); err != nil {
			return err
		}
		return tx.Put(targetKey, &target)
	})
}

// UnblockUser removes target from self's blocked set. The friendship is
// not restored. Unblocking an id that is not blocked commits as a no-op.
func (s *service) UnblockUser(ctx context.Context, selfID, targetID string) error {
	selfKey := models.UserKey(selfID)
	return s.store.Transact(ctx, []string{selfKey}, func(tx *recordstore.Tx) error {
		var self models.User
		if err := tx.Get(selfKey, &self); err != nil {
			return cerrors.NotFoundf("user %s", selfID)
		}
		self.Unblock(targetID)
		self.Touch(tx.Now())
		return tx.Put(selfKey, &self)
	})
}

// ListFriends returns basic info for the user's friends.
func (s *service) ListFriends(ctx context.Context, selfID string) ([]*models.UserBasicInfo, error) {
	self, err := s.GetUser(ctx, selfID)
	if err != nil {
		return nil, err
	}
	return s.fetchBasicInfos(ctx, self.Friends), nil
}

// ListBlocked returns basic info for the user's blocked set.
func (s *service) ListBlocked(ctx context.Context, selfID string) ([]*models.UserBasicInfo, error) {
	self, err := s.GetUser(ctx, selfID)
	if err != nil {
		return nil, err
	}
	return s.fetchBasicInfos(ctx, self.Blocked), nil
}

// fetchBasicInfos resolves user ids with bounded-parallelism,
// order-independent lookups and combines results only after all
// complete, preserving the input order. Ids that fail to resolve are
// logged and skipped.
func (s *service) fetchBasicInfos(ctx context.Context, ids []string) []*models.UserBasicInfo {
	results := make([]*models.UserBasicInfo, len(ids))
	sem := make(chan struct{}, fanOutLimit)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			var user models.User
			if err := s.store.GetJSON(ctx, models.UserKey(id), &user); err != nil {
				log.Printf("social: failed to load user %s: %v", id, err)
				return
			}
			results[i] = user.BasicInfo()
		}(i, id)
	}
	wg.Wait()

	infos := make([]*models.UserBasicInfo, 0, len(ids))
	for _, info := range results {
		if info != nil {
			infos = append(infos, info)
		}
	}
	return infos
}
