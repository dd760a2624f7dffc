// Package mongo implements the stores on MongoDB. Accounts embed their
// refresh token records, so every session operation is a single-document
// atomic update; one-time states and OTP codes live in their own
// collections with TTL indexes doing physical expiry.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/panyam/webauth"
)

const (
	accountsCollection = "auth_accounts"
	statesCollection   = "auth_states"
	otpsCollection     = "auth_otps"
)

// Stores bundles the Mongo-backed implementations of both store interfaces.
type Stores struct {
	Accounts *AccountStore
	States   *StateStore
}

// NewStores wires both stores onto a database and creates the supporting
// indexes: the unique email index and the TTL indexes on states and OTPs.
func NewStores(ctx context.Context, db *mongo.Database) (*Stores, error) {
	accounts := &AccountStore{coll: db.Collection(accountsCollection)}
	states := &StateStore{
		states: db.Collection(statesCollection),
		otps:   db.Collection(otpsCollection),
	}

	_, err := accounts.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	for _, coll := range []*mongo.Collection{states.states, states.otps} {
		_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		})
		if err != nil {
			return nil, err
		}
	}
	return &Stores{Accounts: accounts, States: states}, nil
}

// AccountStore implements webauth.AccountStore on a Mongo collection.
type AccountStore struct {
	coll *mongo.Collection
}

// accountDoc is the stored shape. IDs are ObjectIDs in Mongo and hex
// strings at the interface boundary.
type accountDoc struct {
	ID                   primitive.ObjectID           `bson:"_id,omitempty"`
	Email                string                       `bson:"email"`
	PasswordHash         string                       `bson:"password"`
	IsAnonymous          bool                         `bson:"is_anonymous"`
	Name                 string                       `bson:"name,omitempty"`
	PictureURL           string                       `bson:"picture_url,omitempty"`
	ResetPasswordToken   string                       `bson:"reset_password_token,omitempty"`
	ResetPasswordExpires time.Time                    `bson:"reset_password_expires,omitempty"`
	LastAccess           time.Time                    `bson:"last_access,omitempty"`
	CreatedAt            time.Time                    `bson:"created_at"`
	UpdatedAt            time.Time                    `bson:"updated_at"`
	RefreshTokens        []webauth.RefreshTokenRecord `bson:"refresh_tokens"`
}

func (d *accountDoc) toAccount() *webauth.Account {
	return &webauth.Account{
		ID:                   d.ID.Hex(),
		Email:                d.Email,
		PasswordHash:         d.PasswordHash,
		IsAnonymous:          d.IsAnonymous,
		Name:                 d.Name,
		PictureURL:           d.PictureURL,
		ResetPasswordToken:   d.ResetPasswordToken,
		ResetPasswordExpires: d.ResetPasswordExpires,
		LastAccess:           d.LastAccess,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
		RefreshTokens:        d.RefreshTokens,
	}
}

func (s *AccountStore) findOne(ctx context.Context, filter bson.M) (*webauth.Account, error) {
	var doc accountDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, webauth.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toAccount(), nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*webauth.Account, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*webauth.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, webauth.ErrAccountNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *AccountStore) Create(ctx context.Context, account *webauth.Account) (*webauth.Account, error) {
	now := time.Now()
	doc := accountDoc{
		ID:            primitive.NewObjectID(),
		Email:         account.Email,
		PasswordHash:  account.PasswordHash,
		IsAnonymous:   account.IsAnonymous,
		Name:          account.Name,
		PictureURL:    account.PictureURL,
		CreatedAt:     now,
		UpdatedAt:     now,
		RefreshTokens: []webauth.RefreshTokenRecord{},
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, webauth.ErrDuplicateEmail
		}
		return nil, err
	}
	return doc.toAccount(), nil
}

func (s *AccountStore) UpdateByID(ctx context.Context, id string, update *webauth.AccountUpdate) (*webauth.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, webauth.ErrAccountNotFound
	}

	set := bson.M{"updated_at": time.Now()}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.PasswordHash != nil {
		set["password"] = *update.PasswordHash
	}
	if update.IsAnonymous != nil {
		set["is_anonymous"] = *update.IsAnonymous
	}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.PictureURL != nil {
		set["picture_url"] = *update.PictureURL
	}
	if update.ResetPasswordToken != nil {
		set["reset_password_token"] = *update.ResetPasswordToken
	}
	if update.ResetPasswordExpires != nil {
		set["reset_password_expires"] = *update.ResetPasswordExpires
	}

	var doc accountDoc
	err = s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, webauth.ErrAccountNotFound
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, webauth.ErrDuplicateEmail
		}
		return nil, err
	}
	return doc.toAccount(), nil
}

func (s *AccountStore) GetByResetToken(ctx context.Context, token string) (*webauth.Account, error) {
	if token == "" {
		return nil, webauth.ErrAccountNotFound
	}
	return s.findOne(ctx, bson.M{
		"reset_password_token":   token,
		"reset_password_expires": bson.M{"$gt": time.Now()},
	})
}

func (s *AccountStore) TouchLastAccess(ctx context.Context, id string, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return webauth.ErrAccountNotFound
	}
	_, err = s.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"last_access": at}})
	return err
}

func (s *AccountStore) PushRefreshToken(ctx context.Context, id string, record webauth.RefreshTokenRecord) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return webauth.ErrAccountNotFound
	}
	_, err = s.coll.UpdateByID(ctx, oid, bson.M{"$push": bson.M{"refresh_tokens": record}})
	return err
}

func (s *AccountStore) PruneRefreshTokens(ctx context.Context, id string, before time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return webauth.ErrAccountNotFound
	}
	_, err = s.coll.UpdateByID(ctx, oid, bson.M{
		"$pull": bson.M{"refresh_tokens": bson.M{"expires_at": bson.M{"$lt": before}}},
	})
	return err
}

func (s *AccountStore) PullRefreshToken(ctx context.Context, id string, encryptedJWT string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return webauth.ErrAccountNotFound
	}
	_, err = s.coll.UpdateByID(ctx, oid, bson.M{
		"$pull": bson.M{"refresh_tokens": bson.M{"encrypted_jwt": encryptedJWT}},
	})
	return err
}

func (s *AccountStore) SetRefreshTokens(ctx context.Context, id string, records []webauth.RefreshTokenRecord) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return webauth.ErrAccountNotFound
	}
	if records == nil {
		records = []webauth.RefreshTokenRecord{}
	}
	_, err = s.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"refresh_tokens": records}})
	return err
}

// StateStore implements webauth.StateStore on two Mongo collections.
type StateStore struct {
	states *mongo.Collection
	otps   *mongo.Collection
}

func (s *StateStore) CreateState(ctx context.Context, state *webauth.OAuthState) error {
	_, err := s.states.InsertOne(ctx, state)
	return err
}

// ConsumeState uses FindOneAndDelete so lookup and deletion are one atomic
// step: two callbacks racing on the same state value see one winner. The
// expiry filter covers the window before the TTL monitor physically
// removes expired documents.
func (s *StateStore) ConsumeState(ctx context.Context, value string) (*webauth.OAuthState, error) {
	var state webauth.OAuthState
	err := s.states.FindOneAndDelete(ctx, bson.M{
		"state":      value,
		"expires_at": bson.M{"$gt": time.Now()},
	}).Decode(&state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, webauth.ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *StateStore) CreateOTP(ctx context.Context, otp *webauth.OTP) error {
	_, err := s.otps.InsertOne(ctx, otp)
	return err
}

func (s *StateStore) DeleteUnusedOTPs(ctx context.Context, email, purpose string) error {
	_, err := s.otps.DeleteMany(ctx, bson.M{
		"email":   email,
		"purpose": purpose,
		"is_used": false,
	})
	return err
}

// ConsumeOTP marks the code used in the same operation that finds it, so a
// code can never verify twice.
func (s *StateStore) ConsumeOTP(ctx context.Context, email, code, purpose string) error {
	err := s.otps.FindOneAndUpdate(ctx,
		bson.M{
			"email":      email,
			"otp":        code,
			"purpose":    purpose,
			"is_used":    false,
			"expires_at": bson.M{"$gt": time.Now()},
		},
		bson.M{"$set": bson.M{"is_used": true}},
	).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return webauth.ErrStateNotFound
	}
	return err
}
