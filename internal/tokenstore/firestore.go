package tokenstore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const firestoreCollection = "seller_sessions"

// FirestoreStore is a KeyedStore backed by Firestore, for serverless
// deployments where no instance-local state survives between requests.
// Expired documents are filtered at read time; configure a Firestore TTL
// policy on expires_at to reclaim them.
type FirestoreStore struct {
	client *firestore.Client
}

var _ KeyedStore = (*FirestoreStore)(nil)

// firestoreSession is the document layout for one browser session
type firestoreSession struct {
	AccessToken  string    `firestore:"access_token"`
	RefreshToken string    `firestore:"refresh_token"`
	UserID       string    `firestore:"user_id"`
	Scope        string    `firestore:"scope"`
	ExpiresIn    int64     `firestore:"expires_in"`
	IssuedAt     int64     `firestore:"issued_at"`
	ExpiresAt    time.Time `firestore:"expires_at"`
}

// NewFirestoreStore creates a Firestore-backed session store
func NewFirestoreStore(ctx context.Context, projectID, databaseID string, opts ...option.ClientOption) (*FirestoreStore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Load(ctx context.Context, key string) (*Record, error) {
	doc, err := s.client.Collection(firestoreCollection).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("firestore get: %w", err)
	}

	var session firestoreSession
	if err := doc.DataTo(&session); err != nil {
		// Corrupted document, treat as no session rather than failing the request
		return nil, nil
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, nil
	}

	return &Record{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		UserID:       session.UserID,
		Scope:        session.Scope,
		ExpiresIn:    session.ExpiresIn,
		IssuedAt:     session.IssuedAt,
	}, nil
}

func (s *FirestoreStore) Save(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	session := firestoreSession{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		UserID:       record.UserID,
		Scope:        record.Scope,
		ExpiresIn:    record.ExpiresIn,
		IssuedAt:     record.IssuedAt,
		ExpiresAt:    time.Now().Add(ttl),
	}

	if _, err := s.client.Collection(firestoreCollection).Doc(key).Set(ctx, session); err != nil {
		return fmt.Errorf("firestore set: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Clear(ctx context.Context, key string) error {
	_, err := s.client.Collection(firestoreCollection).Doc(key).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore delete: %w", err)
	}
	return nil
}

// Close releases the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
