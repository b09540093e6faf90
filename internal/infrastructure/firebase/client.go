// Package firebase stores user data and sync state in Cloud Firestore.
// Every record lives under users/{uid}; atomic operations run in
// Firestore transactions.
package firebase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Top level and per user collection names.
const (
	colUsers        = "users"
	colMappings     = "integrationMappings"
	colJobs         = "syncJobs"
	colLogs         = "syncLogs"
	colInbox        = "integrationInbox"
	colRules        = "autoRules"
	colIntegrations = "integrations"
	colTransactions = "transactions"
	colEvents       = "calendarEvents"
	colTasks        = "tasks"
	colSubjects     = "subjects"
	colSyllabi      = "syllabi"
	colWellness     = "wellness"
	colHabits       = "habits"
	colGoals        = "goals"
)

// Client wraps the Firestore client shared by the repositories.
type Client struct {
	fs *firestore.Client
}

// NewClient initializes a Firebase app and returns a Firestore client. The
// credentials file may be empty when running against the emulator or with
// application default credentials.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firestore client: %w", err)
	}

	if host := os.Getenv("FIRESTORE_EMULATOR_HOST"); host != "" {
		log.Printf("Firestore: using emulator at %s", host)
	}
	return &Client{fs: fs}, nil
}

// NewClientFrom wraps an existing Firestore client.
func NewClientFrom(fs *firestore.Client) *Client {
	return &Client{fs: fs}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

// Ping reads a single document to confirm Firestore is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fs.Collection(colUsers).Limit(1).Documents(ctx).Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func (c *Client) user(userID string) *firestore.DocumentRef {
	return c.fs.Collection(colUsers).Doc(userID)
}

func (c *Client) userCollection(userID, name string) *firestore.CollectionRef {
	return c.user(userID).Collection(name)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

// docKey derives a document id from parts that may contain characters
// Firestore does not allow in ids.
func docKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:40]
}

// userIDOf returns the uid of a document stored under users/{uid}/...
func userIDOf(ref *firestore.DocumentRef) string {
	for ref != nil {
		parent := ref.Parent
		if parent == nil {
			return ""
		}
		if parent.ID == colUsers && parent.Parent == nil {
			return ref.ID
		}
		ref = parent.Parent
	}
	return ""
}
