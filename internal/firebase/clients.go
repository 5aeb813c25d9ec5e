package firebase

import (
	"context"
	"fmt"
	"os"

	"partymaker/internal/config"

	"cloud.google.com/go/firestore"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

// Clients bundles the Firebase + GCP clients the proxy uses. Database and
// Firestore are only opened for the store backend that needs them.
type Clients struct {
	App       *firebase.App
	Auth      *auth.Client
	Database  *db.Client
	Firestore *firestore.Client
	Storage   *storage.Client
	IAM       *credentials.IamCredentialsClient

	ProjectID string
	Bucket    string
}

func NewClients(ctx context.Context, cfg config.Config) (*Clients, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("missing FIREBASE_PROJECT_ID or GOOGLE_CLOUD_PROJECT")
	}

	var opts []option.ClientOption
	// In Cloud Run / GCP, Application Default Credentials are used automatically.
	// Locally, set GOOGLE_APPLICATION_CREDENTIALS or FIREBASE_SERVICE_ACCOUNT_JSON.
	if cred := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); cred != "" {
		opts = append(opts, option.WithCredentialsFile(cred))
	} else if js := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); js != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(js)))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
		DatabaseURL:   cfg.DatabaseURL,
	}, opts...)
	if err != nil {
		return nil, err
	}

	c := &Clients{App: app, ProjectID: cfg.ProjectID, Bucket: cfg.StorageBucket}

	if c.Auth, err = app.Auth(ctx); err != nil {
		return nil, fmt.Errorf("auth client: %w", err)
	}

	switch cfg.StoreBackend {
	case "firestore":
		if c.Firestore, err = firestore.NewClient(ctx, cfg.ProjectID, opts...); err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
	case "realtime", "":
		if c.Database, err = app.Database(ctx); err != nil {
			return nil, fmt.Errorf("realtime database client: %w", err)
		}
	}

	if cfg.StorageBucket != "" {
		if c.Storage, err = storage.NewClient(ctx, opts...); err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		// IAM client is optional; only needed for signed URLs.
		c.IAM, _ = credentials.NewIamCredentialsClient(ctx, opts...)
	}
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Firestore != nil {
		_ = c.Firestore.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.IAM != nil {
		_ = c.IAM.Close()
	}
}
