package prefstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oicur0t/watchlogs/pkg/mtls"
	"github.com/oicur0t/watchlogs/pkg/retry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoConfig locates the preferences collection
type MongoConfig struct {
	URI              string           `mapstructure:"uri"`
	Database         string           `mapstructure:"database"`
	CollectionPrefix string           `mapstructure:"collection_prefix"`
	Profile          string           `mapstructure:"profile"`
	CertKeyFile      string           `mapstructure:"cert_key_file"`
	MaxPoolSize      int              `mapstructure:"max_pool_size"`
	Timeout          time.Duration    `mapstructure:"timeout"`
	TLS              mtls.ClientFiles `mapstructure:"tls"`
}

type prefDocument struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps preferences in one collection per profile, one document
// per key
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	logger     *zap.Logger
}

// NewMongoStore connects and pings the server, retrying transient failures
func NewMongoStore(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("prefs.mongodb.uri is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}

	tlsConfig, err := mtls.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	// If certificate key file is provided, use X.509 authentication
	if cfg.CertKeyFile != "" {
		uri := cfg.URI
		if strings.Contains(uri, "?") {
			uri += "&tlsCertificateKeyFile=" + cfg.CertKeyFile
		} else {
			uri += "?tlsCertificateKeyFile=" + cfg.CertKeyFile
		}
		clientOpts.ApplyURI(uri)
		clientOpts.SetAuth(options.Credential{AuthMechanism: "MONGODB-X509"})
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	err = retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return client.Ping(pingCtx, nil)
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collName := sanitizeCollectionName(cfg.CollectionPrefix, cfg.Profile)
	s := &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(collName),
		timeout:    cfg.Timeout,
		logger:     logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		// Preferences still work without the index
		logger.Warn("Failed to ensure indexes", zap.Error(err), zap.String("collection", collName))
	}

	logger.Info("Connected to MongoDB",
		zap.String("database", cfg.Database),
		zap.String("collection", collName))
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: -1}},
		Options: options.Index().SetName("updated_at_desc"),
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Load reads the blob stored under key
func (s *MongoStore) Load(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc prefDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preference %s: %w", key, err)
	}
	return []byte(doc.Value), nil
}

// Save upserts the blob under key
func (s *MongoStore) Save(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := prefDocument{Key: key, Value: string(data), UpdatedAt: time.Now().UTC()}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save preference %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *MongoStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete preference %s: %w", key, err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var invalidCollectionChars = regexp.MustCompile(`[^a-z0-9_]`)

// sanitizeCollectionName creates a valid collection name from a profile name
func sanitizeCollectionName(prefix, profile string) string {
	name := strings.ToLower(profile)
	name = invalidCollectionChars.ReplaceAllString(name, "_")
	if name == "" {
		name = "default"
	}
	return prefix + name
}
