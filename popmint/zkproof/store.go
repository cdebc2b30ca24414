package zkproof

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrArtifactNotFound = errors.New("proof artifact not found")

// Artifact is a proof stored verbatim, exactly as submitted. Artifacts are
// immutable; the store exposes no update path.
type Artifact struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Proof         RawProof           `bson:"proof"`
	PublicSignals []string           `bson:"public_signals"`
	CreatedAt     time.Time          `bson:"created_at"`
}

// ArtifactStore persists proof artifacts and returns the reference a Claim
// row carries.
type ArtifactStore interface {
	Save(ctx context.Context, proof *RawProof, publicSignals []string) (string, error)
	Get(ctx context.Context, ref string) (*Artifact, error)
}

type mongoStore struct {
	coll *mongo.Collection
}

func NewStore(db *mongo.Database) ArtifactStore {
	return &mongoStore{coll: db.Collection("zkproofs")}
}

func (s *mongoStore) Save(ctx context.Context, proof *RawProof, publicSignals []string) (string, error) {
	res, err := s.coll.InsertOne(ctx, Artifact{
		Proof:         *proof,
		PublicSignals: publicSignals,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store proof artifact: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (s *mongoStore) Get(ctx context.Context, ref string) (*Artifact, error) {
	oid, err := primitive.ObjectIDFromHex(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: bad reference %q", ErrArtifactNotFound, ref)
	}

	var artifact Artifact
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&artifact)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load proof artifact: %w", err)
	}
	return &artifact, nil
}
