// Package snapshot encodes registry state as one JSON payload per collection,
// the layout shared by the SQLite and Postgres stores and by backups.
package snapshot

import (
	"encoding/json"
	"fmt"

	"carbon-scribe/blue-carbon-registry/internal/registry"
)

const (
	BucketProjects       = "projects"
	BucketCredits        = "credits"
	BucketTransactions   = "transactions"
	BucketSensorReadings = "sensor_readings"
	BucketUsers          = "users"
	BucketMeta           = "meta"
)

// Buckets lists every persisted collection in write order
var Buckets = []string{BucketProjects, BucketCredits, BucketTransactions, BucketSensorReadings, BucketUsers, BucketMeta}

type meta struct {
	TokenSequence uint64 `json:"token_sequence"`
}

// EncodeBuckets splits a snapshot into one JSON payload per bucket
func EncodeBuckets(snapshot registry.Snapshot) (map[string][]byte, error) {
	values := map[string]any{
		BucketProjects:       snapshot.Projects,
		BucketCredits:        snapshot.Credits,
		BucketTransactions:   snapshot.Transactions,
		BucketSensorReadings: snapshot.SensorReadings,
		BucketUsers:          usersForStorage(snapshot.Users),
		BucketMeta:           meta{TokenSequence: snapshot.TokenSequence},
	}
	out := make(map[string][]byte, len(values))
	for bucket, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from bucket payloads. Unknown buckets are ignored.
func DecodeBuckets(buckets map[string][]byte) (registry.Snapshot, error) {
	var snapshot registry.Snapshot
	var users []storedUser
	var m meta
	targets := map[string]any{
		BucketProjects:       &snapshot.Projects,
		BucketCredits:        &snapshot.Credits,
		BucketTransactions:   &snapshot.Transactions,
		BucketSensorReadings: &snapshot.SensorReadings,
		BucketUsers:          &users,
		BucketMeta:           &m,
	}
	for bucket, payload := range buckets {
		target, ok := targets[bucket]
		if !ok {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return registry.Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	snapshot.Users = usersFromStorage(users)
	snapshot.TokenSequence = m.TokenSequence
	return snapshot, nil
}

// storedUser keeps the password hash, which the public JSON form omits
type storedUser struct {
	registry.User
	PasswordHash string `json:"password_hash"`
}

func usersForStorage(users []registry.User) []storedUser {
	out := make([]storedUser, 0, len(users))
	for _, u := range users {
		out = append(out, storedUser{User: u, PasswordHash: u.PasswordHash})
	}
	return out
}

func usersFromStorage(users []storedUser) []registry.User {
	out := make([]registry.User, 0, len(users))
	for _, su := range users {
		u := su.User
		u.PasswordHash = su.PasswordHash
		out = append(out, u)
	}
	return out
}

// Marshal encodes a snapshot as a single JSON document keyed by bucket
func Marshal(snapshot registry.Snapshot) ([]byte, error) {
	buckets, err := EncodeBuckets(snapshot)
	if err != nil {
		return nil, err
	}
	doc := make(map[string]json.RawMessage, len(buckets))
	for bucket, payload := range buckets {
		doc[bucket] = payload
	}
	return json.Marshal(doc)
}

// Unmarshal decodes a document produced by Marshal
func Unmarshal(data []byte) (registry.Snapshot, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return registry.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	buckets := make(map[string][]byte, len(doc))
	for bucket, payload := range doc {
		buckets[bucket] = payload
	}
	return DecodeBuckets(buckets)
}
