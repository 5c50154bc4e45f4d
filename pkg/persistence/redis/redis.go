// Package redis provides a Redis-backed version store. Versions live as
// JSON strings keyed by version ID, with a per-workflow sorted set ordered
// by version number driving history listings and pruning.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowpatch/flowpatch/pkg/models"
	"github.com/flowpatch/flowpatch/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

const (
	versionKeyPrefix = "flowpatch:version:"
	workflowSetKey   = "flowpatch:workflows"
)

// Persistence implements the version store on Redis.
type Persistence struct {
	client *goredis.Client
	logger *slog.Logger
}

// NewPersistence connects to Redis using a redis:// URL and pings it.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{client: client, logger: logger}, nil
}

func versionKey(id string) string {
	return versionKeyPrefix + id
}

func workflowVersionsKey(workflowID string) string {
	return "flowpatch:workflow:" + workflowID + ":versions"
}

func (p *Persistence) SaveVersion(ctx context.Context, version *models.WorkflowVersion) error {
	data, err := json.Marshal(version)
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ID, err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, versionKey(version.ID), data, 0)
	pipe.ZAdd(ctx, workflowVersionsKey(version.WorkflowID), goredis.Z{
		Score:  float64(version.VersionNumber),
		Member: version.ID,
	})
	pipe.SAdd(ctx, workflowSetKey, version.WorkflowID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return persistence.NewVersionError("SaveVersion", version.ID, err)
	}

	return nil
}

// NextVersionNumber derives the next number from the highest score in the
// per-workflow sorted set, so numbering restarts at 1 after a full delete
// and stays monotonic across pruning.
func (p *Persistence) NextVersionNumber(ctx context.Context, workflowID string) (int, error) {
	entries, err := p.client.ZRevRangeWithScores(ctx, workflowVersionsKey(workflowID), 0, 0).Result()
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("NextVersionNumber", workflowID, err)
	}

	if len(entries) == 0 {
		return 1, nil
	}

	return int(entries[0].Score) + 1, nil
}

func (p *Persistence) VersionByID(ctx context.Context, id string) (*models.WorkflowVersion, error) {
	data, err := p.client.Get(ctx, versionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewVersionError("VersionByID", id, persistence.ErrVersionNotFound)
		}

		return nil, persistence.NewVersionError("VersionByID", id, err)
	}

	version := &models.WorkflowVersion{}

	err = json.Unmarshal(data, version)
	if err != nil {
		return nil, persistence.NewVersionError("VersionByID", id, err)
	}

	return version, nil
}

func (p *Persistence) LatestVersion(ctx context.Context, workflowID string) (*models.WorkflowVersion, error) {
	ids, err := p.client.ZRevRange(ctx, workflowVersionsKey(workflowID), 0, 0).Result()
	if err != nil {
		return nil, persistence.NewWorkflowVersionError("LatestVersion", workflowID, err)
	}

	if len(ids) == 0 {
		return nil, persistence.NewWorkflowVersionError("LatestVersion", workflowID, persistence.ErrNoVersions)
	}

	return p.VersionByID(ctx, ids[0])
}

func (p *Persistence) VersionsByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowVersion, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := p.client.ZRevRange(ctx, workflowVersionsKey(workflowID), 0, stop).Result()
	if err != nil {
		return nil, persistence.NewWorkflowVersionError("VersionsByWorkflow", workflowID, err)
	}

	versions := make([]*models.WorkflowVersion, 0, len(ids))

	for _, id := range ids {
		version, err := p.VersionByID(ctx, id)
		if err != nil {
			return nil, err
		}

		versions = append(versions, version)
	}

	return versions, nil
}

func (p *Persistence) DeleteVersion(ctx context.Context, id string) error {
	version, err := p.VersionByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := p.client.TxPipeline()
	pipe.Del(ctx, versionKey(id))
	pipe.ZRem(ctx, workflowVersionsKey(version.WorkflowID), id)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return persistence.NewVersionError("DeleteVersion", id, err)
	}

	return p.cleanupWorkflow(ctx, version.WorkflowID)
}

func (p *Persistence) DeleteWorkflowVersions(ctx context.Context, workflowID string) (int, error) {
	ids, err := p.client.ZRange(ctx, workflowVersionsKey(workflowID), 0, -1).Result()
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("DeleteWorkflowVersions", workflowID, err)
	}

	pipe := p.client.TxPipeline()

	for _, id := range ids {
		pipe.Del(ctx, versionKey(id))
	}

	pipe.Del(ctx, workflowVersionsKey(workflowID))
	pipe.SRem(ctx, workflowSetKey, workflowID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("DeleteWorkflowVersions", workflowID, err)
	}

	return len(ids), nil
}

func (p *Persistence) PruneVersions(ctx context.Context, workflowID string, maxVersions int) (int, error) {
	if maxVersions < 0 {
		maxVersions = 0
	}

	key := workflowVersionsKey(workflowID)

	total, err := p.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("PruneVersions", workflowID, err)
	}

	excess := int(total) - maxVersions
	if excess <= 0 {
		return 0, nil
	}

	// Lowest scores are the oldest version numbers.
	ids, err := p.client.ZRange(ctx, key, 0, int64(excess)-1).Result()
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("PruneVersions", workflowID, err)
	}

	pipe := p.client.TxPipeline()

	for _, id := range ids {
		pipe.Del(ctx, versionKey(id))
		pipe.ZRem(ctx, key, id)
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("PruneVersions", workflowID, err)
	}

	return len(ids), p.cleanupWorkflow(ctx, workflowID)
}

func (p *Persistence) TruncateVersions(ctx context.Context) (int, error) {
	workflowIDs, err := p.WorkflowIDs(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0

	for _, workflowID := range workflowIDs {
		count, err := p.DeleteWorkflowVersions(ctx, workflowID)
		if err != nil {
			return deleted, err
		}

		deleted += count
	}

	return deleted, nil
}

func (p *Persistence) CountVersions(ctx context.Context, workflowID string) (int, error) {
	count, err := p.client.ZCard(ctx, workflowVersionsKey(workflowID)).Result()
	if err != nil {
		return 0, persistence.NewWorkflowVersionError("CountVersions", workflowID, err)
	}

	return int(count), nil
}

func (p *Persistence) WorkflowIDs(ctx context.Context) ([]string, error) {
	ids, err := p.client.SMembers(ctx, workflowSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow ids: %w", err)
	}

	return ids, nil
}

// HealthCheck verifies the Redis connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the Redis client.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// cleanupWorkflow drops the workflow from the index set once its history is
// empty, keeping WorkflowIDs accurate for stats and the retention sweeper.
func (p *Persistence) cleanupWorkflow(ctx context.Context, workflowID string) error {
	count, err := p.client.ZCard(ctx, workflowVersionsKey(workflowID)).Result()
	if err != nil {
		return persistence.NewWorkflowVersionError("cleanupWorkflow", workflowID, err)
	}

	if count == 0 {
		err = p.client.SRem(ctx, workflowSetKey, workflowID).Err()
		if err != nil {
			return persistence.NewWorkflowVersionError("cleanupWorkflow", workflowID, err)
		}
	}

	return nil
}
