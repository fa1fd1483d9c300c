package milvus

import (
	"context"
	"fmt"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"finsight/internal/config"
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient bundles the raw SDK client with its configuration.
type MilvusClient struct {
	Client client.Client
	Config *config.MilvusConfig
}

// GetClient connects to Milvus once for the process lifetime.
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("connecting to Milvus: %w", err)
			return
		}
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// EnsureCollection creates the chunk collection and its index when they
// do not exist yet, then loads the collection for searching.
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	name := c.Config.Collection

	exists, err := c.Client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(name).
			WithDescription("balance sheet text chunks with tenant metadata").
			WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(c.Config.Dim))).
			WithField(entity.NewField().WithName("chunk").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096)).
			WithField(entity.NewField().WithName("company_id").WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName("year").WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName("metric").WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName("source").WithDataType(entity.FieldTypeVarChar).WithMaxLength(512))

		if err := c.Client.CreateCollection(ctx, schema, 1); err != nil {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}

		index, err := entity.NewIndexIvfFlat(entity.L2, 128)
		if err != nil {
			return fmt.Errorf("building index definition: %w", err)
		}
		if err := c.Client.CreateIndex(ctx, name, "embedding", index, false); err != nil {
			return fmt.Errorf("creating index on %s: %w", name, err)
		}
	}

	if err := c.Client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("loading collection %s: %w", name, err)
	}
	return nil
}

// Close disconnects from Milvus.
func (c *MilvusClient) Close() {
	if c.Client != nil {
		_ = c.Client.Close()
	}
}

// HealthCheck verifies the connection is alive.
func HealthCheck(ctx context.Context) error {
	if instance == nil {
		return fmt.Errorf("milvus client not initialized")
	}
	_, err := instance.Client.HasCollection(ctx, instance.Config.Collection)
	return err
}
