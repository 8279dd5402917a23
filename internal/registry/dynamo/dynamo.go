// Package dynamo registers the "dynamo" registry.Store backend: the same
// whole-record-as-a-JSON-blob persistence style as the sqlite and postgres
// backends, keyed by app id, but held in a single DynamoDB table instead of
// a SQL one — for deployments that already run on AWS and would rather not
// operate a separate database for orchestrator state.
package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/registry"
)

const tableWaitTimeout = 30 * time.Second

func init() {
	registry.RegisterBackend("dynamo", func(cfg registry.Config) (registry.Store, error) {
		return Open(cfg)
	})
}

const (
	defaultTable = "app_records"
	attrAppID    = "app_id"
	attrRecord   = "record"
)

type store struct {
	client *dynamodb.Client
	table  string
}

// Open resolves an aws.Config from the environment/shared config chain
// (region overridden by cfg.Region when set), then ensures cfg.Table
// exists, creating it on demand as a pay-per-request table keyed on
// app_id, matching how a first-run orchestrator has no pre-provisioned
// infrastructure to lean on.
func Open(cfg registry.Config) (registry.Store, error) {
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}

	ctx := context.Background()
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to load aws config for dynamo registry", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.Host != "" {
		// Host doubles as an explicit endpoint override for local/test
		// DynamoDB instances, the same way registry.Config.Host names the
		// postgres server rather than a region.
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Host)
		})
	}
	client := dynamodb.NewFromConfig(awsCfg, clientOpts...)
	s := &store{client: client, table: table}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *store) ensureTable(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !isResourceNotFound(err, &notFound) {
		return orcherr.Wrap(orcherr.KindInternal, "failed to describe dynamo registry table", err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.table),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrAppID), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrAppID), AttributeType: types.ScalarAttributeTypeS},
		},
	})
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to create dynamo registry table", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, tableWaitTimeout); err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "timed out waiting for dynamo registry table", err)
	}
	return nil
}

func isResourceNotFound(err error, target **types.ResourceNotFoundException) bool {
	return errors.As(err, target)
}

func (s *store) Load(ctx context.Context, appID string) (*registry.AppRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			attrAppID: &types.AttributeValueMemberS{Value: appID},
		},
	})
	if err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to load app record", err)
	}
	if out.Item == nil {
		return nil, orcherr.New(orcherr.KindIllegalState, "no app record for "+appID)
	}
	rawAttr, ok := out.Item[attrRecord].(*types.AttributeValueMemberS)
	if !ok {
		return nil, orcherr.New(orcherr.KindInternal, "malformed dynamo item for "+appID)
	}
	var rec registry.AppRecord
	if err := json.Unmarshal([]byte(rawAttr.Value), &rec); err != nil {
		return nil, orcherr.Wrap(orcherr.KindInternal, "failed to decode app record", err)
	}
	return &rec, nil
}

func (s *store) Save(ctx context.Context, record *registry.AppRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to encode app record", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			attrAppID:  &types.AttributeValueMemberS{Value: record.AppID},
			attrRecord: &types.AttributeValueMemberS{Value: string(raw)},
		},
	})
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to save app record", err)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, appID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			attrAppID: &types.AttributeValueMemberS{Value: appID},
		},
	})
	if err != nil {
		return orcherr.Wrap(orcherr.KindInternal, "failed to delete app record", err)
	}
	return nil
}

func (s *store) List(ctx context.Context) ([]*registry.AppRecord, error) {
	var out []*registry.AppRecord
	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, orcherr.Wrap(orcherr.KindInternal, "failed to list app records", err)
		}
		for _, item := range resp.Items {
			rawAttr, ok := item[attrRecord].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			var rec registry.AppRecord
			if err := json.Unmarshal([]byte(rawAttr.Value), &rec); err != nil {
				return nil, orcherr.Wrap(orcherr.KindInternal, "failed to decode app record", err)
			}
			out = append(out, &rec)
		}
		if resp.LastEvaluatedKey == nil {
			break
		}
		startKey = resp.LastEvaluatedKey
	}
	return out, nil
}

func (s *store) Close() error { return nil }
