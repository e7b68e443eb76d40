package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SMVEC2025/agribackend/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

// Archived enquiries age out of the table after this long.
const enquiryRetention = 180 * 24 * time.Hour

// EnquiryRepository is an audit trail of enquiries forwarded to the CRM,
// stored in the shared single table with a retention TTL.
type EnquiryRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewEnquiryRepository(client *dynamodb.Client, tableName string, logger *logrus.Logger) *EnquiryRepository {
	return &EnquiryRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (r *EnquiryRepository) Store(ctx context.Context, submission models.EnquirySubmission) error {
	ttl := submission.CreatedAt.Add(enquiryRetention).Unix()

	item, err := attributevalue.MarshalMap(submission)
	if err != nil {
		return fmt.Errorf("failed to marshal enquiry: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: submission.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: submission.GetSK()}
	item["TTL"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttl)}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to archive enquiry in DynamoDB")
		return fmt.Errorf("failed to archive enquiry: %w", err)
	}

	return nil
}
