package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
)

// bookingObjectType OpenFGA 中的预订类型
const bookingObjectType = "booking"

// RelationChecker 关系查询，OpenFGAClient 与 CachedChecker 都实现它
type RelationChecker interface {
	CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error)
}

// OpenFGAClient OpenFGA 客户端
type OpenFGAClient struct {
	client  *client.OpenFgaClient
	storeID string
	modelID string
}

// NewOpenFGAClient 创建 OpenFGA 客户端
func NewOpenFGAClient(apiURL, storeID, modelID string) (*OpenFGAClient, error) {
	configuration := client.ClientConfiguration{
		ApiUrl:               apiURL,
		StoreId:              storeID,
		AuthorizationModelId: modelID,
		Credentials: &credentials.Credentials{
			Method: credentials.CredentialsMethodNone,
		},
	}

	fgaClient, err := client.NewSdkClient(&configuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenFGA client: %w", err)
	}

	return &OpenFGAClient{
		client:  fgaClient,
		storeID: storeID,
		modelID: modelID,
	}, nil
}

// NewOpenFGAClientWithRetry 带重试的创建，间隔指数退避
func NewOpenFGAClientWithRetry(ctx context.Context, apiURL, storeID, modelID string, maxRetries int, retryInterval time.Duration) (*OpenFGAClient, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		var fgaClient *OpenFGAClient
		fgaClient, err = NewOpenFGAClient(apiURL, storeID, modelID)
		if err == nil {
			if fgaClient.CheckHealth(ctx) {
				return fgaClient, nil
			}
			err = fmt.Errorf("openfga store %s not reachable", storeID)
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryInterval):
			}
			retryInterval *= 2
		}
	}
	return nil, fmt.Errorf("failed to create OpenFGA client after %d retries: %w", maxRetries, err)
}

// CheckPermission 检查关系
func (c *OpenFGAClient) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	body := client.ClientCheckRequest{
		User:     "user:" + userID,
		Relation: relation,
		Object:   objectType + ":" + objectID,
	}

	response, err := c.client.Check(ctx).Body(body).Execute()
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return response.GetAllowed(), nil
}

// WriteBookingParticipants 写入预订的 client / provider 关系元组
func (c *OpenFGAClient) WriteBookingParticipants(ctx context.Context, booking *model.BookingModel) error {
	var writes []client.ClientTupleKey
	object := bookingObjectType + ":" + booking.ID
	if booking.ClientID != "" {
		writes = append(writes, client.ClientTupleKey{User: "user:" + booking.ClientID, Relation: RoleClient, Object: object})
	}
	if booking.ProviderID != "" {
		writes = append(writes, client.ClientTupleKey{User: "user:" + booking.ProviderID, Relation: RoleProvider, Object: object})
	}
	if len(writes) == 0 {
		return nil
	}

	_, err := c.client.Write(ctx).Body(client.ClientWriteRequest{Writes: writes}).Execute()
	if err != nil {
		return fmt.Errorf("failed to write relations of booking %s: %w", booking.ID, err)
	}
	return nil
}

// CheckHealth 检查 OpenFGA 连接
func (c *OpenFGAClient) CheckHealth(ctx context.Context) bool {
	if c == nil || c.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.ReadAuthorizationModels(ctx).Execute()
	return err == nil
}

// FGAAuthorizer 通过 OpenFGA 的预订关系鉴权，管理员直接放行
type FGAAuthorizer struct {
	checker RelationChecker
}

// NewFGAAuthorizer 创建 OpenFGA 鉴权器
func NewFGAAuthorizer(checker RelationChecker) *FGAAuthorizer {
	return &FGAAuthorizer{checker: checker}
}

// Authorize 实现 Authorizer
func (a *FGAAuthorizer) Authorize(ctx context.Context, caller Caller, booking *model.BookingModel, relation string) (bool, error) {
	if caller.IsAdmin() {
		return true, nil
	}
	if caller.UserID == "" || booking == nil {
		return false, nil
	}
	return a.checker.CheckPermission(ctx, caller.UserID, relation, bookingObjectType, booking.ID)
}
