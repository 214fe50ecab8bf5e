package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
)

// PermissionChecker 权限检查接口
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error)
}

// OpenFGAClient OpenFGA 客户端
type OpenFGAClient struct {
	client  *client.OpenFgaClient
	storeID string
	modelID string
}

// NewOpenFGAClient 创建 OpenFGA 客户端
func NewOpenFGAClient(apiURL string, storeID string, modelID string) (*OpenFGAClient, error) {
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

// tupleKey 组装关系元组,已带类型前缀的主体(如 workplace:LASER-01)原样使用
func tupleKey(subject, relation, objectType, objectID string) (string, string, string) {
	user := subject
	if !strings.Contains(subject, ":") {
		user = "user:" + subject
	}
	return user, relation, fmt.Sprintf("%s:%s", objectType, objectID)
}

// CheckPermission 检查权限
func (c *OpenFGAClient) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	user, rel, object := tupleKey(userID, relation, objectType, objectID)
	body := client.ClientCheckRequest{
		User:     user,
		Relation: rel,
		Object:   object,
	}

	response, err := c.client.Check(ctx).Body(body).Execute()
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}

	return response.GetAllowed(), nil
}

// SetRelation 设置权限关系
func (c *OpenFGAClient) SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	user, rel, object := tupleKey(userID, relation, objectType, objectID)
	body := client.ClientWriteRequest{
		Writes: []client.ClientTupleKey{{User: user, Relation: rel, Object: object}},
	}

	if _, err := c.client.Write(ctx).Body(body).Execute(); err != nil {
		return fmt.Errorf("failed to set relation: %w", err)
	}
	return nil
}

// DeleteRelation 删除权限关系
func (c *OpenFGAClient) DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	user, rel, object := tupleKey(userID, relation, objectType, objectID)
	body := client.ClientWriteRequest{
		Deletes: []client.ClientTupleKeyWithoutCondition{{User: user, Relation: rel, Object: object}},
	}

	if _, err := c.client.Write(ctx).Body(body).Execute(); err != nil {
		return fmt.Errorf("failed to delete relation: %w", err)
	}
	return nil
}

// ObjectIDFunc 从请求中提取对象 ID
type ObjectIDFunc func(c *gin.Context) string

// OperationObjectID 以 order_no/asset_id/operation_no 路径参数组成工序对象 ID
func OperationObjectID(c *gin.Context) string {
	return fmt.Sprintf("%s/%s/%s", c.Param("order_no"), c.Param("asset_id"), c.Param("operation_no"))
}

// PermissionMiddleware 权限检查中间件
func PermissionMiddleware(checker PermissionChecker, objectType, relation string, objectID ObjectIDFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserIDFromContext(c.Request.Context())
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "unauthorized",
			})
			c.Abort()
			return
		}

		allowed, err := checker.CheckPermission(c.Request.Context(), userID, relation, objectType, objectID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    500,
				"message": "permission check failed",
				"detail":  err.Error(),
			})
			c.Abort()
			return
		}

		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{
				"code":    403,
				"message": "forbidden",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// NewOpenFGAClientWithRetry 带重试的 OpenFGA 客户端创建
func NewOpenFGAClientWithRetry(apiURL string, storeID string, modelID string, maxRetries int, retryInterval time.Duration) (*OpenFGAClient, error) {
	var fgaClient *OpenFGAClient
	var err error

	for i := 0; i < maxRetries; i++ {
		fgaClient, err = NewOpenFGAClient(apiURL, storeID, modelID)
		if err == nil {
			if fgaClient.CheckHealth(context.Background()) {
				return fgaClient, nil
			}
			err = fmt.Errorf("openfga store %s not reachable", storeID)
		}

		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to create OpenFGA client after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查 OpenFGA 连接健康状态
func (c *OpenFGAClient) CheckHealth(ctx context.Context) bool {
	if c == nil || c.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.Read(ctx).Execute()
	return err == nil
}
