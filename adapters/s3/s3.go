package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"productcatalog/catalog"
)

type operatorOptions struct {
	logger *slog.Logger
}

type OperatorOption func(*operatorOptions)

// WithOperatorLogger 設置日誌記錄器
func WithOperatorLogger(logger *slog.Logger) OperatorOption {
	return func(o *operatorOptions) {
		o.logger = logger
	}
}

// S3Operator 把商品圖片存放在 S3 相容的物件儲存，並以公開網址作為圖片的參照
type S3Operator struct {
	// Client 是 S3 客戶端。
	Client *s3.Client
	// Bucket 是 S3 存儲桶的名稱。
	Bucket string
	// PublicEndpoint 是 S3 存儲桶的公開 Endpoint。
	PublicEndpoint *url.URL

	logger  *slog.Logger
	options operatorOptions
}

var _ catalog.ObjectStore = (*S3Operator)(nil)

func NewS3Operator(client *s3.Client, bucket, publicBaseURL string, opts ...OperatorOption) (*S3Operator, error) {
	const op = "NewS3Operator"
	if client == nil {
		return nil, errors.New("s3 client cannot be nil")
	}
	if bucket == "" {
		return nil, errors.New("bucket cannot be empty")
	}
	publicEndpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	if publicEndpoint.Scheme == "" || publicEndpoint.Host == "" {
		return nil, fmt.Errorf("[%s] Public base URL must be absolute, url=%s", op, publicBaseURL)
	}

	// 默認選項
	options := operatorOptions{
		logger: slog.Default(),
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &S3Operator{
		Client:         client,
		Bucket:         bucket,
		PublicEndpoint: publicEndpoint,
		logger:         options.logger.With(slog.String("caller", "S3Operator"), slog.String("bucket", bucket)),
		options:        options,
	}, nil
}

// Store 上傳圖片並回傳公開網址
// 實際的 key 為 hint 加上隨機檔名，同一個 hint 重複上傳不會互相覆蓋
func (s *S3Operator) Store(ctx context.Context, file catalog.Upload, destinationHint string) (string, error) {
	const op = "S3Operator.Store"
	contentType := file.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(file.Content)
	}
	secure, ext := CheckSecureImageAndGetExtension(contentType)
	if !secure {
		return "", fmt.Errorf("[%s] Unsupported image type %s", op, contentType)
	}
	key := path.Join(strings.Trim(destinationHint, "/"), uuid.NewString()+"."+ext)
	return s.UploadFileToS3(ctx, key, contentType, file.Content)
}

func (s *S3Operator) UploadFileToS3(ctx context.Context, key, contentType string, fileContent []byte) (string, error) {
	const op = "UploadFileToS3"
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(fileContent),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, key=%s, err=%w", op, key, err)
	}
	s.logger.Debug("Object uploaded", slog.String("key", key), slog.String("size", FormatBytes(int64(len(fileContent)))))
	return s.PublicURL(key), nil
}

// PublicURL 回傳 key 對應的公開網址
func (s *S3Operator) PublicURL(key string) string {
	uri := *s.PublicEndpoint
	uri.Path = "/" + strings.TrimPrefix(path.Join(uri.Path, key), "/")
	uri.RawPath = ""
	uri.RawQuery = ""
	uri.Fragment = ""
	return uri.String()
}

// KeyFromRef 從公開網址取回 key，網址不是由這個 bucket 產生時回傳 false
func (s *S3Operator) KeyFromRef(ref string) (string, bool) {
	uri, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if uri.Scheme != s.PublicEndpoint.Scheme || uri.Host != s.PublicEndpoint.Host {
		return "", false
	}
	base := strings.TrimSuffix(s.PublicEndpoint.Path, "/") + "/"
	if !strings.HasPrefix(uri.Path, base) {
		return "", false
	}
	key := strings.TrimPrefix(uri.Path, base)
	if key == "" || strings.HasSuffix(key, "/") || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

// Delete 刪除參照指向的物件
// 無法解析的參照以及已經不存在的物件都視為略過，不是錯誤
func (s *S3Operator) Delete(ctx context.Context, ref string) (catalog.DeleteOutcome, error) {
	const op = "S3Operator.Delete"
	key, ok := s.KeyFromRef(ref)
	if !ok {
		s.logger.Warn("Skip deleting unrecognized reference", slog.String("ref", ref))
		return catalog.DeleteSkipped, nil
	}
	_, err := s.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		s.logger.Info("Object already deleted", slog.String("key", key))
		return catalog.DeleteSkipped, nil
	}
	if err != nil {
		return catalog.DeleteFailed, fmt.Errorf("[%s] Fail to inspect object, key=%s, err=%w", op, key, err)
	}
	_, err = s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return catalog.DeleteFailed, fmt.Errorf("[%s] Fail to delete object, key=%s, err=%w", op, key, err)
	}
	s.logger.Debug("Object deleted", slog.String("key", key))
	return catalog.DeleteDeleted, nil
}

// DeleteMany 依序刪除所有參照，單一物件失敗不影響其他物件
// 同一個流程內的外部呼叫一次只有一個，回傳的結果與 refs 的順序相同
func (s *S3Operator) DeleteMany(ctx context.Context, refs []string) []catalog.DeleteResult {
	results := make([]catalog.DeleteResult, 0, len(refs))
	for _, ref := range refs {
		outcome, err := s.Delete(ctx, ref)
		results = append(results, catalog.DeleteResult{Ref: ref, Outcome: outcome, Err: err})
	}
	return results
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
