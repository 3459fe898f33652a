package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockS3API является моком для s3API.
type MockS3API struct {
	mock.Mock
}

func (m *MockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput,
	_ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	// Тело читается сразу: после возврата временный файл удаляется
	body, _ := io.ReadAll(params.Body)
	args := m.Called(ctx, *params.Key, string(body))
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *MockS3API) GetObject(ctx context.Context, params *s3.GetObjectInput,
	_ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, *params.Key)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *MockS3API) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput,
	_ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, *params.Key)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func TestS3Storage(t *testing.T) {
	ctx := context.Background()

	t.Run("Загрузка с префиксом", func(t *testing.T) {
		api := new(MockS3API)
		s := &S3Storage{client: api, bucket: "files", prefix: "filehost/"}
		api.On("PutObject", mock.Anything, "filehost/user_1/a.txt", "Test file content").
			Return(&s3.PutObjectOutput{}, nil).Once()

		location, err := s.Store(ctx, "user_1/a.txt", strings.NewReader("Test file content"))
		require.NoError(t, err)
		assert.Equal(t, "user_1/a.txt", location)
		api.AssertExpectations(t)
	})

	t.Run("Ошибка загрузки", func(t *testing.T) {
		api := new(MockS3API)
		s := &S3Storage{client: api, bucket: "files"}
		api.On("PutObject", mock.Anything, "user_1/a.txt", "x").Return(nil, errors.New("access denied")).Once()

		_, err := s.Store(ctx, "user_1/a.txt", strings.NewReader("x"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ошибка загрузки файла в S3")
	})

	t.Run("Чтение", func(t *testing.T) {
		api := new(MockS3API)
		s := &S3Storage{client: api, bucket: "files"}
		api.On("GetObject", mock.Anything, "user_1/a.txt").
			Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("data"))}, nil).Once()

		rc, err := s.Retrieve(ctx, "user_1/a.txt")
		require.NoError(t, err)
		data, _ := io.ReadAll(rc)
		assert.Equal(t, "data", string(data))
	})

	t.Run("Объект не найден", func(t *testing.T) {
		api := new(MockS3API)
		s := &S3Storage{client: api, bucket: "files"}
		api.On("GetObject", mock.Anything, "user_1/missing").Return(nil, &types.NoSuchKey{}).Once()

		_, err := s.Retrieve(ctx, "user_1/missing")
		require.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("Удаление", func(t *testing.T) {
		api := new(MockS3API)
		s := &S3Storage{client: api, bucket: "files", prefix: "p/"}
		api.On("DeleteObject", mock.Anything, "p/user_1/a.txt").Return(&s3.DeleteObjectOutput{}, nil).Once()

		require.NoError(t, s.Delete(ctx, "user_1/a.txt"))
		api.AssertExpectations(t)
	})
}

// MockMinioAPI является моком для minioAPI.
type MockMinioAPI struct {
	mock.Mock
}

func (m *MockMinioAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader,
	objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	args := m.Called(ctx, bucketName, objectName, string(body), objectSize)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockMinioAPI) GetObject(ctx context.Context, bucketName, objectName string,
	opts minio.GetObjectOptions) (*minio.Object, error) {
	args := m.Called(ctx, bucketName, objectName)
	obj, _ := args.Get(0).(*minio.Object)
	return obj, args.Error(1)
}

func (m *MockMinioAPI) StatObject(ctx context.Context, bucketName, objectName string,
	opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *MockMinioAPI) RemoveObject(ctx context.Context, bucketName, objectName string,
	opts minio.RemoveObjectOptions) error {
	args := m.Called(ctx, bucketName, objectName)
	return args.Error(0)
}

func TestMinioStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("Загрузка потока неизвестной длины", func(t *testing.T) {
		api := new(MockMinioAPI)
		s := &MinioStorage{client: api, bucketName: "files"}
		api.On("PutObject", mock.Anything, "files", "user_1/a.txt", "Test file content", int64(-1)).
			Return(minio.UploadInfo{Size: 17}, nil).Once()

		location, err := s.Store(ctx, "user_1/a.txt", strings.NewReader("Test file content"))
		require.NoError(t, err)
		assert.Equal(t, "user_1/a.txt", location)
		api.AssertExpectations(t)
	})

	t.Run("Недопустимое имя", func(t *testing.T) {
		s := &MinioStorage{client: new(MockMinioAPI), bucketName: "files"}
		_, err := s.Store(ctx, "../x", strings.NewReader("x"))
		require.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("Объект не найден", func(t *testing.T) {
		api := new(MockMinioAPI)
		s := &MinioStorage{client: api, bucketName: "files"}
		api.On("StatObject", mock.Anything, "files", "user_1/missing").
			Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"}).Once()

		_, err := s.Retrieve(ctx, "user_1/missing")
		require.ErrorIs(t, err, ErrObjectNotFound)
		api.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Удаление", func(t *testing.T) {
		api := new(MockMinioAPI)
		s := &MinioStorage{client: api, bucketName: "files"}
		api.On("RemoveObject", mock.Anything, "files", "user_1/a.txt").Return(nil).Once()

		require.NoError(t, s.Delete(ctx, "user_1/a.txt"))
		api.AssertExpectations(t)
	})

	t.Run("Ошибка удаления", func(t *testing.T) {
		api := new(MockMinioAPI)
		s := &MinioStorage{client: api, bucketName: "files"}
		api.On("RemoveObject", mock.Anything, "files", "user_1/a.txt").Return(errors.New("timeout")).Once()

		err := s.Delete(ctx, "user_1/a.txt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})
}
