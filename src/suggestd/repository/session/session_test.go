package session

import (
	"context"
	"testing"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/internal/errors"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/goleak"
)

func TestSessionRepository(t *testing.T) {
	testScope := tally.NewTestScope("testing", make(map[string]string, 0))
	t.Run("should Set and Get successfully", func(t *testing.T) {
		var uuid uuid.UUID
		session := &entity.Session{
			UUID: uuid,
		}

		repository := New(testScope)

		err := repository.Set(context.Background(), session)
		require.NoError(t, err)
		val, err := repository.Get(context.Background(), uuid)
		require.NoError(t, err)
		assert.Equal(t, uuid, val.UUID)
	})

	t.Run("should fail to get something that was not Set", func(t *testing.T) {
		repository := New(testScope)

		id := uuid.Must(uuid.NewV4())
		_, err := repository.Get(context.Background(), id)
		require.Error(t, err)
		var nf *errors.UUIDNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, id, nf.UUID)
	})

	t.Run("should fail to Set a nil session", func(t *testing.T) {
		repository := New(testScope)
		assert.Error(t, repository.Set(context.Background(), nil))
	})

	t.Run("should round trip the active document", func(t *testing.T) {
		repository := New(testScope)
		id := uuid.Must(uuid.NewV4())
		err := repository.Set(context.Background(), &entity.Session{
			UUID:           id,
			ActiveDocument: "file:///workspace/main.go",
		})
		require.NoError(t, err)

		val, err := repository.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "file:///workspace/main.go", string(val.ActiveDocument))
	})
}

func TestGetFromContext(t *testing.T) {
	testScope := tally.NewTestScope("testing", make(map[string]string, 0))
	t.Run("should get when uuid is in context", func(t *testing.T) {
		var uuid uuid.UUID
		session := &entity.Session{
			UUID: uuid,
		}

		repository := New(testScope)
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, uuid)
		err := repository.Set(ctx, session)
		require.NoError(t, err)
		val, err := repository.GetFromContext(ctx)
		assert.NoError(t, err)
		assert.Equal(t, uuid, val.UUID)
	})

	t.Run("should fail when uuid is missing from context", func(t *testing.T) {
		repository := New(testScope)

		_, err := repository.GetFromContext(context.Background())
		require.Error(t, err)
	})
}

func TestDelete(t *testing.T) {
	testScope := tally.NewTestScope("testing", make(map[string]string, 0))
	repository := New(testScope)
	id := uuid.Must(uuid.NewV4())

	require.NoError(t, repository.Set(context.Background(), &entity.Session{UUID: id}))
	require.NoError(t, repository.Delete(context.Background(), id))
	_, err := repository.Get(context.Background(), id)
	assert.Error(t, err)
}

func TestSessionCount(t *testing.T) {
	testScope := tally.NewTestScope("testing", make(map[string]string, 0))
	repository := New(testScope)

	count, err := repository.SessionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, repository.Set(context.Background(), &entity.Session{UUID: uuid.Must(uuid.NewV4())}))
	count, err = repository.SessionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
