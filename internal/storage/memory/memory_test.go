package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-services-marketplace/internal/storage"
	"github.com/pribylovaa/go-services-marketplace/internal/storage/storagetest"
)

func TestStorage(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(t *testing.T) storage.Storage { return New() })
}

func TestStorage_CanceledContext(t *testing.T) {
	t.Parallel()

	st := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, st.CreateUser(ctx, storagetest.NewUser("a@example.com", "")), context.Canceled)

	_, err := st.UserByEmail(ctx, "a@example.com")
	require.ErrorIs(t, err, context.Canceled)
}

func TestStorage_ConcurrentCreateSameMobile(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = st.CreateUser(ctx, storagetest.NewUser("", "9999999999"))
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, storage.ErrAlreadyExists)
	}

	require.Equal(t, 1, created)
}
