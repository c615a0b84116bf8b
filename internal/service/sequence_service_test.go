package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"billing/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextNumberFormatsPrefixAndPadding(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	number, err := env.sequenceSvc.NextNumber(ctx, "tenant-a", model.SeqTypeInvoice, "INV", DefaultPadding)
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", number)

	number, err = env.sequenceSvc.NextNumber(ctx, "tenant-a", model.SeqTypeInvoice, "INV", DefaultPadding)
	require.NoError(t, err)
	assert.Equal(t, "INV-000002", number)
}

func TestNextNumberWithoutPrefix(t *testing.T) {
	env := newTestEnv()

	number, err := env.sequenceSvc.NextNumber(context.Background(), "tenant-a", model.SeqTypeInvoice, "", 4)
	require.NoError(t, err)
	assert.Equal(t, "0001", number)
}

func TestNextNumberIndependentPerTypeAndTenant(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	inv, err := env.sequenceSvc.NextNumber(ctx, "tenant-a", model.SeqTypeInvoice, "INV", DefaultPadding)
	require.NoError(t, err)
	quote, err := env.sequenceSvc.NextNumber(ctx, "tenant-a", model.SeqTypeQuote, "COT", DefaultPadding)
	require.NoError(t, err)
	other, err := env.sequenceSvc.NextNumber(ctx, "tenant-b", model.SeqTypeInvoice, "INV", DefaultPadding)
	require.NoError(t, err)

	assert.Equal(t, "INV-000001", inv)
	assert.Equal(t, "COT-000001", quote)
	assert.Equal(t, "INV-000001", other)
}

func TestNextNumberMonotonicUnderConcurrency(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	const workers = 50
	results := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := env.sequenceSvc.NextNumber(ctx, "tenant-a", model.SeqTypeInvoice, "INV", DefaultPadding)
			assert.NoError(t, err)
			results <- number
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for number := range results {
		assert.False(t, seen[number], "number %s allocated twice", number)
		seen[number] = true
	}
	require.Len(t, seen, workers)

	// Exactly the numbers 1..workers with no gaps.
	for i := 1; i <= workers; i++ {
		expected := fmt.Sprintf("INV-%06d", i)
		assert.True(t, seen[expected], "missing %s", expected)
	}
}
