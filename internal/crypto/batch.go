package crypto

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

// BatchItem is one labelled plaintext in a batch.
type BatchItem struct {
	Label     string
	Plaintext []byte
}

// BatchItemResult is the outcome for the item at the same index.
type BatchItemResult struct {
	Label  string
	Secret *models.EncryptedSecret
	Err    error
}

// BatchResult holds one result per input item, in input order.
type BatchResult struct {
	Items []BatchItemResult
}

// Successes returns the items that were sealed.
func (r *BatchResult) Successes() []BatchItemResult {
	var out []BatchItemResult
	for _, it := range r.Items {
		if it.Err == nil {
			out = append(out, it)
		}
	}
	return out
}

// Failures returns the items that failed.
func (r *BatchResult) Failures() []BatchItemResult {
	var out []BatchItemResult
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// Err joins the per-item errors, or returns nil if every item succeeded.
func (r *BatchResult) Err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d batch items failed, first %q: %w",
		len(failures), len(r.Items), failures[0].Label, failures[0].Err)
}

// EncryptBatch derives one key from password and seals every item under it
// with its own random nonce. Items run in parallel; a failing item is
// reported in its slot and never stops the others. The returned error covers
// only batch-wide failures such as key derivation.
func (e *CryptoEngine) EncryptBatch(ctx context.Context, items []BatchItem, password []byte, opts *EncryptionOptions) (*BatchResult, error) {
	const op = "encrypt batch"

	params, err := e.encryptionParams(opts)
	if err != nil {
		return nil, err
	}

	key, err := deriveKeyContext(ctx, password, params)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	result := &BatchResult{Items: make([]BatchItemResult, len(items))}
	limit := opts.maxPlaintext()
	meta := opts.metadata(e.now())

	var g errgroup.Group
	g.SetLimit(e.batchLimit)

	for i, item := range items {
		result.Items[i].Label = item.Label
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				result.Items[i].Err = fmt.Errorf("%s: %w", op, err)
				return nil
			}
			if len(item.Plaintext) > limit {
				result.Items[i].Err = models.NewCryptoError(models.ErrCodeEncryption, op,
					fmt.Sprintf("item %q is %d bytes, limit %d", item.Label, len(item.Plaintext), limit), nil)
				return nil
			}
			secret, err := e.sealWithKey(op, key, item.Plaintext, meta)
			result.Items[i].Secret = secret
			result.Items[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}
