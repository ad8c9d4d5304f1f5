// Package archive stores generated workbooks in a blob store. The archive
// is a best-effort copy of download artifacts; job state itself stays
// in-memory and ephemeral.
package archive

import "context"

// Provider abstracts the blob store holding archived workbooks.
type Provider interface {
	// Save uploads data under the given object name.
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider discards every workbook. It is the default when no archive
// backend is configured.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}
